package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/stay-timeline/internal/geocode"
	"github.com/stuartshay/stay-timeline/internal/queue"
	"github.com/stuartshay/stay-timeline/internal/timeline"
)

var _ timeline.Observer = (*Collector)(nil)

func TestCollector_Builds(t *testing.T) {
	c := NewCollector()

	c.BuildSucceeded(366, 2, 3*time.Millisecond)
	c.BuildSucceeded(10, 0, time.Millisecond)
	c.BuildFailed(errors.New("unknown location"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Builds.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Builds.WithLabelValues("failure")))
	assert.Equal(t, 376.0, testutil.ToFloat64(c.DaysBuilt))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Overlaps))
}

func TestCollector_JobFinished(t *testing.T) {
	c := NewCollector()
	started := time.Now()
	completed := started.Add(40 * time.Millisecond)

	c.JobFinished(queue.Job{
		Request:     queue.Request{Kind: queue.KindYears},
		Status:      queue.StatusCompleted,
		StartedAt:   &started,
		CompletedAt: &completed,
	})
	c.JobFinished(queue.Job{Request: queue.Request{Kind: queue.KindTimeline}, Status: queue.StatusFailed})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Jobs.WithLabelValues("years", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Jobs.WithLabelValues("timeline", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.JobDuration))
}

func TestCollector_ResolverAndEvents(t *testing.T) {
	c := NewCollector()

	c.ObserveResolver(geocode.Stats{Hits: 5, Misses: 2})
	c.PublishedInc()
	c.PublishErrInc()
	c.SetConnected(true)

	assert.Equal(t, 5.0, testutil.ToFloat64(c.CoordinateLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CoordinateLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.EventsPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.EventPublishErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))

	c.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.NATSConnected))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	q := queue.NewQueue(0, nil)
	defer func() { _ = q.Shutdown(time.Second) }()
	c.WatchQueue(q)
	c.BuildSucceeded(1, 0, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, name := range []string{
		"stay_timeline_builds_total",
		"stay_timeline_queue_pending_jobs",
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(body, name), "expected %s in exposition", name)
	}
}
