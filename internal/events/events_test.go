package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/queue"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	published []message
	err       error
	drained   bool
	closed    bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, message{subject: subject, data: data})
	return nil
}

func (c *fakeConn) Drain() error { c.drained = true; return nil }
func (c *fakeConn) Close()        { c.closed = true }

type fakeMetrics struct {
	published, errs int
}

func (m *fakeMetrics) PublishedInc()     { m.published++ }
func (m *fakeMetrics) PublishErrInc()    { m.errs++ }
func (m *fakeMetrics) SetConnected(bool) {}

func completedJob() queue.Job {
	completed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return queue.Job{
		ID: "job-1",
		Request: queue.Request{
			Kind:  queue.KindTimeline,
			Start: calendar.Date(2020, 1, 1),
			End:   calendar.Date(2020, 1, 10),
			Unit:  calculator.Miles,
		},
		Status:      queue.StatusCompleted,
		CompletedAt: &completed,
		Result:      &queue.JobResult{CSVPath: "/data/csv/x.csv", DaysAway: 3, MaxDistance: 534.9, Overlaps: 1},
	}
}

func TestFromJob(t *testing.T) {
	ev := FromJob(completedJob())

	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, "timeline", ev.Kind)
	assert.Equal(t, "completed", ev.Status)
	assert.Equal(t, "2020-01-01", ev.Start)
	assert.Equal(t, "2020-01-10", ev.End)
	assert.Equal(t, "mi", ev.Unit)
	assert.Equal(t, 3, ev.DaysAway)
	assert.Equal(t, 1, ev.Overlaps)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), ev.Timestamp)
}

func TestNATSPublisher_Publish(t *testing.T) {
	nc := &fakeConn{}
	m := &fakeMetrics{}
	p := newPublisher(nc, "stay-timeline.jobs", m, zerolog.Nop())

	require.NoError(t, p.Publish(FromJob(completedJob())))
	require.Len(t, nc.published, 1)
	assert.Equal(t, "stay-timeline.jobs.completed", nc.published[0].subject)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(nc.published[0].data, &decoded))
	assert.Equal(t, "job-1", decoded["jobId"])
	assert.Equal(t, "/data/csv/x.csv", decoded["csvPath"])
	assert.NotContains(t, decoded, "error")
	assert.Equal(t, 1, m.published)

	nc.err = errors.New("connection closed")
	assert.Error(t, p.Publish(Event{Status: "failed"}))
	assert.Equal(t, 1, m.errs)

	p.Close()
	assert.True(t, nc.drained)
	assert.True(t, nc.closed)
}

func TestJobListener(t *testing.T) {
	nc := &fakeConn{}
	listener := JobListener(newPublisher(nc, "jobs", nil, zerolog.Nop()), zerolog.Nop())

	job := completedJob()
	job.Status = queue.StatusFailed
	job.ErrorMessage = "unknown location: FR/PARIS"
	job.Result = nil
	listener(job)

	require.Len(t, nc.published, 1)
	assert.Equal(t, "jobs.failed", nc.published[0].subject)
	assert.Contains(t, string(nc.published[0].data), "FR/PARIS")

	// Publish errors do not panic or propagate.
	nc.err = errors.New("down")
	listener(job)
}

func TestSubjectToken(t *testing.T) {
	tests := map[string]string{
		"completed": "completed",
		" a.b ":     "a_b",
		"x*y>z":     "x_y_z",
		"":          "_",
		"two words": "two_words",
	}
	for in, want := range tests {
		assert.Equal(t, want, subjectToken(in), in)
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(Event{}))
	p.Close()
}
