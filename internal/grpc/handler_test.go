package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/queue"
)

func newTestServer(t *testing.T, processor queue.ProcessFunc, opts ...queue.Option) *Server {
	t.Helper()
	if processor == nil {
		processor = func(_ context.Context, job *queue.Job) (*queue.JobResult, error) {
			return &queue.JobResult{CSVPath: "/data/csv/" + job.ID + ".csv", Unit: calculator.Miles, TotalDays: 10, DaysAway: 3}, nil
		}
	}
	s := NewServer(queue.NewQueue(1, processor, opts...), zerolog.Nop())
	t.Cleanup(func() { _ = s.Shutdown(time.Second) })
	return s
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func waitForCompletion(t *testing.T, s *Server, jobID string) *structpb.Struct {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := s.GetJobStatus(context.Background(), mustStruct(t, map[string]any{"job_id": jobID}))
		require.NoError(t, err)
		switch resp.GetFields()["status"].GetStringValue() {
		case string(queue.StatusCompleted), string(queue.StatusFailed):
			return resp
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return nil
}

func TestSubmitTimeline(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]any
		wantCode codes.Code
	}{
		{
			name:     "timeline",
			fields:   map[string]any{"start": "2020-01-01", "end": "2020-01-10"},
			wantCode: codes.OK,
		},
		{
			name:     "years in kilometers",
			fields:   map[string]any{"kind": "years", "start_year": 2019, "end_year": 2021, "unit": "km"},
			wantCode: codes.OK,
		},
		{
			name:     "missing end",
			fields:   map[string]any{"start": "2020-01-01"},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "bad date",
			fields:   map[string]any{"start": "01/01/2020", "end": "2020-01-10"},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "reversed range",
			fields:   map[string]any{"start": "2020-02-01", "end": "2020-01-01"},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "reversed years",
			fields:   map[string]any{"kind": "years", "start_year": 2022, "end_year": 2020},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "unknown unit",
			fields:   map[string]any{"start": "2020-01-01", "end": "2020-01-10", "unit": "furlongs"},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "unknown kind",
			fields:   map[string]any{"kind": "weekly"},
			wantCode: codes.InvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)

			resp, err := s.SubmitTimeline(context.Background(), mustStruct(t, tt.fields))
			if tt.wantCode != codes.OK {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, status.Code(err))
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, resp.GetFields()["job_id"].GetStringValue())
			assert.Equal(t, "queued", resp.GetFields()["status"].GetStringValue())
			_, err = time.Parse(time.RFC3339Nano, resp.GetFields()["queued_at"].GetStringValue())
			assert.NoError(t, err)
		})
	}
}

func TestSubmitTimeline_QueueFull(t *testing.T) {
	release := make(chan struct{})
	s := newTestServer(t, func(ctx context.Context, _ *queue.Job) (*queue.JobResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &queue.JobResult{}, nil
	}, queue.WithCapacity(1))
	defer close(release)

	req := mustStruct(t, map[string]any{"start": "2020-01-01", "end": "2020-01-10"})

	var lastErr error
	for i := 0; i < 5 && lastErr == nil; i++ {
		_, lastErr = s.SubmitTimeline(context.Background(), req)
	}
	require.Error(t, lastErr)
	assert.Equal(t, codes.ResourceExhausted, status.Code(lastErr))
}

func TestSubmitTimeline_RangeTooLong(t *testing.T) {
	s := newTestServer(t, nil, queue.WithMaxRangeYears(100))

	for _, fields := range []map[string]any{
		{"start": "0001-01-01", "end": "9999-12-31"},
		{"kind": "years", "start_year": 1, "end_year": 1000000},
	} {
		_, err := s.SubmitTimeline(context.Background(), mustStruct(t, fields))
		require.Error(t, err)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	}

	_, err := s.SubmitTimeline(context.Background(), mustStruct(t, map[string]any{"kind": "years", "start_year": 1921, "end_year": 2020}))
	assert.NoError(t, err)
}

func TestGetJobStatus(t *testing.T) {
	s := newTestServer(t, nil)

	_, err := s.GetJobStatus(context.Background(), mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.GetJobStatus(context.Background(), mustStruct(t, map[string]any{"job_id": "missing"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	resp, err := s.SubmitTimeline(context.Background(), mustStruct(t, map[string]any{
		"start": "2020-01-01",
		"end":   "2020-01-10",
	}))
	require.NoError(t, err)
	jobID := resp.GetFields()["job_id"].GetStringValue()

	job := waitForCompletion(t, s, jobID)
	fields := job.GetFields()
	assert.Equal(t, "completed", fields["status"].GetStringValue())
	assert.Equal(t, "timeline", fields["kind"].GetStringValue())
	assert.Equal(t, "2020-01-01", fields["start"].GetStringValue())
	assert.Equal(t, "2020-01-10", fields["end"].GetStringValue())
	assert.NotEmpty(t, fields["completed_at"].GetStringValue())

	result := fields["result"].GetStructValue().GetFields()
	require.NotNil(t, result)
	assert.Equal(t, "/data/csv/"+jobID+".csv", result["csv_path"].GetStringValue())
	assert.Equal(t, float64(3), result["days_away"].GetNumberValue())
	assert.Equal(t, "mi", result["unit"].GetStringValue())
}

func TestListJobs(t *testing.T) {
	s := newTestServer(t, nil)

	var ids []string
	for _, end := range []string{"2020-01-10", "2020-02-10", "2020-03-10"} {
		resp, err := s.SubmitTimeline(context.Background(), mustStruct(t, map[string]any{"start": "2020-01-01", "end": end}))
		require.NoError(t, err)
		ids = append(ids, resp.GetFields()["job_id"].GetStringValue())
	}
	for _, id := range ids {
		waitForCompletion(t, s, id)
	}

	resp, err := s.ListJobs(context.Background(), mustStruct(t, map[string]any{"limit": 2}))
	require.NoError(t, err)
	fields := resp.GetFields()
	assert.Equal(t, float64(3), fields["total_count"].GetNumberValue())
	assert.Equal(t, float64(2), fields["limit"].GetNumberValue())
	jobs := fields["jobs"].GetListValue().GetValues()
	require.Len(t, jobs, 2)
	assert.NotContains(t, jobs[0].GetStructValue().GetFields(), "result")

	resp, err = s.ListJobs(context.Background(), mustStruct(t, map[string]any{"status": "failed"}))
	require.NoError(t, err)
	assert.Equal(t, float64(0), resp.GetFields()["total_count"].GetNumberValue())
	assert.Equal(t, float64(defaultListLimit), resp.GetFields()["limit"].GetNumberValue())

	resp, err = s.ListJobs(context.Background(), mustStruct(t, map[string]any{"limit": 10000}))
	require.NoError(t, err)
	assert.Equal(t, float64(maxListLimit), resp.GetFields()["limit"].GetNumberValue())

	_, err = s.ListJobs(context.Background(), mustStruct(t, map[string]any{"status": "lost"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.ListJobs(context.Background(), mustStruct(t, map[string]any{"offset": -1}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestTimelineService_OverGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterTimelineServiceServer(srv, newTestServer(t, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := NewTimelineServiceClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.SubmitTimeline(ctx, mustStruct(t, map[string]any{"start": "2020-01-01", "end": "2020-01-10"}))
	require.NoError(t, err)
	jobID := resp.GetFields()["job_id"].GetStringValue()
	require.NotEmpty(t, jobID)

	job, err := client.GetJobStatus(ctx, mustStruct(t, map[string]any{"job_id": jobID}))
	require.NoError(t, err)
	assert.Equal(t, jobID, job.GetFields()["job_id"].GetStringValue())

	_, err = client.GetJobStatus(ctx, mustStruct(t, map[string]any{"job_id": "nope"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.SubmitTimeline(ctx, mustStruct(t, map[string]any{"kind": "years"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	list, err := client.ListJobs(ctx, mustStruct(t, map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, float64(1), list.GetFields()["total_count"].GetNumberValue())
}
