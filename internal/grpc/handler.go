// Package grpc implements the TimelineService gRPC server handlers for
// timeline job submission and job status queries.
package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/queue"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Server implements TimelineServiceServer on top of the job queue
type Server struct {
	queue  *queue.Queue
	logger zerolog.Logger
}

var _ TimelineServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(q *queue.Queue, logger zerolog.Logger) *Server {
	return &Server{queue: q, logger: logger}
}

// SubmitTimeline validates the request and queues a job.
//
// Fields: kind ("timeline" or "years", default "timeline"), start and end
// (YYYY-MM-DD) for timeline jobs, start_year and end_year for years jobs,
// and an optional unit ("mi" or "km").
func (s *Server) SubmitTimeline(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := parseSubmit(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.logger.Info().
		Str("kind", string(req.Kind)).
		Str("start", formatDate(req.Start)).
		Str("end", formatDate(req.End)).
		Int("start_year", req.StartYear).
		Int("end_year", req.EndYear).
		Msg("Received timeline request")

	jobID, err := s.queue.Enqueue(req)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to enqueue job")
		return nil, statusFromError(err)
	}

	return structpb.NewStruct(map[string]any{
		"job_id":    jobID,
		"status":    string(queue.StatusQueued),
		"queued_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// GetJobStatus returns the current status of a job
func (s *Server) GetJobStatus(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	jobID := stringField(in, "job_id")
	if jobID == "" {
		return nil, status.Error(codes.InvalidArgument, "job_id is required")
	}

	job, err := s.queue.GetJob(jobID)
	if err != nil {
		return nil, statusFromError(err)
	}

	return structpb.NewStruct(jobFields(job, true))
}

// ListJobs returns jobs newest first with optional status filtering
func (s *Server) ListJobs(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	limit := int(numberField(in, "limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := int(numberField(in, "offset"))
	if offset < 0 {
		return nil, status.Error(codes.InvalidArgument, "offset must not be negative")
	}

	jobStatus := queue.JobStatus(stringField(in, "status"))
	switch jobStatus {
	case "", queue.StatusQueued, queue.StatusProcessing, queue.StatusCompleted, queue.StatusFailed:
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", jobStatus)
	}

	jobs, total := s.queue.ListJobs(jobStatus, limit, offset)
	summaries := make([]any, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, jobFields(job, false))
	}

	return structpb.NewStruct(map[string]any{
		"jobs":        summaries,
		"total_count": total,
		"limit":       limit,
		"offset":      offset,
	})
}

// Shutdown gracefully shuts down the job queue
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.queue.Shutdown(timeout)
}

func parseSubmit(in *structpb.Struct) (queue.Request, error) {
	req := queue.Request{Kind: queue.JobKind(stringField(in, "kind"))}
	if req.Kind == "" {
		req.Kind = queue.KindTimeline
	}

	if u := stringField(in, "unit"); u != "" {
		unit, err := calculator.ParseUnit(u)
		if err != nil {
			return req, err
		}
		req.Unit = unit
	}

	switch req.Kind {
	case queue.KindTimeline:
		var err error
		if req.Start, err = dateField(in, "start"); err != nil {
			return req, err
		}
		if req.End, err = dateField(in, "end"); err != nil {
			return req, err
		}
	case queue.KindYears:
		req.StartYear = int(numberField(in, "start_year"))
		req.EndYear = int(numberField(in, "end_year"))
	}

	return req, req.Validate()
}

func statusFromError(err error) error {
	switch {
	case errors.Is(err, queue.ErrInvalidJob):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, queue.ErrQueueFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, queue.ErrJobNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func jobFields(job *queue.Job, withResult bool) map[string]any {
	fields := map[string]any{
		"job_id":    job.ID,
		"kind":      string(job.Kind),
		"status":    string(job.Status),
		"queued_at": job.QueuedAt.Format(time.RFC3339Nano),
	}
	switch job.Kind {
	case queue.KindTimeline:
		fields["start"] = formatDate(job.Start)
		fields["end"] = formatDate(job.End)
	case queue.KindYears:
		fields["start_year"] = job.StartYear
		fields["end_year"] = job.EndYear
	}
	if job.Unit != "" {
		fields["unit"] = string(job.Unit)
	}
	if job.CompletedAt != nil {
		fields["completed_at"] = job.CompletedAt.Format(time.RFC3339Nano)
	}
	if !withResult {
		return fields
	}

	if job.StartedAt != nil {
		fields["started_at"] = job.StartedAt.Format(time.RFC3339Nano)
	}
	if job.ErrorMessage != "" {
		fields["error_message"] = job.ErrorMessage
	}
	if r := job.Result; r != nil {
		fields["result"] = map[string]any{
			"csv_path":           r.CSVPath,
			"unit":               string(r.Unit),
			"total_days":         r.TotalDays,
			"days_away":          r.DaysAway,
			"max_distance":       r.MaxDistance,
			"min_distance":       r.MinDistance,
			"avg_distance":       r.AvgDistance,
			"years":              r.Years,
			"overlaps":           r.Overlaps,
			"skipped_stays":      r.SkippedStays,
			"processing_time_ms": r.ProcessingTimeMS,
		}
	}
	return fields
}

func stringField(in *structpb.Struct, key string) string {
	if in == nil {
		return ""
	}
	return in.GetFields()[key].GetStringValue()
}

func numberField(in *structpb.Struct, key string) float64 {
	if in == nil {
		return 0
	}
	return in.GetFields()[key].GetNumberValue()
}

func dateField(in *structpb.Struct, key string) (time.Time, error) {
	v := stringField(in, key)
	if v == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	return calendar.Parse(v)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return calendar.Format(t)
}
