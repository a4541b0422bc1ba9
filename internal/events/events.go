// Package events publishes job lifecycle events to NATS
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/queue"
)

// Event is the JSON payload published when a job finishes
type Event struct {
	JobID       string    `json:"jobId"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Start       string    `json:"start,omitempty"`
	End         string    `json:"end,omitempty"`
	StartYear   int       `json:"startYear,omitempty"`
	EndYear     int       `json:"endYear,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	CSVPath     string    `json:"csvPath,omitempty"`
	DaysAway    int       `json:"daysAway,omitempty"`
	MaxDistance float64   `json:"maxDistance,omitempty"`
	Overlaps    int       `json:"overlaps,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// FromJob builds the event for a finished job
func FromJob(job queue.Job) Event {
	ev := Event{
		JobID:     job.ID,
		Kind:      string(job.Kind),
		Status:    string(job.Status),
		StartYear: job.StartYear,
		EndYear:   job.EndYear,
		Unit:      string(job.Unit),
		Error:     job.ErrorMessage,
		Timestamp: time.Now().UTC(),
	}
	if !job.Start.IsZero() {
		ev.Start = calendar.Format(job.Start)
	}
	if !job.End.IsZero() {
		ev.End = calendar.Format(job.End)
	}
	if job.CompletedAt != nil {
		ev.Timestamp = *job.CompletedAt
	}
	if r := job.Result; r != nil {
		ev.CSVPath = r.CSVPath
		ev.DaysAway = r.DaysAway
		ev.MaxDistance = r.MaxDistance
		ev.Overlaps = r.Overlaps
	}
	return ev
}

// Publisher sends job events somewhere
type Publisher interface {
	Publish(ev Event) error
	Close()
}

// NopPublisher drops every event; used when NATS is not configured
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(Event) error { return nil }

// Close implements Publisher
func (NopPublisher) Close() {}

// Metrics receives publish outcomes and connection state
type Metrics interface {
	PublishedInc()
	PublishErrInc()
	SetConnected(connected bool)
}

// conn is the subset of *nats.Conn used by the publisher
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// NATSPublisher publishes events as JSON to <subject>.<status>
type NATSPublisher struct {
	nc      conn
	subject string
	metrics Metrics
	logger  zerolog.Logger
}

// NewNATSPublisher connects to url and publishes under subject. m may be nil.
func NewNATSPublisher(url, subject string, m Metrics, logger zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("stay-timeline"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.SetConnected(false)
			}
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.SetConnected(true)
			}
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			logger.Info().Msg("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if m != nil {
		m.SetConnected(true)
	}
	return newPublisher(nc, subject, m, logger), nil
}

func newPublisher(nc conn, subject string, m Metrics, logger zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, subject: subject, metrics: m, logger: logger}
}

// Subject returns the subject an event is published on
func (p *NATSPublisher) Subject(ev Event) string {
	return p.subject + "." + subjectToken(ev.Status)
}

// Publish implements Publisher
func (p *NATSPublisher) Publish(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.nc.Publish(p.Subject(ev), b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.PublishErrInc()
		} else {
			p.metrics.PublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", p.Subject(ev), err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("NATS drain failed")
	}
	p.nc.Close()
}

// JobListener publishes an event for every finished job. Publish failures
// are logged and never fail the job.
func JobListener(p Publisher, logger zerolog.Logger) queue.Listener {
	return func(job queue.Job) {
		if err := p.Publish(FromJob(job)); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to publish job event")
		}
	}
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens cannot contain spaces, wildcards or dots
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
