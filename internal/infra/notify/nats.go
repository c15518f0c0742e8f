package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

const (
	// DefaultSubject receives one message per finished batch.
	DefaultSubject = "ignacheck.analysis.completed"

	ConnectTimeout       = 10 * time.Second
	ReconnectWait        = 5 * time.Second
	MaxReconnectAttempts = 10
)

// BatchCompletedEvent is the message body published after every batch.
type BatchCompletedEvent struct {
	RunID            string                       `json:"runId"`
	ProjectID        string                       `json:"projectId"`
	FrameworkID      string                       `json:"frameworkId"`
	Outcome          string                       `json:"outcome"`
	TotalControls    int                          `json:"totalControls"`
	ControlsAnalyzed int                          `json:"controlsAnalyzed"`
	ControlsSkipped  int                          `json:"controlsSkipped"`
	FindingsCreated  int                          `json:"findingsCreated"`
	OverallScore     float64                      `json:"overallScore"`
	CountsByStatus   map[compliance.Status]int    `json:"countsByStatus"`
	CountsByRisk     map[compliance.RiskLevel]int `json:"countsByRiskLevel"`
	ErrorMessage     string                       `json:"errorMessage,omitempty"`
	StartedAt        time.Time                    `json:"startedAt"`
	CompletedAt      time.Time                    `json:"completedAt"`
}

// Outcome is "completed", "canceled" or "aborted".
func Outcome(res compliance.BatchResult) string {
	switch {
	case res.ErrorMessage != "":
		return "aborted"
	case res.Canceled:
		return "canceled"
	default:
		return "completed"
	}
}

func NewBatchCompletedEvent(runID string, res compliance.BatchResult) BatchCompletedEvent {
	return BatchCompletedEvent{
		RunID:            runID,
		ProjectID:        res.ProjectID,
		FrameworkID:      res.FrameworkID,
		Outcome:          Outcome(res),
		TotalControls:    res.TotalControls,
		ControlsAnalyzed: res.ControlsAnalyzed,
		ControlsSkipped:  res.ControlsSkipped,
		FindingsCreated:  res.FindingsCreated,
		OverallScore:     res.Summary.OverallScore,
		CountsByStatus:   res.Summary.ByStatus,
		CountsByRisk:     res.Summary.ByRiskLevel,
		ErrorMessage:     res.ErrorMessage,
		StartedAt:        res.AnalysisStarted,
		CompletedAt:      res.AnalysisCompleted,
	}
}

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	IsConnected() bool
	Close()
}

// Publisher sends batch-completed events to NATS.
type Publisher struct {
	conn    Conn
	subject string
	logger  zerolog.Logger
}

var _ compliance.CompletionNotifier = (*Publisher)(nil)

// Connect dials natsURL. The client reconnects on its own afterwards.
func Connect(natsURL, subject string, timeout time.Duration, logger zerolog.Logger) (*Publisher, error) {
	if timeout <= 0 {
		timeout = ConnectTimeout
	}
	conn, err := nats.Connect(natsURL,
		nats.Name("ignacheck-analysis"),
		nats.Timeout(timeout),
		nats.ReconnectWait(ReconnectWait),
		nats.MaxReconnects(MaxReconnectAttempts),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}
	logger.Info().Str("url", natsURL).Str("subject", subject).Msg("nats publisher initialized")
	return NewPublisher(conn, subject, logger), nil
}

func NewPublisher(conn Conn, subject string, logger zerolog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject, logger: logger}
}

func (p *Publisher) NotifyBatchCompleted(ctx context.Context, runID string, res compliance.BatchResult) error {
	data, err := json.Marshal(NewBatchCompletedEvent(runID, res))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush %s: %w", p.subject, err)
	}
	p.logger.Debug().Str("run_id", runID).Str("subject", p.subject).Int("bytes", len(data)).Msg("batch event published")
	return nil
}

// Check is used by the health endpoint.
func (p *Publisher) Check(context.Context) error {
	if !p.conn.IsConnected() {
		return errors.New("nats not connected")
	}
	return nil
}

func (p *Publisher) Close() { p.conn.Close() }
