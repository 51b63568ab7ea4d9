package queue

import (
	"context"
	"time"
)

// RetentionAlert is published when ticket analytics report a churn risk
// above the alert threshold, so the retention team can follow up.
type RetentionAlert struct {
	TicketID   string    `json:"ticketId"`
	ChurnRisk  int       `json:"churnRisk"`
	Summary    string    `json:"summary"`
	DetectedAt time.Time `json:"detectedAt"`
}

type Producer interface {
	EnqueueRetentionAlert(ctx context.Context, alert RetentionAlert) error
	Close() error
}

type NoopProducer struct{}

func NewNoopProducer() *NoopProducer {
	return &NoopProducer{}
}

func (p *NoopProducer) EnqueueRetentionAlert(_ context.Context, _ RetentionAlert) error {
	return nil
}

func (p *NoopProducer) Close() error {
	return nil
}
