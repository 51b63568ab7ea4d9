package exports

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("export archive not configured")

// Archive keeps a durable copy of generated CSV exports.
type Archive interface {
	StoreCSV(ctx context.Context, objectKey string, payload []byte) error
	Close() error
}

type NoopArchive struct{}

func NewNoopArchive() *NoopArchive {
	return &NoopArchive{}
}

func (a *NoopArchive) StoreCSV(_ context.Context, _ string, _ []byte) error {
	return ErrNotConfigured
}

func (a *NoopArchive) Close() error {
	return nil
}
