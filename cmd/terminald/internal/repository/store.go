package repository

import (
	"context"

	"github.com/Kyle-Grantland/finterm/pkg/models"
)

// SnapshotStore persists the latest known quote per symbol so clients can
// warm up without waiting for the next streaming tick
type SnapshotStore interface {
	StoreQuotes(ctx context.Context, quotes []models.Quote) error
	GetSnapshots(ctx context.Context, symbols []string) ([]models.Quote, error)
	Close() error
}
