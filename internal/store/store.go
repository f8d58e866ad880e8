// Package store persists the command line tool's call history.
package store

import (
	"context"
	"time"

	"github.com/me/creativeapis/pkg/model"
)

// Store defines the persistence layer for call records.
type Store interface {
	CreateRecord(ctx context.Context, rec *model.Record) error
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	ListRecords(ctx context.Context, opts model.ListOptions) ([]*model.Record, int, error)
	DeleteRecordsBefore(ctx context.Context, before time.Time) (int64, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
