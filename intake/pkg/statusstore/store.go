// Package statusstore persists dataset QC statuses and serializes changes to each dataset.
package statusstore

import (
	"context"
	"errors"

	"github.com/oceanco2/intake/intake/pkg/qcstatus"
)

var ErrNotFound = errors.New("dataset status not found")

// UpdateFunc changes a status in place. Returning an error discards the change.
type UpdateFunc func(st *qcstatus.Status) error

// Store holds one status per dataset. Update and Upsert run fn while holding that dataset
// exclusively, so concurrent changes to one dataset apply one after another.
type Store interface {
	Get(ctx context.Context, expocode string) (*qcstatus.Status, error)
	List(ctx context.Context) ([]*qcstatus.Status, error)
	// Update changes an existing status and fails with ErrNotFound when there is none.
	Update(ctx context.Context, expocode string, fn UpdateFunc) (*qcstatus.Status, error)
	// Upsert changes a status, starting from a new editable one when there is none.
	Upsert(ctx context.Context, expocode string, fn UpdateFunc) (*qcstatus.Status, error)
	// Checks returns the stored check results of a dataset, newest first.
	Checks(ctx context.Context, expocode string, limit int) ([]*qcstatus.CheckResult, error)
}
