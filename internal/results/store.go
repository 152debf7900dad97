// Package results keeps a ledger of wait outcomes so a pipeline can look
// up how the last wait for a deployment ended.
package results

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/lattiam/ecswait/internal/waiter"
)

// ErrNotFound is returned when no result is stored for a reference
var ErrNotFound = errors.New("result not found")

// Record is one stored wait outcome. The latest result for a reference
// replaces any earlier one.
type Record struct {
	Key        string        `json:"key"`
	Result     waiter.Result `json:"result"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Store persists wait results keyed by deployment reference
type Store interface {
	Put(ctx context.Context, res waiter.Result) error
	Get(ctx context.Context, ref waiter.DeploymentReference) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	Delete(ctx context.Context, ref waiter.DeploymentReference) error
	Close() error
}

// NewRecord builds the record stored for res
func NewRecord(res waiter.Result, now time.Time) (*Record, error) {
	if err := res.Reference.Validate(); err != nil {
		return nil, fmt.Errorf("cannot store result: %w", err)
	}
	if !res.Phase.IsTerminal() {
		return nil, fmt.Errorf("cannot store result in non-terminal phase %s", res.Phase)
	}
	return &Record{
		Key:        res.Reference.Key(),
		Result:     res,
		RecordedAt: now.UTC(),
	}, nil
}

// encodeKey makes a reference key safe for file names and object keys
func encodeKey(key string) string {
	return url.PathEscape(key)
}

func sortRecords(records []*Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
}

// Discard is a Store that keeps nothing
type Discard struct{}

// Put implements Store
func (Discard) Put(context.Context, waiter.Result) error { return nil }

// Get implements Store
func (Discard) Get(context.Context, waiter.DeploymentReference) (*Record, error) {
	return nil, ErrNotFound
}

// List implements Store
func (Discard) List(context.Context) ([]*Record, error) { return nil, nil }

// Delete implements Store
func (Discard) Delete(context.Context, waiter.DeploymentReference) error { return nil }

// Close implements Store
func (Discard) Close() error { return nil }
