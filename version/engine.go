// Package version decides when document snapshots are worth persisting
// and handles restoring historical snapshots.
package version

import (
	"context"
	"encoding/json"
	"time"

	"coedit/store"
)

const (
	// DefaultInterval is how often each connected client's content is
	// considered for a snapshot. The reference behavior wavered between
	// one minute and thirty seconds; this implementation fixes it at
	// thirty seconds.
	DefaultInterval = 30 * time.Second

	// DefaultSizeThreshold is the serialized-length drift that forces a
	// snapshot regardless of anything else.
	DefaultSizeThreshold = 10
)

// Policy is the snapshot trigger heuristic: time-based cadence plus a
// content-change check.
type Policy struct {
	Interval      time.Duration
	SizeThreshold int
}

func DefaultPolicy() Policy {
	return Policy{Interval: DefaultInterval, SizeThreshold: DefaultSizeThreshold}
}

// ShouldSnapshot reports whether current content has drifted from the
// last snapshot enough to persist: serialized length changed by at
// least SizeThreshold, or the content differs at all. The baseline may
// have round-tripped through JSONB storage, so the inequality check is
// semantic, not byte-wise.
func (p Policy) ShouldSnapshot(current, last json.RawMessage) bool {
	delta := len(current) - len(last)
	if delta < 0 {
		delta = -delta
	}
	if delta >= p.SizeThreshold {
		return true
	}
	return !store.ContentEqual(current, last)
}

// Engine appends snapshots to a document's bounded history and restores
// historical content. Back-to-back identical snapshots from independent
// client timers are suppressed at the store layer.
type Engine struct {
	store  store.DocumentStore
	policy Policy
}

func NewEngine(st store.DocumentStore, policy Policy) *Engine {
	return &Engine{store: st, policy: policy}
}

func (e *Engine) Interval() time.Duration {
	return e.policy.Interval
}

// Snapshot evaluates current against the last persisted snapshot and
// appends a version when the policy triggers. Returns the updated
// history and whether it actually grew.
func (e *Engine) Snapshot(ctx context.Context, docID string, current, last json.RawMessage, author string) ([]store.Version, bool, error) {
	if !e.policy.ShouldSnapshot(current, last) {
		return nil, false, nil
	}
	return e.Append(ctx, docID, current, author)
}

// Append unconditionally offers content to the document's history; the
// store still suppresses duplicates of the newest entry and evicts
// beyond the retention bound.
func (e *Engine) Append(ctx context.Context, docID string, content json.RawMessage, author string) ([]store.Version, bool, error) {
	v := store.Version{Content: content, Timestamp: time.Now(), Author: author}
	return e.store.AppendVersion(ctx, docID, v)
}

// Restore persists content as the document's current content. The
// history is untouched: restoring replaces live content only.
func (e *Engine) Restore(ctx context.Context, docID string, content json.RawMessage) error {
	return e.store.UpdateContent(ctx, docID, content)
}
