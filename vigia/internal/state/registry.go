package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RunEntry is one audit record per registry run. It is never consulted to
// decide what to skip.
type RunEntry struct {
	Timestamp string         `json:"timestamp"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	FirstTime bool           `json:"is_first_time"`
	Config    map[string]any `json:"configuration,omitempty"`
}

// registryFile is the on-disk shape of an accumulation registry.
type registryFile[R any] struct {
	LastUpdated string          `json:"last_updated"`
	TotalItems  int             `json:"total_items"`
	Items       []R             `json:"items"`
	RunHistory  []RunEntry      `json:"run_history"`
	Derived     json.RawMessage `json:"hierarchy,omitempty"`
}

// Registry tracks which items a monotonically-growing stage has already
// processed. The seen-set is rebuilt from the registry file on every open;
// successfully processed items are appended and never removed or
// re-validated. Failures stay out of the seen-set so they are re-offered on
// the next run.
type Registry[R any] struct {
	path      string
	identity  func(R) string
	items     []R
	runs      []RunEntry
	seen      map[string]struct{}
	firstTime bool
	pending   []R // recorded this run, not yet persisted
}

// OpenRegistry loads a registry file, rebuilding the seen-set from the
// cumulative item list. A missing file yields a first-time registry.
func OpenRegistry[R any](path string, identity func(R) string) (*Registry[R], error) {
	r := &Registry[R]{
		path:     path,
		identity: identity,
		seen:     make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		r.firstTime = true
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	var f registryFile[R]
	if err := json.Unmarshal(data, &f); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return nil, fmt.Errorf("unmarshal registry %s: %w", path, err)
		}
		if err := json.Unmarshal([]byte(repaired), &f); err != nil {
			return nil, fmt.Errorf("unmarshal repaired registry %s: %w", path, err)
		}
	}

	r.items = f.Items
	r.runs = f.RunHistory
	for _, item := range r.items {
		r.seen[identity(item)] = struct{}{}
	}
	return r, nil
}

// FirstTime reports whether no registry file existed when opened.
func (r *Registry[R]) FirstTime() bool { return r.firstTime }

// SeenBefore reports whether an identity was successfully processed in any
// prior run. Already-seen items are skipped unconditionally, even if the
// remote content changed since.
func (r *Registry[R]) SeenBefore(id string) bool {
	_, ok := r.seen[id]
	return ok
}

// Record appends a successfully processed item to the cumulative list and
// marks its identity as seen.
func (r *Registry[R]) Record(item R) {
	r.items = append(r.items, item)
	r.pending = append(r.pending, item)
	r.seen[r.identity(item)] = struct{}{}
}

// Items returns the full accumulated item list, prior runs included, in
// insertion order.
func (r *Registry[R]) Items() []R { return r.items }

// RecordedThisRun returns the items recorded since the registry was opened.
func (r *Registry[R]) RecordedThisRun() []R { return r.pending }

// Runs returns the run-history entries loaded from the registry file.
func (r *Registry[R]) Runs() []RunEntry { return r.runs }

// Persist writes the registry file: the cumulative item list, the run
// history with the given entry appended, and an optional derived view
// (recomputed by the caller from the full flat list, never edited
// independently).
func (r *Registry[R]) Persist(run RunEntry, derived any, now time.Time) error {
	if run.Timestamp == "" {
		run.Timestamp = now.Format(time.RFC3339)
	}
	r.runs = append(r.runs, run)

	f := registryFile[R]{
		LastUpdated: now.Format(time.RFC3339),
		TotalItems:  len(r.items),
		Items:       r.items,
		RunHistory:  r.runs,
	}
	if f.Items == nil {
		f.Items = []R{}
	}
	if derived != nil {
		raw, err := json.Marshal(derived)
		if err != nil {
			return fmt.Errorf("marshal derived view: %w", err)
		}
		f.Derived = raw
	}
	return WriteJSON(r.path, &f)
}
