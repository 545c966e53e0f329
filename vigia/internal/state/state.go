// Package state implements the two durability policies shared by every
// ingestion stage: diff-then-persist with append-only history for
// whole-payload stages, and identity-keyed append-only accumulation for
// stages whose payload grows monotonically.
//
// Both policies write UTF-8 pretty-printed JSON files and never touch an
// existing file unless there is something new to record.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// Snapshot is one prior payload preserved in the history list.
type Snapshot[P any] struct {
	Payload   P      `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// Persisted is the on-disk shape of a diff-then-persist stage file.
// History is strictly append-only: each save appends a snapshot of the
// payload being replaced, never the new one.
type Persisted[P any] struct {
	Payload   P             `json:"payload"`
	Verified  bool          `json:"verified"`
	Timestamp string        `json:"timestamp"`
	History   []Snapshot[P] `json:"history"`
}

// Outcome reports what Apply did.
type Outcome struct {
	Saved     bool // a new record was written
	FirstTime bool // no prior state existed
	Changed   bool // payload differed from the prior one
}

// Load reads a persisted state file. A missing file returns (nil, nil) —
// the first-time signal. A file that fails to unmarshal is run through
// jsonrepair before being given up on.
func Load[P any](path string) (*Persisted[P], error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}
	var p Persisted[P]
	if err := json.Unmarshal(data, &p); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return nil, fmt.Errorf("unmarshal state %s: %w", path, err)
		}
		if err := json.Unmarshal([]byte(repaired), &p); err != nil {
			return nil, fmt.Errorf("unmarshal repaired state %s: %w", path, err)
		}
	}
	return &p, nil
}

// Apply runs the diff-then-persist policy for one computed payload.
//
// The prior state is loaded from path (absence means first time), compared
// with equal, and a new record is written only when the payload changed or
// no record existed. On an unchanged payload the file is left byte-for-byte
// untouched.
func Apply[P any](path string, payload P, equal func(prev, cur P) bool, now time.Time) (Outcome, error) {
	prior, err := Load[P](path)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{FirstTime: prior == nil}
	if prior != nil {
		out.Changed = !equal(prior.Payload, payload)
	}
	if !out.FirstTime && !out.Changed {
		return out, nil
	}

	next := Persisted[P]{
		Payload:   payload,
		Verified:  true,
		Timestamp: now.Format(time.RFC3339),
		History:   []Snapshot[P]{},
	}
	if prior != nil {
		next.History = append(prior.History, Snapshot[P]{
			Payload:   prior.Payload,
			Timestamp: prior.Timestamp,
		})
	}

	if err := WriteJSON(path, &next); err != nil {
		return out, err
	}
	out.Saved = true
	return out, nil
}

// WriteJSON writes v as pretty-printed JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
