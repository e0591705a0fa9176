// Package hook keeps an explicit table of intercepted functions.
//
// Each Entry names a target, the replacement to install, and (once
// attached) the original it displaced. AttachAll and DetachAll walk the
// table uniformly through a Patcher; a failing entry is recorded on the
// entry and reported in the aggregate error without stopping the batch.
package hook

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/pithecene-io/tether/log"
)

// ErrUnsupportedTarget indicates a Patcher cannot redirect an entry's target.
var ErrUnsupportedTarget = errors.New("unsupported hook target")

// Entry is one row of the hook table.
type Entry struct {
	Name        string
	Target      any
	Replacement any
	// Original is set by the Patcher on attach.
	Original any
	// Err is the last attach or detach failure of this entry.
	Err error

	attached bool
}

// Attached reports whether the replacement is currently installed.
func (e *Entry) Attached() bool { return e.attached }

// Patcher redirects one target to its replacement and back.
type Patcher interface {
	Attach(e *Entry) error
	Detach(e *Entry) error
}

// Table is an ordered set of hook entries.
type Table struct {
	patcher Patcher
	entries []*Entry
	logger  *log.Logger
}

// NewTable creates an empty table patched through p.
func NewTable(p Patcher, logger *log.Logger) *Table {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Table{patcher: p, logger: logger}
}

// Add appends an entry and returns it.
func (t *Table) Add(name string, target, replacement any) *Entry {
	e := &Entry{Name: name, Target: target, Replacement: replacement}
	t.entries = append(t.entries, e)
	return e
}

// Entries returns the table rows in attach order.
func (t *Table) Entries() []*Entry {
	return t.entries
}

// AttachAll attaches every entry not yet attached. Failures are recorded
// per entry and combined into the returned error.
func (t *Table) AttachAll() error {
	var errs error
	for _, e := range t.entries {
		if e.attached {
			continue
		}
		if err := t.patcher.Attach(e); err != nil {
			e.Err = err
			t.logger.Error("hook attach failed", map[string]any{"hook": e.Name, "error": err.Error()})
			errs = multierr.Append(errs, fmt.Errorf("attach %s: %w", e.Name, err))
			continue
		}
		e.Err = nil
		e.attached = true
	}
	return errs
}

// DetachAll detaches attached entries in reverse order.
func (t *Table) DetachAll() error {
	var errs error
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if !e.attached {
			continue
		}
		if err := t.patcher.Detach(e); err != nil {
			e.Err = err
			t.logger.Error("hook detach failed", map[string]any{"hook": e.Name, "error": err.Error()})
			errs = multierr.Append(errs, fmt.Errorf("detach %s: %w", e.Name, err))
			continue
		}
		e.attached = false
		e.Original = nil
	}
	return errs
}

// Failed returns the entries whose last operation failed.
func (t *Table) Failed() []*Entry {
	var out []*Entry
	for _, e := range t.entries {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}
