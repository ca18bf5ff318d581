// Package hooks is a table of user callbacks run at fixed points of a time
// step. The table is owned by whoever builds the scheme and passed to it.
package hooks

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

type Name string

const (
	BeforeStep       Name = "before_step"
	AfterConvergence Name = "after_convergence"
	AfterStep        Name = "after_step"
)

var ErrUnknownHook = errors.New("hooks: unknown hook name")

func Names() []Name { return []Name{BeforeStep, AfterConvergence, AfterStep} }

// Info describes the step a hook runs in.
type Info struct {
	Step       int
	Time       float64
	Dt         float64
	Iterations int
	Converged  bool
}

type Func func(Info) error

type Table struct {
	mu  sync.Mutex
	fns map[Name][]Func
}

func NewTable() *Table {
	return &Table{fns: make(map[Name][]Func)}
}

func valid(name Name) bool { return slices.Contains(Names(), name) }

// Install appends fn to the callbacks of name. Callbacks run in install order.
func (t *Table) Install(name Name, fn Func) error {
	if !valid(name) {
		return fmt.Errorf("%w: %q", ErrUnknownHook, name)
	}
	if fn == nil {
		return fmt.Errorf("hooks: nil callback for %q", name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fns[name] = append(t.fns[name], fn)
	return nil
}

func (t *Table) IsInstalled(name Name) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fns[name]) > 0
}

// Execute runs the callbacks of name and stops at the first error. A nil
// table runs nothing.
func (t *Table) Execute(name Name, info Info) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	fns := slices.Clone(t.fns[name])
	t.mu.Unlock()

	for _, fn := range fns {
		if err := fn(info); err != nil {
			return fmt.Errorf("hook %s at step %d: %w", name, info.Step, err)
		}
	}
	return nil
}

func (t *Table) Clear(name Name) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fns, name)
}
