// Package workflow holds the explicit state machines for every status field
// that moves through review or moderation.
package workflow

import (
	"fmt"
	"sort"
	"strings"

	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

// Machine is a transition table over a string-backed state type.
type Machine[S ~string] struct {
	name  string
	edges map[S]map[S]struct{}
}

// New builds a machine from a from -> targets table.
func New[S ~string](name string, table map[S][]S) *Machine[S] {
	edges := make(map[S]map[S]struct{}, len(table))
	for from, targets := range table {
		set := make(map[S]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		edges[from] = set
	}
	return &Machine[S]{name: name, edges: edges}
}

// Can reports whether from -> to is a legal transition.
func (m *Machine[S]) Can(from, to S) bool {
	_, ok := m.edges[from][to]
	return ok
}

// Transition validates from -> to.
func (m *Machine[S]) Transition(from, to S) error {
	if m.Can(from, to) {
		return nil
	}
	msg := fmt.Sprintf("%s cannot move from %q to %q", m.name, from, to)
	if m.Terminal(from) {
		msg += fmt.Sprintf(": %q is final", from)
	} else {
		targets := m.Targets(from)
		allowed := make([]string, len(targets))
		for i, t := range targets {
			allowed[i] = string(t)
		}
		msg += "; allowed: " + strings.Join(allowed, ", ")
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition, msg)
}

// Targets lists the states reachable from the given state, sorted.
func (m *Machine[S]) Targets(from S) []S {
	out := make([]S, 0, len(m.edges[from]))
	for to := range m.edges[from] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Terminal reports whether no transition leaves the state.
func (m *Machine[S]) Terminal(state S) bool {
	return len(m.edges[state]) == 0
}
