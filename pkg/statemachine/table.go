package statemachine

import (
	"context"
	"fmt"
)

// Table is an immutable transition table. It holds no current state:
// callers load the persisted state, ask the table for the next one and
// store the result themselves. A Table is safe for concurrent use once built.
type Table struct {
	// [fromState][event] -> candidate transitions in registration order
	transitions map[string]map[string][]Transition
}

func newTable() *Table {
	return &Table{transitions: make(map[string]map[string][]Transition)}
}

func (t *Table) add(from, to State, event Event, guards []Guard, actions []Action) error {
	if from == nil || to == nil || event == nil {
		return ErrInvalidTransition
	}

	byEvent, ok := t.transitions[from.Name()]
	if !ok {
		byEvent = make(map[string][]Transition)
		t.transitions[from.Name()] = byEvent
	}

	// Multiple transitions allowed for same from/event to support guard-based branching
	byEvent[event.Name()] = append(byEvent[event.Name()], Transition{
		From:    from,
		To:      to,
		Event:   event,
		Guards:  guards,
		Actions: actions,
	})
	return nil
}

// Fire resolves the transition for event from the given state, runs its
// actions against data and returns the target state.
func (t *Table) Fire(ctx context.Context, from State, event Event, data any) (State, error) {
	if from == nil || event == nil {
		return nil, ErrInvalidEvent
	}

	tr, err := t.resolve(ctx, from, event, data)
	if err != nil {
		return from, err
	}

	for _, action := range tr.Actions {
		if err := action(ctx, from, tr.To, event, data); err != nil {
			return from, fmt.Errorf("action failed: %w", err)
		}
	}

	return tr.To, nil
}

// CanFire reports whether event has a transition from the given state whose guards pass.
func (t *Table) CanFire(ctx context.Context, from State, event Event, data any) bool {
	if from == nil || event == nil {
		return false
	}
	_, err := t.resolve(ctx, from, event, data)
	return err == nil
}

// Events lists the event names registered for a state.
func (t *Table) Events(from State) []string {
	if from == nil {
		return nil
	}
	byEvent := t.transitions[from.Name()]
	names := make([]string, 0, len(byEvent))
	for name := range byEvent {
		names = append(names, name)
	}
	return names
}

func (t *Table) resolve(ctx context.Context, from State, event Event, data any) (*Transition, error) {
	candidates := t.transitions[from.Name()][event.Name()]
	if len(candidates) == 0 {
		return nil, NewErrNoTransitionAvailable(from.Name(), event.Name())
	}

	// First transition with passing guards wins
	for i := range candidates {
		if guardsPass(ctx, candidates[i].Guards, from, event, data) {
			return &candidates[i], nil
		}
	}

	return nil, NewErrTransitionRejected(from.Name(), event.Name())
}

func guardsPass(ctx context.Context, guards []Guard, from State, event Event, data any) bool {
	for _, guard := range guards {
		if !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
