package models

import (
	"fmt"
	"strings"

	dErrors "feria/pkg/domain-errors"
)

// State is the review state of a registration.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// AllStates lists the states in display order.
func AllStates() []State {
	return []State{StatePending, StateApproved, StateRejected}
}

func (s State) IsValid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// ParseState validates a requested target state.
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		names := make([]string, 0, 3)
		for _, st := range AllStates() {
			names = append(names, string(st))
		}
		return "", dErrors.NewField(dErrors.CodeInvalidState, "estado",
			fmt.Sprintf("invalid state %q, must be one of: %s", raw, strings.Join(names, ", ")))
	}
	return s, nil
}
