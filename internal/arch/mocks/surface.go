// Package mocks provides fake host collaborators for testing.
package mocks

import (
	"errors"
	"fmt"
)

// Call is a recorded menu action.
type Call struct {
	Action string
	Args   []float64
}

// Surface is a fake menu that records invoked actions. Using it after it
// was marked dead panics, like dereferencing a discarded host menu would
// crash the host.
type Surface struct {
	Dead    bool
	Closed  bool
	Fail    bool
	Vars    map[string]float64
	Calls   []Call
	Queried []string
}

// NewSurface returns an alive, paused menu without variables.
func NewSurface() *Surface {
	return &Surface{
		Vars: make(map[string]float64),
	}
}

func (s *Surface) check(operation string) {
	if s.Dead {
		panic(fmt.Sprintf("%s on discarded surface", operation))
	}
}

// Alive implements session.Surface.
func (s *Surface) Alive() bool {
	return !s.Dead
}

// Paused implements session.Surface.
func (s *Surface) Paused() bool {
	s.check("paused")
	return !s.Closed
}

// Number implements session.Surface.
func (s *Surface) Number(name string) (float64, bool) {
	s.check("number")
	s.Queried = append(s.Queried, name)
	value, ok := s.Vars[name]
	return value, ok
}

// Invoke implements session.Surface.
func (s *Surface) Invoke(action string, args ...float64) error {
	s.check("invoke")
	s.Calls = append(s.Calls, Call{Action: action, Args: append([]float64(nil), args...)})
	if s.Fail {
		return errors.New("invoke failed")
	}
	if action == "_level0.DialogueMenu_mc.TopicList.doSetSelectedIndex" && len(args) > 0 {
		s.Vars["_level0.DialogueMenu_mc.TopicList.iSelectedIndex"] = args[0]
	}
	return nil
}

// Actions returns the names of the invoked actions and clears the record.
func (s *Surface) Actions() []string {
	actions := make([]string, 0, len(s.Calls))
	for _, c := range s.Calls {
		actions = append(actions, c.Action)
	}
	s.Calls = nil
	return actions
}
