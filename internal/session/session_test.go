package session

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrohook/internal/arch/mocks"
	"github.com/retroenv/retrohook/internal/bridge"
)

func newSession(t *testing.T) (*Session, *mocks.Surface, *mocks.Notifier) {
	t.Helper()
	notifier := &mocks.Notifier{}
	s := New(log.NewTestLogger(t), notifier)
	surface := mocks.NewSurface()
	surface.Vars[VarMenuState] = 0
	surface.Vars[VarSelectedIndex] = 0
	return s, surface, notifier
}

func TestPopulate(t *testing.T) {
	t.Parallel()
	s, surface, notifier := newSession(t)
	assert.Equal(t, Idle, s.State())

	s.Populate(surface, []string{"Hello", "Goodbye"})
	assert.Equal(t, Open, s.State())
	assert.True(t, s.Active())
	assert.Equal(t, -1, s.Desired())
	assert.Equal(t, []string{"Hello", "Goodbye"}, s.List().Lines())
	assert.Equal(t, []string{"START_DIALOGUE|1|Hello|Goodbye"}, notifier.Messages)
}

func TestSelectionIssuedOnce(t *testing.T) {
	t.Parallel()
	s, surface, _ := newSession(t)
	s.Populate(surface, []string{"a", "b", "c"})

	s.Select(bridge.Selection{Index: 2})
	assert.Equal(t, 2, s.Desired())
	s.Tick()

	assert.Equal(t, []mocks.Call{
		{Action: ActionSetSelectedTopic, Args: []float64{2}},
		{Action: ActionSetSelectedIndex, Args: []float64{2}},
		{Action: ActionUpdateList, Args: nil},
		{Action: ActionSelectionClick, Args: []float64{1}},
	}, surface.Calls)
	surface.Calls = nil

	// the selection is consumed, later frames do not repeat it
	s.Tick()
	s.Tick()
	assert.Len(t, surface.Calls, 0)
	assert.Equal(t, -1, s.Desired())
}

func TestSelectionOfCurrentIndexOnlyAccepts(t *testing.T) {
	t.Parallel()
	s, surface, _ := newSession(t)
	s.Populate(surface, []string{"a", "b"})
	surface.Vars[VarSelectedIndex] = 1

	s.Select(bridge.Selection{DialogueID: 1, Index: 1})
	s.Tick()
	assert.Equal(t, []string{ActionSelectionClick}, surface.Actions())
}

func TestPopulateSelectScenario(t *testing.T) {
	t.Parallel()
	s, surface, notifier := newSession(t)

	s.Populate(surface, []string{"Hello", "Goodbye"})
	assert.Equal(t, "START_DIALOGUE|1|Hello|Goodbye", notifier.Messages[0])

	selection, ok := bridge.ParseSelection("select 1")
	assert.True(t, ok)
	s.Select(selection)
	assert.Equal(t, 1, s.Desired())

	s.Tick()
	assert.Equal(t, []string{ActionSetSelectedTopic, ActionSetSelectedIndex, ActionUpdateList, ActionSelectionClick},
		surface.Actions())
	s.Tick()
	assert.Len(t, surface.Actions(), 0)
}

func TestSelectionFiltering(t *testing.T) {
	t.Parallel()
	s, surface, _ := newSession(t)

	// no dialogue open
	s.Select(bridge.Selection{Index: 0})
	assert.Equal(t, -1, s.Desired())

	s.Populate(surface, []string{"a", "b"})
	s.Select(bridge.Selection{DialogueID: 7, Index: 0})
	assert.Equal(t, -1, s.Desired())
	s.Select(bridge.Selection{Index: 2})
	assert.Equal(t, -1, s.Desired())
	s.Select(bridge.Selection{DialogueID: 1, Index: 1})
	assert.Equal(t, 1, s.Desired())
}

func TestNpcResponding(t *testing.T) {
	t.Parallel()
	s, surface, notifier := newSession(t)
	s.Populate(surface, []string{"a", "b"})
	s.Tick()

	s.Select(bridge.Selection{Index: 1})
	surface.Vars[VarMenuState] = 2
	s.Tick()

	assert.Equal(t, Idle, s.State())
	assert.False(t, s.Active())
	assert.Equal(t, 1, notifier.Count(bridge.StopDialogue))
	assert.Len(t, surface.Calls, 0)

	// no actions until the next population
	s.Select(bridge.Selection{Index: 0})
	s.Tick()
	s.Tick()
	assert.Len(t, surface.Calls, 0)
	assert.Equal(t, 1, notifier.Count(bridge.StopDialogue))

	surface.Vars[VarMenuState] = 0
	s.Populate(surface, []string{"c"})
	s.Select(bridge.Selection{Index: 0})
	s.Tick()
	assert.Equal(t, []string{ActionSelectionClick}, surface.Actions())
}

func TestClose(t *testing.T) {
	t.Parallel()
	s, surface, notifier := newSession(t)
	s.Populate(surface, []string{"a", "b"})

	selection, ok := bridge.ParseSelection("DIALOGUE|1|-2")
	assert.True(t, ok)
	s.Select(selection)
	s.Tick()
	assert.Equal(t, []string{ActionHide}, surface.Actions())
	assert.Equal(t, Closing, s.State())
	assert.True(t, s.Active())

	// waiting for the menu to go away
	s.Select(bridge.Selection{Index: 0})
	s.Tick()
	assert.Len(t, surface.Calls, 0)
	assert.Equal(t, 0, notifier.Count(bridge.StopDialogue))

	surface.Closed = true
	s.Tick()
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.Active())
	assert.Equal(t, 1, notifier.Count(bridge.StopDialogue))
}

func TestPauseEndedResets(t *testing.T) {
	t.Parallel()
	s, surface, notifier := newSession(t)
	s.Populate(surface, []string{"a", "b"})

	s.Select(bridge.Selection{Index: 1})
	surface.Closed = true
	s.Tick()

	assert.Equal(t, Idle, s.State())
	assert.Len(t, surface.Calls, 0)
	assert.Equal(t, 1, notifier.Count(bridge.StopDialogue))
}

func TestStaleSurface(t *testing.T) {
	t.Parallel()
	s, surface, notifier := newSession(t)
	s.Populate(surface, []string{"a", "b"})
	s.Select(bridge.Selection{Index: 1})

	// the mock panics on any use after this
	surface.Dead = true
	s.Tick()
	s.Tick()

	assert.Equal(t, Idle, s.State())
	assert.False(t, s.Active())
	assert.Equal(t, 1, notifier.Count(bridge.StopDialogue))
}

func TestReportSelection(t *testing.T) {
	t.Parallel()
	s, surface, notifier := newSession(t)
	s.Populate(surface, []string{"a", "b"})

	s.Tick()
	s.Tick()
	surface.Vars[VarSelectedIndex] = 1
	s.Tick()

	assert.Equal(t, []string{
		"START_DIALOGUE|1|a|b",
		"SELECTED|1|0",
		"SELECTED|1|1",
	}, notifier.Messages)
}

func TestReset(t *testing.T) {
	t.Parallel()
	s, surface, notifier := newSession(t)
	s.Populate(surface, []string{"a"})
	s.Reset()

	assert.Equal(t, Idle, s.State())
	assert.False(t, s.Active())
	assert.Equal(t, 0, s.List().Len())
	assert.Equal(t, 0, notifier.Count(bridge.StopDialogue))
	assert.Equal(t, "npc_responding", NpcResponding.String())
}
