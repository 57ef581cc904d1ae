// Package session reconciles the dialogue menu of the host with the
// selections requested by the recognizer.
package session

import (
	"fmt"

	"github.com/retroenv/retrohook/internal/bridge"
	"github.com/retroenv/retrogolib/log"
)

// Variables and actions of the dialogue menu movie.
const (
	VarMenuState     = "_level0.DialogueMenu_mc.eMenuState"
	VarSelectedIndex = "_level0.DialogueMenu_mc.TopicList.iSelectedIndex"

	ActionSetSelectedTopic = "_level0.DialogueMenu_mc.TopicList.SetSelectedTopic"
	ActionSetSelectedIndex = "_level0.DialogueMenu_mc.TopicList.doSetSelectedIndex"
	ActionUpdateList       = "_level0.DialogueMenu_mc.TopicList.UpdateList"
	ActionSelectionClick   = "_level0.DialogueMenu_mc.onSelectionClick"
	ActionHide             = "_level0.DialogueMenu_mc.StartHideMenu"
)

// menuStateResponding is the menu state while the speaker is responding.
const menuStateResponding = 2

const noSelection = -1

// Surface is an open UI menu of the host.
type Surface interface {
	// Alive reports whether the host still owns the menu. A surface that is
	// not alive must not be used any further.
	Alive() bool
	// Paused reports whether the menu still holds the game paused. It turns
	// false when the menu closes.
	Paused() bool
	// Number reads a numeric variable of the menu.
	Number(name string) (float64, bool)
	// Invoke calls a named action of the menu.
	Invoke(action string, args ...float64) error
}

// Notifier informs the recognizer about the dialogue.
type Notifier interface {
	StartDialogue(lines []string) (int, error)
	StopDialogue() error
	ReportSelection(index int) error
}

// State is the state of the dialogue session.
type State int

// Session states.
const (
	Idle State = iota
	Open
	NpcResponding
	Closing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Open:
		return "open"
	case NpcResponding:
		return "npc_responding"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DialogueList is the immutable list of lines of a populated dialogue.
type DialogueList struct {
	lines []string
}

// NewDialogueList returns a list holding a copy of lines.
func NewDialogueList(lines []string) DialogueList {
	return DialogueList{lines: append([]string(nil), lines...)}
}

// Len returns the number of lines.
func (d DialogueList) Len() int {
	return len(d.lines)
}

// Lines returns a copy of the lines.
func (d DialogueList) Lines() []string {
	return append([]string(nil), d.lines...)
}

// Session tracks the open dialogue menu. It is only used on the host thread.
type Session struct {
	logger   *log.Logger
	notifier Notifier

	state      State
	surface    Surface
	list       DialogueList
	dialogueID int
	desired    int
	lastMode   float64
	lastIndex  int
}

// New returns an idle session.
func New(logger *log.Logger, notifier Notifier) *Session {
	return &Session{
		logger:   logger,
		notifier: notifier,
		desired:  noSelection,
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Active reports whether a menu is held.
func (s *Session) Active() bool {
	return s.surface != nil
}

// Desired returns the pending selection, -1 for none.
func (s *Session) Desired() int {
	return s.desired
}

// List returns the lines of the current dialogue.
func (s *Session) List() DialogueList {
	return s.list
}

// Populate starts a new dialogue on surface with the given selectable lines
// and announces them to the recognizer.
func (s *Session) Populate(surface Surface, lines []string) {
	s.surface = surface
	s.list = NewDialogueList(lines)
	s.state = Open
	s.desired = noSelection
	s.lastMode = -1
	s.lastIndex = noSelection

	id, err := s.notifier.StartDialogue(s.list.Lines())
	if err != nil {
		s.logger.Warn("Announcing dialogue failed", log.Err(err))
	}
	s.dialogueID = id
	s.logger.Debug("Dialogue populated",
		log.Int("id", id),
		log.Int("lines", s.list.Len()))
}

// Select requests a selection. Selections for a different dialogue than the
// current one, and selections while no dialogue is open, are dropped.
func (s *Session) Select(selection bridge.Selection) {
	if s.state != Open {
		s.logger.Debug("Ignoring selection without open dialogue", log.Int("index", selection.Index))
		return
	}
	if selection.DialogueID != 0 && selection.DialogueID != s.dialogueID {
		s.logger.Debug("Ignoring selection for stale dialogue",
			log.Int("id", selection.DialogueID),
			log.Int("current", s.dialogueID))
		return
	}
	if selection.Index >= s.list.Len() {
		s.logger.Debug("Ignoring selection out of range", log.Int("index", selection.Index))
		return
	}
	s.desired = selection.Index
}

// Tick reconciles the menu state once per frame.
func (s *Session) Tick() {
	if s.surface == nil {
		return
	}
	if !s.surface.Alive() {
		s.logger.Warn("Dialogue menu vanished")
		s.end("menu vanished")
		return
	}
	if !s.surface.Paused() {
		s.end("menu closed")
		return
	}
	if s.state == Closing {
		return
	}

	if mode, ok := s.surface.Number(VarMenuState); ok && mode != s.lastMode {
		s.lastMode = mode
		if int(mode) == menuStateResponding {
			// the host may tear the menu down during the response
			s.state = NpcResponding
			s.end("npc responding")
			return
		}
	}

	desired := s.desired
	s.desired = noSelection
	switch {
	case desired >= 0:
		s.applySelection(desired)
	case desired == bridge.CloseIndex:
		s.invoke(ActionHide)
		s.state = Closing
		return
	}

	s.reportSelection()
}

func (s *Session) applySelection(index int) {
	if current, ok := s.surface.Number(VarSelectedIndex); !ok || int(current) != index {
		s.invoke(ActionSetSelectedTopic, float64(index))
		s.invoke(ActionSetSelectedIndex, float64(index))
		s.invoke(ActionUpdateList)
	}
	s.invoke(ActionSelectionClick, 1.0)
}

func (s *Session) reportSelection() {
	current, ok := s.surface.Number(VarSelectedIndex)
	if !ok || int(current) == s.lastIndex {
		return
	}
	s.lastIndex = int(current)
	if err := s.notifier.ReportSelection(s.lastIndex); err != nil {
		s.logger.Debug("Reporting selection failed", log.Err(err))
	}
}

func (s *Session) invoke(action string, args ...float64) {
	if err := s.surface.Invoke(action, args...); err != nil {
		s.logger.Warn("Menu action failed",
			log.String("action", action),
			log.Err(err))
	}
}

// end releases the menu and notifies the recognizer.
func (s *Session) end(reason string) {
	s.logger.Debug("Dialogue ended", log.String("reason", reason))
	s.Reset()
	if err := s.notifier.StopDialogue(); err != nil {
		s.logger.Debug("Announcing dialogue end failed", log.Err(err))
	}
}

// Reset releases the menu without notifying the recognizer, used when the
// game session ends.
func (s *Session) Reset() {
	s.surface = nil
	s.list = DialogueList{}
	s.desired = noSelection
	s.state = Idle
}
