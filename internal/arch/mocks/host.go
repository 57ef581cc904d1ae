package mocks

import (
	"errors"

	"github.com/retroenv/retrohook/internal/events"
	"github.com/retroenv/retrohook/internal/favorites"
	"github.com/retroenv/retrohook/internal/hook"
)

// Equipped is a recorded equip request.
type Equipped struct {
	Item favorites.Item
	Hand favorites.Hand
}

// Host is a fake host process.
type Host struct {
	Sinks       map[events.Category]events.Sink
	Commands    []string
	Items       []favorites.Item
	Equipped    []Equipped
	HostVersion uint64
	Loc         hook.Locator

	FailSinks bool
}

// NewHost returns a host without favorites.
func NewHost(version uint64, loc hook.Locator) *Host {
	return &Host{
		Sinks:       make(map[events.Category]events.Sink),
		HostVersion: version,
		Loc:         loc,
	}
}

// AddEventSink implements events.Source.
func (h *Host) AddEventSink(category events.Category, sink events.Sink) error {
	if h.FailSinks {
		return errors.New("dispatcher not ready")
	}
	h.Sinks[category] = sink
	return nil
}

// Fire sends an event to the sink of its category.
func (h *Host) Fire(event events.Event) events.Result {
	sink, ok := h.Sinks[event.Category]
	if !ok {
		return events.Continue
	}
	return sink.ReceiveEvent(event)
}

// Favorites implements favorites.Source.
func (h *Host) Favorites() ([]favorites.Item, error) {
	return h.Items, nil
}

// Equip implements favorites.Equipper.
func (h *Host) Equip(item favorites.Item, hand favorites.Hand) error {
	h.Equipped = append(h.Equipped, Equipped{Item: item, Hand: hand})
	return nil
}

// RunCommand records a console command.
func (h *Host) RunCommand(command string) error {
	h.Commands = append(h.Commands, command)
	return nil
}

// Version returns the packed host version.
func (h *Host) Version() uint64 {
	return h.HostVersion
}

// Locator returns the module layout.
func (h *Host) Locator() hook.Locator {
	return h.Loc
}
