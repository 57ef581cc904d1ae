// Package events subscribes handlers to the event dispatch of the host.
package events

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"
)

// PlayerFormID is the form identifier of the player character.
const PlayerFormID = 0x14

// Category is an event category of the host.
type Category int

// Event categories that handlers can subscribe to.
const (
	// InputPoll fires every frame that input devices are sampled.
	InputPoll Category = iota
	// ObjectLoaded fires when a world object is loaded or unloaded.
	ObjectLoaded
	// PostLoad fires after a saved game finished loading.
	PostLoad
)

func (c Category) String() string {
	switch c {
	case InputPoll:
		return "input_poll"
	case ObjectLoaded:
		return "object_loaded"
	case PostLoad:
		return "post_load"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Result tells the host whether to pass the event on to further sinks.
type Result int

// Dispatch results.
const (
	Continue Result = iota
	Stop
)

// Event is a host event.
type Event struct {
	Category Category
	FormID   uint32 // object of an ObjectLoaded event
	Loaded   bool   // false when the object was unloaded
}

// Handler processes an event.
type Handler func(Event)

// Sink receives events from the host.
type Sink interface {
	ReceiveEvent(Event) Result
}

// Source is the event dispatch of the host.
type Source interface {
	AddEventSink(category Category, sink Sink) error
}

// Registry dispatches host events to subscribed handlers. It registers one
// sink per category with the host, on the first subscription. All methods
// must be called on the host thread.
type Registry struct {
	logger   *log.Logger
	source   Source
	handlers map[Category][]Handler
}

// NewRegistry returns a registry that subscribes to source.
func NewRegistry(logger *log.Logger, source Source) *Registry {
	return &Registry{
		logger:   logger,
		source:   source,
		handlers: make(map[Category][]Handler),
	}
}

// Subscribe adds a handler for a category. Handlers run synchronously in
// subscription order.
func (r *Registry) Subscribe(category Category, handler Handler) error {
	if _, ok := r.handlers[category]; !ok {
		s := &categorySink{registry: r, category: category}
		if err := r.source.AddEventSink(category, s); err != nil {
			return fmt.Errorf("adding event sink for '%s': %w", category, err)
		}
		r.logger.Debug("Event sink registered", log.String("category", category.String()))
	}
	r.handlers[category] = append(r.handlers[category], handler)
	return nil
}

// Dispatch runs all handlers of the event category. A panicking handler is
// logged and does not prevent the remaining handlers from running. The
// result is always Continue so that other sinks of the host still run.
func (r *Registry) Dispatch(event Event) Result {
	for _, handler := range r.handlers[event.Category] {
		r.run(handler, event)
	}
	return Continue
}

func (r *Registry) run(handler Handler, event Event) {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Warn("Event handler failed",
				log.String("category", event.Category.String()),
				log.String("panic", fmt.Sprint(err)))
		}
	}()
	handler(event)
}

type categorySink struct {
	registry *Registry
	category Category
}

func (s *categorySink) ReceiveEvent(event Event) Result {
	event.Category = s.category
	return s.registry.Dispatch(event)
}

// PlayerOnly wraps handler to only receive events of the player character.
func PlayerOnly(handler Handler) Handler {
	return func(event Event) {
		if event.FormID == PlayerFormID {
			handler(event)
		}
	}
}
