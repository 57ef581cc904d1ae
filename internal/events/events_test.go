package events

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

type fakeSource struct {
	sinks map[Category]Sink
	fail  bool
}

func (f *fakeSource) AddEventSink(category Category, sink Sink) error {
	if f.fail {
		return errors.New("event source unavailable")
	}
	if f.sinks == nil {
		f.sinks = make(map[Category]Sink)
	}
	f.sinks[category] = sink
	return nil
}

func TestSubscribeRegistersSinkOnce(t *testing.T) {
	source := &fakeSource{}
	r := NewRegistry(log.NewTestLogger(t), source)

	var order []int
	assert.NoError(t, r.Subscribe(InputPoll, func(Event) { order = append(order, 1) }))
	assert.NoError(t, r.Subscribe(InputPoll, func(Event) { order = append(order, 2) }))
	assert.Len(t, source.sinks, 1)

	sink := source.sinks[InputPoll]
	assert.NotNil(t, sink)
	assert.Equal(t, Continue, sink.ReceiveEvent(Event{}))
	assert.Equal(t, []int{1, 2}, order)
}

func TestDispatchRecoversPanics(t *testing.T) {
	source := &fakeSource{}
	r := NewRegistry(log.NewTestLogger(t), source)

	called := false
	assert.NoError(t, r.Subscribe(PostLoad, func(Event) { panic("broken handler") }))
	assert.NoError(t, r.Subscribe(PostLoad, func(Event) { called = true }))

	assert.Equal(t, Continue, source.sinks[PostLoad].ReceiveEvent(Event{}))
	assert.True(t, called)
}

func TestPlayerOnly(t *testing.T) {
	source := &fakeSource{}
	r := NewRegistry(log.NewTestLogger(t), source)

	var events []Event
	assert.NoError(t, r.Subscribe(ObjectLoaded, PlayerOnly(func(e Event) { events = append(events, e) })))

	sink := source.sinks[ObjectLoaded]
	sink.ReceiveEvent(Event{FormID: 0x1A2B3, Loaded: true})
	sink.ReceiveEvent(Event{FormID: PlayerFormID, Loaded: true})
	sink.ReceiveEvent(Event{FormID: PlayerFormID, Loaded: false})

	assert.Len(t, events, 2)
	assert.True(t, events[0].Loaded)
	assert.False(t, events[1].Loaded)
	assert.Equal(t, ObjectLoaded, events[1].Category)
}

func TestSubscribeSourceFailure(t *testing.T) {
	r := NewRegistry(log.NewTestLogger(t), &fakeSource{fail: true})
	assert.Error(t, r.Subscribe(InputPoll, func(Event) {}))

	// no handler is kept for a category without sink
	assert.Equal(t, Continue, r.Dispatch(Event{Category: InputPoll}))
	assert.Len(t, r.handlers, 0)
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "input_poll", InputPoll.String())
	assert.Equal(t, "object_loaded", ObjectLoaded.String())
	assert.Equal(t, "category(7)", Category(7).String())
}
