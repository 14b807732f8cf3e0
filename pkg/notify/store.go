// Package notify provides a typed key-value store of UI state with synchronous,
// per-channel change notification.
//
// The set of channels is fixed when the Store is built. Each channel keeps its current
// value and an ordered list of listeners; every Set or Notify calls those listeners
// synchronously, in registration order, before returning.
//
// Broadcasts are not guarded against re-entry: a listener that calls Set on the channel
// it is being notified about starts a nested broadcast immediately. Each broadcast walks
// the listener list as it was when that broadcast began.
package notify

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/grovetools/envmirror/errors"
)

// Listener receives a channel and its value.
type Listener func(ch Channel, value interface{})

// ListenerID identifies a registration so it can be removed.
type ListenerID uint64

// Source is the remote state the store is wired to.
type Source interface {
	RefreshEnvSummaries(ctx context.Context) error
}

type group struct {
	order     []ListenerID
	listeners map[ListenerID]Listener
}

// Store is the notification store.
type Store struct {
	source Source

	mu     sync.Mutex
	values map[Channel]interface{}
	types  map[Channel]reflect.Type
	groups map[Channel]*group
	nextID ListenerID
}

// New builds a store for schema. The source must be ready to use before the store is
// built; every initial value must be non-nil and fixes the type of its channel.
func New(source Source, schema Schema) (*Store, error) {
	if source == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "notification store requires a remote state source")
	}
	if len(schema) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "notification schema declares no channels")
	}

	s := &Store{
		source: source,
		values: make(map[Channel]interface{}, len(schema)),
		types:  make(map[Channel]reflect.Type, len(schema)),
		groups: make(map[Channel]*group, len(schema)),
	}
	for ch, initial := range schema {
		if initial == nil {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				fmt.Sprintf("channel '%s' has no initial value", ch)).WithDetail("channel", string(ch))
		}
		s.values[ch] = initial
		s.types[ch] = reflect.TypeOf(initial)
		s.groups[ch] = &group{listeners: make(map[ListenerID]Listener)}
	}
	return s, nil
}

// Channels returns the declared channels in lexical order.
func (s *Store) Channels() []Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Channel, 0, len(s.values))
	for ch := range s.values {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Set stores value and notifies every listener of ch.
func (s *Store) Set(ch Channel, value interface{}) error {
	s.mu.Lock()
	want, ok := s.types[ch]
	if !ok {
		s.mu.Unlock()
		return errors.UnknownChannel(string(ch), "set")
	}
	if reflect.TypeOf(value) != want {
		current := s.values[ch]
		s.mu.Unlock()
		return errors.InvalidValue(string(ch), current, value)
	}
	s.values[ch] = value
	listeners := s.snapshot(ch)
	s.mu.Unlock()

	broadcast(listeners, ch, value)
	return nil
}

// Get returns the current value of ch.
func (s *Store) Get(ch Channel) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[ch]
	if !ok {
		return nil, errors.UnknownChannel(string(ch), "get")
	}
	return v, nil
}

// GetAs returns the current value of ch as a T.
func GetAs[T any](s *Store, ch Channel) (T, error) {
	var zero T
	v, err := s.Get(ch)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.InvalidValue(string(ch), v, zero)
	}
	return typed, nil
}

// Notify re-sends the current value of ch to its listeners without changing it.
func (s *Store) Notify(ch Channel) error {
	s.mu.Lock()
	v, ok := s.values[ch]
	if !ok {
		s.mu.Unlock()
		return errors.UnknownChannel(string(ch), "notify")
	}
	listeners := s.snapshot(ch)
	s.mu.Unlock()

	broadcast(listeners, ch, v)
	return nil
}

// AddListener registers fn on ch. With replay, fn is called once with the current
// value before AddListener returns.
func (s *Store) AddListener(ch Channel, fn Listener, replay bool) (ListenerID, error) {
	if fn == nil {
		return 0, errors.New(errors.ErrCodeInvalidInput, "listener is nil")
	}

	s.mu.Lock()
	g, ok := s.groups[ch]
	if !ok {
		s.mu.Unlock()
		return 0, errors.UnknownChannel(string(ch), "add listener to")
	}
	s.nextID++
	id := s.nextID
	g.order = append(g.order, id)
	g.listeners[id] = fn
	current := s.values[ch]
	s.mu.Unlock()

	if replay {
		fn(ch, current)
	}
	return id, nil
}

// RemoveListener unregisters a listener. Unknown channels and ids are ignored.
func (s *Store) RemoveListener(ch Channel, id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[ch]
	if !ok {
		return
	}
	if _, ok := g.listeners[id]; !ok {
		return
	}
	delete(g.listeners, id)
	for i, existing := range g.order {
		if existing == id {
			g.order = append(g.order[:i:i], g.order[i+1:]...)
			break
		}
	}
}

// ListenerCount returns how many listeners are registered on ch.
func (s *Store) ListenerCount(ch Channel) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[ch]; ok {
		return len(g.order)
	}
	return 0
}

// RefreshEnvSummaries refreshes the source's environment list and then pokes
// ChannelEnvSummariesChanged, if the schema declares it.
func (s *Store) RefreshEnvSummaries(ctx context.Context) error {
	if err := s.source.RefreshEnvSummaries(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	_, declared := s.values[ChannelEnvSummariesChanged]
	s.mu.Unlock()
	if !declared {
		return nil
	}
	return s.Notify(ChannelEnvSummariesChanged)
}

// snapshot copies the listeners of ch in registration order. Callers hold s.mu.
func (s *Store) snapshot(ch Channel) []Listener {
	g := s.groups[ch]
	out := make([]Listener, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.listeners[id])
	}
	return out
}

func broadcast(listeners []Listener, ch Channel, value interface{}) {
	for _, fn := range listeners {
		fn(ch, value)
	}
}
