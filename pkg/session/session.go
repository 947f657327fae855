// Package session holds the per-session state of a running script: the
// session state values, the session language and the queue of events sent to
// the front end.
//
// The active run context travels in a context.Context:
//
//	ctx = session.WithRunContext(ctx, rc)
//	...
//	if rc, ok := session.FromContext(ctx); ok {
//	    rc.Enqueue(session.OpenModal(formID))
//	}
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schaumb/streamlit/pkg/logger"
)

// EventKind identifies the kind of a front-end event.
type EventKind string

const (
	// EventOpenModal sets the id of the modal that should be visible.
	EventOpenModal EventKind = "open_modal"
)

// Event is a message for the front end.
type Event struct {
	ID   string
	Kind EventKind
	At   time.Time

	// OpenModalID is the form id of the visible modal; empty means none.
	OpenModalID string
}

// OpenModal returns an event that makes the modal with formID visible. An
// empty formID closes any open modal.
func OpenModal(formID string) Event {
	return Event{
		ID:          uuid.NewString(),
		Kind:        EventOpenModal,
		At:          time.Now(),
		OpenModalID: formID,
	}
}

// State is the session state: user-set values plus the session language.
// It is safe for concurrent use.
type State struct {
	mu       sync.RWMutex
	values   map[string]any
	language string
}

// NewState creates empty session state.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Has reports whether key is set.
func (s *State) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Delete removes key.
func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Keys returns the set keys in sorted order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Language returns the session language, e.g. "pl" or "en-US".
func (s *State) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// SetLanguage sets the session language.
func (s *State) SetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
}

// RunContext is the context of one script run in one session.
type RunContext struct {
	SessionID string
	State     *State

	mu      sync.Mutex
	events  []Event
	forms   map[string]struct{}
	running bool
	lang    string
}

// Option configures a RunContext.
type Option func(*RunContext)

// WithSessionID sets the session id instead of a random one.
func WithSessionID(id string) Option {
	return func(rc *RunContext) { rc.SessionID = id }
}

// WithState shares existing session state with the run.
func WithState(s *State) Option {
	return func(rc *RunContext) { rc.State = s }
}

// WithLanguage sets the session language.
func WithLanguage(lang string) Option {
	return func(rc *RunContext) { rc.lang = lang }
}

// NewRunContext creates a run context with a random session id and empty
// state.
func NewRunContext(opts ...Option) *RunContext {
	rc := &RunContext{
		SessionID: uuid.NewString(),
		State:     NewState(),
		forms:     make(map[string]struct{}),
		running:   true,
	}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.lang != "" {
		rc.State.SetLanguage(rc.lang)
	}
	return rc
}

// Enqueue queues an event for the front end.
func (rc *RunContext) Enqueue(ev Event) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.events = append(rc.events, ev)
}

// Events returns a copy of the queued events.
func (rc *RunContext) Events() []Event {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]Event(nil), rc.events...)
}

// Drain returns the queued events and empties the queue.
func (rc *RunContext) Drain() []Event {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := rc.events
	rc.events = nil
	return out
}

// OpenModalID returns the open modal id set by the last queued open-modal
// event, and false when no such event is queued.
func (rc *RunContext) OpenModalID() (string, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i := len(rc.events) - 1; i >= 0; i-- {
		if rc.events[i].Kind == EventOpenModal {
			return rc.events[i].OpenModalID, true
		}
	}
	return "", false
}

// ClaimForm records formID as used in this run. It returns false when the id
// was already claimed.
func (rc *RunContext) ClaimForm(formID string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.forms[formID]; ok {
		return false
	}
	rc.forms[formID] = struct{}{}
	return true
}

// Running reports whether the script is still running.
func (rc *RunContext) Running() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.running
}

// Finish marks the run as finished.
func (rc *RunContext) Finish() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.running = false
}

type ctxKey struct{}

// WithRunContext returns a copy of ctx carrying rc.
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	if rc != nil {
		ctx = logger.ContextWithSession(ctx, rc.SessionID)
	}
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the run context carried by ctx.
func FromContext(ctx context.Context) (*RunContext, bool) {
	rc, ok := ctx.Value(ctxKey{}).(*RunContext)
	return rc, ok && rc != nil
}

// Language returns the session language of the run context in ctx, or "".
func Language(ctx context.Context) string {
	rc, ok := FromContext(ctx)
	if !ok || rc.State == nil {
		return ""
	}
	return rc.State.Language()
}
