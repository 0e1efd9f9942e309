// Package session defines the contract between the role resolver and whatever
// holds the authenticated session and the user's profile.
//
// The resolver only depends on Provider. How the provider stores tokens or
// fetches profiles (Supabase, memory) is not visible to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoSession is returned by LookupRole when no user is signed in
var ErrNoSession = errors.New("no authenticated session")

// EventKind identifies why a session changed
type EventKind string

const (
	EventLogin          EventKind = "login"
	EventLogout         EventKind = "logout"
	EventProfileUpdated EventKind = "profile_updated"
)

// Valid reports whether k is a known event kind
func (k EventKind) Valid() bool {
	switch k {
	case EventLogin, EventLogout, EventProfileUpdated:
		return true
	}
	return false
}

// Event is a session change notification
type Event struct {
	Kind   EventKind `json:"kind"`
	UserID string    `json:"user_id"`
}

// Validate checks the event can be routed to a subscriber
func (e Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.UserID == "" {
		return fmt.Errorf("event %s missing user id", e.Kind)
	}
	return nil
}

// Provider exposes one session's role and its change notifications.
type Provider interface {
	// LookupRole returns the raw role tag on the session user's profile.
	// Returns ErrNoSession when nobody is signed in.
	LookupRole(ctx context.Context) (string, error)

	// Subscribe returns a channel of change events and a function that
	// releases the subscription. The release function is idempotent and
	// closes the channel.
	Subscribe() (<-chan Event, func())
}

// Directory hands out a Provider bound to a user
type Directory interface {
	ForUser(userID string) Provider
}

// Publisher fans a change event out to every subscriber of the event's user
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Anonymous returns a Provider for a request with no signed-in user.
// Lookups always fail with ErrNoSession and no events are ever delivered.
func Anonymous() Provider {
	return anonymousProvider{}
}

type anonymousProvider struct{}

func (anonymousProvider) LookupRole(ctx context.Context) (string, error) {
	return "", ErrNoSession
}

func (anonymousProvider) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event)
	var once sync.Once
	return ch, func() {
		once.Do(func() { close(ch) })
	}
}
