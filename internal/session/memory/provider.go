// Package memory is an in-process session directory.
// It backs the memory session mode and the tests of everything above the
// session contract.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"prophub/internal/session"
)

// subscriberBuffer bounds each subscriber's queue. Events are change signals,
// so a full queue already guarantees a re-lookup and further events can be dropped.
const subscriberBuffer = 16

// Directory stores role tags per user and fans out change events.
// It implements session.Directory and session.Publisher.
type Directory struct {
	mu          sync.Mutex
	roles       map[string]string
	errs        map[string]error
	holds       map[string]chan struct{}
	lookups     map[string]int
	subscribers map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch     chan session.Event
	closed bool
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		roles:       make(map[string]string),
		errs:        make(map[string]error),
		holds:       make(map[string]chan struct{}),
		lookups:     make(map[string]int),
		subscribers: make(map[string]map[*subscriber]struct{}),
	}
}

// ParseSeed parses "uid=tag,uid=tag" into a directory.
// Tags are stored verbatim so unknown tags can be seeded on purpose.
func ParseSeed(seed string) (*Directory, error) {
	d := NewDirectory()
	for _, pair := range strings.Split(seed, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		userID, tag, ok := strings.Cut(pair, "=")
		if !ok || userID == "" {
			return nil, fmt.Errorf("invalid seed entry %q: want uid=role", pair)
		}
		d.SetRole(strings.TrimSpace(userID), strings.TrimSpace(tag))
	}
	return d, nil
}

// SetRole stores the raw role tag for a user. It does not publish.
func (d *Directory) SetRole(userID, tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[userID] = tag
}

// Remove forgets a user, so lookups report session.ErrNoSession
func (d *Directory) Remove(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.roles, userID)
}

// FailWith makes every lookup for userID return err until cleared with nil
func (d *Directory) FailWith(userID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.errs, userID)
		return
	}
	d.errs[userID] = err
}

// Hold blocks lookups for userID until the returned release func is called.
// Held lookups ignore context cancellation, like a backend that does not
// honor it.
func (d *Directory) Hold(userID string) (release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan struct{})
	d.holds[userID] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.holds[userID] == ch {
				delete(d.holds, userID)
			}
			d.mu.Unlock()
			close(ch)
		})
	}
}

// Lookups returns how many lookups have started for userID
func (d *Directory) Lookups(userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookups[userID]
}

// Subscribers returns the number of live subscriptions for userID
func (d *Directory) Subscribers(userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscribers[userID])
}

// ForUser implements session.Directory
func (d *Directory) ForUser(userID string) session.Provider {
	if userID == "" {
		return session.Anonymous()
	}
	return &provider{dir: d, userID: userID}
}

// Publish implements session.Publisher
func (d *Directory) Publish(ctx context.Context, event session.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for sub := range d.subscribers[event.UserID] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (d *Directory) lookup(ctx context.Context, userID string) (string, error) {
	d.mu.Lock()
	d.lookups[userID]++
	hold := d.holds[userID]
	d.mu.Unlock()

	if hold != nil {
		<-hold
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.errs[userID]; err != nil {
		return "", err
	}
	tag, ok := d.roles[userID]
	if !ok {
		return "", session.ErrNoSession
	}
	return tag, nil
}

func (d *Directory) subscribe(userID string) (<-chan session.Event, func()) {
	sub := &subscriber{ch: make(chan session.Event, subscriberBuffer)}

	d.mu.Lock()
	if d.subscribers[userID] == nil {
		d.subscribers[userID] = make(map[*subscriber]struct{})
	}
	d.subscribers[userID][sub] = struct{}{}
	d.mu.Unlock()

	return sub.ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		delete(d.subscribers[userID], sub)
		if len(d.subscribers[userID]) == 0 {
			delete(d.subscribers, userID)
		}
		close(sub.ch)
	}
}

// provider is a Directory view bound to one user
type provider struct {
	dir    *Directory
	userID string
}

func (p *provider) LookupRole(ctx context.Context) (string, error) {
	return p.dir.lookup(ctx, p.userID)
}

func (p *provider) Subscribe() (<-chan session.Event, func()) {
	return p.dir.subscribe(p.userID)
}
