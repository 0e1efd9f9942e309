// Package supabase is the production session directory. Role tags come from
// the profiles table in Supabase Postgres, cached in Redis, and session
// changes travel over Redis pub/sub.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"prophub/internal/domain/models"
	"prophub/internal/session"
)

const subscriberBuffer = 16

// ProfileReader is the slice of the profile repository lookups need
type ProfileReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// Directory implements session.Directory and session.Publisher
type Directory struct {
	profiles ProfileReader
	store    Store
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewDirectory creates a directory. A nil store disables caching and change
// events; lookups then always hit Postgres.
func NewDirectory(profiles ProfileReader, store Store, cacheTTL time.Duration, logger *slog.Logger) *Directory {
	return &Directory{
		profiles: profiles,
		store:    store,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// ForUser returns the provider for a signed-in user.
// An empty or malformed user ID yields the anonymous provider.
func (d *Directory) ForUser(userID string) session.Provider {
	if userID == "" {
		return session.Anonymous()
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		d.logger.Warn("session user id is not a uuid", "user_id", userID)
		return session.Anonymous()
	}
	return &provider{dir: d, userID: id}
}

// Publish drops the cached role tag and notifies the user's live sessions
func (d *Directory) Publish(ctx context.Context, event session.Event) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	if d.store == nil {
		return nil
	}

	if err := d.store.InvalidateRole(ctx, event.UserID); err != nil {
		return fmt.Errorf("invalidate role cache: %w", err)
	}
	if err := d.store.Publish(ctx, SessionChannel(event.UserID), payload); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

type provider struct {
	dir    *Directory
	userID uuid.UUID
}

func (p *provider) LookupRole(ctx context.Context) (string, error) {
	userID := p.userID.String()
	store := p.dir.store

	// fill stays false unless the epoch was read before the database, so a
	// Publish landing mid-lookup keeps the old tag out of the cache
	var epoch int64
	fill := false
	if store != nil {
		tag, err := store.GetRole(ctx, userID)
		switch {
		case err == nil:
			return tag, nil
		case errors.Is(err, ErrCacheMiss):
		default:
			p.dir.logger.Warn("role cache read failed", "user_id", userID, "error", err)
		}

		epoch, err = store.RoleEpoch(ctx, userID)
		if err != nil {
			p.dir.logger.Warn("role epoch read failed", "user_id", userID, "error", err)
		} else {
			fill = true
		}
	}

	profile, err := p.dir.profiles.GetByUserID(ctx, p.userID)
	if err != nil {
		return "", fmt.Errorf("load profile %s: %w", p.userID, err)
	}

	if fill {
		stored, err := store.FillRole(ctx, userID, profile.Role, epoch, p.dir.cacheTTL)
		switch {
		case err != nil:
			p.dir.logger.Warn("role cache write failed", "user_id", userID, "error", err)
		case !stored:
			p.dir.logger.Debug("role cache fill skipped after invalidation", "user_id", userID)
		}
	}
	return profile.Role, nil
}

func (p *provider) Subscribe() (<-chan session.Event, func()) {
	out := make(chan session.Event, subscriberBuffer)
	if p.dir.store == nil {
		var once sync.Once
		return out, func() { once.Do(func() { close(out) }) }
	}

	userID := p.userID.String()
	ctx, cancel := context.WithCancel(context.Background())
	payloads, closeSub, err := p.dir.store.Subscribe(ctx, SessionChannel(userID))
	if err != nil {
		cancel()
		p.dir.logger.Warn("session events unavailable", "user_id", userID, "error", err)
		var once sync.Once
		return out, func() { once.Do(func() { close(out) }) }
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		for payload := range payloads {
			event, err := DecodeEvent(payload, userID)
			if err != nil {
				p.dir.logger.Warn("dropping session event", "user_id", userID, "error", err)
				continue
			}
			select {
			case out <- event:
			default:
				// a queued event already forces a re-lookup
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			if err := closeSub(); err != nil {
				p.dir.logger.Debug("closing session subscription", "user_id", userID, "error", err)
			}
			cancel()
			<-done
			close(out)
		})
	}
}
