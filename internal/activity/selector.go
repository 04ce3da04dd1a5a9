// Package activity chooses which account should be used for its next
// scripted browsing session.
package activity

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"account_sync/internal/logbus"
	"account_sync/internal/model"
)

const DefaultIdleThreshold = 24 * time.Hour

type Store interface {
	ListIdleAccounts(ctx context.Context, kind model.AccountKind, status model.AccountStatus, before time.Time) ([]model.Account, error)
	TouchActivity(ctx context.Context, id string, at time.Time) (model.Account, error)
}

// Picker returns an index in [0, n).
type Picker func(n int) int

type Selector struct {
	store Store
	bus   *logbus.Bus
	idle  time.Duration
	now   func() time.Time

	mu   sync.Mutex
	pick Picker
}

func NewSelector(store Store, bus *logbus.Bus, idle time.Duration) *Selector {
	if idle <= 0 {
		idle = DefaultIdleThreshold
	}
	return &Selector{store: store, bus: bus, idle: idle, now: time.Now, pick: rand.IntN}
}

// SetPicker and SetClock replace the random source and clock, mainly for tests.
func (s *Selector) SetPicker(p Picker) {
	if p != nil {
		s.mu.Lock()
		s.pick = p
		s.mu.Unlock()
	}
}

func (s *Selector) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Pick returns a uniformly random active fb account whose last activity is
// older than the idle threshold. ok is false when no account qualifies.
func (s *Selector) Pick(ctx context.Context) (acc model.Account, ok bool, err error) {
	cutoff := s.now().Add(-s.idle)
	candidates, err := s.store.ListIdleAccounts(ctx, model.AccountKindFB, model.StatusActive, cutoff)
	if err != nil {
		return model.Account{}, false, err
	}
	if len(candidates) == 0 {
		return model.Account{}, false, nil
	}

	s.mu.Lock()
	i := s.pick(len(candidates))
	s.mu.Unlock()
	acc = candidates[i]

	if s.bus != nil {
		s.bus.Log("debug", "account picked for activity", map[string]any{
			"accountId":  acc.ID,
			"login":      acc.Login,
			"candidates": len(candidates),
		})
	}
	return acc, true, nil
}

// Touch records that an activity session for the account just finished.
func (s *Selector) Touch(ctx context.Context, id string) (model.Account, error) {
	return s.store.TouchActivity(ctx, id, s.now())
}
