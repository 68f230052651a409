// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package account

import (
	"context"
	"sync"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"ambry.io/ambry/internal/sync2"
)

var mon = monkit.Package()

// Service is a Directory backed by a Store. Lookups read an in-memory
// snapshot that is swapped wholesale on refresh.
type Service struct {
	log     *zap.Logger
	store   *Store
	refresh *sync2.Cycle

	mu       sync.RWMutex
	snapshot *InMemory
}

// NewService loads the directory from store and optionally schedules a
// periodic refresh. A non-positive interval disables refreshing.
func NewService(log *zap.Logger, store *Store, refreshInterval time.Duration) (*Service, error) {
	service := &Service{
		log:   log,
		store: store,
	}
	if refreshInterval > 0 {
		service.refresh = sync2.NewCycle(refreshInterval)
	}
	if err := service.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return service, nil
}

// Run drives the periodic refresh until ctx is done. It returns
// immediately when refreshing is disabled.
func (service *Service) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if service.refresh == nil {
		return nil
	}
	return service.refresh.Run(ctx, func(ctx context.Context) error {
		if err := service.Refresh(ctx); err != nil {
			service.log.Error("account refresh failed", zap.Error(err))
		}
		return nil
	})
}

// Close stops the refresh cycle. It does not close the store.
func (service *Service) Close() error {
	if service.refresh != nil {
		service.refresh.Stop()
	}
	return nil
}

// Refresh reloads the snapshot from the store.
func (service *Service) Refresh(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	accounts, err := service.store.Load()
	if err != nil {
		return err
	}
	snapshot := NewInMemory(accounts...)

	service.mu.Lock()
	service.snapshot = snapshot
	service.mu.Unlock()

	service.log.Debug("account directory refreshed", zap.Int("accounts", len(snapshot.All())))
	return nil
}

// Update writes accounts through to the store and refreshes the
// snapshot.
func (service *Service) Update(ctx context.Context, accounts ...*Account) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := service.store.Update(accounts...); err != nil {
		return err
	}
	return service.Refresh(ctx)
}

func (service *Service) directory() *InMemory {
	service.mu.RLock()
	defer service.mu.RUnlock()
	return service.snapshot
}

// ByName implements Directory.
func (service *Service) ByName(name string) (*Account, bool) {
	return service.directory().ByName(name)
}

// ByID implements Directory.
func (service *Service) ByID(id int16) (*Account, bool) {
	return service.directory().ByID(id)
}

// All implements Directory.
func (service *Service) All() []*Account {
	return service.directory().All()
}

// Unknown implements Directory.
func (service *Service) Unknown() *Account {
	return service.directory().Unknown()
}
