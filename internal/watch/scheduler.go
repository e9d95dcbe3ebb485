/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"deposit-reconciler-go/internal/catalog"
	"deposit-reconciler-go/internal/chain"
	"deposit-reconciler-go/internal/events"
	"deposit-reconciler-go/internal/matcher"
	"deposit-reconciler-go/internal/models"
	"deposit-reconciler-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SchedulerConfig contains configuration for Scheduler
type SchedulerConfig struct {
	Deposits store.DepositStore
	Access   store.AccessStore
	Source   chain.EventSource
	Matcher  *matcher.Matcher
	Registry *catalog.TokenRegistry
	Bus      *events.Bus

	PollInterval time.Duration
	MaxAttempts  int

	// Pricing for access-subscription watches.
	AccessCurrency    string
	AccessDailyAmount decimal.Decimal
}

// Scheduler drives the async reconciliation lifecycle: one watch task
// per pending record, each polling the event source on a fixed
// interval under a bounded attempt budget. Watch tasks are independent
// and individually cancellable; the only shared state is the consumed
// tx-hash set and the persisted ledger.
type Scheduler struct {
	deposits store.DepositStore
	access   store.AccessStore
	source   chain.EventSource
	matcher  *matcher.Matcher
	registry *catalog.TokenRegistry
	bus      *events.Bus

	pollInterval      time.Duration
	maxAttempts       int
	accessCurrency    string
	accessDailyAmount decimal.Decimal

	mutex      sync.Mutex
	consumedTx map[string]time.Time // tx hash -> when it was claimed
	watches    map[string]chan struct{}
	wg         sync.WaitGroup
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		deposits:          cfg.Deposits,
		access:            cfg.Access,
		source:            cfg.Source,
		matcher:           cfg.Matcher,
		registry:          cfg.Registry,
		bus:               cfg.Bus,
		pollInterval:      cfg.PollInterval,
		maxAttempts:       cfg.MaxAttempts,
		accessCurrency:    cfg.AccessCurrency,
		accessDailyAmount: cfg.AccessDailyAmount,
		consumedTx:        make(map[string]time.Time),
		watches:           make(map[string]chan struct{}),
	}
}

// WatchDeposit starts the watch task driving one PENDING deposit to
// ACTIVE or CANCELLED. Starting a second watch for the same record is
// an error.
func (s *Scheduler) WatchDeposit(ctx context.Context, record models.DepositRecord) error {
	if record.Status != models.StatusPending {
		return fmt.Errorf("%w: deposit %s is %s, only PENDING records are watched",
			store.ErrInvalidTransition, record.Id, record.Status)
	}
	stop, err := s.registerWatch(record.Id)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go s.runDepositWatch(ctx, record, stop)
	return nil
}

// WatchAccess starts a watch task for a subscription payment intent of
// the given number of days, expected from since onward.
func (s *Scheduler) WatchAccess(ctx context.Context, userAddress string, days int, since time.Time) error {
	if days <= 0 {
		return fmt.Errorf("days must be positive, got %d", days)
	}
	stop, err := s.registerWatch(accessWatchKey(userAddress))
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go s.runAccessWatch(ctx, models.AccessIntent{UserAddress: userAddress, Days: days, Since: since}, stop)
	return nil
}

// CancelWatch stops the watch task for a deposit id (or access key)
// without touching already-committed ledger state.
func (s *Scheduler) CancelWatch(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if stop, ok := s.watches[id]; ok {
		close(stop)
		delete(s.watches, id)
	}
}

// Stop cancels every watch task and waits for them to drain.
// Cancellation is cooperative: tasks notice between poll intervals.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	for id, stop := range s.watches {
		close(stop)
		delete(s.watches, id)
	}
	s.mutex.Unlock()
	s.wg.Wait()
	zap.L().Info("Reconciliation scheduler stopped")
}

// Resume re-attaches watch tasks after a restart so a long-dead process
// does not leave records PENDING forever. Records older than the whole
// watch window are cancelled eagerly instead of re-watched.
func (s *Scheduler) Resume(ctx context.Context) error {
	pending, err := s.deposits.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return fmt.Errorf("unable to list pending deposits: %w", err)
	}

	window := time.Duration(s.maxAttempts) * s.pollInterval
	cutoff := time.Now().UTC().Add(-window)

	var resumed, expired int
	for _, record := range pending {
		if record.CreatedAt.Before(cutoff) {
			if err := s.deposits.Cancel(ctx, record.Id); err != nil {
				zap.L().Error("Failed to cancel stale pending deposit",
					zap.String("deposit_id", record.Id),
					zap.Error(err))
				continue
			}
			s.bus.Publish(models.TopicDepositTimeout, models.DepositTimeout{Id: record.Id})
			expired++
			continue
		}
		if err := s.WatchDeposit(ctx, record); err != nil {
			zap.L().Error("Failed to resume deposit watch",
				zap.String("deposit_id", record.Id),
				zap.Error(err))
			continue
		}
		resumed++
	}

	intents, err := s.access.ListPendingIntents(ctx)
	if err != nil {
		return fmt.Errorf("unable to list pending access intents: %w", err)
	}
	for _, intent := range intents {
		if intent.Since.Before(cutoff) {
			if err := s.access.ClearPendingIntent(ctx, intent.UserAddress); err != nil {
				zap.L().Error("Failed to clear stale access intent",
					zap.String("user_address", intent.UserAddress),
					zap.Error(err))
			}
			expired++
			continue
		}
		if err := s.WatchAccess(ctx, intent.UserAddress, intent.Days, intent.Since); err != nil {
			zap.L().Error("Failed to resume access watch",
				zap.String("user_address", intent.UserAddress),
				zap.Error(err))
			continue
		}
		resumed++
	}

	zap.L().Info("Startup recovery completed",
		zap.Int("watches_resumed", resumed),
		zap.Int("records_expired", expired))
	return nil
}

func (s *Scheduler) registerWatch(id string) (chan struct{}, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exists := s.watches[id]; exists {
		return nil, fmt.Errorf("watch already running for %s", id)
	}
	stop := make(chan struct{})
	s.watches[id] = stop
	return stop, nil
}

func (s *Scheduler) removeWatch(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.watches, id)
}

// tryConsume claims a tx hash for one record. The SQLite unique index
// on matched_tx_hash is the crash-safe backstop; this set is the fast
// path that keeps two concurrent watches from racing to the database.
func (s *Scheduler) tryConsume(txHash string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pruneConsumedLocked(time.Now().UTC())
	if _, taken := s.consumedTx[txHash]; taken {
		return false
	}
	s.consumedTx[txHash] = time.Now().UTC()
	return true
}

func (s *Scheduler) releaseConsumed(txHash string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.consumedTx, txHash)
}

// filterConsumed returns the events whose hashes are unclaimed. The
// input slice belongs to the event source and is never mutated.
func (s *Scheduler) filterConsumed(events []models.TransferEvent) []models.TransferEvent {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pruneConsumedLocked(time.Now().UTC())
	out := make([]models.TransferEvent, 0, len(events))
	for _, ev := range events {
		if _, taken := s.consumedTx[ev.TxHash]; !taken {
			out = append(out, ev)
		}
	}
	return out
}

// pruneConsumedLocked drops claims older than the full watch window.
// No live watch can still observe them (a watch only matches events
// newer than its own start), and committed hashes stay guarded by the
// database unique index. Caller must hold the mutex.
func (s *Scheduler) pruneConsumedLocked(now time.Time) {
	window := time.Duration(s.maxAttempts) * s.pollInterval
	for hash, claimedAt := range s.consumedTx {
		if now.Sub(claimedAt) > window {
			delete(s.consumedTx, hash)
		}
	}
}

func accessWatchKey(userAddress string) string {
	return "access:" + userAddress
}
