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
	"errors"
	"time"

	"deposit-reconciler-go/internal/models"
	"deposit-reconciler-go/internal/store"

	"go.uber.org/zap"
)

// runDepositWatch polls for a qualifying payment until it matches, the
// attempt budget runs out, or the watch is cancelled. A transient query
// failure and an empty result consume the budget identically; the
// budget is counted in attempts rather than wall clock so a slow
// upstream response costs one attempt instead of hanging the deadline.
func (s *Scheduler) runDepositWatch(ctx context.Context, record models.DepositRecord, stop <-chan struct{}) {
	defer s.wg.Done()
	defer s.removeWatch(record.Id)

	contract, err := s.registry.ContractFor(record.Currency)
	if err != nil {
		// Unknown currency means the record can never be paid; fail it
		// now rather than burning the whole budget.
		zap.L().Error("Deposit watch aborted: currency has no token",
			zap.String("deposit_id", record.Id),
			zap.String("currency", record.Currency),
			zap.Error(err))
		s.finalizeTimeout(ctx, record.Id)
		return
	}

	zap.L().Info("Deposit watch started",
		zap.String("deposit_id", record.Id),
		zap.String("user_address", record.UserAddress),
		zap.String("plan_id", record.PlanId),
		zap.Duration("poll_interval", s.pollInterval),
		zap.Int("max_attempts", s.maxAttempts))

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if event := s.pollDeposit(ctx, record, contract, attempt); event != nil {
			if s.activateFromEvent(ctx, record, event) {
				return
			}
			// The event was claimed by another record or the
			// transition was rejected; keep watching - the next poll
			// may find a different qualifying payment.
		}

		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ticker.C:
		case <-stop:
			zap.L().Info("Deposit watch cancelled", zap.String("deposit_id", record.Id))
			return
		case <-ctx.Done():
			return
		}
	}

	s.finalizeTimeout(ctx, record.Id)
}

// pollDeposit performs one reconciliation attempt. A nil return means
// no qualifying payment this round, whatever the reason.
func (s *Scheduler) pollDeposit(ctx context.Context, record models.DepositRecord, contract string, attempt int) *models.TransferEvent {
	observed, err := s.source.TransferEvents(ctx, contract, record.UserAddress, record.CreatedAt)
	if err != nil {
		zap.L().Warn("Transfer query failed",
			zap.String("deposit_id", record.Id),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.maxAttempts),
			zap.Error(err))
		return nil
	}

	observed = s.filterConsumed(observed)
	event, err := s.matcher.Match(&record, observed)
	if err != nil {
		zap.L().Error("Payment matching failed",
			zap.String("deposit_id", record.Id),
			zap.Error(err))
		return nil
	}
	return event
}

// activateFromEvent claims the tx hash and applies the transition.
// Returns true when this watch activated the record.
func (s *Scheduler) activateFromEvent(ctx context.Context, record models.DepositRecord, event *models.TransferEvent) bool {
	if !s.tryConsume(event.TxHash) {
		// Another watch claimed the hash between matching and here.
		return false
	}

	if err := s.deposits.Activate(ctx, record.Id, event.TxHash); err != nil {
		// The hash stays consumed only on a duplicate-match error -
		// in every other case it was never written to the ledger.
		if !errors.Is(err, store.ErrDuplicateMatch) {
			s.releaseConsumed(event.TxHash)
		}
		zap.L().Warn("Deposit activation rejected",
			zap.String("deposit_id", record.Id),
			zap.String("tx_hash", event.TxHash),
			zap.Error(err))
		return false
	}

	s.bus.Publish(models.TopicDepositActivated, models.DepositActivated{
		Id:     record.Id,
		TxHash: event.TxHash,
	})
	zap.L().Info("Deposit matched and activated",
		zap.String("deposit_id", record.Id),
		zap.String("tx_hash", event.TxHash),
		zap.String("amount_observed", event.Value.String()))
	return true
}

// finalizeTimeout cancels a deposit whose budget ran out. Timeout is a
// normal outcome: the record stays in history as CANCELLED.
func (s *Scheduler) finalizeTimeout(ctx context.Context, depositId string) {
	if err := s.deposits.Cancel(ctx, depositId); err != nil {
		// A concurrent transition already settled the record.
		zap.L().Warn("Timeout cancellation skipped",
			zap.String("deposit_id", depositId),
			zap.Error(err))
		return
	}
	s.bus.Publish(models.TopicDepositTimeout, models.DepositTimeout{Id: depositId})
	zap.L().Info("Deposit watch timed out",
		zap.String("deposit_id", depositId),
		zap.Int("attempts", s.maxAttempts))
}
