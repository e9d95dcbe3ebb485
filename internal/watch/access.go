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

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// runAccessWatch reconciles a subscription payment intent the same way
// a deposit is watched. On timeout the intent is cleared without an
// event - an unpaid intent is not a subscription state change.
func (s *Scheduler) runAccessWatch(ctx context.Context, intent models.AccessIntent, stop <-chan struct{}) {
	defer s.wg.Done()
	defer s.removeWatch(accessWatchKey(intent.UserAddress))

	contract, err := s.registry.ContractFor(s.accessCurrency)
	if err != nil {
		zap.L().Error("Access watch aborted: currency has no token",
			zap.String("user_address", intent.UserAddress),
			zap.String("currency", s.accessCurrency),
			zap.Error(err))
		s.clearIntent(ctx, intent.UserAddress)
		return
	}

	expected := s.accessDailyAmount.Mul(decimal.NewFromInt(int64(intent.Days)))
	zap.L().Info("Access watch started",
		zap.String("user_address", intent.UserAddress),
		zap.Int("days", intent.Days),
		zap.String("expected_amount", expected.String()),
		zap.String("currency", s.accessCurrency))

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if event := s.pollAccess(ctx, intent, contract, expected, attempt); event != nil {
			if s.extendFromEvent(ctx, intent, event) {
				return
			}
		}

		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ticker.C:
		case <-stop:
			zap.L().Info("Access watch cancelled", zap.String("user_address", intent.UserAddress))
			return
		case <-ctx.Done():
			return
		}
	}

	zap.L().Info("Access watch timed out",
		zap.String("user_address", intent.UserAddress),
		zap.Int("attempts", s.maxAttempts))
	s.clearIntent(ctx, intent.UserAddress)
}

func (s *Scheduler) pollAccess(ctx context.Context, intent models.AccessIntent, contract string, expected decimal.Decimal, attempt int) *models.TransferEvent {
	observed, err := s.source.TransferEvents(ctx, contract, intent.UserAddress, intent.Since)
	if err != nil {
		zap.L().Warn("Transfer query failed",
			zap.String("user_address", intent.UserAddress),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.maxAttempts),
			zap.Error(err))
		return nil
	}

	observed = s.filterConsumed(observed)
	event, err := s.matcher.MatchPayment(intent.UserAddress, s.accessCurrency, expected, intent.Since, observed)
	if err != nil {
		zap.L().Error("Payment matching failed",
			zap.String("user_address", intent.UserAddress),
			zap.Error(err))
		return nil
	}
	return event
}

func (s *Scheduler) extendFromEvent(ctx context.Context, intent models.AccessIntent, event *models.TransferEvent) bool {
	if !s.tryConsume(event.TxHash) {
		return false
	}

	record, err := s.access.RecordPayment(ctx, intent.UserAddress, event.TxHash, intent.Days, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, store.ErrDuplicateMatch) {
			s.releaseConsumed(event.TxHash)
		}
		zap.L().Error("Failed to record access payment",
			zap.String("user_address", intent.UserAddress),
			zap.String("tx_hash", event.TxHash),
			zap.Error(err))
		return false
	}

	s.bus.Publish(models.TopicAccessExtended, models.AccessExtended{
		UserAddress: intent.UserAddress,
		ExpiresAt:   *record.ExpiresAt,
	})
	zap.L().Info("Access payment matched",
		zap.String("user_address", intent.UserAddress),
		zap.String("tx_hash", event.TxHash),
		zap.Time("expires_at", *record.ExpiresAt))
	return true
}

func (s *Scheduler) clearIntent(ctx context.Context, userAddress string) {
	if err := s.access.ClearPendingIntent(ctx, userAddress); err != nil {
		zap.L().Error("Failed to clear access intent",
			zap.String("user_address", userAddress),
			zap.Error(err))
	}
}
