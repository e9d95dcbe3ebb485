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

package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deposit-reconciler-go/internal/catalog"
	"deposit-reconciler-go/internal/models"
	"deposit-reconciler-go/internal/sequencing"
	"deposit-reconciler-go/internal/store"
	"deposit-reconciler-go/internal/watch"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PlatformServiceConfig contains configuration for PlatformService
type PlatformServiceConfig struct {
	Catalog   *catalog.PlanCatalog
	Validator *sequencing.Validator
	Deposits  store.DepositStore
	Access    store.AccessStore
	Scheduler *watch.Scheduler

	AccessCurrency    string
	AccessDailyAmount decimal.Decimal
}

// PlatformService is the operation surface the binaries call into. It
// composes the sequencing gate, the ledgers, and the reconciliation
// scheduler into the user-facing deposit and access flows.
type PlatformService struct {
	catalog   *catalog.PlanCatalog
	validator *sequencing.Validator
	deposits  store.DepositStore
	access    store.AccessStore
	scheduler *watch.Scheduler

	accessCurrency    string
	accessDailyAmount decimal.Decimal
}

func NewPlatformService(cfg PlatformServiceConfig) *PlatformService {
	return &PlatformService{
		catalog:           cfg.Catalog,
		validator:         cfg.Validator,
		deposits:          cfg.Deposits,
		access:            cfg.Access,
		scheduler:         cfg.Scheduler,
		accessCurrency:    cfg.AccessCurrency,
		accessDailyAmount: cfg.AccessDailyAmount,
	}
}

// OpenPlan opens a deposit for the user in the given plan and starts the
// payment watch. The record starts PENDING; reconciliation drives it to
// ACTIVE or CANCELLED asynchronously.
func (p *PlatformService) OpenPlan(ctx context.Context, userAddress, planId, currency string) (*models.DepositRecord, error) {
	plan, err := p.catalog.ById(planId)
	if err != nil {
		return nil, err
	}
	amount, ok := plan.AmountFor(currency)
	if !ok {
		return nil, fmt.Errorf("plan %q has no price in %s", planId, currency)
	}

	history, err := p.deposits.ListByUser(ctx, userAddress)
	if err != nil {
		return nil, fmt.Errorf("unable to load deposit history: %w", err)
	}
	decision, err := p.validator.CanOpen(planId, history)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", store.ErrSequenceViolation, decision.Reason)
	}

	record, err := p.deposits.Create(ctx, store.CreateDepositParams{
		UserAddress: userAddress,
		PlanId:      planId,
		Currency:    currency,
		Amount:      amount,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create deposit: %w", err)
	}

	if err := p.scheduler.WatchDeposit(ctx, *record); err != nil {
		// Without a watch the record would sit PENDING until the next
		// restart; fail it now and surface the error.
		if cancelErr := p.deposits.Cancel(ctx, record.Id); cancelErr != nil {
			zap.L().Error("Failed to cancel unwatched deposit",
				zap.String("deposit_id", record.Id),
				zap.Error(cancelErr))
		}
		return nil, fmt.Errorf("unable to start deposit watch: %w", err)
	}

	zap.L().Info("Deposit opened",
		zap.String("deposit_id", record.Id),
		zap.String("user_address", userAddress),
		zap.String("plan_id", planId),
		zap.String("amount", amount.String()),
		zap.String("currency", currency))
	return record, nil
}

// RequestAccess registers a subscription payment intent for the given
// number of days and starts watching for the payment. Returns the
// intent and the exact amount the user is expected to transfer.
func (p *PlatformService) RequestAccess(ctx context.Context, userAddress string, days int) (*models.AccessIntent, decimal.Decimal, error) {
	if days <= 0 {
		return nil, decimal.Zero, fmt.Errorf("days must be positive, got %d", days)
	}

	// A request already being watched must stay intact; overwriting its
	// persisted intent would strand the in-flight payment across a restart.
	current, err := p.access.Get(ctx, userAddress)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, decimal.Zero, fmt.Errorf("unable to load access record: %w", err)
	}
	if current != nil && current.HasPendingIntent() {
		return nil, decimal.Zero, fmt.Errorf("access request already pending for %s: %d days since %s",
			userAddress, current.PendingDays, current.PendingSince.Format(time.RFC3339))
	}

	since := time.Now().UTC()
	if err := p.access.SetPendingIntent(ctx, userAddress, days, since); err != nil {
		return nil, decimal.Zero, fmt.Errorf("unable to record access intent: %w", err)
	}
	if err := p.scheduler.WatchAccess(ctx, userAddress, days, since); err != nil {
		if clearErr := p.access.ClearPendingIntent(ctx, userAddress); clearErr != nil {
			zap.L().Error("Failed to clear unwatched access intent",
				zap.String("user_address", userAddress),
				zap.Error(clearErr))
		}
		return nil, decimal.Zero, fmt.Errorf("unable to start access watch: %w", err)
	}

	expected := p.accessDailyAmount.Mul(decimal.NewFromInt(int64(days)))
	zap.L().Info("Access requested",
		zap.String("user_address", userAddress),
		zap.Int("days", days),
		zap.String("expected_amount", expected.String()),
		zap.String("currency", p.accessCurrency))
	return &models.AccessIntent{UserAddress: userAddress, Days: days, Since: since}, expected, nil
}

// CancelDeposit stops the payment watch and cancels a PENDING deposit.
func (p *PlatformService) CancelDeposit(ctx context.Context, depositId string) error {
	p.scheduler.CancelWatch(depositId)
	if err := p.deposits.Cancel(ctx, depositId); err != nil {
		return err
	}
	zap.L().Info("Deposit cancelled by request", zap.String("deposit_id", depositId))
	return nil
}

// History returns every deposit the user ever opened, newest first.
func (p *PlatformService) History(ctx context.Context, userAddress string) ([]models.DepositRecord, error) {
	return p.deposits.ListByUser(ctx, userAddress)
}

// AccessStatus returns the user's subscription record. A user who never
// paid gets an empty record rather than an error.
func (p *PlatformService) AccessStatus(ctx context.Context, userAddress string) (*models.AccessRecord, error) {
	record, err := p.access.Get(ctx, userAddress)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &models.AccessRecord{UserAddress: userAddress}, nil
		}
		return nil, err
	}
	return record, nil
}

// Plans lists the catalog ranked by order.
func (p *PlatformService) Plans() []models.PlanDefinition {
	return p.catalog.Plans()
}
