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

package expiry

import (
	"context"
	"fmt"
	"time"

	"deposit-reconciler-go/internal/catalog"
	"deposit-reconciler-go/internal/events"
	"deposit-reconciler-go/internal/models"
	"deposit-reconciler-go/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Monitor completes ACTIVE deposits whose plan duration has elapsed.
// Sweeps are idempotent: the guarded COMPLETE transition means a record
// settled by a concurrent sweep is simply skipped.
type Monitor struct {
	deposits store.DepositStore
	catalog  *catalog.PlanCatalog
	bus      *events.Bus
	cron     *cron.Cron
}

func NewMonitor(deposits store.DepositStore, planCatalog *catalog.PlanCatalog, bus *events.Bus) *Monitor {
	return &Monitor{
		deposits: deposits,
		catalog:  planCatalog,
		bus:      bus,
	}
}

// Start schedules the periodic sweep. The spec uses robfig/cron syntax,
// e.g. "@every 1m" or "0 * * * *".
func (m *Monitor) Start(spec string) error {
	if m.cron != nil {
		return fmt.Errorf("expiry monitor already started")
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := m.Sweep(ctx, time.Now().UTC()); err != nil {
			zap.L().Error("Expiry sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	m.cron = c
	c.Start()
	zap.L().Info("Expiry monitor started", zap.String("schedule", spec))
	return nil
}

// Stop halts the sweep schedule and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.cron = nil
	zap.L().Info("Expiry monitor stopped")
}

// Sweep completes every ACTIVE deposit that reached the end of its plan
// duration as of now, and returns how many were settled.
func (m *Monitor) Sweep(ctx context.Context, now time.Time) (int, error) {
	active, err := m.deposits.ListByStatus(ctx, models.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("unable to list active deposits: %w", err)
	}

	var completed int
	for _, record := range active {
		if record.ActivatedAt == nil {
			zap.L().Warn("Active deposit missing activation time",
				zap.String("deposit_id", record.Id))
			continue
		}
		plan, err := m.catalog.ById(record.PlanId)
		if err != nil {
			zap.L().Error("Active deposit references unknown plan",
				zap.String("deposit_id", record.Id),
				zap.String("plan_id", record.PlanId))
			continue
		}

		expiresAt := record.ActivatedAt.AddDate(0, 0, plan.DurationDays)
		if now.Before(expiresAt) {
			continue
		}

		if err := m.deposits.Complete(ctx, record.Id); err != nil {
			zap.L().Error("Failed to complete expired deposit",
				zap.String("deposit_id", record.Id),
				zap.Error(err))
			continue
		}

		profit := plan.Profit(record.Amount)
		m.bus.Publish(models.TopicDepositCompleted, models.DepositCompleted{
			Id:     record.Id,
			Profit: profit,
		})
		zap.L().Info("Deposit completed",
			zap.String("deposit_id", record.Id),
			zap.String("plan_id", record.PlanId),
			zap.String("profit", profit.String()))
		completed++
	}
	return completed, nil
}
