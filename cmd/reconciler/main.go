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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deposit-reconciler-go/internal/common"
	"deposit-reconciler-go/internal/config"
	"deposit-reconciler-go/internal/events"
	"deposit-reconciler-go/internal/models"

	"go.uber.org/zap"
)

// logDomainEvents drains the notification topics so operators can see
// lifecycle outcomes in the process log. A real deployment would hang
// notification delivery off these subscriptions.
func logDomainEvents(ctx context.Context, bus *events.Bus) {
	activated := bus.Subscribe(models.TopicDepositActivated, 64)
	timedOut := bus.Subscribe(models.TopicDepositTimeout, 64)
	completed := bus.Subscribe(models.TopicDepositCompleted, 64)
	extended := bus.Subscribe(models.TopicAccessExtended, 64)

	go func() {
		for {
			select {
			case ev := <-activated:
				p := ev.Payload.(models.DepositActivated)
				zap.L().Info("Event: deposit activated",
					zap.String("deposit_id", p.Id),
					zap.String("tx_hash", p.TxHash))
			case ev := <-timedOut:
				p := ev.Payload.(models.DepositTimeout)
				zap.L().Info("Event: deposit timed out", zap.String("deposit_id", p.Id))
			case ev := <-completed:
				p := ev.Payload.(models.DepositCompleted)
				zap.L().Info("Event: deposit completed",
					zap.String("deposit_id", p.Id),
					zap.String("profit", p.Profit.String()))
			case ev := <-extended:
				p := ev.Payload.(models.AccessExtended)
				zap.L().Info("Event: access extended",
					zap.String("user_address", p.UserAddress),
					zap.Time("expires_at", p.ExpiresAt))
			case <-ctx.Done():
				return
			}
		}
	}()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting deposit reconciliation engine")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	logDomainEvents(ctx, services.Bus)

	// Re-attach watches for anything left PENDING by the last run.
	if err := services.Scheduler.Resume(ctx); err != nil {
		zap.L().Fatal("Startup recovery failed", zap.Error(err))
	}

	if err := services.Monitor.Start(cfg.Watcher.SweepSpec); err != nil {
		zap.L().Fatal("Failed to start expiry monitor", zap.Error(err))
	}

	zap.L().Info("Reconciliation engine running",
		zap.Duration("poll_interval", cfg.Watcher.PollInterval),
		zap.Int("max_attempts", cfg.Watcher.MaxAttempts),
		zap.String("sweep_schedule", cfg.Watcher.SweepSpec))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		services.Monitor.Stop()
		services.Scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Reconciliation engine stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
