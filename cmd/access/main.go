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
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deposit-reconciler-go/internal/common"
	"deposit-reconciler-go/internal/config"
	"deposit-reconciler-go/internal/models"

	"go.uber.org/zap"
)

func printStatus(record *models.AccessRecord) {
	now := time.Now().UTC()
	common.PrintHeader(fmt.Sprintf("ACCESS STATUS: %s", record.UserAddress), common.DefaultWidth)
	if record.IsActive(now) {
		fmt.Printf("Active until : %s (%d full days left)\n",
			record.ExpiresAt.Format("2006-01-02 15:04:05"),
			record.RemainingDays(now))
	} else {
		fmt.Println("Subscription : inactive")
	}
	if record.HasPendingIntent() {
		fmt.Printf("Pending      : %d days requested at %s\n",
			record.PendingDays,
			record.PendingSince.Format("2006-01-02 15:04:05"))
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func showStatus(ctx context.Context, cfg *models.Config, user string, logger *zap.Logger) {
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	record, err := dbService.Get(ctx, user)
	if err != nil {
		record = &models.AccessRecord{UserAddress: user}
	}
	printStatus(record)
}

func requestDays(ctx context.Context, cfg *models.Config, user string, days int, logger *zap.Logger) {
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	extended := services.Bus.Subscribe(models.TopicAccessExtended, 1)

	_, expected, err := services.Platform.RequestAccess(ctx, user, days)
	if err != nil {
		logger.Fatal("Failed to request access", zap.Error(err))
	}

	common.PrintHeader("ACCESS REQUESTED", common.DefaultWidth)
	fmt.Printf("User       : %s\n", user)
	fmt.Printf("Days       : %d\n", days)
	fmt.Printf("Amount due : %s %s\n", expected.String(), cfg.Access.Currency)
	fmt.Printf("Pay to     : %s\n", cfg.Chain.SystemAddress)
	common.PrintSeparator("-", common.DefaultWidth)
	fmt.Println("Waiting for the payment to appear on chain (Ctrl+C to abort)...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	timeout := time.Duration(cfg.Watcher.MaxAttempts) * cfg.Watcher.PollInterval
	deadline := time.NewTimer(timeout + cfg.Watcher.PollInterval)
	defer deadline.Stop()

	for {
		select {
		case ev := <-extended:
			p := ev.Payload.(models.AccessExtended)
			common.PrintFooter(fmt.Sprintf("PAYMENT MATCHED: access active until %s",
				p.ExpiresAt.Format("2006-01-02 15:04:05")), common.DefaultWidth)
			return
		case <-deadline.C:
			common.PrintFooter("NO PAYMENT FOUND: access request expired", common.DefaultWidth)
			os.Exit(1)
		case <-sigChan:
			fmt.Println("\nAborted")
			os.Exit(1)
		}
	}
}

func main() {
	userFlag := flag.String("user", "", "User wallet address (required)")
	daysFlag := flag.Int("days", 0, "Days of access to request (omit to just show status)")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if *userFlag == "" {
		fmt.Println("Usage: access -user <address> [-days <n>]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx := context.Background()
	if *daysFlag <= 0 {
		showStatus(ctx, cfg, *userFlag, logger)
		return
	}
	requestDays(ctx, cfg, *userFlag, *daysFlag, logger)
}
