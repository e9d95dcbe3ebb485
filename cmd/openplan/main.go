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

	"deposit-reconciler-go/internal/common"
	"deposit-reconciler-go/internal/config"
	"deposit-reconciler-go/internal/models"

	"go.uber.org/zap"
)

func main() {
	userFlag := flag.String("user", "", "User wallet address (required)")
	planFlag := flag.String("plan", "", "Plan id to open (required)")
	currencyFlag := flag.String("currency", "USDT", "Payment currency symbol")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if *userFlag == "" || *planFlag == "" {
		fmt.Println("Usage: openplan -user <address> -plan <plan-id> [-currency USDT]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	// Subscribe before opening so the outcome cannot slip past us.
	activated := services.Bus.Subscribe(models.TopicDepositActivated, 1)
	timedOut := services.Bus.Subscribe(models.TopicDepositTimeout, 1)

	record, err := services.Platform.OpenPlan(ctx, *userFlag, *planFlag, *currencyFlag)
	if err != nil {
		logger.Fatal("Failed to open plan", zap.Error(err))
	}

	common.PrintHeader("DEPOSIT OPENED", common.DefaultWidth)
	fmt.Printf("Deposit ID : %s\n", record.Id)
	fmt.Printf("Plan       : %s\n", record.PlanId)
	fmt.Printf("Amount due : %s %s\n", record.Amount.String(), record.Currency)
	fmt.Printf("Pay to     : %s\n", cfg.Chain.SystemAddress)
	fmt.Printf("Window     : %d polls every %s\n", cfg.Watcher.MaxAttempts, cfg.Watcher.PollInterval)
	common.PrintSeparator("-", common.DefaultWidth)
	fmt.Println("Waiting for the payment to appear on chain (Ctrl+C to abort)...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev := <-activated:
			p := ev.Payload.(models.DepositActivated)
			if p.Id != record.Id {
				continue
			}
			common.PrintFooter(fmt.Sprintf("PAYMENT MATCHED: tx %s - deposit is now ACTIVE", p.TxHash), common.DefaultWidth)
			return
		case ev := <-timedOut:
			p := ev.Payload.(models.DepositTimeout)
			if p.Id != record.Id {
				continue
			}
			common.PrintFooter("NO PAYMENT FOUND: deposit was cancelled", common.DefaultWidth)
			os.Exit(1)
		case <-sigChan:
			fmt.Println("\nAborting: cancelling deposit...")
			if err := services.Platform.CancelDeposit(ctx, record.Id); err != nil {
				logger.Error("Failed to cancel deposit", zap.Error(err))
			}
			os.Exit(1)
		}
	}
}
