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
	"sort"
	"strings"

	"deposit-reconciler-go/internal/catalog"
	"deposit-reconciler-go/internal/common"
	"deposit-reconciler-go/internal/config"
	"deposit-reconciler-go/internal/models"

	"go.uber.org/zap"
)

func printPlan(plan models.PlanDefinition, isLast bool) {
	symbol := common.BoxPrefix(isLast)

	currencies := make([]string, 0, len(plan.Amounts))
	for c := range plan.Amounts {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	prices := make([]string, 0, len(currencies))
	for _, c := range currencies {
		prices = append(prices, fmt.Sprintf("%s %s", plan.Amounts[c].String(), c))
	}

	fmt.Printf("%s %-12s rank %d, %3d days, %s%% payout, price: %s\n",
		symbol,
		plan.Id,
		plan.Order,
		plan.DurationDays,
		plan.PayoutPercentage.String(),
		strings.Join(prices, " / "))
}

func printHistory(history []models.DepositRecord) {
	for i, rec := range history {
		isLast := i == len(history)-1
		tx := rec.MatchedTxHash
		if tx == "" {
			tx = "none"
		}
		fmt.Printf("%s %-12s %-10s %s %s (tx: %s, opened: %s)\n",
			common.BoxPrefix(isLast),
			rec.PlanId,
			rec.Status,
			rec.Amount.String(),
			rec.Currency,
			tx,
			rec.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Show deposit history for this wallet address (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	planCatalog, err := catalog.LoadPlanCatalog(cfg.Catalog.PlansFile)
	if err != nil {
		logger.Fatal("Failed to load plan catalog", zap.Error(err))
	}

	common.PrintHeader("INVESTMENT PLAN CATALOG", common.DefaultWidth)
	plans := planCatalog.Plans()
	for i, plan := range plans {
		printPlan(plan, i == len(plans)-1)
	}

	if *userFlag == "" {
		common.PrintFooter(fmt.Sprintf("%d plans available", len(plans)), common.DefaultWidth)
		return
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	history, err := dbService.ListByUser(ctx, *userFlag)
	if err != nil {
		logger.Fatal("Failed to load deposit history", zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("DEPOSIT HISTORY: %s", *userFlag), common.DefaultWidth)
	if len(history) == 0 {
		fmt.Println("No deposits on record")
	} else {
		printHistory(history)
	}
	common.PrintFooter(fmt.Sprintf("%d deposits on record", len(history)), common.DefaultWidth)
}
