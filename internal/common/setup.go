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

package common

import (
	"context"
	"log"
	"strings"

	"deposit-reconciler-go/internal/api"
	"deposit-reconciler-go/internal/catalog"
	"deposit-reconciler-go/internal/chain"
	"deposit-reconciler-go/internal/database"
	"deposit-reconciler-go/internal/events"
	"deposit-reconciler-go/internal/expiry"
	"deposit-reconciler-go/internal/matcher"
	"deposit-reconciler-go/internal/models"
	"deposit-reconciler-go/internal/sequencing"
	"deposit-reconciler-go/internal/watch"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *database.Service
	Catalog   *catalog.PlanCatalog
	Registry  *catalog.TokenRegistry
	Bus       *events.Bus
	Scheduler *watch.Scheduler
	Monitor   *expiry.Monitor
	Platform  *api.PlatformService
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the full reconciliation stack: database,
// catalogs, explorer client, scheduler, expiry monitor, and the
// platform service on top.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Loading plan catalog", zap.String("file", cfg.Catalog.PlansFile))
	planCatalog, err := catalog.LoadPlanCatalog(cfg.Catalog.PlansFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	zap.L().Info("Loading token registry", zap.String("file", cfg.Catalog.TokensFile))
	registry, err := catalog.LoadTokenRegistry(cfg.Catalog.TokensFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	source, err := chain.NewClient(chain.ClientConfig{
		BaseURL: cfg.Chain.ApiUrl,
		APIKeys: cfg.Chain.ApiKeys,
		Timeout: cfg.Chain.RequestTimeout,
	})
	if err != nil {
		dbService.Close()
		return nil, err
	}

	bus := events.NewBus()
	scheduler := watch.NewScheduler(watch.SchedulerConfig{
		Deposits:          dbService,
		Access:            dbService,
		Source:            source,
		Matcher:           matcher.New(registry, cfg.Chain.SystemAddress, cfg.Watcher.TolerancePct),
		Registry:          registry,
		Bus:               bus,
		PollInterval:      cfg.Watcher.PollInterval,
		MaxAttempts:       cfg.Watcher.MaxAttempts,
		AccessCurrency:    cfg.Access.Currency,
		AccessDailyAmount: cfg.Access.DailyAmount,
	})

	platform := api.NewPlatformService(api.PlatformServiceConfig{
		Catalog:           planCatalog,
		Validator:         sequencing.NewValidator(planCatalog),
		Deposits:          dbService,
		Access:            dbService,
		Scheduler:         scheduler,
		AccessCurrency:    cfg.Access.Currency,
		AccessDailyAmount: cfg.Access.DailyAmount,
	})

	return &Services{
		DbService: dbService,
		Catalog:   planCatalog,
		Registry:  registry,
		Bus:       bus,
		Scheduler: scheduler,
		Monitor:   expiry.NewMonitor(dbService, planCatalog, bus),
		Platform:  platform,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like querying deposit history.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.Monitor != nil {
		cs.Monitor.Stop()
	}
	if cs.Scheduler != nil {
		cs.Scheduler.Stop()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
