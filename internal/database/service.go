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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"deposit-reconciler-go/internal/models"
	"deposit-reconciler-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time checks: *Service must satisfy both store contracts.
var (
	_ store.DepositStore = (*Service)(nil)
	_ store.AccessStore  = (*Service)(nil)
)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema() error {
	// Amounts are stored as TEXT and parsed with decimal so no value
	// ever passes through binary floating point.
	schema := `
	CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		user_address TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING', 'ACTIVE', 'COMPLETED', 'CANCELLED')),
		created_at TIMESTAMP NOT NULL,
		activated_at TIMESTAMP,
		completed_at TIMESTAMP,
		cancelled_at TIMESTAMP,
		matched_tx_hash TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_deposits_user ON deposits(user_address);
	CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits(status);
	CREATE INDEX IF NOT EXISTS idx_deposits_created_at ON deposits(created_at);
	-- One on-chain transaction can pay for at most one deposit.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_deposits_matched_tx
		ON deposits(matched_tx_hash) WHERE matched_tx_hash IS NOT NULL;

	CREATE TABLE IF NOT EXISTS access_records (
		user_address TEXT PRIMARY KEY,
		last_payment_at TIMESTAMP,
		expires_at TIMESTAMP,
		pending_days INTEGER NOT NULL DEFAULT 0,
		pending_since TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	);

	-- Append-only log of matched subscription payments.
	CREATE TABLE IF NOT EXISTS access_payments (
		id TEXT PRIMARY KEY,
		user_address TEXT NOT NULL,
		tx_hash TEXT NOT NULL UNIQUE,
		days_paid INTEGER NOT NULL,
		paid_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_access_payments_user ON access_payments(user_address);
	`

	_, err := s.db.Exec(schema)
	return err
}
