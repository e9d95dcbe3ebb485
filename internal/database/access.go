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
	"errors"
	"fmt"
	"time"

	"deposit-reconciler-go/internal/models"
	"deposit-reconciler-go/internal/store"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

func (s *Service) Get(ctx context.Context, userAddress string) (*models.AccessRecord, error) {
	row := s.db.QueryRowContext(ctx, queryGetAccess, userAddress)
	record, err := scanAccess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: access record for %s", store.ErrNotFound, userAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load access record for %s: %w", userAddress, err)
	}
	return record, nil
}

func (s *Service) IsActive(ctx context.Context, userAddress string, now time.Time) (bool, error) {
	record, err := s.Get(ctx, userAddress)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.IsActive(now), nil
}

// RecordPayment extends the subscription by days from max(now, current
// expiry), so payments made before expiry stack instead of wasting paid
// time. The read-extend-write runs in one transaction.
func (s *Service) RecordPayment(ctx context.Context, userAddress, txHash string, days int, now time.Time) (*models.AccessRecord, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days paid must be positive, got %d", days)
	}
	if txHash == "" {
		return nil, fmt.Errorf("tx hash cannot be empty")
	}
	now = now.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer tx.Rollback()

	base := now
	current, err := scanAccess(tx.QueryRowContext(ctx, queryGetAccess, userAddress))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unable to load access record for %s: %w", userAddress, err)
	}
	if current != nil && current.ExpiresAt != nil && current.ExpiresAt.After(now) {
		base = current.ExpiresAt.UTC()
	}
	expiresAt := base.AddDate(0, 0, days)

	if _, err := tx.ExecContext(ctx, queryInsertAccessPaymentLog,
		uuid.New().String(), userAddress, txHash, days, now); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("%w: tx %s", store.ErrDuplicateMatch, txHash)
		}
		return nil, fmt.Errorf("unable to log access payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, queryUpsertAccessPayment, userAddress, now, expiresAt, now); err != nil {
		return nil, fmt.Errorf("unable to upsert access record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("unable to commit access payment: %w", err)
	}

	zap.L().Info("Access payment recorded",
		zap.String("user_address", userAddress),
		zap.String("tx_hash", txHash),
		zap.Int("days_paid", days),
		zap.Time("expires_at", expiresAt))

	return &models.AccessRecord{
		UserAddress:   userAddress,
		LastPaymentAt: &now,
		ExpiresAt:     &expiresAt,
		UpdatedAt:     now,
	}, nil
}

func (s *Service) SetPendingIntent(ctx context.Context, userAddress string, days int, since time.Time) error {
	if days <= 0 {
		return fmt.Errorf("days must be positive, got %d", days)
	}
	_, err := s.db.ExecContext(ctx, queryUpsertAccessIntent, userAddress, days, since.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("unable to record access intent for %s: %w", userAddress, err)
	}
	return nil
}

func (s *Service) ClearPendingIntent(ctx context.Context, userAddress string) error {
	_, err := s.db.ExecContext(ctx, queryClearAccessIntent, time.Now().UTC(), userAddress)
	if err != nil {
		return fmt.Errorf("unable to clear access intent for %s: %w", userAddress, err)
	}
	return nil
}

func (s *Service) ListPendingIntents(ctx context.Context) ([]models.AccessIntent, error) {
	rows, err := s.db.QueryContext(ctx, queryListAccessIntents)
	if err != nil {
		return nil, fmt.Errorf("unable to list access intents: %w", err)
	}
	defer rows.Close()

	var intents []models.AccessIntent
	for rows.Next() {
		var (
			intent models.AccessIntent
			since  sql.NullTime
		)
		if err := rows.Scan(&intent.UserAddress, &intent.Days, &since); err != nil {
			return nil, fmt.Errorf("unable to scan access intent: %w", err)
		}
		if since.Valid {
			intent.Since = since.Time.UTC()
		}
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}

func scanAccess(row scanner) (*models.AccessRecord, error) {
	var (
		record        models.AccessRecord
		lastPaymentAt sql.NullTime
		expiresAt     sql.NullTime
		pendingSince  sql.NullTime
	)
	err := row.Scan(&record.UserAddress, &lastPaymentAt, &expiresAt,
		&record.PendingDays, &pendingSince, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lastPaymentAt.Valid {
		t := lastPaymentAt.Time.UTC()
		record.LastPaymentAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		record.ExpiresAt = &t
	}
	if pendingSince.Valid {
		t := pendingSince.Time.UTC()
		record.PendingSince = &t
	}
	record.UpdatedAt = record.UpdatedAt.UTC()

	return &record, nil
}
