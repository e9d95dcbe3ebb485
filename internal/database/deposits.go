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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) Create(ctx context.Context, params store.CreateDepositParams) (*models.DepositRecord, error) {
	if params.UserAddress == "" {
		return nil, fmt.Errorf("user address cannot be empty")
	}
	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("deposit amount must be positive, got %s", params.Amount)
	}

	record := &models.DepositRecord{
		Id:          uuid.New().String(),
		UserAddress: params.UserAddress,
		PlanId:      params.PlanId,
		Currency:    params.Currency,
		Amount:      params.Amount,
		Status:      models.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, queryInsertDeposit,
		record.Id, record.UserAddress, record.PlanId, record.Currency,
		record.Amount.String(), string(record.Status), record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("unable to insert deposit: %w", err)
	}

	zap.L().Info("Deposit created",
		zap.String("deposit_id", record.Id),
		zap.String("user_address", record.UserAddress),
		zap.String("plan_id", record.PlanId),
		zap.String("amount", record.Amount.String()),
		zap.String("currency", record.Currency))

	return record, nil
}

func (s *Service) Find(ctx context.Context, id string) (*models.DepositRecord, error) {
	row := s.db.QueryRowContext(ctx, queryFindDeposit, id)
	record, err := scanDeposit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: deposit %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load deposit %s: %w", id, err)
	}
	return record, nil
}

func (s *Service) ListByUser(ctx context.Context, userAddress string) ([]models.DepositRecord, error) {
	return s.listDeposits(ctx, queryListDepositsByUser, userAddress)
}

func (s *Service) ListByStatus(ctx context.Context, status models.DepositStatus) ([]models.DepositRecord, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown deposit status %q", status)
	}
	return s.listDeposits(ctx, queryListDepositsByStatus, string(status))
}

func (s *Service) listDeposits(ctx context.Context, query string, arg any) ([]models.DepositRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("unable to list deposits: %w", err)
	}
	defer rows.Close()

	var records []models.DepositRecord
	for rows.Next() {
		record, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan deposit: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// Activate moves a deposit PENDING -> ACTIVE. The guarded UPDATE applies
// at most once; when zero rows change, the follow-up read distinguishes
// a missing record from an illegal transition so the caller gets a
// truthful error rather than silence.
func (s *Service) Activate(ctx context.Context, id, txHash string) error {
	if txHash == "" {
		return fmt.Errorf("tx hash cannot be empty")
	}

	res, err := s.db.ExecContext(ctx, queryActivateDeposit, time.Now().UTC(), txHash, id)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: tx %s", store.ErrDuplicateMatch, txHash)
		}
		return fmt.Errorf("unable to activate deposit %s: %w", id, err)
	}
	if err := s.requireTransition(ctx, res, id, models.StatusActive); err != nil {
		return err
	}

	zap.L().Info("Deposit activated",
		zap.String("deposit_id", id),
		zap.String("tx_hash", txHash))
	return nil
}

func (s *Service) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, queryCancelDeposit, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("unable to cancel deposit %s: %w", id, err)
	}
	if err := s.requireTransition(ctx, res, id, models.StatusCancelled); err != nil {
		return err
	}

	zap.L().Info("Deposit cancelled", zap.String("deposit_id", id))
	return nil
}

func (s *Service) Complete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, queryCompleteDeposit, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("unable to complete deposit %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to read rows affected: %w", err)
	}
	if affected > 0 {
		zap.L().Info("Deposit completed", zap.String("deposit_id", id))
		return nil
	}

	record, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	// Re-completing is a no-op so the sweep stays idempotent.
	if record.Status == models.StatusCompleted {
		return nil
	}
	return fmt.Errorf("%w: deposit %s is %s, cannot complete", store.ErrInvalidTransition, id, record.Status)
}

func (s *Service) requireTransition(ctx context.Context, res sql.Result, id string, target models.DepositStatus) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to read rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	record, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: deposit %s is %s, cannot move to %s",
		store.ErrInvalidTransition, id, record.Status, target)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDeposit(row scanner) (*models.DepositRecord, error) {
	var (
		record      models.DepositRecord
		rawAmount   string
		rawStatus   string
		activatedAt sql.NullTime
		completedAt sql.NullTime
		cancelledAt sql.NullTime
		txHash      sql.NullString
	)

	err := row.Scan(&record.Id, &record.UserAddress, &record.PlanId, &record.Currency,
		&rawAmount, &rawStatus, &record.CreatedAt,
		&activatedAt, &completedAt, &cancelledAt, &txHash)
	if err != nil {
		return nil, err
	}

	record.Amount, err = decimal.NewFromString(rawAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q for deposit %s: %w", rawAmount, record.Id, err)
	}
	record.Status = models.DepositStatus(rawStatus)
	if !record.Status.Valid() {
		return nil, fmt.Errorf("corrupt status %q for deposit %s", rawStatus, record.Id)
	}
	if activatedAt.Valid {
		t := activatedAt.Time.UTC()
		record.ActivatedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		record.CompletedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		record.CancelledAt = &t
	}
	record.MatchedTxHash = txHash.String
	record.CreatedAt = record.CreatedAt.UTC()

	return &record, nil
}
