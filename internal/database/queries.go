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

const (
	// Deposit queries. Transitions are single-statement updates guarded
	// by the current status so a race applies exactly one winner.
	queryInsertDeposit = `
		INSERT INTO deposits (id, user_address, plan_id, currency, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryFindDeposit = `
		SELECT id, user_address, plan_id, currency, amount, status,
		       created_at, activated_at, completed_at, cancelled_at, matched_tx_hash
		FROM deposits
		WHERE id = ?`

	queryListDepositsByUser = `
		SELECT id, user_address, plan_id, currency, amount, status,
		       created_at, activated_at, completed_at, cancelled_at, matched_tx_hash
		FROM deposits
		WHERE LOWER(user_address) = LOWER(?)
		ORDER BY created_at`

	queryListDepositsByStatus = `
		SELECT id, user_address, plan_id, currency, amount, status,
		       created_at, activated_at, completed_at, cancelled_at, matched_tx_hash
		FROM deposits
		WHERE status = ?
		ORDER BY created_at`

	queryActivateDeposit = `
		UPDATE deposits
		SET status = 'ACTIVE', activated_at = ?, matched_tx_hash = ?
		WHERE id = ? AND status = 'PENDING'`

	queryCancelDeposit = `
		UPDATE deposits
		SET status = 'CANCELLED', cancelled_at = ?
		WHERE id = ? AND status = 'PENDING'`

	queryCompleteDeposit = `
		UPDATE deposits
		SET status = 'COMPLETED', completed_at = ?
		WHERE id = ? AND status = 'ACTIVE'`

	// Access queries. One row per user address.
	queryGetAccess = `
		SELECT user_address, last_payment_at, expires_at, pending_days, pending_since, updated_at
		FROM access_records
		WHERE LOWER(user_address) = LOWER(?)`

	queryUpsertAccessPayment = `
		INSERT INTO access_records (user_address, last_payment_at, expires_at, pending_days, pending_since, updated_at)
		VALUES (?, ?, ?, 0, NULL, ?)
		ON CONFLICT(user_address) DO UPDATE SET
			last_payment_at = excluded.last_payment_at,
			expires_at = excluded.expires_at,
			pending_days = 0,
			pending_since = NULL,
			updated_at = excluded.updated_at`

	queryUpsertAccessIntent = `
		INSERT INTO access_records (user_address, pending_days, pending_since, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_address) DO UPDATE SET
			pending_days = excluded.pending_days,
			pending_since = excluded.pending_since,
			updated_at = excluded.updated_at`

	queryClearAccessIntent = `
		UPDATE access_records
		SET pending_days = 0, pending_since = NULL, updated_at = ?
		WHERE LOWER(user_address) = LOWER(?)`

	queryListAccessIntents = `
		SELECT user_address, pending_days, pending_since
		FROM access_records
		WHERE pending_since IS NOT NULL
		ORDER BY pending_since`

	queryInsertAccessPaymentLog = `
		INSERT INTO access_payments (id, user_address, tx_hash, days_paid, paid_at)
		VALUES (?, ?, ?, ?, ?)`
)
