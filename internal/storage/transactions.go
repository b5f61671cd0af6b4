package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ledger/internal/core"
)

const transactionColumns = `id, dt, kind, amount_cents, category, description, status, method,
	account_id, card_id, statement_month, installments_total, installment_no, recurrence_id`

const insertTransactionSQL = `
	INSERT INTO transactions (dt, kind, amount_cents, category, description, status, method,
		account_id, card_id, statement_month, installments_total, installment_no, recurrence_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                      core.Transaction
		dt, kind               string
		status, method         string
		account, card          sql.NullInt64
		statement              sql.NullString
		instTotal, instNo, rec sql.NullInt64
	)
	err := row.Scan(&t.ID, &dt, &kind, &t.Amount.Cents, &t.Category, &t.Description, &status, &method,
		&account, &card, &statement, &instTotal, &instNo, &rec)
	if err != nil {
		return t, err
	}
	if t.Date, err = parseDate(dt); err != nil {
		return t, err
	}
	if statement.Valid && statement.String != "" {
		if t.StatementMonth, err = core.ParseYearMonth(statement.String); err != nil {
			return t, err
		}
	}
	t.Kind = core.Kind(kind)
	t.Status = core.Status(status)
	t.Method = core.Method(method)
	t.AccountID = account.Int64
	t.CardID = card.Int64
	t.InstallmentsTotal = int(instTotal.Int64)
	t.InstallmentNo = int(instNo.Int64)
	t.RecurrenceID = rec.Int64
	return t, nil
}

func transactionArgs(t core.Transaction) []any {
	var instTotal, instNo any
	if t.InstallmentsTotal != 0 {
		instTotal, instNo = t.InstallmentsTotal, t.InstallmentNo
	}
	return []any{
		t.Date.String(), string(t.Kind), t.Amount.Cents, t.Category, t.Description,
		string(t.Status), string(t.Method), nullInt(t.AccountID), nullInt(t.CardID),
		nullMonth(t.StatementMonth), instTotal, instNo, nullInt(t.RecurrenceID),
	}
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()
	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions ORDER BY dt, id`)
}

func (r *SQLiteRepository) ListTransactionsBetween(ctx context.Context, from, to core.Date) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE dt >= ? AND dt <= ? ORDER BY dt, id`,
		from.String(), to.String())
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return t, err
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	id, err := r.insert(ctx, insertTransactionSQL, transactionArgs(t)...)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", id,
		"date", t.Date.String(),
		"method", t.Method,
		"amount", t.Amount.String())
	return id, nil
}

// InsertTransactions writes every row inside one database transaction.
func (r *SQLiteRepository) InsertTransactions(ctx context.Context, ts []core.Transaction) ([]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertTransactionSQL)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(ts))
	for _, t := range ts {
		res, err := stmt.ExecContext(ctx, transactionArgs(t)...)
		if err != nil {
			return nil, fmt.Errorf("insert transaction: %w", mapError(err, false))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (r *SQLiteRepository) DeleteTransactions(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.exec(ctx, true, `DELETE FROM transactions WHERE id IN (`+placeholders(len(ids))+`)`, idArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *SQLiteRepository) UpdateTransactionStatus(ctx context.Context, ids []int64, status core.Status) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{string(status)}, idArgs(ids)...)
	res, err := r.exec(ctx, false, `UPDATE transactions SET status = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("update transaction status: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
