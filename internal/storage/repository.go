package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ledger/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the SQLite-backed ledger.Store.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// Foreign keys are a per-connection setting in SQLite.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// mapError translates constraint failures into core errors. deleting tells
// a foreign key failure on delete (row still referenced) apart from one on
// insert (referenced row missing).
func mapError(err error, deleting bool) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ux_transactions_recurrence_month"):
		return fmt.Errorf("%w: %v", core.ErrDuplicateRecurrence, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		if deleting {
			return fmt.Errorf("%w: %v", core.ErrReferenced, err)
		}
		return fmt.Errorf("referenced row: %w", core.ErrNotFound)
	case strings.Contains(msg, "CHECK constraint failed"):
		return core.Invalid("constraint", err)
	}
	return err
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullMonth(ym core.YearMonth) any {
	if ym.IsZero() {
		return nil
	}
	return ym.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}

func parseDate(s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("stored date %q: %w", s, err)
	}
	return d, nil
}

func (r *SQLiteRepository) exec(ctx context.Context, deleting bool, query string, args ...any) (sql.Result, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	return res, mapError(err, deleting)
}

func (r *SQLiteRepository) insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.exec(ctx, false, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func mustAffect(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
	}
	return nil
}

// Accounts

const accountColumns = `id, name, type, initial_balance_cents`

func scanAccount(row scanner) (core.Account, error) {
	var a core.Account
	var typ string
	if err := row.Scan(&a.ID, &a.Name, &typ, &a.InitialBalance.Cents); err != nil {
		return a, err
	}
	a.Type = core.AccountType(typ)
	return a, nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	out := []core.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return a, err
}

func (r *SQLiteRepository) InsertAccount(ctx context.Context, a core.Account) (int64, error) {
	id, err := r.insert(ctx, `INSERT INTO accounts (name, type, initial_balance_cents) VALUES (?, ?, ?)`,
		a.Name, string(a.Type), a.InitialBalance.Cents)
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	slog.DebugContext(ctx, "Account saved to SQLite", "id", id, "name", a.Name)
	return id, nil
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a core.Account) error {
	res, err := r.exec(ctx, false, `UPDATE accounts SET name = ?, type = ?, initial_balance_cents = ? WHERE id = ?`,
		a.Name, string(a.Type), a.InitialBalance.Cents, a.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return mustAffect(res, "account", a.ID)
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id int64) error {
	res, err := r.exec(ctx, true, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account %d: %w", id, err)
	}
	return mustAffect(res, "account", id)
}

// Cards

const cardColumns = `id, name, closing_day, due_day, pay_account_id, last4`

func scanCard(row scanner) (core.Card, error) {
	var c core.Card
	err := row.Scan(&c.ID, &c.Name, &c.ClosingDay, &c.DueDay, &c.PayAccountID, &c.Last4)
	return c, err
}

func (r *SQLiteRepository) ListCards(ctx context.Context) ([]core.Card, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()
	out := []core.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCard(ctx context.Context, id int64) (core.Card, error) {
	c, err := scanCard(r.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("card %d: %w", id, core.ErrNotFound)
	}
	return c, err
}

func (r *SQLiteRepository) InsertCard(ctx context.Context, c core.Card) (int64, error) {
	id, err := r.insert(ctx, `INSERT INTO cards (name, closing_day, due_day, pay_account_id, last4) VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.ClosingDay, c.DueDay, c.PayAccountID, c.Last4)
	if err != nil {
		return 0, fmt.Errorf("insert card: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) DeleteCard(ctx context.Context, id int64) error {
	res, err := r.exec(ctx, true, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete card %d: %w", id, err)
	}
	return mustAffect(res, "card", id)
}

// Recurrences

const recurrenceColumns = `id, name, kind, amount_cents, category, description, method, account_id, card_id, day_of_month, active`

func scanRecurrence(row scanner) (core.Recurrence, error) {
	var (
		rc            core.Recurrence
		kind, method  string
		account, card sql.NullInt64
		active        int
	)
	err := row.Scan(&rc.ID, &rc.Name, &kind, &rc.Amount.Cents, &rc.Category, &rc.Description,
		&method, &account, &card, &rc.DayOfMonth, &active)
	if err != nil {
		return rc, err
	}
	rc.Kind = core.Kind(kind)
	rc.Method = core.Method(method)
	rc.AccountID = account.Int64
	rc.CardID = card.Int64
	rc.Active = active == 1
	return rc, nil
}

func (r *SQLiteRepository) ListRecurrences(ctx context.Context) ([]core.Recurrence, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recurrenceColumns+` FROM recurrences ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list recurrences: %w", err)
	}
	defer rows.Close()
	out := []core.Recurrence{}
	for rows.Next() {
		rc, err := scanRecurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurrence: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetRecurrence(ctx context.Context, id int64) (core.Recurrence, error) {
	rc, err := scanRecurrence(r.db.QueryRowContext(ctx, `SELECT `+recurrenceColumns+` FROM recurrences WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rc, fmt.Errorf("recurrence %d: %w", id, core.ErrNotFound)
	}
	return rc, err
}

func (r *SQLiteRepository) InsertRecurrence(ctx context.Context, rc core.Recurrence) (int64, error) {
	id, err := r.insert(ctx, `
		INSERT INTO recurrences (name, kind, amount_cents, category, description, method, account_id, card_id, day_of_month, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rc.Name, string(rc.Kind), rc.Amount.Cents, rc.Category, rc.Description, string(rc.Method),
		nullInt(rc.AccountID), nullInt(rc.CardID), rc.DayOfMonth, boolInt(rc.Active))
	if err != nil {
		return 0, fmt.Errorf("insert recurrence: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) SetRecurrenceActive(ctx context.Context, id int64, active bool) error {
	res, err := r.exec(ctx, false, `UPDATE recurrences SET active = ? WHERE id = ?`, boolInt(active), id)
	if err != nil {
		return fmt.Errorf("update recurrence %d: %w", id, err)
	}
	return mustAffect(res, "recurrence", id)
}

// Transfers

func scanTransfer(row scanner) (core.Transfer, error) {
	var (
		t      core.Transfer
		dt     string
		status string
	)
	if err := row.Scan(&t.ID, &dt, &t.Amount.Cents, &t.FromAccountID, &t.ToAccountID, &t.Description, &status); err != nil {
		return t, err
	}
	d, err := parseDate(dt)
	if err != nil {
		return t, err
	}
	t.Date = d
	t.Status = core.Status(status)
	return t, nil
}

func (r *SQLiteRepository) ListTransfers(ctx context.Context) ([]core.Transfer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, dt, amount_cents, from_account_id, to_account_id, description, status
		FROM transfers ORDER BY dt, id`)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()
	out := []core.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertTransfer(ctx context.Context, t core.Transfer) (int64, error) {
	id, err := r.insert(ctx, `
		INSERT INTO transfers (dt, amount_cents, from_account_id, to_account_id, description, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Date.String(), t.Amount.Cents, t.FromAccountID, t.ToAccountID, t.Description, string(t.Status))
	if err != nil {
		return 0, fmt.Errorf("insert transfer: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) DeleteTransfer(ctx context.Context, id int64) error {
	res, err := r.exec(ctx, true, `DELETE FROM transfers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transfer %d: %w", id, err)
	}
	return mustAffect(res, "transfer", id)
}

// Goals

const goalColumns = `id, name, target_cents, start_date, end_date, start_amount_cents, active`

func scanGoal(row scanner) (core.Goal, error) {
	var (
		g          core.Goal
		start, end string
		active     int
	)
	if err := row.Scan(&g.ID, &g.Name, &g.TargetAmount.Cents, &start, &end, &g.StartAmount.Cents, &active); err != nil {
		return g, err
	}
	var err error
	if g.StartDate, err = parseDate(start); err != nil {
		return g, err
	}
	if g.EndDate, err = parseDate(end); err != nil {
		return g, err
	}
	g.Active = active == 1
	return g, nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+goalColumns+` FROM goals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()
	out := []core.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ActiveGoal(ctx context.Context) (core.Goal, error) {
	g, err := scanGoal(r.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE active = 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return g, fmt.Errorf("active goal: %w", core.ErrNotFound)
	}
	return g, err
}

func (r *SQLiteRepository) SetActiveGoal(ctx context.Context, g core.Goal) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE goals SET active = 0 WHERE active = 1`); err != nil {
		return 0, fmt.Errorf("deactivate goals: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO goals (name, target_cents, start_date, end_date, start_amount_cents, active)
		VALUES (?, ?, ?, ?, ?, 1)`,
		g.Name, g.TargetAmount.Cents, g.StartDate.String(), g.EndDate.String(), g.StartAmount.Cents)
	if err != nil {
		return 0, fmt.Errorf("insert goal: %w", mapError(err, false))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// Category rules

func (r *SQLiteRepository) ListCategoryRules(ctx context.Context) ([]core.CategoryRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category, class FROM category_rules ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list category rules: %w", err)
	}
	defer rows.Close()
	out := []core.CategoryRule{}
	for rows.Next() {
		var cr core.CategoryRule
		var class string
		if err := rows.Scan(&cr.Category, &class); err != nil {
			return nil, fmt.Errorf("scan category rule: %w", err)
		}
		cr.Class = core.CategoryClass(class)
		out = append(out, cr)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpsertCategoryRule(ctx context.Context, cr core.CategoryRule) error {
	_, err := r.exec(ctx, false, `
		INSERT INTO category_rules (category, class) VALUES (?, ?)
		ON CONFLICT(category) DO UPDATE SET class = excluded.class`,
		core.NormalizeCategory(cr.Category), string(cr.Class))
	if err != nil {
		return fmt.Errorf("upsert category rule: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteCategoryRule(ctx context.Context, category string) error {
	key := core.NormalizeCategory(category)
	res, err := r.exec(ctx, true, `DELETE FROM category_rules WHERE category = ?`, key)
	if err != nil {
		return fmt.Errorf("delete category rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("category rule %q: %w", key, core.ErrNotFound)
	}
	return nil
}
