// Package postgres is the PostgreSQL ledger.Store built on gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledger/internal/core"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PostgreSQL error codes.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

var schemaIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_recurrence_month
		ON transactions (recurrence_id, substr(dt, 1, 7)) WHERE recurrence_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_goals_single_active ON goals (active) WHERE active`,
}

func (s *Store) migrate() error {
	// Parents first so foreign keys can be created.
	models := []any{
		&accountRow{}, &cardRow{}, &recurrenceRow{}, &transactionRow{},
		&transferRow{}, &goalRow{}, &categoryRuleRow{},
	}
	for _, m := range models {
		if err := s.db.AutoMigrate(m); err != nil {
			return fmt.Errorf("auto migrate %T: %w", m, err)
		}
	}
	for _, stmt := range schemaIndexes {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	slog.Info("Ledger schema ready", "backend", "postgres")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func mapError(err error, deleting bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		if pgErr.ConstraintName == "ux_transactions_recurrence_month" {
			return fmt.Errorf("%w: %v", core.ErrDuplicateRecurrence, err)
		}
	case codeForeignKeyViolation:
		if deleting {
			return fmt.Errorf("%w: %v", core.ErrReferenced, err)
		}
		return fmt.Errorf("referenced row: %w", core.ErrNotFound)
	case codeCheckViolation:
		return core.Invalid(pgErr.ConstraintName, err)
	}
	return err
}

func (s *Store) with(ctx context.Context) *gorm.DB { return s.db.WithContext(ctx) }

func deleteByID(db *gorm.DB, model any, what string, id int64) error {
	res := db.Delete(model, id)
	if err := mapError(res.Error, true); err != nil {
		return fmt.Errorf("delete %s %d: %w", what, id, err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
	}
	return nil
}

// Accounts

func (s *Store) ListAccounts(ctx context.Context) ([]core.Account, error) {
	var rows []accountRow
	if err := s.with(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]core.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	var row accountRow
	if err := s.with(ctx).First(&row, id).Error; err != nil {
		return core.Account{}, fmt.Errorf("account %d: %w", id, mapError(err, false))
	}
	return row.toCore(), nil
}

func (s *Store) InsertAccount(ctx context.Context, a core.Account) (int64, error) {
	row := toAccountRow(a)
	row.ID = 0
	if err := s.with(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("insert account: %w", mapError(err, false))
	}
	return row.ID, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a core.Account) error {
	res := s.with(ctx).Model(&accountRow{ID: a.ID}).Updates(map[string]any{
		"name":                  a.Name,
		"type":                  string(a.Type),
		"initial_balance_cents": a.InitialBalance.Cents,
	})
	if err := mapError(res.Error, false); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("account %d: %w", a.ID, core.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	return deleteByID(s.with(ctx), &accountRow{}, "account", id)
}

// Cards

func (s *Store) ListCards(ctx context.Context) ([]core.Card, error) {
	var rows []cardRow
	if err := s.with(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	out := make([]core.Card, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) GetCard(ctx context.Context, id int64) (core.Card, error) {
	var row cardRow
	if err := s.with(ctx).First(&row, id).Error; err != nil {
		return core.Card{}, fmt.Errorf("card %d: %w", id, mapError(err, false))
	}
	return row.toCore(), nil
}

func (s *Store) InsertCard(ctx context.Context, c core.Card) (int64, error) {
	row := toCardRow(c)
	row.ID = 0
	if err := s.with(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("insert card: %w", mapError(err, false))
	}
	return row.ID, nil
}

func (s *Store) DeleteCard(ctx context.Context, id int64) error {
	return deleteByID(s.with(ctx), &cardRow{}, "card", id)
}

// Transactions

func transactionsFromRows(rows []transactionRow) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := r.toCore()
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", r.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	var rows []transactionRow
	if err := s.with(ctx).Order("dt, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return transactionsFromRows(rows)
}

func (s *Store) ListTransactionsBetween(ctx context.Context, from, to core.Date) ([]core.Transaction, error) {
	var rows []transactionRow
	err := s.with(ctx).
		Where("dt >= ? AND dt <= ?", from.String(), to.String()).
		Order("dt, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return transactionsFromRows(rows)
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	var row transactionRow
	if err := s.with(ctx).First(&row, id).Error; err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, mapError(err, false))
	}
	return row.toCore()
}

func (s *Store) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	ids, err := s.InsertTransactions(ctx, []core.Transaction{t})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (s *Store) InsertTransactions(ctx context.Context, ts []core.Transaction) ([]int64, error) {
	rows := make([]transactionRow, 0, len(ts))
	for _, t := range ts {
		row := toTransactionRow(t)
		row.ID = 0
		rows = append(rows, row)
	}
	err := s.with(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("insert transactions: %w", mapError(err, false))
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s *Store) DeleteTransactions(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.with(ctx).Where("id IN ?", ids).Delete(&transactionRow{})
	if err := mapError(res.Error, true); err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return int(res.RowsAffected), nil
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, ids []int64, status core.Status) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.with(ctx).Model(&transactionRow{}).Where("id IN ?", ids).Update("status", string(status))
	if err := mapError(res.Error, false); err != nil {
		return 0, fmt.Errorf("update transaction status: %w", err)
	}
	return int(res.RowsAffected), nil
}

// Recurrences

func (s *Store) ListRecurrences(ctx context.Context) ([]core.Recurrence, error) {
	var rows []recurrenceRow
	if err := s.with(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list recurrences: %w", err)
	}
	out := make([]core.Recurrence, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) GetRecurrence(ctx context.Context, id int64) (core.Recurrence, error) {
	var row recurrenceRow
	if err := s.with(ctx).First(&row, id).Error; err != nil {
		return core.Recurrence{}, fmt.Errorf("recurrence %d: %w", id, mapError(err, false))
	}
	return row.toCore(), nil
}

func (s *Store) InsertRecurrence(ctx context.Context, rc core.Recurrence) (int64, error) {
	row := toRecurrenceRow(rc)
	row.ID = 0
	if err := s.with(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("insert recurrence: %w", mapError(err, false))
	}
	return row.ID, nil
}

func (s *Store) SetRecurrenceActive(ctx context.Context, id int64, active bool) error {
	res := s.with(ctx).Model(&recurrenceRow{ID: id}).Update("active", active)
	if err := mapError(res.Error, false); err != nil {
		return fmt.Errorf("update recurrence %d: %w", id, err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("recurrence %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// Transfers

func (s *Store) ListTransfers(ctx context.Context) ([]core.Transfer, error) {
	var rows []transferRow
	if err := s.with(ctx).Order("dt, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	out := make([]core.Transfer, 0, len(rows))
	for _, r := range rows {
		t, err := r.toCore()
		if err != nil {
			return nil, fmt.Errorf("transfer %d: %w", r.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) InsertTransfer(ctx context.Context, t core.Transfer) (int64, error) {
	row := toTransferRow(t)
	row.ID = 0
	if err := s.with(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("insert transfer: %w", mapError(err, false))
	}
	return row.ID, nil
}

func (s *Store) DeleteTransfer(ctx context.Context, id int64) error {
	return deleteByID(s.with(ctx), &transferRow{}, "transfer", id)
}

// Goals

func (s *Store) ListGoals(ctx context.Context) ([]core.Goal, error) {
	var rows []goalRow
	if err := s.with(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	out := make([]core.Goal, 0, len(rows))
	for _, r := range rows {
		g, err := r.toCore()
		if err != nil {
			return nil, fmt.Errorf("goal %d: %w", r.ID, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Store) ActiveGoal(ctx context.Context) (core.Goal, error) {
	var row goalRow
	if err := s.with(ctx).Where("active").First(&row).Error; err != nil {
		return core.Goal{}, fmt.Errorf("active goal: %w", mapError(err, false))
	}
	return row.toCore()
}

func (s *Store) SetActiveGoal(ctx context.Context, g core.Goal) (int64, error) {
	row := toGoalRow(g)
	row.ID = 0
	row.Active = true
	err := s.with(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&goalRow{}).Where("active").Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return 0, fmt.Errorf("set active goal: %w", mapError(err, false))
	}
	return row.ID, nil
}

// Category rules

func (s *Store) ListCategoryRules(ctx context.Context) ([]core.CategoryRule, error) {
	var rows []categoryRuleRow
	if err := s.with(ctx).Order("category").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list category rules: %w", err)
	}
	out := make([]core.CategoryRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.CategoryRule{Category: r.Category, Class: core.CategoryClass(r.Class)})
	}
	return out, nil
}

func (s *Store) UpsertCategoryRule(ctx context.Context, r core.CategoryRule) error {
	row := categoryRuleRow{Category: core.NormalizeCategory(r.Category), Class: string(r.Class)}
	err := s.with(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"class"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert category rule: %w", mapError(err, false))
	}
	return nil
}

func (s *Store) DeleteCategoryRule(ctx context.Context, category string) error {
	key := core.NormalizeCategory(category)
	res := s.with(ctx).Where("category = ?", key).Delete(&categoryRuleRow{})
	if res.Error != nil {
		return fmt.Errorf("delete category rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("category rule %q: %w", key, core.ErrNotFound)
	}
	return nil
}
