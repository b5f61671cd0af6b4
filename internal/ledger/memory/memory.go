package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"ledger/internal/core"
)

// Store is an in-process ledger.Store. It enforces the same referential and
// uniqueness rules as the SQL stores.
type Store struct {
	mu           sync.Mutex
	nextID       int64
	accounts     map[int64]core.Account
	cards        map[int64]core.Card
	transactions map[int64]core.Transaction
	recurrences  map[int64]core.Recurrence
	transfers    map[int64]core.Transfer
	goals        map[int64]core.Goal
	rules        map[string]core.CategoryRule
}

func New() *Store {
	return &Store{
		accounts:     map[int64]core.Account{},
		cards:        map[int64]core.Card{},
		transactions: map[int64]core.Transaction{},
		recurrences:  map[int64]core.Recurrence{},
		transfers:    map[int64]core.Transfer{},
		goals:        map[int64]core.Goal{},
		rules:        map[string]core.CategoryRule{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func sortedValues[K comparable, V any](m map[K]V, less func(a, b V) int) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, less)
	return out
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
}

// Accounts

func (s *Store) ListAccounts(context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.accounts, func(a, b core.Account) int { return cmp.Compare(a.ID, b.ID) }), nil
}

func (s *Store) GetAccount(_ context.Context, id int64) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, notFound("account", id)
	}
	return a, nil
}

func (s *Store) InsertAccount(_ context.Context, a core.Account) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id()
	s.accounts[a.ID] = a
	return a.ID, nil
}

func (s *Store) UpdateAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return notFound("account", a.ID)
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return notFound("account", id)
	}
	if s.accountReferenced(id) {
		return fmt.Errorf("account %d: %w", id, core.ErrReferenced)
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) accountReferenced(id int64) bool {
	for _, c := range s.cards {
		if c.PayAccountID == id {
			return true
		}
	}
	for _, t := range s.transactions {
		if t.AccountID == id {
			return true
		}
	}
	for _, r := range s.recurrences {
		if r.AccountID == id {
			return true
		}
	}
	for _, tr := range s.transfers {
		if tr.FromAccountID == id || tr.ToAccountID == id {
			return true
		}
	}
	return false
}

// Cards

func (s *Store) ListCards(context.Context) ([]core.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.cards, func(a, b core.Card) int { return cmp.Compare(a.ID, b.ID) }), nil
}

func (s *Store) GetCard(_ context.Context, id int64) (core.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return core.Card{}, notFound("card", id)
	}
	return c, nil
}

func (s *Store) InsertCard(_ context.Context, c core.Card) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[c.PayAccountID]; !ok {
		return 0, notFound("account", c.PayAccountID)
	}
	c.ID = s.id()
	s.cards[c.ID] = c
	return c.ID, nil
}

func (s *Store) DeleteCard(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return notFound("card", id)
	}
	for _, t := range s.transactions {
		if t.CardID == id {
			return fmt.Errorf("card %d: %w", id, core.ErrReferenced)
		}
	}
	for _, r := range s.recurrences {
		if r.CardID == id {
			return fmt.Errorf("card %d: %w", id, core.ErrReferenced)
		}
	}
	delete(s.cards, id)
	return nil
}

// Transactions

func byDateID(a, b core.Transaction) int {
	if c := a.Date.Compare(b.Date.Time); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (s *Store) ListTransactions(context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.transactions, byDateID), nil
}

func (s *Store) ListTransactionsBetween(_ context.Context, from, to core.Date) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.Date.Before(from.Time) || t.Date.After(to.Time) {
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, byDateID)
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, notFound("transaction", id)
	}
	return t, nil
}

func (s *Store) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	ids, err := s.InsertTransactions(ctx, []core.Transaction{t})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (s *Store) InsertTransactions(_ context.Context, ts []core.Transaction) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		recurrence int64
		month      core.YearMonth
	}
	taken := map[key]bool{}
	for _, t := range s.transactions {
		if t.RecurrenceID != 0 {
			taken[key{t.RecurrenceID, t.Date.YearMonth()}] = true
		}
	}
	for _, t := range ts {
		if err := s.checkRefs(t); err != nil {
			return nil, err
		}
		if t.RecurrenceID == 0 {
			continue
		}
		k := key{t.RecurrenceID, t.Date.YearMonth()}
		if taken[k] {
			return nil, fmt.Errorf("recurrence %d in %s: %w", t.RecurrenceID, k.month, core.ErrDuplicateRecurrence)
		}
		taken[k] = true
	}

	ids := make([]int64, 0, len(ts))
	for _, t := range ts {
		t.ID = s.id()
		s.transactions[t.ID] = t
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (s *Store) checkRefs(t core.Transaction) error {
	if t.AccountID != 0 {
		if _, ok := s.accounts[t.AccountID]; !ok {
			return notFound("account", t.AccountID)
		}
	}
	if t.CardID != 0 {
		if _, ok := s.cards[t.CardID]; !ok {
			return notFound("card", t.CardID)
		}
	}
	if t.RecurrenceID != 0 {
		if _, ok := s.recurrences[t.RecurrenceID]; !ok {
			return notFound("recurrence", t.RecurrenceID)
		}
	}
	return nil
}

func (s *Store) DeleteTransactions(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.transactions[id]; ok {
			delete(s.transactions, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateTransactionStatus(_ context.Context, ids []int64, status core.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if t, ok := s.transactions[id]; ok {
			t.Status = status
			s.transactions[id] = t
			n++
		}
	}
	return n, nil
}

// Recurrences

func (s *Store) ListRecurrences(context.Context) ([]core.Recurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.recurrences, func(a, b core.Recurrence) int { return cmp.Compare(a.ID, b.ID) }), nil
}

func (s *Store) GetRecurrence(_ context.Context, id int64) (core.Recurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recurrences[id]
	if !ok {
		return core.Recurrence{}, notFound("recurrence", id)
	}
	return r, nil
}

func (s *Store) InsertRecurrence(_ context.Context, r core.Recurrence) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.AccountID != 0 {
		if _, ok := s.accounts[r.AccountID]; !ok {
			return 0, notFound("account", r.AccountID)
		}
	}
	if r.CardID != 0 {
		if _, ok := s.cards[r.CardID]; !ok {
			return 0, notFound("card", r.CardID)
		}
	}
	r.ID = s.id()
	s.recurrences[r.ID] = r
	return r.ID, nil
}

func (s *Store) SetRecurrenceActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recurrences[id]
	if !ok {
		return notFound("recurrence", id)
	}
	r.Active = active
	s.recurrences[id] = r
	return nil
}

// Transfers

func (s *Store) ListTransfers(context.Context) ([]core.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.transfers, func(a, b core.Transfer) int {
		if c := a.Date.Compare(b.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}), nil
}

func (s *Store) InsertTransfer(_ context.Context, t core.Transfer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []int64{t.FromAccountID, t.ToAccountID} {
		if _, ok := s.accounts[id]; !ok {
			return 0, notFound("account", id)
		}
	}
	t.ID = s.id()
	s.transfers[t.ID] = t
	return t.ID, nil
}

func (s *Store) DeleteTransfer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[id]; !ok {
		return notFound("transfer", id)
	}
	delete(s.transfers, id)
	return nil
}

// Goals

func (s *Store) ListGoals(context.Context) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.goals, func(a, b core.Goal) int { return cmp.Compare(a.ID, b.ID) }), nil
}

func (s *Store) ActiveGoal(context.Context) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.goals {
		if g.Active {
			return g, nil
		}
	}
	return core.Goal{}, fmt.Errorf("active goal: %w", core.ErrNotFound)
}

func (s *Store) SetActiveGoal(_ context.Context, g core.Goal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, old := range s.goals {
		old.Active = false
		s.goals[id] = old
	}
	g.ID = s.id()
	g.Active = true
	s.goals[g.ID] = g
	return g.ID, nil
}

// Category rules

func (s *Store) ListCategoryRules(context.Context) ([]core.CategoryRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.rules, func(a, b core.CategoryRule) int { return cmp.Compare(a.Category, b.Category) }), nil
}

func (s *Store) UpsertCategoryRule(_ context.Context, r core.CategoryRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Category = core.NormalizeCategory(r.Category)
	s.rules[r.Category] = r
	return nil
}

func (s *Store) DeleteCategoryRule(_ context.Context, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := core.NormalizeCategory(category)
	if _, ok := s.rules[key]; !ok {
		return fmt.Errorf("category rule %q: %w", key, core.ErrNotFound)
	}
	delete(s.rules, key)
	return nil
}
