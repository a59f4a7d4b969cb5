// Package memory provides an in-memory store.Store used by tests and by
// STORE=memory local runs. One store-wide mutex serializes transactions,
// which gives the same isolation the engine gets from row locks in postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleops/transferd/internal/domain"
	"github.com/settleops/transferd/internal/store"
)

type Store struct {
	mu             sync.Mutex
	accounts       map[int64]domain.Account
	transfers      map[int64]domain.Transfer
	nextAccountID  int64
	nextTransferID int64
}

func New() *Store {
	return &Store{
		accounts:       make(map[int64]domain.Account),
		transfers:      make(map[int64]domain.Transfer),
		nextAccountID:  1,
		nextTransferID: 1,
	}
}

func (s *Store) CreateAccount(_ context.Context, name string, amount decimal.Decimal) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := domain.Account{
		ID:        s.nextAccountID,
		Name:      name,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	s.nextAccountID++
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) GetAccount(_ context.Context, id int64) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) UpdateAccount(_ context.Context, id int64, name string, amount decimal.Decimal) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, store.ErrNotFound
	}
	a.Name = name
	a.Amount = amount
	s.accounts[id] = a
	return a, nil
}

func (s *Store) DeleteAccount(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) ListAccounts(_ context.Context, page, pageSize int) (domain.Page[domain.Account], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return domain.Page[domain.Account]{
		Content: pageOf(all, page, pageSize),
		Total:   int64(len(all)),
	}, nil
}

func (s *Store) CreateTransfer(_ context.Context, senderID, receiverID int64, amount decimal.Decimal) (domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[senderID]; !ok {
		return domain.Transfer{}, store.ErrNotFound
	}
	if _, ok := s.accounts[receiverID]; !ok {
		return domain.Transfer{}, store.ErrNotFound
	}
	t := domain.Transfer{
		ID:                s.nextTransferID,
		SenderAccountID:   senderID,
		ReceiverAccountID: receiverID,
		Amount:            amount,
		Status:            domain.StatusPending,
		CreatedAt:         time.Now().UTC(),
	}
	s.nextTransferID++
	s.transfers[t.ID] = t
	return t, nil
}

func (s *Store) GetTransfer(_ context.Context, id int64) (domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return domain.Transfer{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) UpdateTransfer(_ context.Context, id int64, upd store.TransferUpdate) (domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return domain.Transfer{}, store.ErrNotFound
	}
	if t.Status != domain.StatusPending {
		return domain.Transfer{}, store.ErrInvalidState
	}
	if _, ok := s.accounts[upd.SenderAccountID]; !ok {
		return domain.Transfer{}, store.ErrNotFound
	}
	if _, ok := s.accounts[upd.ReceiverAccountID]; !ok {
		return domain.Transfer{}, store.ErrNotFound
	}
	t.SenderAccountID = upd.SenderAccountID
	t.ReceiverAccountID = upd.ReceiverAccountID
	t.Amount = upd.Amount
	s.transfers[id] = t
	return t, nil
}

func (s *Store) DeleteTransfer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return store.ErrNotFound
	}
	if t.Status != domain.StatusPending {
		return store.ErrInvalidState
	}
	delete(s.transfers, id)
	return nil
}

func (s *Store) ListTransfers(_ context.Context, page, pageSize int) (domain.Page[domain.Transfer], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.sortedTransfers()
	return domain.Page[domain.Transfer]{
		Content: pageOf(all, page, pageSize),
		Total:   int64(len(all)),
	}, nil
}

func (s *Store) ClaimPending(_ context.Context, processingID string, batchSize int, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed int64
	for _, t := range s.sortedTransfers() {
		if claimed == int64(batchSize) {
			break
		}
		if t.Status != domain.StatusPending {
			continue
		}
		pid := processingID
		start := now
		t.Status = domain.StatusProcessing
		t.ProcessingID = &pid
		t.ProcessingStart = &start
		s.transfers[t.ID] = t
		claimed++
	}
	return claimed, nil
}

func (s *Store) TransfersInBatch(_ context.Context, processingID string) ([]domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var batch []domain.Transfer
	for _, t := range s.sortedTransfers() {
		if t.Status == domain.StatusProcessing && t.ProcessingID != nil && *t.ProcessingID == processingID {
			batch = append(batch, t)
		}
	}
	return batch, nil
}

func (s *Store) ResetInFlight(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reset int64
	for id, t := range s.transfers {
		if t.Status == domain.StatusProcessing {
			t.Status = domain.StatusPending
			s.transfers[id] = t
			reset++
		}
	}
	return reset, nil
}

// InTx holds the store lock for the whole callback and snapshots both maps
// up front; an error restores the snapshot, so partial changes never become
// visible.
func (s *Store) InTx(_ context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make(map[int64]domain.Account, len(s.accounts))
	for id, a := range s.accounts {
		accounts[id] = a
	}
	transfers := make(map[int64]domain.Transfer, len(s.transfers))
	for id, t := range s.transfers {
		transfers[id] = t
	}

	if err := fn(&memTx{store: s}); err != nil {
		s.accounts = accounts
		s.transfers = transfers
		return err
	}
	return nil
}

// memTx mutates the live maps directly; InTx owns the lock and the rollback
// snapshot for the duration of the callback.
type memTx struct {
	store *Store
}

func (t *memTx) AccountBalanceForUpdate(_ context.Context, accountID int64) (decimal.Decimal, error) {
	a, ok := t.store.accounts[accountID]
	if !ok {
		return decimal.Zero, store.ErrNotFound
	}
	return a.Amount, nil
}

func (t *memTx) AdjustBalance(_ context.Context, accountID int64, delta decimal.Decimal) error {
	a, ok := t.store.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	a.Amount = a.Amount.Add(delta)
	t.store.accounts[accountID] = a
	return nil
}

func (t *memTx) FinalizeTransfer(_ context.Context, transferID int64, status domain.TransferStatus, end time.Time) error {
	tr, ok := t.store.transfers[transferID]
	if !ok {
		return store.ErrNotFound
	}
	tr.Status = status
	e := end
	tr.ProcessingEnd = &e
	t.store.transfers[transferID] = tr
	return nil
}

func (s *Store) sortedTransfers() []domain.Transfer {
	all := make([]domain.Transfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

func pageOf[T any](all []T, page, pageSize int) []T {
	start := page * pageSize
	if start >= len(all) {
		return []T{}
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return append([]T{}, all[start:end]...)
}

var _ store.Store = (*Store)(nil)
