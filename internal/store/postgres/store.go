package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/settleops/transferd/internal/domain"
	"github.com/settleops/transferd/internal/store"
)

const transferColumns = `id, sender_account_id, receiver_account_id, amount, status,
	processing_id, processing_start, processing_end, created_at`

// Store is the pgx-backed implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect builds a pool from a connection string and verifies connectivity.
func Connect(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) CreateAccount(ctx context.Context, name string, amount decimal.Decimal) (domain.Account, error) {
	var a domain.Account
	err := s.pool.QueryRow(ctx,
		"INSERT INTO accounts (name, amount) VALUES ($1, $2) RETURNING id, name, amount, created_at",
		name, amount,
	).Scan(&a.ID, &a.Name, &a.Amount, &a.CreatedAt)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account insert failed: %w", err)
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (domain.Account, error) {
	var a domain.Account
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, amount, created_at FROM accounts WHERE id = $1", id,
	).Scan(&a.ID, &a.Name, &a.Amount, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, id int64, name string, amount decimal.Decimal) (domain.Account, error) {
	var a domain.Account
	err := s.pool.QueryRow(ctx,
		"UPDATE accounts SET name = $1, amount = $2 WHERE id = $3 RETURNING id, name, amount, created_at",
		name, amount, id,
	).Scan(&a.ID, &a.Name, &a.Amount, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM accounts WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, page, pageSize int) (domain.Page[domain.Account], error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, name, amount, created_at FROM accounts ORDER BY id OFFSET $1 LIMIT $2",
		page*pageSize, pageSize,
	)
	if err != nil {
		return domain.Page[domain.Account]{}, err
	}
	defer rows.Close()

	content := []domain.Account{}
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Amount, &a.CreatedAt); err != nil {
			return domain.Page[domain.Account]{}, err
		}
		content = append(content, a)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Account]{}, err
	}

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&total); err != nil {
		return domain.Page[domain.Account]{}, err
	}
	return domain.Page[domain.Account]{Content: content, Total: total}, nil
}

func (s *Store) CreateTransfer(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal) (domain.Transfer, error) {
	var t domain.Transfer
	err := s.pool.QueryRow(ctx,
		`INSERT INTO transfers (sender_account_id, receiver_account_id, amount, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+transferColumns,
		senderID, receiverID, amount, domain.StatusPending,
	).Scan(transferFields(&t)...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Transfer{}, store.ErrNotFound
		}
		return domain.Transfer{}, fmt.Errorf("transfer insert failed: %w", err)
	}
	return t, nil
}

func (s *Store) GetTransfer(ctx context.Context, id int64) (domain.Transfer, error) {
	var t domain.Transfer
	err := s.pool.QueryRow(ctx,
		"SELECT "+transferColumns+" FROM transfers WHERE id = $1", id,
	).Scan(transferFields(&t)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transfer{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Transfer{}, err
	}
	return t, nil
}

// UpdateTransfer rewrites the client-settable fields after re-checking the
// PENDING guard under a row lock, so a concurrent claim cannot slip between
// the check and the write.
func (s *Store) UpdateTransfer(ctx context.Context, id int64, upd store.TransferUpdate) (domain.Transfer, error) {
	var t domain.Transfer
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var status domain.TransferStatus
		err := tx.QueryRow(ctx,
			"SELECT status FROM transfers WHERE id = $1 FOR UPDATE", id,
		).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		if status != domain.StatusPending {
			return store.ErrInvalidState
		}
		return tx.QueryRow(ctx,
			`UPDATE transfers
			 SET sender_account_id = $1, receiver_account_id = $2, amount = $3
			 WHERE id = $4
			 RETURNING `+transferColumns,
			upd.SenderAccountID, upd.ReceiverAccountID, upd.Amount, id,
		).Scan(transferFields(&t)...)
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Transfer{}, store.ErrNotFound
		}
		return domain.Transfer{}, err
	}
	return t, nil
}

func (s *Store) DeleteTransfer(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var status domain.TransferStatus
		err := tx.QueryRow(ctx,
			"SELECT status FROM transfers WHERE id = $1 FOR UPDATE", id,
		).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		if status != domain.StatusPending {
			return store.ErrInvalidState
		}
		_, err = tx.Exec(ctx, "DELETE FROM transfers WHERE id = $1", id)
		return err
	})
}

func (s *Store) ListTransfers(ctx context.Context, page, pageSize int) (domain.Page[domain.Transfer], error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+transferColumns+" FROM transfers ORDER BY id OFFSET $1 LIMIT $2",
		page*pageSize, pageSize,
	)
	if err != nil {
		return domain.Page[domain.Transfer]{}, err
	}
	defer rows.Close()

	content := []domain.Transfer{}
	for rows.Next() {
		var t domain.Transfer
		if err := rows.Scan(transferFields(&t)...); err != nil {
			return domain.Page[domain.Transfer]{}, err
		}
		content = append(content, t)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Transfer]{}, err
	}

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM transfers").Scan(&total); err != nil {
		return domain.Page[domain.Transfer]{}, err
	}
	return domain.Page[domain.Transfer]{Content: content, Total: total}, nil
}

// ClaimPending is a single atomic statement: the locking subselect and the
// update commit together, so two claimers can never tag the same row.
// SKIP LOCKED lets a concurrent claimer take the next rows instead of
// blocking on ours.
func (s *Store) ClaimPending(ctx context.Context, processingID string, batchSize int, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transfers
		 SET status = $1, processing_id = $2, processing_start = $3
		 WHERE id IN (
			SELECT id FROM transfers
			WHERE status = $4
			ORDER BY id
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		 )`,
		domain.StatusProcessing, processingID, now, domain.StatusPending, batchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("claim failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) TransfersInBatch(ctx context.Context, processingID string) ([]domain.Transfer, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+transferColumns+" FROM transfers WHERE processing_id = $1 AND status = $2 ORDER BY id",
		processingID, domain.StatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		if err := rows.Scan(transferFields(&t)...); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (s *Store) ResetInFlight(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE transfers SET status = $1 WHERE status = $2",
		domain.StatusPending, domain.StatusProcessing,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&sqlTx{tx: tx})
	})
}

type sqlTx struct {
	tx pgx.Tx
}

func (t *sqlTx) AccountBalanceForUpdate(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := t.tx.QueryRow(ctx,
		"SELECT amount FROM accounts WHERE id = $1 FOR UPDATE", accountID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, store.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock acquisition failed: %w", err)
	}
	return balance, nil
}

func (t *sqlTx) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE accounts SET amount = amount + $1 WHERE id = $2", delta, accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *sqlTx) FinalizeTransfer(ctx context.Context, transferID int64, status domain.TransferStatus, end time.Time) error {
	_, err := t.tx.Exec(ctx,
		"UPDATE transfers SET status = $1, processing_end = $2 WHERE id = $3",
		status, end, transferID,
	)
	return err
}

func transferFields(t *domain.Transfer) []any {
	return []any{
		&t.ID, &t.SenderAccountID, &t.ReceiverAccountID, &t.Amount, &t.Status,
		&t.ProcessingID, &t.ProcessingStart, &t.ProcessingEnd, &t.CreatedAt,
	}
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ store.Store = (*Store)(nil)
