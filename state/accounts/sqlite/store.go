// Package sqlite provides the SQLite-backed account store. It also keeps the mention cursor
// and transfers awaiting confirmation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
	"tipbot/messaging/social"
	"tipbot/state/accounts"
	"tipbot/state/accounts/sqlite/migrations"
	"tipbot/state/transfers"
)

type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const accountColumns = `id, handle, external_id, COALESCE(public_address, ''), secret, custody_mode, created_at, updated_at`

func (s *Store) FindAccountByHandle(ctx context.Context, handle string) (*accounts.Account, error) {
	return s.findOne(ctx, `handle = ? AND substr(external_id, 1, ?) <> ?`,
		handle, len(accounts.PlaceholderPrefix), accounts.PlaceholderPrefix)
}

func (s *Store) FindPlaceholderByHandle(ctx context.Context, handle string) (*accounts.Account, error) {
	return s.findOne(ctx, `handle = ? AND substr(external_id, 1, ?) = ?`,
		handle, len(accounts.PlaceholderPrefix), accounts.PlaceholderPrefix)
}

func (s *Store) FindAccountByAddress(ctx context.Context, address string) (*accounts.Account, error) {
	if address == "" {
		return nil, accounts.ErrNotFound
	}
	return s.findOne(ctx, `public_address = ?`, address)
}

func (s *Store) findOne(ctx context.Context, where string, args ...any) (*accounts.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where, args...)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accounts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if err := loadChildren(ctx, s.sqlDB, a); err != nil {
		return nil, err
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*accounts.Account, error) {
	var (
		a                accounts.Account
		mode             string
		created, updated int64
	)
	if err := row.Scan(&a.ID, &a.Handle, &a.ExternalID, &a.PublicAddress, &a.Secret, &mode, &created, &updated); err != nil {
		return nil, err
	}
	a.CustodyMode = accounts.CustodyMode(mode)
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

func loadChildren(ctx context.Context, q queryer, a *accounts.Account) error {
	rows, err := q.QueryContext(ctx, `SELECT direction, amount, currency, counterparty, chain_tx_id, origin_refs, created_at
		FROM ledger_events WHERE account_id = ? ORDER BY seq`, a.ID)
	if err != nil {
		return fmt.Errorf("list ledger events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e                 accounts.LedgerEvent
			direction, amount string
			refs              string
			at                int64
		)
		if err := rows.Scan(&direction, &amount, &e.Currency, &e.CounterpartyHandle, &e.ChainTxID, &refs, &at); err != nil {
			return fmt.Errorf("scan ledger event: %w", err)
		}
		e.Direction = accounts.Direction(direction)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return fmt.Errorf("ledger event amount %q: %w", amount, err)
		}
		if err := json.Unmarshal([]byte(refs), &e.OriginReferences); err != nil {
			return fmt.Errorf("ledger event origins: %w", err)
		}
		e.Timestamp = fromMillis(at)
		a.History = append(a.History, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate ledger events: %w", err)
	}
	_ = rows.Close()

	rows, err = q.QueryContext(ctx, `SELECT origin_reference, sender, amount, currency, created_at
		FROM pending_claims WHERE account_id = ? ORDER BY created_at, origin_reference`, a.ID)
	if err != nil {
		return fmt.Errorf("list pending claims: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c      accounts.PendingClaim
			amount string
			at     int64
		)
		if err := rows.Scan(&c.OriginReference, &c.Sender, &amount, &c.Currency, &at); err != nil {
			return fmt.Errorf("scan pending claim: %w", err)
		}
		if c.Amount, err = decimal.NewFromString(amount); err != nil {
			return fmt.Errorf("claim amount %q: %w", amount, err)
		}
		c.CreatedAt = fromMillis(at)
		a.PendingClaims = append(a.PendingClaims, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate pending claims: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SaveAccount writes the account row, appends history not yet stored and replaces the claim set,
// all in one transaction.
func (s *Store) SaveAccount(ctx context.Context, a *accounts.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	created, updated := a.CreatedAt, a.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save account: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := a.ID
	if id == 0 {
		res, err := tx.ExecContext(ctx, `INSERT INTO accounts (
		   handle, external_id, public_address, secret, custody_mode, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.Handle, a.ExternalID, nullable(a.PublicAddress), a.Secret, string(a.CustodyMode),
			toMillis(created), toMillis(updated))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %v", accounts.ErrUniqueViolation, err)
			}
			return fmt.Errorf("insert account: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert account id: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `UPDATE accounts
		   SET external_id = ?, public_address = ?, secret = ?, custody_mode = ?, updated_at = ?
		 WHERE id = ? AND (public_address IS NULL OR public_address = ?)`,
			a.ExternalID, nullable(a.PublicAddress), a.Secret, string(a.CustodyMode), toMillis(updated),
			id, a.PublicAddress)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %v", accounts.ErrUniqueViolation, err)
			}
			return fmt.Errorf("update account: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("account %s is missing or its address would change", a.Handle)
		}
	}

	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_events WHERE account_id = ?`, id).Scan(&stored); err != nil {
		return fmt.Errorf("count ledger events: %w", err)
	}
	if len(a.History) < stored {
		return fmt.Errorf("history of %s is append-only: have %d events, stored %d", a.Handle, len(a.History), stored)
	}
	for seq := stored; seq < len(a.History); seq++ {
		e := a.History[seq]
		refs, err := json.Marshal(nonNil(e.OriginReferences))
		if err != nil {
			return fmt.Errorf("encode origins: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO ledger_events (
		   account_id, seq, direction, amount, currency, counterparty, chain_tx_id, origin_refs, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, seq, string(e.Direction), e.Amount.String(), e.Currency, e.CounterpartyHandle,
			e.ChainTxID, string(refs), toMillis(e.Timestamp)); err != nil {
			return fmt.Errorf("append ledger event: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_claims WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("clear pending claims: %w", err)
	}
	for _, c := range a.PendingClaims {
		if _, err := tx.ExecContext(ctx, `INSERT INTO pending_claims (
		   account_id, origin_reference, sender, amount, currency, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?)`,
			id, c.OriginReference, c.Sender, c.Amount.String(), c.Currency, toMillis(c.CreatedAt)); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("duplicate claim %s from %s: %w", c.OriginReference, c.Sender, err)
			}
			return fmt.Errorf("insert pending claim: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save account: %w", err)
	}
	a.ID = id
	a.CreatedAt, a.UpdatedAt = created, updated
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Store) ListAccounts(ctx context.Context) ([]*accounts.Account, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	var out []*accounts.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	_ = rows.Close()
	for _, a := range out {
		if err := loadChildren(ctx, s.sqlDB, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LoadCursor returns the saved cursor for name, or the zero cursor if none was saved.
func (s *Store) LoadCursor(ctx context.Context, name string) (social.Cursor, error) {
	var (
		c  social.Cursor
		at int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `SELECT since_id, since_at FROM cursors WHERE name = ?`, name).Scan(&c.SinceID, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return social.Cursor{}, nil
	}
	if err != nil {
		return social.Cursor{}, fmt.Errorf("load cursor %s: %w", name, err)
	}
	c.SinceAt = time.Unix(at, 0).UTC()
	return c, nil
}

func (s *Store) SaveCursor(ctx context.Context, name string, c social.Cursor) error {
	_, err := s.sqlDB.ExecContext(ctx, `INSERT INTO cursors (name, since_id, since_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET since_id = excluded.since_id, since_at = excluded.since_at, updated_at = excluded.updated_at`,
		name, c.SinceID, c.SinceAt.Unix(), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", name, err)
	}
	return nil
}

func (s *Store) SaveUnsettled(ctx context.Context, t transfers.Transfer) error {
	refs, err := json.Marshal(nonNil(t.Origins))
	if err != nil {
		return fmt.Errorf("encode origins: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `INSERT OR REPLACE INTO unsettled_transfers (
		   chain_tx_id, sender, recipient, to_address, amount, currency, origin_refs, submitted_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ChainTxID, t.Sender, t.Recipient, t.ToAddress, t.Amount.String(), t.Currency, string(refs), toMillis(t.SubmittedAt))
	if err != nil {
		return fmt.Errorf("save unsettled transfer %s: %w", t.ChainTxID, err)
	}
	return nil
}

func (s *Store) ListUnsettled(ctx context.Context) ([]transfers.Transfer, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT chain_tx_id, sender, recipient, to_address, amount, currency, origin_refs, submitted_at
		FROM unsettled_transfers ORDER BY submitted_at, chain_tx_id`)
	if err != nil {
		return nil, fmt.Errorf("list unsettled transfers: %w", err)
	}
	defer rows.Close()
	var out []transfers.Transfer
	for rows.Next() {
		var (
			t            transfers.Transfer
			amount, refs string
			at           int64
		)
		if err := rows.Scan(&t.ChainTxID, &t.Sender, &t.Recipient, &t.ToAddress, &amount, &t.Currency, &refs, &at); err != nil {
			return nil, fmt.Errorf("scan unsettled transfer: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("unsettled amount %q: %w", amount, err)
		}
		if err := json.Unmarshal([]byte(refs), &t.Origins); err != nil {
			return nil, fmt.Errorf("unsettled origins: %w", err)
		}
		t.SubmittedAt = fromMillis(at)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteUnsettled(ctx context.Context, txID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM unsettled_transfers WHERE chain_tx_id = ?`, txID); err != nil {
		return fmt.Errorf("delete unsettled transfer %s: %w", txID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var (
	_ accounts.Store   = (*Store)(nil)
	_ transfers.Ledger = (*Store)(nil)
)
