// Package sqlite is the concrete Store backend, modeled on the teacher's
// internal/database.Service: a single *sql.DB opened with the same WAL
// pragma string, manual SQL (no ORM), and one Go struct per table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/feetable"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
)

const timeLayout = time.RFC3339Nano

// Config mirrors the teacher's models.DatabaseConfig.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// Store is the sqlite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// txKey threads the active *sql.Tx through context so helper methods can be
// shared between the plain-db path and the WithinTransaction path.
type txKey struct{}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}

	zap.L().Info("opening sqlite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// execer/queryer let every helper accept either *sql.DB or *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) conn(ctx context.Context) execer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithinTransaction runs fn with a *sql.Tx bound into ctx; every store
// method called with that ctx participates in the same atomic transaction,
// satisfying §4.2's "all eleven steps are a single logical transaction".
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		balance INTEGER NOT NULL,
		disabled INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS businesses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		short_code TEXT NOT NULL UNIQUE,
		utility_account_id TEXT NOT NULL,
		working_funds_account_id TEXT NOT NULL,
		charges_amount INTEGER NOT NULL DEFAULT 0,
		security_credential_key TEXT NOT NULL DEFAULT '',
		initiator_password TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL,
		name TEXT NOT NULL,
		callback_url TEXT NOT NULL,
		mode TEXT NOT NULL,
		user_prompt_delay_ms INTEGER NOT NULL DEFAULT 0,
		receipt_prefix TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_credentials (
		project_id TEXT PRIMARY KEY,
		consumer_key TEXT NOT NULL UNIQUE,
		consumer_secret TEXT NOT NULL,
		passkey TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS access_tokens (
		token TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		expires_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		account_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		pin TEXT NOT NULL,
		sim_identity TEXT NOT NULL,
		registered_at TEXT NOT NULL,
		last_sim_swap TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		source_id TEXT,
		destination_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		fee INTEGER NOT NULL,
		currency TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT,
		reversal_of TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transaction_log_entries (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		resulting_balance INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS callback_logs (
		id TEXT PRIMARY KEY,
		transaction_id TEXT,
		checkout_id TEXT,
		conversation_id TEXT,
		originator_id TEXT,
		caller_url TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		last_response_code INTEGER NOT NULL DEFAULT 0,
		last_response_body TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS paybill_till (
		account_id TEXT PRIMARY KEY,
		business_id TEXT NOT NULL,
		short_number TEXT NOT NULL,
		is_till INTEGER NOT NULL,
		validation_url TEXT NOT NULL DEFAULT '',
		confirmation_url TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS fee_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		min_amount INTEGER NOT NULL,
		max_amount INTEGER NOT NULL,
		fixed_minor INTEGER NOT NULL,
		percentage_bp INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS kv_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// --- Accounts ---

func (s *Store) CreateAccount(ctx context.Context, kind models.AccountKind, initialBalance int64) (*models.Account, error) {
	a := &models.Account{
		Id:        uuid.NewString(),
		Kind:      kind,
		Balance:   initialBalance,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO accounts (id, kind, balance, disabled, created_at) VALUES (?, ?, ?, 0, ?)`,
		a.Id, a.Kind, a.Balance, a.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, kind, balance, disabled, created_at FROM accounts WHERE id = ?`, id)
	var a models.Account
	var disabled int
	var createdAt string
	if err := row.Scan(&a.Id, &a.Kind, &a.Balance, &disabled, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrAccountNotFound
		}
		return nil, err
	}
	a.Disabled = disabled != 0
	a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &a, nil
}

func (s *Store) UpdateBalance(ctx context.Context, id string, newBalance int64) error {
	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, newBalance, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}

// --- Transactions & logs ---

func (s *Store) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	var notesJSON []byte
	if tx.Notes != nil {
		var err error
		notesJSON, err = json.Marshal(tx.Notes)
		if err != nil {
			return fmt.Errorf("marshal notes: %w", err)
		}
	}
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO transactions (id, source_id, destination_id, amount, fee, currency, kind, status, notes, reversal_of, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.Id, tx.SourceId, tx.DestinationId, tx.Amount, tx.Fee, tx.Currency, tx.Kind, tx.Status,
		nullableString(notesJSON), tx.ReversalOf, tx.CreatedAt.Format(timeLayout), tx.UpdatedAt.Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateReceipt
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, source_id, destination_id, amount, fee, currency, kind, status, notes, reversal_of, created_at, updated_at
		 FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

func scanTransaction(row *sql.Row) (*models.Transaction, error) {
	var t models.Transaction
	var sourceId, notes, reversalOf sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&t.Id, &sourceId, &t.DestinationId, &t.Amount, &t.Fee, &t.Currency, &t.Kind, &t.Status,
		&notes, &reversalOf, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrTransactionNotFound
		}
		return nil, err
	}
	if sourceId.Valid {
		v := sourceId.String
		t.SourceId = &v
	}
	if reversalOf.Valid {
		v := reversalOf.String
		t.ReversalOf = &v
	}
	if notes.Valid && notes.String != "" {
		var n models.TransactionNotes
		if err := json.Unmarshal([]byte(notes.String), &n); err == nil {
			t.Notes = &n
		}
	}
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	t.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &t, nil
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, status models.TransactionStatus, updatedAt time.Time) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?`, status, updatedAt.Format(timeLayout), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrTransactionNotFound
	}
	return nil
}

func (s *Store) InsertLogEntry(ctx context.Context, entry *models.TransactionLogEntry) error {
	if entry.Id == "" {
		entry.Id = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO transaction_log_entries (id, transaction_id, account_id, direction, resulting_balance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Id, entry.TransactionId, entry.AccountId, entry.Direction, entry.ResultingBalance, entry.CreatedAt.Format(timeLayout))
	return err
}

// --- Businesses / Projects / Credentials / Tokens / Users ---

func (s *Store) CreateBusiness(ctx context.Context, name, shortCode, utilityAccountId, workingFundsAccountId string) (*models.Business, error) {
	b := &models.Business{
		Id:             uuid.NewString(),
		Name:           name,
		ShortCode:      shortCode,
		UtilityAccount: utilityAccountId,
		WorkingFunds:   workingFundsAccountId,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO businesses (id, name, short_code, utility_account_id, working_funds_account_id, charges_amount, security_credential_key, initiator_password, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, '', '', ?)`,
		b.Id, b.Name, b.ShortCode, b.UtilityAccount, b.WorkingFunds, b.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("create business: %w", err)
	}
	return b, nil
}

// SetSecurityCredential stores the operator's expected plaintext password
// and the PEM-encoded RSA private key the sandbox uses to mint the
// operator-facing encrypted security credential (§4.5 B2C specifics).
func (s *Store) SetSecurityCredential(ctx context.Context, businessId, keyPEM, initiatorPassword string) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE businesses SET security_credential_key = ?, initiator_password = ? WHERE id = ?`,
		keyPEM, initiatorPassword, businessId)
	return err
}

func (s *Store) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, name, short_code, utility_account_id, working_funds_account_id, charges_amount, security_credential_key, initiator_password, created_at FROM businesses WHERE id = ?`, id)
	return scanBusiness(row)
}

func (s *Store) GetBusinessByShortCode(ctx context.Context, shortCode string) (*models.Business, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, name, short_code, utility_account_id, working_funds_account_id, charges_amount, security_credential_key, initiator_password, created_at FROM businesses WHERE short_code = ?`, shortCode)
	return scanBusiness(row)
}

// ListBusinesses returns every provisioned business, ordered by creation
// time, for the read-only balance report CLI (cmd/balances).
func (s *Store) ListBusinesses(ctx context.Context) ([]*models.Business, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, name, short_code, utility_account_id, working_funds_account_id, charges_amount, security_credential_key, initiator_password, created_at
		 FROM businesses ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	var out []*models.Business
	for rows.Next() {
		var b models.Business
		var createdAt string
		if err := rows.Scan(&b.Id, &b.Name, &b.ShortCode, &b.UtilityAccount, &b.WorkingFunds, &b.ChargesAmount, &b.SecurityCredentialKey, &b.InitiatorPassword, &createdAt); err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		b.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, &b)
	}
	return out, rows.Err()
}

func scanBusiness(row *sql.Row) (*models.Business, error) {
	var b models.Business
	var createdAt string
	if err := row.Scan(&b.Id, &b.Name, &b.ShortCode, &b.UtilityAccount, &b.WorkingFunds, &b.ChargesAmount, &b.SecurityCredentialKey, &b.InitiatorPassword, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrBusinessNotFound
		}
		return nil, err
	}
	b.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &b, nil
}

func (s *Store) AdjustCharges(ctx context.Context, businessId string, delta int64) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE businesses SET charges_amount = charges_amount + ? WHERE id = ?`, delta, businessId)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrBusinessNotFound
	}
	return nil
}

func (s *Store) ResetCharges(ctx context.Context, businessId string) error {
	_, err := s.conn(ctx).ExecContext(ctx, `UPDATE businesses SET charges_amount = 0 WHERE id = ?`, businessId)
	return err
}

func (s *Store) CreateProject(ctx context.Context, p *models.Project, cred *models.APICredential) error {
	if p.Id == "" {
		p.Id = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO projects (id, business_id, name, callback_url, mode, user_prompt_delay_ms, receipt_prefix, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Id, p.BusinessId, p.Name, p.CallbackURL, p.Mode, p.UserPromptDelay.Milliseconds(), p.ReceiptPrefix, p.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	_, err = s.conn(ctx).ExecContext(ctx,
		`INSERT INTO api_credentials (project_id, consumer_key, consumer_secret, passkey) VALUES (?, ?, ?, ?)`,
		p.Id, cred.ConsumerKey, cred.ConsumerSecret, cred.Passkey)
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, business_id, name, callback_url, mode, user_prompt_delay_ms, receipt_prefix, created_at FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*models.Project, error) {
	var p models.Project
	var delayMs int64
	var createdAt string
	if err := row.Scan(&p.Id, &p.BusinessId, &p.Name, &p.CallbackURL, &p.Mode, &delayMs, &p.ReceiptPrefix, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrProjectNotFound
		}
		return nil, err
	}
	p.UserPromptDelay = time.Duration(delayMs) * time.Millisecond
	p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &p, nil
}

func (s *Store) GetCredential(ctx context.Context, projectId string) (*models.APICredential, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT project_id, consumer_key, consumer_secret, passkey FROM api_credentials WHERE project_id = ?`, projectId)
	var c models.APICredential
	if err := row.Scan(&c.ProjectId, &c.ConsumerKey, &c.ConsumerSecret, &c.Passkey); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrProjectNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) FindProjectByConsumerKey(ctx context.Context, consumerKey string) (*models.Project, *models.APICredential, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT project_id, consumer_key, consumer_secret, passkey FROM api_credentials WHERE consumer_key = ?`, consumerKey)
	var c models.APICredential
	if err := row.Scan(&c.ProjectId, &c.ConsumerKey, &c.ConsumerSecret, &c.Passkey); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, store.ErrProjectNotFound
		}
		return nil, nil, err
	}
	p, err := s.GetProject(ctx, c.ProjectId)
	if err != nil {
		return nil, nil, err
	}
	return p, &c, nil
}

func (s *Store) CreateAccessToken(ctx context.Context, t *models.AccessToken) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO access_tokens (token, project_id, expires_at) VALUES (?, ?, ?)`,
		t.Token, t.ProjectId, t.ExpiresAt.Format(timeLayout))
	return err
}

func (s *Store) GetAccessToken(ctx context.Context, token string) (*models.AccessToken, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT token, project_id, expires_at FROM access_tokens WHERE token = ?`, token)
	var t models.AccessToken
	var expiresAt string
	if err := row.Scan(&t.Token, &t.ProjectId, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("access token not found")
		}
		return nil, err
	}
	t.ExpiresAt, _ = time.Parse(timeLayout, expiresAt)
	return &t, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.UserProfile) error {
	now := time.Now().UTC()
	if u.RegisteredAt.IsZero() {
		u.RegisteredAt = now
	}
	if u.LastSimSwap.IsZero() {
		u.LastSimSwap = now
	}
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO user_profiles (account_id, display_name, phone, pin, sim_identity, registered_at, last_sim_swap)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.AccountId, u.DisplayName, u.Phone, u.PIN, u.SimIdentity, u.RegisteredAt.Format(timeLayout), u.LastSimSwap.Format(timeLayout))
	return err
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*models.UserProfile, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT account_id, display_name, phone, pin, sim_identity, registered_at, last_sim_swap FROM user_profiles WHERE phone = ?`, phone)
	return scanUser(row)
}

func (s *Store) GetUserByAccount(ctx context.Context, accountId string) (*models.UserProfile, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT account_id, display_name, phone, pin, sim_identity, registered_at, last_sim_swap FROM user_profiles WHERE account_id = ?`, accountId)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.UserProfile, error) {
	var u models.UserProfile
	var registeredAt, lastSwap string
	if err := row.Scan(&u.AccountId, &u.DisplayName, &u.Phone, &u.PIN, &u.SimIdentity, &registeredAt, &lastSwap); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrUserNotFound
		}
		return nil, err
	}
	u.RegisteredAt, _ = time.Parse(timeLayout, registeredAt)
	u.LastSimSwap, _ = time.Parse(timeLayout, lastSwap)
	return &u, nil
}

// --- Paybill/Till (C7/§4.5 registration) ---

func (s *Store) GetPaybillOrTill(ctx context.Context, shortNumber string, isTill bool) (*store.PaybillTillRecord, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT account_id, business_id, short_number, is_till, validation_url, confirmation_url
		 FROM paybill_till WHERE short_number = ? AND is_till = ?`, shortNumber, boolToInt(isTill))
	var r store.PaybillTillRecord
	var isTillInt int
	if err := row.Scan(&r.AccountId, &r.BusinessId, &r.ShortNumber, &isTillInt, &r.ValidationURL, &r.ConfirmationURL); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrAccountNotFound
		}
		return nil, err
	}
	r.IsTill = isTillInt != 0
	return &r, nil
}

func (s *Store) RegisterURLs(ctx context.Context, accountId, validationURL, confirmationURL string) error {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT validation_url, confirmation_url FROM paybill_till WHERE account_id = ?`, accountId)
	var existingValidation, existingConfirmation string
	if err := row.Scan(&existingValidation, &existingConfirmation); err != nil {
		if err == sql.ErrNoRows {
			return store.ErrAccountNotFound
		}
		return err
	}
	if existingValidation != "" || existingConfirmation != "" {
		return store.ErrURLsAlreadySet
	}
	_, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE paybill_till SET validation_url = ?, confirmation_url = ? WHERE account_id = ?`,
		validationURL, confirmationURL, accountId)
	return err
}

// CreatePaybillTill is entity-CRUD plumbing: provisioning a business with a
// paybill/till account ahead of any C2B traffic (§4.5 registration).
func (s *Store) CreatePaybillTill(ctx context.Context, accountId, businessId, shortNumber string, isTill bool) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO paybill_till (account_id, business_id, short_number, is_till, validation_url, confirmation_url)
		 VALUES (?, ?, ?, ?, '', '')`, accountId, businessId, shortNumber, boolToInt(isTill))
	return err
}

// --- Callback logs (C6) ---

func (s *Store) InsertCallbackLog(ctx context.Context, l *models.CallbackLog) error {
	if l.Id == "" {
		l.Id = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO callback_logs (id, transaction_id, checkout_id, conversation_id, originator_id, caller_url, payload, status, last_response_code, last_response_body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)`,
		l.Id, l.TransactionId, l.CheckoutId, l.ConversationId, l.OriginatorId, l.CallerURL, l.Payload, l.Status,
		l.CreatedAt.Format(timeLayout), l.UpdatedAt.Format(timeLayout))
	return err
}

func (s *Store) UpdateCallbackLog(ctx context.Context, id string, status models.CallbackDeliveryStatus, code int, body string) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE callback_logs SET status = ?, last_response_code = ?, last_response_body = ?, updated_at = ? WHERE id = ?`,
		status, code, body, time.Now().UTC().Format(timeLayout), id)
	return err
}

// --- Fee rules (C1) ---

func (s *Store) LoadFeeRules(ctx context.Context) ([]feetable.Rule, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT kind, min_amount, max_amount, fixed_minor, percentage_bp FROM fee_rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []feetable.Rule
	for rows.Next() {
		var r feetable.Rule
		if err := rows.Scan(&r.Kind, &r.MinAmountDisplay, &r.MaxAmountDisplay, &r.FixedMinor, &r.PercentageBasis10); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SaveFeeRules(ctx context.Context, rules []feetable.Rule) error {
	return s.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM fee_rules`); err != nil {
			return err
		}
		for _, r := range rules {
			if _, err := s.conn(ctx).ExecContext(ctx,
				`INSERT INTO fee_rules (kind, min_amount, max_amount, fixed_minor, percentage_bp) VALUES (?, ?, ?, ?, ?)`,
				r.Kind, r.MinAmountDisplay, r.MaxAmountDisplay, r.FixedMinor, r.PercentageBasis10); err != nil {
				return err
			}
		}
		return s.setMeta(ctx, "fee_rules_seeded", "1")
	})
}

func (s *Store) FeeRulesSeeded(ctx context.Context) (bool, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT value FROM kv_meta WHERE key = 'fee_rules_seeded'`)
	var v string
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return v == "1", nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO kv_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func isUniqueViolation(err error) bool {
	return err != nil && (containsAny(err.Error(), "UNIQUE constraint failed", "constraint failed: UNIQUE"))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}
