// Package store defines the persistence contract shared by the ledger,
// the async pipeline, and the entity-CRUD plumbing around it. The sqlite
// subpackage provides the concrete backend; schema creation is performed by
// Store.Migrate, mirroring the teacher's NewService-does-its-own-DDL
// approach rather than assuming an external migration tool (§6 notes
// migrations are normally applied externally, but the sandbox needs a
// database to exist the first time it runs).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/feetable"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
)

// Sentinel errors shared by every backend implementation and by the ledger
// (see internal/ledger for how these map onto API result codes).
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrBusinessNotFound    = errors.New("business not found")
	ErrProjectNotFound     = errors.New("project not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicateReceipt    = errors.New("duplicate receipt id")
	ErrURLsAlreadySet      = errors.New("validation/confirmation urls already registered")
)

// AccountStore manages the Account rows that back every ledger balance.
type AccountStore interface {
	CreateAccount(ctx context.Context, kind models.AccountKind, initialBalance int64) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	// UpdateBalance sets the account's balance unconditionally; callers are
	// expected to hold the ledger lock (internal/ledger) before calling it.
	UpdateBalance(ctx context.Context, id string, newBalance int64) error
}

// LedgerStore is the transactional surface the ledger (C2) drives directly.
type LedgerStore interface {
	AccountStore

	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, status models.TransactionStatus, updatedAt time.Time) error
	InsertLogEntry(ctx context.Context, entry *models.TransactionLogEntry) error

	// WithinTransaction runs fn inside a single atomic database transaction;
	// an error returned from fn rolls back every write fn performed.
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// BusinessStore manages Business/Project/credential/UserProfile entity CRUD.
type BusinessStore interface {
	CreateBusiness(ctx context.Context, name, shortCode string, utilityAccountId, workingFundsAccountId string) (*models.Business, error)
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	GetBusinessByShortCode(ctx context.Context, shortCode string) (*models.Business, error)
	// ListBusinesses is entity-CRUD plumbing consumed by cmd/balances, the
	// host's read-only balance report tool.
	ListBusinesses(ctx context.Context) ([]*models.Business, error)
	AdjustCharges(ctx context.Context, businessId string, delta int64) error
	ResetCharges(ctx context.Context, businessId string) error
	SetSecurityCredential(ctx context.Context, businessId, keyPEM, initiatorPassword string) error

	CreateProject(ctx context.Context, p *models.Project, cred *models.APICredential) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetCredential(ctx context.Context, projectId string) (*models.APICredential, error)
	FindProjectByConsumerKey(ctx context.Context, consumerKey string) (*models.Project, *models.APICredential, error)

	CreateAccessToken(ctx context.Context, t *models.AccessToken) error
	GetAccessToken(ctx context.Context, token string) (*models.AccessToken, error)

	CreateUser(ctx context.Context, u *models.UserProfile) error
	GetUserByPhone(ctx context.Context, phone string) (*models.UserProfile, error)
	GetUserByAccount(ctx context.Context, accountId string) (*models.UserProfile, error)
}

// PaybillTillRecord describes a merchant inbound-payment endpoint (§4.7/§6).
type PaybillTillRecord struct {
	AccountId       string
	BusinessId      string
	ShortNumber     string
	IsTill          bool
	ValidationURL   string
	ConfirmationURL string
}

// MerchantStore manages paybill/till registration (§4.5 C2B registration).
type MerchantStore interface {
	GetPaybillOrTill(ctx context.Context, shortNumber string, isTill bool) (*PaybillTillRecord, error)
	RegisterURLs(ctx context.Context, accountId, validationURL, confirmationURL string) error
	// CreatePaybillTill is entity-CRUD plumbing: provisioning a business with
	// a paybill/till account ahead of any C2B traffic.
	CreatePaybillTill(ctx context.Context, accountId, businessId, shortNumber string, isTill bool) error
}

// CallbackLogStore persists every delivery attempt outcome (C6).
type CallbackLogStore interface {
	InsertCallbackLog(ctx context.Context, l *models.CallbackLog) error
	UpdateCallbackLog(ctx context.Context, id string, status models.CallbackDeliveryStatus, code int, body string) error
}

// FeeRuleStore persists administrator edits to the fee schedule (C1).
type FeeRuleStore interface {
	LoadFeeRules(ctx context.Context) ([]feetable.Rule, error)
	SaveFeeRules(ctx context.Context, rules []feetable.Rule) error
	FeeRulesSeeded(ctx context.Context) (bool, error)
}

// Store is the full persistence surface used by the host process.
type Store interface {
	LedgerStore
	BusinessStore
	MerchantStore
	CallbackLogStore
	FeeRuleStore

	Migrate(ctx context.Context) error
	Close() error
}
