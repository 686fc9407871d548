// Package models holds the persistent domain types shared by the ledger,
// the async pipeline, and the sandbox HTTP surface. Field layout mirrors
// §3 of the design: every monetary value is a signed int64 of minor units.
package models

import "time"

// AccountKind enumerates the account flavors of §3.
type AccountKind string

const (
	AccountUser         AccountKind = "user"
	AccountPaybill      AccountKind = "paybill"
	AccountTill         AccountKind = "till"
	AccountUtility      AccountKind = "utility"
	AccountWorkingFunds AccountKind = "working_funds"
	AccountSystem       AccountKind = "system"
)

// Account is a single ledger-addressable balance.
type Account struct {
	Id        string      `db:"id"`
	Kind      AccountKind `db:"kind"`
	Balance   int64       `db:"balance"`
	Disabled  bool        `db:"disabled"`
	CreatedAt time.Time   `db:"created_at"`
}

func (a Account) IsSystem() bool { return a.Kind == AccountSystem }

// Business owns a Utility float account and a WorkingFunds settlement account.
// SecurityCredentialKey and InitiatorPassword back the B2C operator
// security-credential check (§4.5's B2C specifics): the sandbox hands
// operators an RSA-encrypted blob that must decrypt to InitiatorPassword
// under the PEM-encoded private key stored here.
type Business struct {
	Id                     string    `db:"id"`
	Name                   string    `db:"name"`
	ShortCode              string    `db:"short_code"`
	UtilityAccount         string    `db:"utility_account_id"`
	WorkingFunds           string    `db:"working_funds_account_id"`
	ChargesAmount          int64     `db:"charges_amount"`
	SecurityCredentialKey  string    `db:"security_credential_key"`
	InitiatorPassword      string    `db:"initiator_password"`
	CreatedAt              time.Time `db:"created_at"`
}

// SimulationMode controls how the async pipeline resolves an in-flight request.
type SimulationMode string

const (
	ModeAlwaysSuccess SimulationMode = "always_success"
	ModeAlwaysFail    SimulationMode = "always_fail"
	ModeRandom        SimulationMode = "random"
	ModeRealistic     SimulationMode = "realistic"
)

// Project is a logical API tenant belonging to a Business.
type Project struct {
	Id              string         `db:"id"`
	BusinessId      string         `db:"business_id"`
	Name            string         `db:"name"`
	CallbackURL     string         `db:"callback_url"`
	Mode            SimulationMode `db:"mode"`
	UserPromptDelay time.Duration  `db:"user_prompt_delay"`
	ReceiptPrefix   string         `db:"receipt_prefix"`
	CreatedAt       time.Time      `db:"created_at"`
}

// APICredential is the one-per-project secret triple.
type APICredential struct {
	ProjectId      string `db:"project_id"`
	ConsumerKey    string `db:"consumer_key"`
	ConsumerSecret string `db:"consumer_secret"`
	Passkey        string `db:"passkey"`
}

// AccessToken is minted by the sandbox's oauth endpoint.
type AccessToken struct {
	Token     string    `db:"token"`
	ProjectId string    `db:"project_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (t AccessToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// UserProfile is the simulated mobile-money subscriber.
type UserProfile struct {
	AccountId    string    `db:"account_id"`
	DisplayName  string    `db:"display_name"`
	Phone        string    `db:"phone"`
	PIN          string    `db:"pin"`
	SimIdentity  string    `db:"sim_identity"`
	RegisteredAt time.Time `db:"registered_at"`
	LastSimSwap  time.Time `db:"last_sim_swap"`
}

// TransactionKind mirrors the provider-style transaction categories. Several
// kinds collapse onto the SendMoney fee schedule (see internal/feetable).
type TransactionKind string

const (
	KindSendMoney   TransactionKind = "send_money"
	KindPaybill     TransactionKind = "paybill"
	KindBuyGoods    TransactionKind = "buy_goods"
	KindWithdraw    TransactionKind = "withdraw"
	KindDeposit     TransactionKind = "deposit"
	KindDisbursement TransactionKind = "disbursement"
	KindReversal    TransactionKind = "reversal"
	KindSettlement  TransactionKind = "settlement"
	KindAirtime     TransactionKind = "airtime"
)

// TransactionStatus is the lifecycle state of a Transaction row.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusReversed  TransactionStatus = "reversed"
)

// TransactionNotes is a tagged variant describing the originating API call.
// Exactly one of the pointer fields is populated when present at all.
type TransactionNotes struct {
	TillPayment    *TillPaymentNote    `json:"tillPayment,omitempty"`
	PaybillPayment *PaybillPaymentNote `json:"paybillPayment,omitempty"`
	B2C            *B2CNote            `json:"b2c,omitempty"`
	STKPush        *STKPushNote        `json:"stkPush,omitempty"`
}

type TillPaymentNote struct {
	TillNumber string `json:"tillNumber"`
}

type PaybillPaymentNote struct {
	PaybillNumber string `json:"paybillNumber"`
	BillRefNumber string `json:"billRefNumber"`
}

type B2CNote struct {
	OriginatorConversationId string `json:"originatorConversationId"`
	CommandId                string `json:"commandId"`
}

type STKPushNote struct {
	CheckoutRequestId string `json:"checkoutRequestId"`
}

// Transaction is the immutable-once-Completed ledger record.
type Transaction struct {
	Id            string            `db:"id"`
	SourceId      *string           `db:"source_id"`
	DestinationId string            `db:"destination_id"`
	Amount        int64             `db:"amount"`
	Fee           int64             `db:"fee"`
	Currency      string            `db:"currency"`
	Kind          TransactionKind   `db:"kind"`
	Status        TransactionStatus `db:"status"`
	Notes         *TransactionNotes `db:"notes"`
	ReversalOf    *string           `db:"reversal_of"`
	CreatedAt     time.Time         `db:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at"`
}

// Direction is the per-account side of a Transaction.
type Direction string

const (
	DirectionInflow  Direction = "inflow"
	DirectionOutflow Direction = "outflow"
)

// TransactionLogEntry is one account's side of a Transaction.
type TransactionLogEntry struct {
	Id              string    `db:"id"`
	TransactionId   string    `db:"transaction_id"`
	AccountId       string    `db:"account_id"`
	Direction       Direction `db:"direction"`
	ResultingBalance int64    `db:"resulting_balance"`
	CreatedAt       time.Time `db:"created_at"`
}

// CallbackDeliveryStatus is the lifecycle of a CallbackLog row.
type CallbackDeliveryStatus string

const (
	CallbackPending   CallbackDeliveryStatus = "pending"
	CallbackDelivered CallbackDeliveryStatus = "delivered"
	CallbackFailed    CallbackDeliveryStatus = "failed"
)

// CallbackLog records every delivery attempt's final outcome for a callback.
type CallbackLog struct {
	Id                string                 `db:"id"`
	TransactionId     *string                `db:"transaction_id"`
	CheckoutId        *string                `db:"checkout_id"`
	ConversationId    *string                `db:"conversation_id"`
	OriginatorId      *string                `db:"originator_id"`
	CallerURL         string                 `db:"caller_url"`
	Payload           string                 `db:"payload"`
	Status            CallbackDeliveryStatus `db:"status"`
	LastResponseCode  int                    `db:"last_response_code"`
	LastResponseBody  string                 `db:"last_response_body"`
	CreatedAt         time.Time              `db:"created_at"`
	UpdatedAt         time.Time              `db:"updated_at"`
}
