// Package wire holds the PascalCase JSON shapes carried across the sandbox
// HTTP boundary and the resulting callback envelopes (§6), matching the
// provider's wire format rather than this module's internal naming.
package wire

// STKPushRequest is the body of POST /mpesa/stkpush/v1/processrequest.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushSyncResponse is returned immediately to the HTTP caller.
type STKPushSyncResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// CallbackMetadataItem is one Name/Value pair in an STK callback.
type CallbackMetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackMetadataItem `json:"Item"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// STKCallbackEnvelope is the full POST body delivered to the project's
// callback URL after an STK-push pipeline resolves.
type STKCallbackEnvelope struct {
	Body struct {
		StkCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// B2CRequest is the body of POST /mpesa/b2c/v3/paymentrequest.
type B2CRequest struct {
	InitiatorName           string `json:"InitiatorName"`
	SecurityCredential      string `json:"SecurityCredential"`
	CommandID               string `json:"CommandID"`
	Amount                  string `json:"Amount"`
	PartyA                  string `json:"PartyA"`
	PartyB                  string `json:"PartyB"`
	Remarks                 string `json:"Remarks"`
	QueueTimeOutURL         string `json:"QueueTimeOutURL"`
	ResultURL               string `json:"ResultURL"`
	Occasion                string `json:"Occasion"`
}

type B2CSyncResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

type ResultParameterItem struct {
	Key   string `json:"Key"`
	Value any    `json:"Value"`
}

type ResultParameters struct {
	ResultParameter []ResultParameterItem `json:"ResultParameter"`
}

type ReferenceItem struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

type ReferenceData struct {
	ReferenceItem ReferenceItem `json:"ReferenceItem"`
}

// Result is the shared shape of the B2C and balance-query callback bodies.
type Result struct {
	ResultType               int                `json:"ResultType"`
	ResultCode               int                `json:"ResultCode"`
	ResultDesc               string             `json:"ResultDesc"`
	OriginatorConversationID string             `json:"OriginatorConversationID"`
	ConversationID           string             `json:"ConversationID"`
	TransactionID            string             `json:"TransactionID"`
	ResultParameters         *ResultParameters  `json:"ResultParameters,omitempty"`
	ReferenceData            ReferenceData      `json:"ReferenceData"`
}

type ResultEnvelope struct {
	Result Result `json:"Result"`
}

// BalanceRequest is the body of POST /mpesa/accountbalance/v1/query.
type BalanceRequest struct {
	Initiator          string `json:"Initiator"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	PartyA             string `json:"PartyA"`
	IdentifierType     string `json:"IdentifierType"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
}

type BalanceSyncResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// C2BRegisterRequest is the body of POST /mpesa/c2b/v2/registerurl.
type C2BRegisterRequest struct {
	ShortCode       string `json:"ShortCode"`
	ResponseType    string `json:"ResponseType"`
	ConfirmationURL string `json:"ConfirmationURL"`
	ValidationURL   string `json:"ValidationURL"`
}

type C2BRegisterResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
}

// ValidationRequest is posted by the C2B outbound flow (C7) to the
// merchant's validation URL before the ledger transfer happens.
type ValidationRequest struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"`
	TransAmount       string `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	OrgAccountBalance string `json:"OrgAccountBalance"`
	MSISDN            string `json:"MSISDN"`
}

type ValidationResponse struct {
	ResultCode      int    `json:"ResultCode"`
	ResultDesc      string `json:"ResultDesc"`
	ThirdPartyTransID string `json:"ThirdPartyTransID,omitempty"`
}

// ConfirmationRequest is posted by the C2B outbound flow after the ledger
// transfer commits; delivery is fire-and-forget.
type ConfirmationRequest struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"`
	TransAmount       string `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	OrgAccountBalance string `json:"OrgAccountBalance"`
	MSISDN            string `json:"MSISDN"`
	ThirdPartyTransID string `json:"ThirdPartyTransID,omitempty"`
}

// ErrorResponse is the fixed error envelope shape used across the sandbox
// boundary (§6, §7).
type ErrorResponse struct {
	RequestID    string `json:"requestId,omitempty"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}
