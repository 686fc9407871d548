package pipeline

// Result codes mirror the provider's own taxonomy (§4.5, §8's concrete
// scenarios pin several of these exactly).
const (
	ResultSuccess                      = 0
	ResultInsufficientBalance          = 1
	ResultUnableToLockSubscriber       = 1001
	ResultRequestCancelledByUser       = 1032
	ResultDSTimeout                    = 1037
	ResultInitiatorInformationInvalid  = 2001
	ResultSystemError                  = 9999
)

func resultDesc(code int) string {
	switch code {
	case ResultSuccess:
		return "The service request is processed successfully."
	case ResultInsufficientBalance:
		return "The balance is insufficient for the transaction."
	case ResultUnableToLockSubscriber:
		return "Unable to lock subscriber, a transaction is already in process for the current subscriber."
	case ResultRequestCancelledByUser:
		return "Request cancelled by user."
	case ResultDSTimeout:
		return "DS timeout user cannot be reached."
	case ResultInitiatorInformationInvalid:
		return "The initiator information is invalid."
	default:
		return "System internal error."
	}
}
