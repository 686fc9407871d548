package sandbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/c2b"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/pipeline"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/wire"
)

// httpError is one entry of the fixed taxonomy §6 and §7 describe: an HTTP
// status plus the {errorCode, errorMessage} the caller sees.
type httpError struct {
	Status  int
	Code    string
	Message string
}

var (
	errInvalidGrantType  = httpError{http.StatusBadRequest, "400.001.01", "invalid grant_type"}
	errMalformedBody     = httpError{http.StatusBadRequest, "400.002.01", "malformed request body"}
	errInvalidPhone      = httpError{http.StatusBadRequest, "400.002.02", "invalid phone number"}
	errInvalidShortcode  = httpError{http.StatusBadRequest, "400.002.03", "invalid business shortcode"}
	errMissingParam      = httpError{http.StatusBadRequest, "400.002.04", "missing required parameter"}
	errURLsRegistered    = httpError{http.StatusBadRequest, "400.003.01", "validation/confirmation urls already registered"}
	errMissingAuth       = httpError{http.StatusUnauthorized, "401.001.01", "missing access token"}
	errInvalidToken      = httpError{http.StatusUnauthorized, "401.001.02", "invalid or expired access token"}
	errInvalidCredential = httpError{http.StatusUnauthorized, "401.001.03", "invalid consumer key or secret"}
	errInternal          = httpError{http.StatusInternalServerError, "500.001.01", "internal error"}
)

// writeError renders httpError as the sandbox's fixed {errorCode,
// errorMessage} body. Internal errors additionally carry their verbose
// detail in an opaque response header, never in the JSON body (§7's
// propagation policy for the Internal taxonomy kind).
func writeError(w http.ResponseWriter, he httpError, detail string) {
	if he.Status == http.StatusInternalServerError && detail != "" {
		w.Header().Set("X-Internal-Error-Detail", detail)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.Status)
	json.NewEncoder(w).Encode(wire.ErrorResponse{ErrorCode: he.Code, ErrorMessage: he.Message})
}

// classifyInitError maps a pipeline Init (or c2b registration) error onto
// the public taxonomy. Input/Auth sentinels surface their wrapped detail
// text as the message; anything else is an Internal error whose detail is
// logged and attached only to the diagnostic header.
func classifyInitError(log *zap.Logger, err error) httpError {
	msg := err.Error()
	switch {
	case errors.Is(err, pipeline.ErrAuth):
		return httpError{http.StatusUnauthorized, errInvalidCredential.Code, strings.TrimPrefix(msg, "auth: ")}
	case errors.Is(err, pipeline.ErrInput), errors.Is(err, c2b.ErrInput):
		detail := strings.TrimPrefix(strings.TrimPrefix(msg, "input: "), "c2b: ")
		switch {
		case strings.Contains(detail, "phone"):
			return httpError{http.StatusBadRequest, errInvalidPhone.Code, detail}
		case strings.Contains(detail, "shortcode") || strings.Contains(detail, "business"):
			return httpError{http.StatusBadRequest, errInvalidShortcode.Code, detail}
		default:
			return httpError{http.StatusBadRequest, errMissingParam.Code, detail}
		}
	case errors.Is(err, store.ErrURLsAlreadySet):
		return errURLsRegistered
	default:
		log.Error("sandbox: internal error", zap.Error(err))
		return httpError{errInternal.Status, errInternal.Code, errInternal.Message}
	}
}
