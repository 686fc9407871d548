package sandbox

import (
	"crypto/rand"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// generateToken mints a 32-char alphanumeric token (§6), crypto/rand-backed
// rather than math/rand since it is a bearer credential.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = tokenAlphabet[int(b[i])%len(tokenAlphabet)]
	}
	return string(b), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleToken implements GET /oauth/v1/generate (§6): HTTP Basic auth over
// consumer_key:consumer_secret, a 32-char token with a 1-hour lifetime.
func handleToken(st store.Store, cred *models.APICredential, projectID string, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "client_credentials" {
			writeError(w, errInvalidGrantType, "")
			return
		}

		key, secret, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(key), []byte(cred.ConsumerKey)) != 1 ||
			subtle.ConstantTimeCompare([]byte(secret), []byte(cred.ConsumerSecret)) != 1 {
			writeError(w, errInvalidCredential, "")
			return
		}

		token, err := generateToken()
		if err != nil {
			writeError(w, errInternal, err.Error())
			return
		}

		expiresAt := time.Now().UTC().Add(ttl)
		if err := st.CreateAccessToken(r.Context(), &models.AccessToken{
			Token:     token,
			ProjectId: projectID,
			ExpiresAt: expiresAt,
		}); err != nil {
			writeError(w, errInternal, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, ExpiresIn: int(ttl.Seconds())})
	}
}

// requireBearer resolves the Authorization header against the access token
// store, rejecting a missing, unknown, expired, or foreign-project token
// with the 401.001.xx taxonomy entries.
func requireBearer(st store.Store, projectID string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, errMissingAuth, "")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, errMissingAuth, "")
			return
		}

		t, err := st.GetAccessToken(r.Context(), token)
		if err != nil || t.ProjectId != projectID || t.Expired(time.Now().UTC()) {
			writeError(w, errInvalidToken, "")
			return
		}

		next(w, r)
	}
}
