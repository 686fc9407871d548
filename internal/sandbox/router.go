package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/c2b"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/pipeline"
)

const maxBodyBytes = 1 << 20 // 1 MiB; the sandbox boundary has no use for larger bodies

// newRouter builds the per-project HTTP surface described in §6: a banner,
// the oauth token endpoint, and the four bearer-protected provider-style
// routes, using Go 1.22's method-pattern ServeMux (no third-party router
// appears anywhere in the reference corpus — see DESIGN.md).
func newRouter(deps Deps, project *models.Project, business *models.Business, cred *models.APICredential, bgCtx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "pesa-sandbox :: project %q (%s)\n", project.Name, business.ShortCode)
	})

	mux.HandleFunc("GET /oauth/v1/generate", handleToken(deps.Store, cred, project.Id, deps.AccessTokenTTL))

	stkHandler := &pipeline.STKPushHandler{Store: deps.Store, Ledger: deps.Ledger, Registry: deps.Registry, Events: deps.Events, Log: deps.Log, RegistryWaitTimeout: deps.RegistryWaitTimeout}
	b2cHandler := &pipeline.B2CHandler{Store: deps.Store, Ledger: deps.Ledger, Events: deps.Events, Log: deps.Log}
	balanceHandler := &pipeline.BalanceHandler{Store: deps.Store, Log: deps.Log}

	mux.HandleFunc("POST /mpesa/stkpush/v1/processrequest", requireBearer(deps.Store, project.Id,
		pipelineRoute(deps, project, cred, bgCtx, stkHandler)))
	mux.HandleFunc("POST /mpesa/b2c/v3/paymentrequest", requireBearer(deps.Store, project.Id,
		pipelineRoute(deps, project, cred, bgCtx, b2cHandler)))
	mux.HandleFunc("POST /mpesa/accountbalance/v1/query", requireBearer(deps.Store, project.Id,
		pipelineRoute(deps, project, cred, bgCtx, balanceHandler)))
	mux.HandleFunc("POST /mpesa/c2b/v2/registerurl", requireBearer(deps.Store, project.Id, c2bRegisterRoute(deps)))

	return mux
}

// pipelineRoute adapts any pipeline.Handler to an http.HandlerFunc: read the
// body, run Init synchronously, write either the sync ack or the classified
// error, and let Run detach Execute plus delivery onto bgCtx.
func pipelineRoute(deps Deps, project *models.Project, cred *models.APICredential, bgCtx context.Context, h pipeline.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, errMalformedBody, err.Error())
			return
		}

		sync, err := deps.Pipeline.Run(r.Context(), bgCtx, h, pipeline.InitRequest{
			Body:       json.RawMessage(body),
			Project:    project,
			Credential: cred,
		})
		if err != nil {
			writeError(w, classifyInitError(deps.Log, err), err.Error())
			return
		}

		writeJSON(w, http.StatusOK, sync)
	}
}

// c2bRegisterRoute implements POST /mpesa/c2b/v2/registerurl: a synchronous
// write (§4.5), not a pipeline run.
func c2bRegisterRoute(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, errMalformedBody, err.Error())
			return
		}

		resp, err := c2b.RegisterURLs(r.Context(), deps.Store, json.RawMessage(body))
		if err != nil {
			writeError(w, classifyInitError(deps.Log, err), err.Error())
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
