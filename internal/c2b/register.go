// Package c2b implements the C2B registration write (part of §4.5, not an
// async pipeline) and the C2B Outbound Flow (C7, §4.7).
package c2b

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/wire"
)

var ErrInput = errors.New("input")

// RegisterURLs performs the synchronous write described at the end of
// §4.5: a paybill/till's validation and confirmation URLs may only be set
// once. It rejects a second registration with ErrURLsAlreadySet so the
// sandbox HTTP layer can map it to UrlsAlreadyRegistered.
func RegisterURLs(ctx context.Context, st store.Store, body json.RawMessage) (*wire.C2BRegisterResponse, error) {
	var req wire.C2BRegisterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: malformed body", ErrInput)
	}
	if req.ShortCode == "" || req.ConfirmationURL == "" {
		return nil, fmt.Errorf("%w: missing required field", ErrInput)
	}

	record, err := st.GetPaybillOrTill(ctx, req.ShortCode, false)
	if err != nil {
		record, err = st.GetPaybillOrTill(ctx, req.ShortCode, true)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown shortcode", ErrInput)
		}
	}

	if err := st.RegisterURLs(ctx, record.AccountId, req.ValidationURL, req.ConfirmationURL); err != nil {
		return nil, err
	}

	return &wire.C2BRegisterResponse{
		ResponseCode:        "0",
		ResponseDescription: "Success",
	}, nil
}
