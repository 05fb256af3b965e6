// internal/handlers/payments.go
package handlers

import (
	"io"
	"net/http"

	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/auth"
	"github.com/jason-s-yu/njuka/internal/payments"
)

type balanceResponse struct {
	WalletBalance float64 `json:"wallet_balance"`
}

type houseBalanceResponse struct {
	HouseBalance float64 `json:"house_balance"`
}

// getBalance returns the caller's wallet. A user without a wallet has zero.
func (a *API) getBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bal, err := a.sessions.Balance(r.Context(), auth.UserID(r.Context()))
		if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, balanceResponse{WalletBalance: bal})
	}
}

// postDepositMomo body: {"amount": 50, "phone": "0971234567"}
func (a *API) postDepositMomo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req payments.MomoRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		res, err := a.payments.DepositMomo(r.Context(), auth.UserID(r.Context()), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (a *API) postDepositCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req payments.CardDepositRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		res, err := a.payments.DepositCard(r.Context(), auth.UserID(r.Context()), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (a *API) postWithdrawMomo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req payments.MomoRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		res, err := a.payments.WithdrawMomo(r.Context(), auth.UserID(r.Context()), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// getTransactionStatus query: ?reference_id=...&transaction_type=collection|disbursement
func (a *API) getTransactionStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		ref := q.Get("reference_id")
		if ref == "" {
			writeError(w, apperr.Validation("reference_id is required"))
			return
		}
		txType := payments.TxType(q.Get("transaction_type"))
		if txType == "" {
			txType = payments.Collection
		}

		res, err := a.payments.Status(r.Context(), auth.UserID(r.Context()), ref, txType)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// postLipilaWebhook always answers 200 so the gateway stops retrying.
func (a *API) postLipilaWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			a.logger.WithError(err).Error("webhook body could not be read")
			writeJSON(w, http.StatusOK, payments.WebhookResult{Status: "received", Error: "unreadable body"})
			return
		}

		res := a.payments.HandleWebhook(r.Context(), body, payments.SignatureFromHeader(r.Header))
		writeJSON(w, http.StatusOK, res)
	}
}

// getHouseBalance requires adminMiddleware.
func (a *API) getHouseBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bal, err := a.sessions.HouseBalance(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, houseBalanceResponse{HouseBalance: bal})
	}
}
