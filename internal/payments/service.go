// internal/payments/service.go
package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/njuka/internal/apperr"
	"github.com/jason-s-yu/njuka/internal/ledger"
	"github.com/jason-s-yu/njuka/internal/models"
	"github.com/sirupsen/logrus"
)

// SignatureHeaders are checked in order for the webhook HMAC.
var SignatureHeaders = []string{"Lipila-Signature", "X-Lipila-Signature", "X-Webhook-Signature", "X-Signature"}

// Options configures a payment Service.
type Options struct {
	// CallbackURL is the public webhook address handed to the gateway.
	CallbackURL   string
	WebhookSecret string
	Currency      string
	Now           func() time.Time
}

// Service runs deposits and withdrawals through the gateway and applies their
// outcome to the ledger when the webhook confirms them.
type Service struct {
	gateway Gateway
	store   Store
	ledger  ledger.Ledger
	logger  *logrus.Logger

	callbackURL   string
	webhookSecret string
	currency      string
	now           func() time.Time
}

func NewService(gateway Gateway, store Store, l ledger.Ledger, logger *logrus.Logger, opts Options) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{
		gateway:       gateway,
		store:         store,
		ledger:        l,
		logger:        logger,
		callbackURL:   opts.CallbackURL,
		webhookSecret: opts.WebhookSecret,
		currency:      opts.Currency,
		now:           opts.Now,
	}
	if s.currency == "" {
		s.currency = "ZMW"
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// MomoRequest is a mobile-money deposit or withdrawal.
type MomoRequest struct {
	Amount float64 `json:"amount"`
	Phone  string  `json:"phone"`
}

func (r *MomoRequest) Validate() error {
	if r.Amount <= 0 {
		return apperr.Validation("amount must be greater than zero")
	}
	phone, err := NormalizePhone(r.Phone)
	if err != nil {
		return err
	}
	r.Phone = phone
	r.Amount = ledger.Round2(r.Amount)
	return nil
}

// CardDetails carries card data straight through to the gateway. It is never stored.
type CardDetails struct {
	CardNumber  string `json:"card_number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
}

// CardDepositRequest is a card deposit.
type CardDepositRequest struct {
	Amount      float64     `json:"amount"`
	CardDetails CardDetails `json:"card_details"`
}

func (r *CardDepositRequest) Validate() error {
	if r.Amount <= 0 {
		return apperr.Validation("amount must be greater than zero")
	}
	c := &r.CardDetails
	c.CardNumber = strings.ReplaceAll(c.CardNumber, " ", "")
	if n := len(c.CardNumber); n < 12 || n > 19 || !allDigits(c.CardNumber) {
		return apperr.Validation("invalid card number")
	}
	if len(c.ExpiryMonth) != 2 || !allDigits(c.ExpiryMonth) {
		return apperr.Validation("expiry month must be two digits")
	}
	if n := len(c.ExpiryYear); n < 2 || n > 4 || !allDigits(c.ExpiryYear) {
		return apperr.Validation("invalid expiry year")
	}
	c.ExpiryYear = c.ExpiryYear[len(c.ExpiryYear)-2:]
	if n := len(c.CVV); n < 3 || n > 4 || !allDigits(c.CVV) {
		return apperr.Validation("invalid cvv")
	}
	r.Amount = ledger.Round2(r.Amount)
	return nil
}

// InitiateResult is returned once the gateway accepted a request.
type InitiateResult struct {
	Reference string                 `json:"reference"`
	Status    models.PaymentStatus   `json:"status"`
	Message   string                 `json:"message"`
	Gateway   map[string]interface{} `json:"lipila_response,omitempty"`
}

// DepositMomo asks the gateway to collect amount from the user's phone.
func (s *Service) DepositMomo(ctx context.Context, userID string, req MomoRequest) (InitiateResult, error) {
	if err := req.Validate(); err != nil {
		return InitiateResult{}, err
	}
	ref := newReference(models.PaymentDeposit)
	resp, err := s.gateway.InitiateMomoDeposit(ctx, MomoTransfer{
		Amount:      req.Amount,
		Phone:       req.Phone,
		ReferenceID: ref,
		CallbackURL: s.callbackURL,
		Currency:    s.currency,
	})
	if err != nil {
		return InitiateResult{}, gatewayFailure(err)
	}
	return s.track(ctx, userID, ref, models.PaymentDeposit, "momo", req.Amount, req.Phone, resp, "Deposit initiated")
}

// DepositCard asks the gateway to charge a card.
func (s *Service) DepositCard(ctx context.Context, userID string, req CardDepositRequest) (InitiateResult, error) {
	if err := req.Validate(); err != nil {
		return InitiateResult{}, err
	}
	ref := newReference(models.PaymentDeposit)
	c := req.CardDetails
	resp, err := s.gateway.InitiateCardPayment(ctx, CardTransfer{
		Amount:      req.Amount,
		Currency:    s.currency,
		ReferenceID: ref,
		CallbackURL: s.callbackURL,
		CardNumber:  c.CardNumber,
		ExpiryMonth: c.ExpiryMonth,
		ExpiryYear:  c.ExpiryYear,
		CVV:         c.CVV,
	})
	if err != nil {
		return InitiateResult{}, gatewayFailure(err)
	}
	return s.track(ctx, userID, ref, models.PaymentDeposit, "card", req.Amount, maskCard(c.CardNumber), resp, "Card payment initiated")
}

// WithdrawMomo sends money to the user's phone. The balance is checked up front and
// debited when the gateway confirms the disbursement.
func (s *Service) WithdrawMomo(ctx context.Context, userID string, req MomoRequest) (InitiateResult, error) {
	if err := req.Validate(); err != nil {
		return InitiateResult{}, err
	}
	bal, err := s.ledger.Balance(ctx, userID)
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return InitiateResult{}, apperr.Upstream(err, "read balance")
	}
	if bal < req.Amount {
		return InitiateResult{}, apperr.InsufficientFunds("insufficient balance: K%.2f available", bal)
	}

	ref := newReference(models.PaymentWithdrawal)
	resp, err := s.gateway.InitiateMomoWithdrawal(ctx, MomoTransfer{
		Amount:      req.Amount,
		Phone:       req.Phone,
		ReferenceID: ref,
		CallbackURL: s.callbackURL,
		Currency:    s.currency,
	})
	if err != nil {
		return InitiateResult{}, gatewayFailure(err)
	}
	return s.track(ctx, userID, ref, models.PaymentWithdrawal, "momo", req.Amount, req.Phone, resp, "Withdrawal initiated")
}

func (s *Service) track(ctx context.Context, userID, ref string, kind models.PaymentKind, method string, amount float64, account string, resp map[string]interface{}, msg string) (InitiateResult, error) {
	p := models.Payment{
		Reference: ref,
		UserID:    userID,
		Kind:      kind,
		Method:    method,
		Amount:    amount,
		Currency:  s.currency,
		AccountNo: account,
		Status:    models.PaymentPending,
		GatewayID: stringField(resp, "identifier", "transactionId", "id"),
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, p); err != nil {
		s.logger.WithFields(logrus.Fields{"reference": ref, "uid": userID}).WithError(err).Error("gateway accepted payment but it could not be stored")
		return InitiateResult{}, apperr.Upstream(err, "store payment")
	}

	s.logger.WithFields(logrus.Fields{
		"reference": ref,
		"uid":       userID,
		"type":      kind,
		"method":    method,
		"amount":    amount,
	}).Info(msg)
	return InitiateResult{Reference: ref, Status: models.PaymentPending, Message: msg, Gateway: resp}, nil
}

// StatusResult combines the stored status with the gateway's live answer.
type StatusResult struct {
	ReferenceID string                 `json:"reference_id"`
	Status      models.PaymentStatus   `json:"status"`
	Gateway     map[string]interface{} `json:"lipila_response,omitempty"`
	GatewayErr  string                 `json:"lipila_error,omitempty"`
}

// Status reports a payment owned by userID. A gateway failure still returns the stored status.
func (s *Service) Status(ctx context.Context, userID, reference string, txType TxType) (StatusResult, error) {
	if txType != Collection && txType != Disbursement {
		return StatusResult{}, apperr.Validation("transaction_type must be 'collection' or 'disbursement'")
	}
	p, err := s.store.Get(ctx, reference)
	if err != nil {
		return StatusResult{}, err
	}
	if p.UserID != userID {
		return StatusResult{}, apperr.NotFound("transaction not found")
	}

	res := StatusResult{ReferenceID: reference, Status: p.Status}
	resp, err := s.gateway.CheckStatus(ctx, reference, txType)
	if err != nil {
		res.GatewayErr = err.Error()
		return res, nil
	}
	res.Gateway = resp
	return res, nil
}

// WebhookResult is always acknowledged with 200; Applied reports whether the ledger moved.
type WebhookResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Applied bool   `json:"-"`
}

type webhookPayload struct {
	ReferenceID string      `json:"referenceId"`
	Reference   string      `json:"reference"`
	Status      string      `json:"status"`
	Amount      json.Number `json:"amount"`
	Type        string      `json:"type"`
	Identifier  string      `json:"identifier"`
}

// SignatureFromHeader returns the first signature header present.
func SignatureFromHeader(h http.Header) string {
	for _, name := range SignatureHeaders {
		if v := h.Get(name); v != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// VerifySignature checks a hex HMAC-SHA256 of body under the webhook secret.
func (s *Service) VerifySignature(body []byte, signature string) bool {
	if s.webhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// HandleWebhook applies a gateway callback. Every anomaly is logged and acknowledged so
// the gateway stops retrying; only the first terminal status for a reference touches the ledger.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) WebhookResult {
	ack := WebhookResult{Status: "received"}
	if !s.VerifySignature(body, signature) {
		s.logger.Error("webhook signature verification failed")
		ack.Error = "invalid signature"
		return ack
	}

	var payload webhookPayload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		s.logger.WithError(err).Error("webhook invalid JSON")
		ack.Error = "invalid JSON"
		return ack
	}
	ref := payload.ReferenceID
	if ref == "" {
		ref = payload.Reference
	}
	if ref == "" {
		s.logger.Warn("webhook missing reference")
		ack.Error = "missing reference"
		return ack
	}
	fields := logrus.Fields{"reference": ref, "status": payload.Status}

	status, terminal := parseStatus(payload.Status)
	if !terminal {
		s.logger.WithFields(fields).Info("webhook with non-terminal status ignored")
		return ack
	}

	p, transitioned, err := s.store.Complete(ctx, ref, status, payload.Identifier, s.now())
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("webhook could not update payment")
		return ack
	}
	if !transitioned {
		s.logger.WithFields(fields).WithField("stored_status", p.Status).Info("duplicate webhook ignored")
		return ack
	}
	if status != models.PaymentSuccess {
		s.logger.WithFields(fields).WithField("uid", p.UserID).Info("payment failed")
		return ack
	}

	if amt, err := payload.Amount.Float64(); err == nil && payload.Amount != "" && ledger.Round2(amt) != p.Amount {
		s.logger.WithFields(fields).WithFields(logrus.Fields{"stored": p.Amount, "reported": amt}).Warn("webhook amount differs from stored payment, using stored amount")
	}
	ack.Applied = s.apply(ctx, p)
	return ack
}

// apply moves the confirmed amount on the ledger and records the transaction.
func (s *Service) apply(ctx context.Context, p models.Payment) bool {
	fields := logrus.Fields{"reference": p.Reference, "uid": p.UserID, "amount": p.Amount, "type": p.Kind}

	tx := models.Transaction{UserID: p.UserID, Amount: p.Amount, Reference: p.Reference}
	var err error
	switch p.Kind {
	case models.PaymentWithdrawal:
		_, err = s.ledger.Debit(ctx, p.UserID, p.Amount)
		tx.Type = models.TxWithdrawal
		tx.Description = fmt.Sprintf("Withdrawal via %s", p.Method)
	default:
		_, err = s.ledger.Credit(ctx, p.UserID, p.Amount, true)
		tx.Type = models.TxDeposit
		tx.Description = fmt.Sprintf("Deposit via %s", p.Method)
	}
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("confirmed payment could not be applied to wallet")
		return false
	}
	if err := s.ledger.Record(ctx, tx); err != nil {
		s.logger.WithFields(fields).WithError(err).Warn("failed to record payment transaction")
	}
	s.logger.WithFields(fields).Info("wallet updated from payment")
	return true
}

func parseStatus(v string) (models.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "success", "successful":
		return models.PaymentSuccess, true
	case "failed", "failure":
		return models.PaymentFailed, true
	}
	return models.PaymentPending, false
}

func gatewayFailure(err error) error {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		if gerr.StatusCode < 500 && gerr.StatusCode != http.StatusTooManyRequests {
			return apperr.Wrap(apperr.KindValidation, err, "Lipila Error: "+gerr.Detail())
		}
		return apperr.Upstream(err, "payment gateway unavailable")
	}
	return apperr.Upstream(err, "failed to call payment gateway")
}

func newReference(kind models.PaymentKind) string {
	return fmt.Sprintf("njuka_%s_%s", kind, uuid.NewString())
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func maskCard(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
