/**
 * @description
 * This file contains the HTTP handlers for the settlement-service's money
 * movement endpoints. Handlers are responsible for parsing incoming requests,
 * calling the appropriate methods on the application service, and writing the
 * HTTP response. They act as the bridge between the web layer and the
 * settlement core.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/openclearing/settlement-service/internal/app"
	"github.com/openclearing/settlement-service/internal/domain"
)

// SettlementHandlers holds the application service that handlers will use.
type SettlementHandlers struct {
	service *app.Service
}

// NewSettlementHandlers creates a new instance of SettlementHandlers.
func NewSettlementHandlers(service *app.Service) *SettlementHandlers {
	return &SettlementHandlers{service: service}
}

// recipientRequest is the wire form of a recipient reference. Exactly one of
// the fields should be set; an IBAN may be paired with a BIC, in which case
// the IBAN wins.
type recipientRequest struct {
	Account string `json:"account,omitempty"`
	BIC     string `json:"bic,omitempty"`
	IBAN    string `json:"iban,omitempty"`
}

func (r recipientRequest) toRef() domain.RecipientRef {
	return domain.RecipientRef{
		Account: domain.Address(r.Account),
		BIC:     r.BIC,
		IBAN:    r.IBAN,
	}
}

type transferResponse struct {
	TransferID uint64           `json:"transfer_id"`
	Bank       string           `json:"bank"`
	Type       string           `json:"type"`
	Status     string           `json:"status"`
	Sender     string           `json:"sender,omitempty"`
	Recipient  recipientRequest `json:"recipient,omitempty"`
	Amount     int64            `json:"amount"`
	Currency   string           `json:"currency"`
	Details    string           `json:"details,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	DecidedAt  *time.Time       `json:"decided_at,omitempty"`
}

func buildTransferResponse(t domain.Transfer) transferResponse {
	resp := transferResponse{
		TransferID: t.ID,
		Bank:       string(t.Bank),
		Type:       string(t.Type),
		Status:     t.Status.String(),
		Sender:     string(t.Sender),
		Recipient: recipientRequest{
			Account: string(t.Recipient.Account),
			BIC:     t.Recipient.BIC,
			IBAN:    t.Recipient.IBAN,
		},
		Amount:    t.Amount,
		Currency:  t.Currency,
		Details:   t.Details,
		Reason:    t.Reason,
		CreatedAt: t.CreatedAt,
	}
	if !t.DecidedAt.IsZero() {
		decidedAt := t.DecidedAt
		resp.DecidedAt = &decidedAt
	}
	return resp
}

type movementRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
	Details string `json:"details"`
}

// CreditHandler handles requests to credit an account.
func (h *SettlementHandlers) CreditHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	t, err := h.service.Credit(r.Context(), caller, domain.Address(req.Account), req.Amount, req.Details)
	if err != nil {
		log.Printf("level=warn component=api endpoint=credit outcome=failed account=%s err=%v", req.Account, err)
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, buildTransferResponse(t))
}

// DebitHandler handles requests to debit an account.
func (h *SettlementHandlers) DebitHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	t, err := h.service.Debit(r.Context(), caller, domain.Address(req.Account), req.Amount, req.Details)
	if err != nil {
		log.Printf("level=warn component=api endpoint=debit outcome=failed account=%s err=%v", req.Account, err)
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, buildTransferResponse(t))
}

type transferRequest struct {
	Sender    string           `json:"sender"`
	Recipient recipientRequest `json:"recipient"`
	Amount    int64            `json:"amount"`
	Details   string           `json:"details"`
}

// TransferHandler handles requests to move funds between accounts, including
// the interbank paths through correspondent accounts.
func (h *SettlementHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	t, err := h.service.Transfer(r.Context(), caller, domain.Address(req.Sender), req.Recipient.toRef(), req.Amount, req.Details)
	if err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=failed sender=%s amount=%d err=%v", req.Sender, req.Amount, err)
		h.writeDomainError(w, err)
		return
	}
	log.Printf("level=info component=api endpoint=transfer outcome=%s sender=%s amount=%d transfer_id=%d", t.Status, req.Sender, req.Amount, t.ID)
	h.writeJSON(w, http.StatusCreated, buildTransferResponse(t))
}

type lockRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// LockHandler reserves part of an account balance.
func (h *SettlementHandlers) LockHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.LockAmount(caller, domain.Address(req.Account), req.Amount); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "locked"})
}

// UnlockHandler releases a previously locked amount.
func (h *SettlementHandlers) UnlockHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.UnlockAmount(caller, domain.Address(req.Account), req.Amount); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

type approveRequest struct {
	Account string `json:"account"`
	Spender string `json:"spender"`
	Amount  int64  `json:"amount"`
}

// ApproveHandler sets the allowance granted to a spender.
func (h *SettlementHandlers) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.Approve(caller, domain.Address(req.Account), domain.Identity(req.Spender), req.Amount); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// AllowanceHandler reports the remaining allowance for a spender.
func (h *SettlementHandlers) AllowanceHandler(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	spender := r.URL.Query().Get("spender")
	if account == "" || spender == "" {
		http.Error(w, "account and spender query parameters required", http.StatusBadRequest)
		return
	}
	value, err := h.service.Allowance(domain.Address(account), domain.Identity(spender))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"allowance": value})
}

type allowanceTransferRequest struct {
	Account   string           `json:"account"`
	Recipient recipientRequest `json:"recipient"`
	Amount    int64            `json:"amount"`
	Details   string           `json:"details"`
}

// AllowanceTransferHandler spends a previously approved allowance. The caller
// identity is the spender.
func (h *SettlementHandlers) AllowanceTransferHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req allowanceTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	t, err := h.service.TransferFrom(r.Context(), caller, domain.Address(req.Account), req.Recipient.toRef(), req.Amount, req.Details)
	if err != nil {
		log.Printf("level=warn component=api endpoint=allowance_transfer outcome=failed account=%s spender=%s err=%v", req.Account, caller, err)
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, buildTransferResponse(t))
}

// writeDomainError maps settlement core errors to HTTP status codes. Error
// message strings are part of the contract and pass through unchanged.
func (h *SettlementHandlers) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientUnlockedFunds),
		errors.Is(err, domain.ErrInsufficientLockedFunds),
		errors.Is(err, domain.ErrOverdraftDebit),
		errors.Is(err, domain.ErrOverdraftLock):
		h.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrRecipientCurrency),
		errors.Is(err, domain.ErrInvalidDecision),
		errors.Is(err, domain.ErrAllowanceExceeded),
		errors.Is(err, domain.ErrRecipientUnresolved):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotAuthorized),
		errors.Is(err, domain.ErrSecretMismatch),
		errors.Is(err, domain.ErrNotRegisteredAccount):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrBankNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransferNotFound),
		errors.Is(err, domain.ErrHTLCNotFound),
		errors.Is(err, domain.ErrCorrespondentNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrTransferNotPending),
		errors.Is(err, domain.ErrHTLCNotExpired),
		errors.Is(err, domain.ErrHTLCInactiveAccount):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *SettlementHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
