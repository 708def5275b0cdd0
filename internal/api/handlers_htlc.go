/**
 * @description
 * HTTP handlers for hash time locked payments: creation, settlement with the
 * payment secret, cancellation and lookup.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openclearing/settlement-service/internal/domain"
)

type htlcCreateRequest struct {
	Account        string           `json:"account"`
	Recipient      recipientRequest `json:"recipient"`
	Amount         int64            `json:"amount"`
	Deadline       time.Time        `json:"deadline"`
	HashlockPaid   string           `json:"hashlock_paid"`
	HashlockCancel string           `json:"hashlock_cancel"`
	Opaque         string           `json:"opaque"`
}

type htlcResponse struct {
	PaymentID      uint64           `json:"payment_id"`
	Account        string           `json:"account"`
	Recipient      recipientRequest `json:"recipient,omitempty"`
	Amount         int64            `json:"amount"`
	HashlockPaid   string           `json:"hashlock_paid"`
	HashlockCancel string           `json:"hashlock_cancel"`
	Deadline       time.Time        `json:"deadline"`
	Opaque         string           `json:"opaque,omitempty"`
}

func buildHTLCResponse(p domain.HTLCPayment) htlcResponse {
	return htlcResponse{
		PaymentID: p.ID,
		Account:   string(p.Account),
		Recipient: recipientRequest{
			Account: string(p.Recipient.Account),
			BIC:     p.Recipient.BIC,
			IBAN:    p.Recipient.IBAN,
		},
		Amount:         p.Amount,
		HashlockPaid:   p.HashlockPaid,
		HashlockCancel: p.HashlockCancel,
		Deadline:       p.Deadline,
		Opaque:         p.Opaque,
	}
}

// HTLCCreateHandler locks funds under a pair of hashlocks.
func (h *SettlementHandlers) HTLCCreateHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req htlcCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	p, err := h.service.HTLCLock(caller, domain.Address(req.Account), req.Recipient.toRef(),
		req.Amount, req.Deadline, req.HashlockPaid, req.HashlockCancel, req.Opaque)
	if err != nil {
		log.Printf("level=warn component=api endpoint=htlc_create outcome=failed account=%s err=%v", req.Account, err)
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, buildHTLCResponse(p))
}

type htlcTransferRequest struct {
	Account   string           `json:"account"`
	PaymentID uint64           `json:"payment_id"`
	Recipient recipientRequest `json:"recipient"`
	Secret    string           `json:"secret"`
	Details   string           `json:"details"`
}

// HTLCTransferHandler settles a locked payment with the payment secret. No
// caller authentication is required: knowledge of the secret is the proof.
func (h *SettlementHandlers) HTLCTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req htlcTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	t, err := h.service.HTLCTransfer(r.Context(), domain.Address(req.Account), req.PaymentID,
		req.Recipient.toRef(), req.Secret, req.Details)
	if err != nil {
		log.Printf("level=warn component=api endpoint=htlc_transfer outcome=failed account=%s payment_id=%d err=%v", req.Account, req.PaymentID, err)
		h.writeDomainError(w, err)
		return
	}
	if t.ID == 0 {
		// Redemption to the locking account itself releases the funds
		// without booking a transfer.
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
		return
	}
	h.writeJSON(w, http.StatusCreated, buildTransferResponse(t))
}

type htlcUnlockRequest struct {
	Account   string `json:"account"`
	PaymentID uint64 `json:"payment_id"`
	Secret    string `json:"secret"`
}

// HTLCUnlockHandler cancels a locked payment, with the cancel secret at any
// time or with any secret once the deadline has passed.
func (h *SettlementHandlers) HTLCUnlockHandler(w http.ResponseWriter, r *http.Request) {
	var req htlcUnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.service.HTLCUnlock(domain.Address(req.Account), req.PaymentID, req.Secret); err != nil {
		log.Printf("level=warn component=api endpoint=htlc_unlock outcome=failed account=%s payment_id=%d err=%v", req.Account, req.PaymentID, err)
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// HTLCInfoHandler returns a locked payment by account and id.
func (h *SettlementHandlers) HTLCInfoHandler(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid payment id", http.StatusBadRequest)
		return
	}

	p, perr := h.service.HTLCInfo(domain.Address(account), id)
	if perr != nil {
		h.writeDomainError(w, perr)
		return
	}
	h.writeJSON(w, http.StatusOK, buildHTLCResponse(p))
}
