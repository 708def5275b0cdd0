/**
 * @description
 * Back-office HTTP handlers: account lifecycle, whitelists and attributes,
 * correspondent registration, nostro funding, netting and pending transfer
 * decisions. Authorization is enforced by the settlement core, which checks
 * the caller identity against each bank's operator.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclearing/settlement-service/internal/domain"
)

type registerAccountRequest struct {
	Bank  string `json:"bank"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

type accountRegistrationResponse struct {
	Address       string `json:"address"`
	AccountNumber string `json:"account_number"`
	IBAN          string `json:"iban"`
}

// RegisterAccountHandler opens an account at a bank.
func (h *SettlementHandlers) RegisterAccountHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req registerAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	acct, err := h.service.RegisterAccount(caller, domain.Address(req.Bank), req.Name, domain.Identity(req.Owner))
	if err != nil {
		log.Printf("level=warn component=api endpoint=register_account outcome=failed bank=%s err=%v", req.Bank, err)
		h.writeDomainError(w, err)
		return
	}
	log.Printf("level=info component=api endpoint=register_account outcome=created bank=%s account=%s number=%s", req.Bank, acct.Address, acct.AccountNumber)
	h.writeJSON(w, http.StatusCreated, accountRegistrationResponse{
		Address:       string(acct.Address),
		AccountNumber: acct.AccountNumber,
		IBAN:          acct.IBAN,
	})
}

// UnregisterAccountHandler closes an account. Transfer history is retained.
func (h *SettlementHandlers) UnregisterAccountHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	account := chi.URLParam(r, "account")
	if err := h.service.UnregisterAccount(caller, domain.Address(account)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleAccountActiveHandler flips the active flag and reports the new state.
func (h *SettlementHandlers) ToggleAccountActiveHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	account := chi.URLParam(r, "account")
	active, err := h.service.ToggleAccountActive(caller, domain.Address(account))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

type whitelistRequest struct {
	Identity string `json:"identity"`
}

// WhitelistHandler authorizes an identity to operate an account.
func (h *SettlementHandlers) WhitelistHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	account := chi.URLParam(r, "account")
	var req whitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.Whitelist(caller, domain.Address(account), domain.Identity(req.Identity)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "whitelisted"})
}

// RemoveFromWhitelistHandler revokes an operating identity.
func (h *SettlementHandlers) RemoveFromWhitelistHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	account := chi.URLParam(r, "account")
	var req whitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.RemoveFromWhitelist(caller, domain.Address(account), domain.Identity(req.Identity)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type numAttributeRequest struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

// SetNumAttributeHandler sets a numeric account attribute, such as the
// overdraft limit under the "overdraftAmount" key.
func (h *SettlementHandlers) SetNumAttributeHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	account := chi.URLParam(r, "account")
	var req numAttributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.SetNumAttribute(caller, domain.Address(account), req.Key, req.Value); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "set"})
}

type strAttributeRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetStrAttributeHandler sets a string account attribute.
func (h *SettlementHandlers) SetStrAttributeHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	account := chi.URLParam(r, "account")
	var req strAttributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.SetStrAttribute(caller, domain.Address(account), req.Key, req.Value); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "set"})
}

type registerCorrespondentRequest struct {
	Bank        string `json:"bank"`
	Counterpart string `json:"counterpart"`
	Nostro      string `json:"nostro"`
	Loro        string `json:"loro"`
}

// RegisterCorrespondentHandler records one side of a correspondent
// relationship.
func (h *SettlementHandlers) RegisterCorrespondentHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req registerCorrespondentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	err := h.service.RegisterCorrespondent(caller, domain.Address(req.Bank), domain.Address(req.Counterpart),
		domain.Address(req.Nostro), domain.Address(req.Loro))
	if err != nil {
		log.Printf("level=warn component=api endpoint=register_correspondent outcome=failed bank=%s counterpart=%s err=%v", req.Bank, req.Counterpart, err)
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// UnregisterCorrespondentHandler removes a correspondent entry.
func (h *SettlementHandlers) UnregisterCorrespondentHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	bank := chi.URLParam(r, "bank")
	counterpart := chi.URLParam(r, "counterpart")
	if err := h.service.UnregisterCorrespondent(caller, domain.Address(bank), domain.Address(counterpart)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type creditNostroRequest struct {
	Bank    string `json:"bank"`
	Nostro  string `json:"nostro"`
	Amount  int64  `json:"amount"`
	Details string `json:"details"`
}

// CreditNostroHandler funds a nostro account and its loro mirror.
func (h *SettlementHandlers) CreditNostroHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req creditNostroRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.CreditNostro(caller, domain.Address(req.Bank), domain.Address(req.Nostro), req.Amount, req.Details); err != nil {
		log.Printf("level=warn component=api endpoint=credit_nostro outcome=failed bank=%s nostro=%s err=%v", req.Bank, req.Nostro, err)
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "credited"})
}

type nettingRequest struct {
	Bank        string `json:"bank"`
	Counterpart string `json:"counterpart"`
	Amount      int64  `json:"amount"`
}

// RequestNettingHandler clears matching nostro positions between two banks.
func (h *SettlementHandlers) RequestNettingHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	var req nettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.RequestNetting(caller, domain.Address(req.Bank), domain.Address(req.Counterpart), req.Amount); err != nil {
		log.Printf("level=warn component=api endpoint=netting outcome=failed bank=%s counterpart=%s amount=%d err=%v", req.Bank, req.Counterpart, req.Amount, err)
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "netted"})
}

// PendingTransfersHandler lists transfers awaiting a decision at a bank.
func (h *SettlementHandlers) PendingTransfersHandler(w http.ResponseWriter, r *http.Request) {
	bank := chi.URLParam(r, "bank")
	pending, err := h.service.PendingTransfers(domain.Address(bank))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]transferResponse, 0, len(pending))
	for _, t := range pending {
		out = append(out, buildTransferResponse(t))
	}
	h.writeJSON(w, http.StatusOK, out)
}

type decisionRequest struct {
	TransferID uint64 `json:"transfer_id"`
	Decision   int    `json:"decision"`
	Reason     string `json:"reason"`
}

// DecideTransferHandler resolves a pending transfer. The decision code is the
// target status: 3 rejects, 4 completes.
func (h *SettlementHandlers) DecideTransferHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := GetCallerIdentity(r.Context())
	if !ok {
		http.Error(w, "Could not get caller identity from context", http.StatusInternalServerError)
		return
	}
	bank := chi.URLParam(r, "bank")
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	t, err := h.service.DecidePendingTransfer(r.Context(), caller, domain.Address(bank), req.TransferID,
		domain.TransferStatus(req.Decision), req.Reason)
	if err != nil {
		log.Printf("level=warn component=api endpoint=decide_transfer outcome=failed bank=%s transfer_id=%d decision=%d err=%v", bank, req.TransferID, req.Decision, err)
		h.writeDomainError(w, err)
		return
	}
	log.Printf("level=info component=api endpoint=decide_transfer outcome=%s bank=%s transfer_id=%d", t.Status, bank, t.ID)
	h.writeJSON(w, http.StatusOK, buildTransferResponse(t))
}
