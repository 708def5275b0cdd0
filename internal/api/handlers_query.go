/**
 * @description
 * Read-only HTTP handlers: account and bank projections, transfer lookup,
 * correspondent entries and IBAN decoding.
 */

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openclearing/settlement-service/internal/domain"
)

// AccountInfoHandler returns the projection of an account.
func (h *SettlementHandlers) AccountInfoHandler(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	view, err := h.service.AccountInfo(domain.Address(account))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// BankInfoHandler returns the projection of a bank, resolved by address or BIC.
func (h *SettlementHandlers) BankInfoHandler(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "bank")
	addr := domain.Address(ref)
	view, err := h.service.BankInfo(addr)
	if err != nil {
		if byBIC, berr := h.service.BankByBIC(ref); berr == nil {
			view, err = h.service.BankInfo(byBIC)
		}
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// TransferInfoHandler returns a transfer by bank and id, consulting the
// archive for records no longer in the live ledger.
func (h *SettlementHandlers) TransferInfoHandler(w http.ResponseWriter, r *http.Request) {
	bank := chi.URLParam(r, "bank")
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid transfer id", http.StatusBadRequest)
		return
	}

	t, terr := h.service.TransferInfo(r.Context(), domain.Address(bank), id)
	if terr != nil {
		h.writeDomainError(w, terr)
		return
	}
	h.writeJSON(w, http.StatusOK, buildTransferResponse(t))
}

// CorrespondentInfoHandler returns a bank's correspondent entry for a
// counterpart.
func (h *SettlementHandlers) CorrespondentInfoHandler(w http.ResponseWriter, r *http.Request) {
	bank := chi.URLParam(r, "bank")
	counterpart := chi.URLParam(r, "counterpart")
	view, err := h.service.CorrespondentInfo(domain.Address(bank), domain.Address(counterpart))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// DecodeIBANHandler extracts the French bank, branch and account codes from
// an IBAN.
func (h *SettlementHandlers) DecodeIBANHandler(w http.ResponseWriter, r *http.Request) {
	value := chi.URLParam(r, "iban")
	details, err := h.service.DecodeIBAN(value)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, details)
}
