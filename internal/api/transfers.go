package api

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/settleops/transferd/internal/store"
)

type transferRequest struct {
	SenderAccountID   int64           `json:"sender_account_id"`
	ReceiverAccountID int64           `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
}

func (r transferRequest) validate() string {
	if r.Amount.Sign() <= 0 {
		return "positive amount required"
	}
	if r.SenderAccountID == r.ReceiverAccountID {
		return "self-transfer not allowed"
	}
	return ""
}

// CreateTransfer records a PENDING transfer intent; settlement happens
// asynchronously in the engine. Status is never client-settable.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondWithError(w, http.StatusUnprocessableEntity, msg)
		return
	}
	transfer, err := h.store.CreateTransfer(r.Context(), req.SenderAccountID, req.ReceiverAccountID, req.Amount)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, transfer)
}

func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}
	transfer, err := h.store.GetTransfer(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, transfer)
}

func (h *Handler) UpdateTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondWithError(w, http.StatusUnprocessableEntity, msg)
		return
	}
	transfer, err := h.store.UpdateTransfer(r.Context(), id, store.TransferUpdate{
		SenderAccountID:   req.SenderAccountID,
		ReceiverAccountID: req.ReceiverAccountID,
		Amount:            req.Amount,
	})
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, transfer)
}

func (h *Handler) DeleteTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}
	if err := h.store.DeleteTransfer(r.Context(), id); err != nil {
		h.respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	page := intQuery(r, "page", 0)
	pageSize := intQuery(r, "pageSize", 10)
	result, err := h.store.ListTransfers(r.Context(), page, pageSize)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
