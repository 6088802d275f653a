package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"tally/internal/core"
	"tally/internal/storage"
)

type transactionRequest struct {
	AccountID   int64  `json:"account_id"`
	CategoryID  int64  `json:"category_id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Kind        string `json:"kind"`
}

type transactionResponse struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	CategoryID  int64  `json:"category_id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date"`
	Kind        string `json:"kind"`
	CreatedAt   string `json:"created_at"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		AccountID:   t.AccountID,
		CategoryID:  t.CategoryID,
		Description: t.Description,
		Amount:      t.Amount.String(),
		AmountCents: t.Amount.Cents,
		Date:        t.Date.Format("2006-01-02"),
		Kind:        string(t.Kind),
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
}

// parseTransaction turns the request body into a domain transaction.
// Amount and date strings are parsed here; validation of the result
// belongs to the service.
func parseTransaction(req transactionRequest, ownerID int64) (core.Transaction, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		return core.Transaction{}, core.ErrInvalidDate
	}
	return core.Transaction{
		OwnerID:     ownerID,
		AccountID:   req.AccountID,
		CategoryID:  req.CategoryID,
		Description: strings.TrimSpace(req.Description),
		Amount:      amount,
		Date:        date,
		Kind:        core.Kind(req.Kind),
	}, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, ownerID int64) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, http.StatusBadRequest, err.Error())
		return
	}

	tr, err := parseTransaction(req, ownerID)
	if err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}

	created, err := s.transactions.Create(r.Context(), tr)
	if err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusCreated, toTransactionResponse(created))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, ownerID int64) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(r.Context(), w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, http.StatusBadRequest, err.Error())
		return
	}

	tr, err := parseTransaction(req, ownerID)
	if err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}

	updated, err := s.transactions.Update(r.Context(), ownerID, id, tr)
	if err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, toTransactionResponse(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, ownerID int64) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(r.Context(), w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	if err := s.transactions.Delete(r.Context(), ownerID, id); err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "transaction deleted"})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, ownerID int64) {
	var filter storage.TransactionFilter

	if v := strings.TrimSpace(r.URL.Query().Get("category")); v != "" {
		categoryID, err := strconv.ParseInt(v, 10, 64)
		if err != nil || categoryID <= 0 {
			respondError(r.Context(), w, http.StatusBadRequest, "invalid category filter")
			return
		}
		filter.CategoryID = categoryID
	}

	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if _, err := time.Parse("2006-01", v); err != nil {
			respondError(r.Context(), w, http.StatusBadRequest, "invalid month filter, expected YYYY-MM")
			return
		}
		filter.Month = v
	}

	transactions, err := s.queries.ListTransactions(r.Context(), ownerID, filter)
	if err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}
	resp := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, toTransactionResponse(t))
	}
	respondJSON(r.Context(), w, http.StatusOK, resp)
}
