package http

import (
	"net/http"
	"strings"

	"tally/internal/core"
)

type createAccountRequest struct {
	Name    string `json:"name"`
	Balance string `json:"balance"`
}

type accountResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Balance      string `json:"balance"`
	BalanceCents int64  `json:"balance_cents"`
}

func toAccountResponse(a core.Account) accountResponse {
	return accountResponse{
		ID:           a.ID,
		Name:         a.Name,
		Balance:      a.Balance.String(),
		BalanceCents: a.Balance.Cents,
	}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request, ownerID int64) {
	accounts, err := s.queries.ListAccounts(r.Context(), ownerID)
	if err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}
	resp := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	respondJSON(r.Context(), w, http.StatusOK, resp)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request, ownerID int64) {
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, http.StatusBadRequest, err.Error())
		return
	}

	balance := core.Money{}
	if strings.TrimSpace(req.Balance) != "" {
		parsed, err := core.ParseBalance(req.Balance)
		if err != nil {
			respondDomainError(r.Context(), w, err)
			return
		}
		balance = parsed
	}

	account := core.Account{
		OwnerID: ownerID,
		Name:    strings.TrimSpace(req.Name),
		Balance: balance,
	}
	if err := account.Validate(); err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}

	if err := s.ledger.CreateAccount(r.Context(), &account); err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}
	s.queries.InvalidateAccounts(ownerID)

	respondJSON(r.Context(), w, http.StatusCreated, toAccountResponse(account))
}
