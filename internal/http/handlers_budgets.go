package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := req.toNewBudget()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	b, err := s.budgets.Create(r.Context(), getUserID(r.Context()), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusCreated, newBudgetResponse(b))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	page, err := ParsePage(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	list, total, err := s.budgets.List(r.Context(), getUserID(r.Context()), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]budgetResponse, 0, len(list))
	for _, b := range list {
		out = append(out, newBudgetResponse(b))
	}
	s.ok(w, http.StatusOK, listResponse[budgetResponse]{Count: total, Results: out})
}

// handleGetBudget returns the budget with its member items and summary.
func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	d, err := s.budgets.Detail(r.Context(), getUserID(r.Context()), chi.URLParam(r, "budgetID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, budgetDetailResponse{
		budgetResponse: newBudgetResponse(d.Budget),
		ItemDetails:    newItemResponses(d.Items),
		Summary:        newSummaryResponse(d.Summary),
	})
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	b, err := s.budgets.Update(r.Context(), getUserID(r.Context()), chi.URLParam(r, "budgetID"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, newBudgetResponse(b))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.budgets.Delete(r.Context(), getUserID(r.Context()), chi.URLParam(r, "budgetID")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.noContent(w)
}

func (s *Server) handleBudgetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.budgets.Summary(r.Context(), getUserID(r.Context()), chi.URLParam(r, "budgetID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, newSummaryResponse(sum))
}

func (s *Server) handleAddBudgetItem(w http.ResponseWriter, r *http.Request) {
	var req budgetItemRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	b, err := s.budgets.AddItem(r.Context(), getUserID(r.Context()), chi.URLParam(r, "budgetID"), req.ItemID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, newBudgetResponse(b))
}

func (s *Server) handleRemoveBudgetItem(w http.ResponseWriter, r *http.Request) {
	b, err := s.budgets.RemoveItem(r.Context(), getUserID(r.Context()), chi.URLParam(r, "budgetID"), chi.URLParam(r, "itemID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, newBudgetResponse(b))
}
