package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := req.toNewItem()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	item, err := s.ledger.CreateItem(r.Context(), getUserID(r.Context()), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusCreated, newItemResponse(item))
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseItemFilter(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter.UserID = getUserID(r.Context())

	items, total, err := s.ledger.ListItems(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, listResponse[itemResponse]{Count: total, Results: newItemResponses(items)})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.ledger.GetOwnedItem(r.Context(), getUserID(r.Context()), chi.URLParam(r, "itemID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, newItemResponse(item))
}

// handleReplaceItem is PUT: name and amount must be present.
func (s *Server) handleReplaceItem(w http.ResponseWriter, r *http.Request) {
	s.updateItem(w, r, true)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	s.updateItem(w, r, false)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request, full bool) {
	ctx := r.Context()
	var req itemRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if full {
		if err := req.requireFull(); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	patch, err := req.toPatch()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	current, err := s.ledger.GetOwnedItem(ctx, getUserID(ctx), chi.URLParam(r, "itemID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := s.ledger.UpdateItem(ctx, current.ID, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, newItemResponse(item))
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	item, err := s.ledger.GetOwnedItem(ctx, getUserID(ctx), chi.URLParam(r, "itemID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.DeleteItem(ctx, item.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.noContent(w)
}
