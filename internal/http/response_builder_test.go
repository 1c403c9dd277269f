package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "familybudget/internal/errors"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return env
}

func TestResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Data(map[string]string{"id": "42"}).
		Write(w, nil)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Error("Success = false, want true")
	}
	if data, _ := env.Data.(map[string]any); data["id"] != "42" {
		t.Errorf("Data = %v", env.Data)
	}
}

func TestResponseBuilder_Empty(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().Status(http.StatusNoContent).Header("X-Custom", "value").Empty().Write(w, nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
	if w.Header().Get("X-Custom") != "value" {
		t.Error("custom header not set")
	}
}

func TestErrorResponse_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		retryAfter string
	}{
		{"validation", apperrors.ValidationField("name", "invalid_length", "too short"), http.StatusBadRequest, "VALIDATION", ""},
		{"not found", apperrors.NotFound("item not found"), http.StatusNotFound, "NOT_FOUND", ""},
		{"unauthorized", apperrors.Unauthorized("bad token"), http.StatusUnauthorized, "UNAUTHORIZED", ""},
		{"forbidden", apperrors.Forbidden("not yours"), http.StatusForbidden, "FORBIDDEN", ""},
		{"concurrency", apperrors.Concurrency(errors.New("lock wait")), http.StatusServiceUnavailable, "CONCURRENCY", "1"},
		{"consistency", apperrors.Consistency("aggregate below zero", nil), http.StatusInternalServerError, "CONSISTENCY", ""},
		{"wrapped", fmt.Errorf("create item: %w", apperrors.NotFound("user not found")), http.StatusNotFound, "NOT_FOUND", ""},
		{"plain", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorResponse(tt.err).Write(w, nil)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.retryAfter)
			}
			env := decodeEnvelope(t, w)
			if env.Success {
				t.Error("Success = true, want false")
			}
			if env.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", env.Code, tt.wantCode)
			}
		})
	}
}

func TestErrorResponse_HidesInternalCause(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(errors.New("SELECT * FROM users exploded")).Write(w, nil)

	env := decodeEnvelope(t, w)
	if env.Error != "internal server error" {
		t.Errorf("Error = %q", env.Error)
	}
}

func TestErrorResponse_FieldDetails(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(apperrors.ValidationField("name", "name_already_exist", "An item already exists with this name.")).Write(w, nil)

	env := decodeEnvelope(t, w)
	details, ok := env.Details.(map[string]any)
	if !ok {
		t.Fatalf("Details = %T, want object", env.Details)
	}
	name, _ := details["name"].(map[string]any)
	if name["code"] != "name_already_exist" {
		t.Errorf("details.name = %v", details["name"])
	}
}
