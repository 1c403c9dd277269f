// Package http exposes the budget API over JSON.
//
// This file implements utilities for decoding request bodies and query
// strings into domain inputs.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
)

// maxBodyBytes caps request bodies; the API never needs more.
const maxBodyBytes = 1 << 20

// DecodeJSON reads one JSON value from the body into dst. Amount parse
// failures are reported against the amount field.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperrors.Validation("request body must not be empty")
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return apperrors.Validation("request body is not valid JSON")
		case errors.As(err, &typeErr):
			return apperrors.ValidationField(typeErr.Field, "invalid", fmt.Sprintf("must be a %s", typeErr.Type))
		case errors.As(err, &maxErr):
			return apperrors.Validationf("request body must not exceed %d bytes", maxErr.Limit)
		case isAmountError(err):
			return apperrors.ValidationField("amount", core.CodeInvalidAmount, err.Error())
		default:
			return apperrors.Validation(err.Error())
		}
	}
	if dec.More() {
		return apperrors.Validation("request body must contain a single JSON object")
	}
	return nil
}

func isAmountError(err error) bool {
	return errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrNegativeAmount) ||
		errors.Is(err, core.ErrAmountPrecision) ||
		errors.Is(err, core.ErrAmountTooLarge)
}

// ParsePage reads limit and offset. Absent values are left zero so the
// service applies its default.
func ParsePage(query url.Values) (core.Page, error) {
	fe := apperrors.FieldErrors{}
	var page core.Page
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fe.Add("limit", "invalid", "must be a positive integer")
		}
		page.Limit = n
	}
	if v := strings.TrimSpace(query.Get("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fe.Add("offset", "invalid", "must be a non-negative integer")
		}
		page.Offset = n
	}
	return page, fe.Err()
}

// ParseItemFilter reads the item listing filters: kind, min_amount,
// max_amount, search, limit and offset.
func ParseItemFilter(query url.Values) (core.ItemFilter, error) {
	fe := apperrors.FieldErrors{}
	var f core.ItemFilter

	if v := strings.TrimSpace(query.Get("kind")); v != "" {
		k, err := core.ParseKind(v)
		if err != nil {
			fe.Add("kind", core.CodeInvalidChoice, err.Error())
		}
		f.Kind = k
	}
	f.MinAmount = parseAmountParam(query, "min_amount", fe)
	f.MaxAmount = parseAmountParam(query, "max_amount", fe)
	f.Search = sanitizeInput(query.Get("search"))

	page, err := ParsePage(query)
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			for field, e := range appErr.Details.(apperrors.FieldErrors) {
				fe[field] = e
			}
		}
	}
	f.Page = page

	return f, fe.Err()
}

func parseAmountParam(query url.Values, key string, fe apperrors.FieldErrors) *core.Money {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil
	}
	m, err := core.ParseMoney(v)
	if err != nil {
		fe.Add(key, core.CodeInvalidAmount, err.Error())
		return nil
	}
	return &m
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
