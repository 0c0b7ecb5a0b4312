// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	toolListAccessibleCustomers = "list_accessible_customers"
	toolSearch                  = "search"

	msgSearchRequired = "Required: customer_id (string), resource (string), fields (string[])"
	msgArgsNotObject  = "arguments must be a JSON object"
)

func (a *API) listAccessibleCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.opts.Invoker.Invoke(r.Context(), toolListAccessibleCustomers, map[string]any{})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}
	// Non-object bodies carry none of the required members.
	fields, _ := body.(map[string]any)

	args, ok := searchArgs(fields)
	if !ok {
		writeError(w, http.StatusBadRequest, msgSearchRequired)
		return
	}

	result, err := a.opts.Invoker.Invoke(r.Context(), toolSearch, args)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (a *API) callTool(w http.ResponseWriter, r *http.Request) {
	tool := chi.URLParam(r, "tool")

	body, ok := a.readBody(w, r)
	if !ok {
		return
	}
	args, isObject := body.(map[string]any)
	if body != nil && !isObject {
		writeError(w, http.StatusBadRequest, msgArgsNotObject)
		return
	}

	result, err := a.opts.Invoker.Invoke(r.Context(), tool, args)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// readBody decodes the request body, keeping numbers as json.Number. An
// empty body decodes to nil. On failure the error response is written and
// ok is false.
func (a *API) readBody(w http.ResponseWriter, r *http.Request) (body any, ok bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errBodyTooLarge.Error())
			return nil, false
		}
		writeError(w, http.StatusBadRequest, errInvalidBody.Error())
		return nil, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, true
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || dec.More() {
		writeError(w, http.StatusBadRequest, errInvalidBody.Error())
		return nil, false
	}
	return body, true
}

// searchArgs validates a search body and builds the tool arguments.
func searchArgs(body map[string]any) (map[string]any, bool) {
	customerID, resource := body["customer_id"], body["resource"]
	fields, _ := body["fields"].([]any)
	if !truthy(customerID) || !truthy(resource) || len(fields) == 0 {
		return nil, false
	}

	args := map[string]any{
		"customer_id": customerID,
		"resource":    resource,
		"fields":      fields,
	}
	if conditions := searchConditions(body); len(conditions) > 0 {
		args["conditions"] = conditions
	}
	if orderBy, ok := body["order_by"].(string); ok {
		if orderBy = strings.TrimSpace(orderBy); orderBy != "" {
			args["order_by"] = orderBy
		}
	}
	if limit, ok := body["limit"].(json.Number); ok {
		args["limit"] = limit
	}
	return args, true
}

// searchConditions accepts either a conditions list, keeping its non-blank
// strings, or a single where clause.
func searchConditions(body map[string]any) []string {
	if list, ok := body["conditions"].([]any); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if where, ok := body["where"].(string); ok {
		if where = strings.TrimSpace(where); where != "" {
			return []string{where}
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}
