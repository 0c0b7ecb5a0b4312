// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/go-core-stack/mcp-actions-wrapper/pkg/mcp"
	"github.com/go-core-stack/mcp-actions-wrapper/pkg/metrics"
)

const testToken = "secret-token"

type call struct {
	tool string
	args map[string]any
}

type fakeInvoker struct {
	calls  []call
	result any
	err    error
}

func (f *fakeInvoker) Invoke(_ context.Context, tool string, args map[string]any) (any, error) {
	f.calls = append(f.calls, call{tool: tool, args: args})
	return f.result, f.err
}

func newTestHandler(t *testing.T, inv Invoker, mutate ...func(*Opts)) http.Handler {
	t.Helper()
	o := Opts{
		Invoker:  inv,
		APIToken: testToken,
		Logger:   zerolog.Nop(),
	}
	for _, fn := range mutate {
		fn(&o)
	}
	return New(o)
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func authed() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func TestHealthzIsPublic(t *testing.T) {
	h := newTestHandler(t, &fakeInvoker{})

	rec := do(h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestAPIRoutesRequireToken(t *testing.T) {
	inv := &fakeInvoker{}
	h := newTestHandler(t, inv)

	for _, path := range []string{"/api/list-accessible-customers", "/api/search", "/api/tools/search"} {
		rec := do(h, http.MethodPost, path, `{}`, map[string]string{"Authorization": "Bearer wrong"})
		require.Equal(t, http.StatusForbidden, rec.Code, path)
		require.JSONEq(t, `{"error":"Forbidden"}`, rec.Body.String(), path)
	}
	require.Empty(t, inv.calls)
}

func TestAPIAcceptsAlternateTokenHeaders(t *testing.T) {
	h := newTestHandler(t, &fakeInvoker{result: []any{}})

	for _, headers := range []map[string]string{
		{"Authorization": testToken},
		{"X-Api-Key": testToken},
		{"Api-Key": testToken},
	} {
		rec := do(h, http.MethodPost, "/api/list-accessible-customers", "", headers)
		require.Equal(t, http.StatusOK, rec.Code, headers)
	}
}

func TestListAccessibleCustomers(t *testing.T) {
	inv := &fakeInvoker{result: []any{"customers/1", "customers/2"}}
	h := newTestHandler(t, inv)

	rec := do(h, http.MethodPost, "/api/list-accessible-customers", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"customers":["customers/1","customers/2"]}`, rec.Body.String())

	require.Len(t, inv.calls, 1)
	require.Equal(t, toolListAccessibleCustomers, inv.calls[0].tool)
	require.Empty(t, inv.calls[0].args)
}

func TestListAccessibleCustomersNullResult(t *testing.T) {
	h := newTestHandler(t, &fakeInvoker{})

	rec := do(h, http.MethodPost, "/api/list-accessible-customers", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"customers":null}`, rec.Body.String())
}

func TestSearchForwardsArguments(t *testing.T) {
	inv := &fakeInvoker{result: map[string]any{"rows": []any{}}}
	h := newTestHandler(t, inv)

	body := `{
		"customer_id": "123",
		"resource": "campaign",
		"fields": ["campaign.id", "campaign.name"],
		"conditions": ["campaign.status = 'ENABLED'", "  ", 7],
		"where": "ignored",
		"order_by": "  campaign.id  ",
		"limit": 10
	}`
	rec := do(h, http.MethodPost, "/api/search", body, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"result":{"rows":[]}}`, rec.Body.String())

	require.Len(t, inv.calls, 1)
	got := inv.calls[0]
	require.Equal(t, toolSearch, got.tool)

	encoded, err := json.Marshal(got.args)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"customer_id": "123",
		"resource": "campaign",
		"fields": ["campaign.id", "campaign.name"],
		"conditions": ["campaign.status = 'ENABLED'"],
		"order_by": "campaign.id",
		"limit": 10
	}`, string(encoded))
}

func TestSearchWhereFallback(t *testing.T) {
	inv := &fakeInvoker{}
	h := newTestHandler(t, inv)

	body := `{"customer_id":"1","resource":"ad_group","fields":["ad_group.id"],"where":"  ad_group.status = 'PAUSED' ","limit":"5","order_by":"   "}`
	rec := do(h, http.MethodPost, "/api/search", body, authed())
	require.Equal(t, http.StatusOK, rec.Code)

	args := inv.calls[0].args
	require.Equal(t, []string{"ad_group.status = 'PAUSED'"}, args["conditions"])
	require.NotContains(t, args, "limit")
	require.NotContains(t, args, "order_by")
}

func TestSearchOmitsEmptyConditions(t *testing.T) {
	inv := &fakeInvoker{}
	h := newTestHandler(t, inv)

	body := `{"customer_id":"1","resource":"ad_group","fields":["ad_group.id"],"conditions":["", " "],"where":"x = 1"}`
	rec := do(h, http.MethodPost, "/api/search", body, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, inv.calls[0].args, "conditions")
}

func TestSearchValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "empty object", body: `{}`},
		{name: "array body", body: `[1,2]`},
		{name: "missing customer", body: `{"resource":"campaign","fields":["a"]}`},
		{name: "blank customer", body: `{"customer_id":"","resource":"campaign","fields":["a"]}`},
		{name: "missing resource", body: `{"customer_id":"1","fields":["a"]}`},
		{name: "empty fields", body: `{"customer_id":"1","resource":"campaign","fields":[]}`},
		{name: "fields not a list", body: `{"customer_id":"1","resource":"campaign","fields":"a"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := &fakeInvoker{}
			h := newTestHandler(t, inv)

			rec := do(h, http.MethodPost, "/api/search", tc.body, authed())
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.JSONEq(t, `{"error":"`+msgSearchRequired+`"}`, rec.Body.String())
			require.Empty(t, inv.calls)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	h := newTestHandler(t, &fakeInvoker{})

	for _, body := range []string{`{"customer_id":`, `{} {}`, `nope`} {
		rec := do(h, http.MethodPost, "/api/search", body, authed())
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.JSONEq(t, `{"error":"invalid JSON body"}`, rec.Body.String(), body)
	}
}

func TestOversizeBody(t *testing.T) {
	h := newTestHandler(t, &fakeInvoker{}, func(o *Opts) { o.MaxBodyBytes = 16 })

	rec := do(h, http.MethodPost, "/api/tools/search", `{"customer_id":"0123456789"}`, authed())
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.JSONEq(t, `{"error":"request body too large"}`, rec.Body.String())
}

func TestInvocationErrorsMapTo500(t *testing.T) {
	errs := []error{
		&mcp.TransportError{Message: "Unexpected MCP response (no SSE data): "},
		&mcp.ProtocolError{Message: "bad request", Code: -32600},
		&mcp.ToolExecutionError{Tool: "search", Message: "quota exceeded"},
		errors.New("dial tcp: connection refused"),
	}

	for _, invErr := range errs {
		h := newTestHandler(t, &fakeInvoker{err: invErr})

		rec := do(h, http.MethodPost, "/api/list-accessible-customers", "", authed())
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, invErr.Error(), body["error"])
	}
}

func TestCallToolPassesArguments(t *testing.T) {
	inv := &fakeInvoker{result: "done"}
	h := newTestHandler(t, inv)

	rec := do(h, http.MethodPost, "/api/tools/get_campaign", `{"id":"42","deep":{"x":[1]}}`, authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"result":"done"}`, rec.Body.String())

	require.Len(t, inv.calls, 1)
	require.Equal(t, "get_campaign", inv.calls[0].tool)
	require.Equal(t, "42", inv.calls[0].args["id"])
}

func TestCallToolEmptyBody(t *testing.T) {
	inv := &fakeInvoker{}
	h := newTestHandler(t, inv)

	rec := do(h, http.MethodPost, "/api/tools/ping", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, inv.calls[0].args)
}

func TestCallToolRejectsNonObject(t *testing.T) {
	inv := &fakeInvoker{}
	h := newTestHandler(t, inv)

	rec := do(h, http.MethodPost, "/api/tools/ping", `["a"]`, authed())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"`+msgArgsNotObject+`"}`, rec.Body.String())
	require.Empty(t, inv.calls)
}

func TestResponsesDoNotEscapeHTML(t *testing.T) {
	h := newTestHandler(t, &fakeInvoker{result: "a < b && c > d"})

	rec := do(h, http.MethodPost, "/api/tools/cmp", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"a < b && c > d"`)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	h := newTestHandler(t, &fakeInvoker{}, func(o *Opts) { o.Metrics = m })

	rec := do(h, http.MethodPost, "/api/list-accessible-customers", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(),
		`mcp_actions_wrapper_http_requests_total{code="200",route="/api/list-accessible-customers"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	h := newTestHandler(t, &fakeInvoker{})

	rec := do(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(t, &fakeInvoker{}, func(o *Opts) { o.CORSOrigins = []string{"https://app.example.com"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPanicsAreRecovered(t *testing.T) {
	h := newTestHandler(t, panicInvoker{})

	rec := do(h, http.MethodPost, "/api/tools/x", "", authed())
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicInvoker struct{}

func (panicInvoker) Invoke(context.Context, string, map[string]any) (any, error) {
	panic("boom")
}
