package streamhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arunksingh16/mcp/internal/jsonrpc"
	"github.com/arunksingh16/mcp/lifecycle"
	"github.com/arunksingh16/mcp/mcp"
	"github.com/arunksingh16/mcp/registry"
	"github.com/arunksingh16/mcp/toolsets/calc"
)

func testFactory() *registry.Registry {
	return registry.MustNew(
		calc.Tool(),
		registry.NewPrompt("review", func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
			return registry.UserText("code review", "Review this: "+args["code"]), nil
		}, registry.WithPromptArgument("code", "Code to review", true)),
	)
}

func newTestHandler(t *testing.T) (*Handler, *lifecycle.Coordinator) {
	t.Helper()
	coord := lifecycle.NewCoordinator(slog.New(slog.DiscardHandler))
	h, err := New("/mcp", testFactory, coord,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithServerInfo(mcp.ImplementationInfo{Name: "test-server", Version: "0.0.1"}),
	)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h, coord
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ID json.RawMessage `json:"id"`
}

func postJSON(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, *rpcResponse) {
	t.Helper()
	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Body.Len() == 0 {
		return w, nil
	}
	var resp rpcResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v\nbody: %s", err, w.Body.String())
	}
	return w, &resp
}

func TestNonPOSTVerbsGetExact405Body(t *testing.T) {
	h, _ := newTestHandler(t)
	want := `{"jsonrpc":"2.0","error":{"code":-32000,"message":"Method not allowed."},"id":null}`
	targets := []struct {
		verb string
		url  string
	}{
		{"GET", "/mcp"},
		{"DELETE", "/mcp"},
		{"PUT", "/mcp"},
		{"GET", "/mcp?sessionId=123"},
		{"DELETE", "/mcp?foo=bar&baz=qux"},
	}
	for _, tc := range targets {
		req := httptest.NewRequest(tc.verb, tc.url, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: status = %d, want 405", tc.verb, tc.url, w.Code)
		}
		if got := w.Body.String(); got != want {
			t.Errorf("%s %s: body = %q, want %q", tc.verb, tc.url, got, want)
		}
	}
}

func TestMalformedJSONYieldsParseErrorWithNullID(t *testing.T) {
	h, _ := newTestHandler(t)
	for _, body := range []string{`{not json`, `"just a string"`, `{"jsonrpc":"1.0","method":"ping","id":1}`} {
		w, resp := postJSON(t, h, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%q: status = %d, want 400", body, w.Code)
		}
		if resp == nil || resp.Error == nil || resp.Error.Code != -32700 {
			t.Errorf("%q: expected -32700, got %+v", body, resp)
			continue
		}
		if string(resp.ID) != "null" {
			t.Errorf("%q: id = %s, want null", body, resp.ID)
		}
	}
}

func TestBatchRequestsRejected(t *testing.T) {
	h, _ := newTestHandler(t)
	w, resp := postJSON(t, h, `[{"jsonrpc":"2.0","method":"ping","id":1}]`)
	if w.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != -32700 {
		t.Fatalf("batch: status=%d resp=%+v", w.Code, resp)
	}
}

func TestUnsupportedMediaType(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"ping","id":1}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", w.Code)
	}
}

func TestNotificationAcceptedWithoutBody(t *testing.T) {
	h, _ := newTestHandler(t)
	w, _ := postJSON(t, h, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("notification response must have no body, got %q", w.Body.String())
	}
}

func TestInitializeNegotiatesProtocolVersion(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"jsonrpc":"2.0","method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"c","version":"1"}},"id":1}`
	_, resp := postJSON(t, h, body)
	var res mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.ProtocolVersion != "2025-03-26" {
		t.Fatalf("known version must be echoed, got %q", res.ProtocolVersion)
	}
	if res.ServerInfo.Name != "test-server" {
		t.Fatalf("serverInfo = %+v", res.ServerInfo)
	}
	if res.Capabilities.Tools == nil || res.Capabilities.Tools.ListChanged {
		t.Fatalf("capabilities = %+v", res.Capabilities)
	}

	// Unknown requested versions fall back to the latest supported one.
	body = `{"jsonrpc":"2.0","method":"initialize","params":{"protocolVersion":"1999-01-01"},"id":2}`
	_, resp = postJSON(t, h, body)
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.ProtocolVersion != mcp.LatestProtocolVersion {
		t.Fatalf("fallback version = %q", res.ProtocolVersion)
	}
}

func TestCalculatorOverHTTP(t *testing.T) {
	h, _ := newTestHandler(t)
	cases := []struct {
		args string
		want string
	}{
		{`{"operation":"add","a":2,"b":3}`, "5"},
		{`{"operation":"multiply","a":3,"b":4}`, "12"},
		{`{"operation":"subtract","a":10,"b":4}`, "6"},
	}
	for i, tc := range cases {
		body := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"calculator","arguments":%s},"id":%d}`, tc.args, i+1)
		w, resp := postJSON(t, h, body)
		if w.Code != http.StatusOK || resp.Error != nil {
			t.Fatalf("%s: status=%d err=%+v", tc.args, w.Code, resp.Error)
		}
		var res mcp.CallToolResult
		if err := json.Unmarshal(resp.Result, &res); err != nil {
			t.Fatalf("result: %v", err)
		}
		if res.IsError || res.Content[0].Text != tc.want {
			t.Errorf("%s: got %+v, want %q", tc.args, res, tc.want)
		}
	}
}

func TestDivideByZeroIsDomainErrorNotProtocolError(t *testing.T) {
	h, _ := newTestHandler(t)
	body := `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"calculator","arguments":{"operation":"divide","a":4,"b":0}},"id":9}`
	w, resp := postJSON(t, h, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp.Error != nil {
		t.Fatalf("domain failure must not be a protocol error: %+v", resp.Error)
	}
	var res mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if !res.IsError || res.Content[0].Text != "Error: Cannot divide by zero" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestUnknownToolNameIsInvalidParams(t *testing.T) {
	h, _ := newTestHandler(t)
	body := `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"no-such-tool","arguments":{}},"id":3}`
	_, resp := postJSON(t, h, body)
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestUnknownMethodIsMethodNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	body := `{"jsonrpc":"2.0","method":"resources/list","id":4}`
	_, resp := postJSON(t, h, body)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected -32601, got %+v", resp.Error)
	}
	if string(resp.ID) != "4" {
		t.Fatalf("id = %s, want 4", resp.ID)
	}
}

func TestPromptsRoundTrip(t *testing.T) {
	h, _ := newTestHandler(t)

	_, resp := postJSON(t, h, `{"jsonrpc":"2.0","method":"prompts/list","id":1}`)
	var list mcp.ListPromptsResult
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Prompts) != 1 || list.Prompts[0].Name != "review" {
		t.Fatalf("prompts = %+v", list.Prompts)
	}

	body := `{"jsonrpc":"2.0","method":"prompts/get","params":{"name":"review","arguments":{"code":"x := 1"}},"id":2}`
	_, resp = postJSON(t, h, body)
	var got mcp.GetPromptResult
	if err := json.Unmarshal(resp.Result, &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != 1 || !strings.Contains(got.Messages[0].Content.Text, "x := 1") {
		t.Fatalf("messages = %+v", got.Messages)
	}

	// A missing required argument is an argument fault.
	_, resp = postJSON(t, h, `{"jsonrpc":"2.0","method":"prompts/get","params":{"name":"review"},"id":3}`)
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestSSEResponseFraming(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"ping","id":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "data: ") || !strings.Contains(body, `"jsonrpc":"2.0"`) {
		t.Fatalf("unexpected SSE body: %q", body)
	}
}

func TestRequestIDEchoedVerbatim(t *testing.T) {
	h, _ := newTestHandler(t)
	for _, id := range []string{`42`, `"abc-123"`, `7.5`} {
		body := fmt.Sprintf(`{"jsonrpc":"2.0","method":"ping","id":%s}`, id)
		_, resp := postJSON(t, h, body)
		if string(resp.ID) != id {
			t.Errorf("id %s echoed as %s", id, resp.ID)
		}
	}
}

func TestConcurrentExchangesStayIsolated(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := i, i+1
			body := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"calculator","arguments":{"operation":"add","a":%d,"b":%d}},"id":%d}`, a, b, i)
			req, err := http.NewRequest("POST", srv.URL+"/mcp", strings.NewReader(body))
			if err != nil {
				errs <- err
				return
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := srv.Client().Do(req)
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			var out rpcResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				errs <- err
				return
			}
			if string(out.ID) != fmt.Sprintf("%d", i) {
				errs <- fmt.Errorf("request %d got id %s", i, out.ID)
				return
			}
			var res mcp.CallToolResult
			if err := json.Unmarshal(out.Result, &res); err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("%d", a+b); res.Content[0].Text != want {
				errs <- fmt.Errorf("request %d got %q, want %q", i, res.Content[0].Text, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestDrainingRejectsNewExchanges(t *testing.T) {
	h, coord := newTestHandler(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := coord.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	w, resp := postJSON(t, h, `{"jsonrpc":"2.0","method":"ping","id":1}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected error body, got %+v", resp)
	}

	// The liveness probe reports draining too.
	req := httptest.NewRequest("GET", "/healthz", nil)
	hw := httptest.NewRecorder()
	h.ServeHTTP(hw, req)
	if hw.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz status = %d, want 503", hw.Code)
	}
}

func TestHealthzOK(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestWriteEnvelopeSerializesFraming(t *testing.T) {
	env := jsonrpc.NewError(nil, jsonrpc.ErrorCodeMethodNotAllowed, "Method not allowed.")
	b, err := env.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := string(b); got != methodNotAllowedBody {
		t.Fatalf("envelope drifted from the fixed rejection body:\n got %s\nwant %s", got, methodNotAllowedBody)
	}
}
