// Package streamhttp serves the streamable HTTP transport: a single POST
// endpoint that carries one JSON-RPC exchange per request. Every request is
// served by a fresh server instance built from a registry factory, so no
// state survives between exchanges.
package streamhttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arunksingh16/mcp/internal/jsonrpc"
	"github.com/arunksingh16/mcp/internal/logctx"
	"github.com/arunksingh16/mcp/lifecycle"
	"github.com/arunksingh16/mcp/mcp"
	"github.com/arunksingh16/mcp/registry"
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// methodNotAllowedBody is written verbatim for any verb other than POST on
// the exchange path, before the request body is touched.
const methodNotAllowedBody = `{"jsonrpc":"2.0","error":{"code":-32000,"message":"Method not allowed."},"id":null}`

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger         *slog.Logger
	serverInfo     mcp.ImplementationInfo
	instructions   string
	requestTimeout time.Duration
	registerer     prometheus.Registerer
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *newConfig) { c.logger = log }
}

// WithServerInfo sets the implementation identity reported on initialize.
func WithServerInfo(info mcp.ImplementationInfo) Option {
	return func(c *newConfig) { c.serverInfo = info }
}

// WithInstructions sets the usage instructions reported on initialize.
func WithInstructions(s string) Option {
	return func(c *newConfig) { c.instructions = s }
}

// WithRequestTimeout bounds the wall time of a single exchange. Zero (the
// default) leaves the exchange bounded only by the client connection.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *newConfig) { c.requestTimeout = d }
}

// WithMetrics registers transport metrics against reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *newConfig) { c.registerer = reg }
}

// Handler is the streamable HTTP transport handler. It serves the JSON-RPC
// exchange on the configured path and a liveness probe on /healthz.
type Handler struct {
	log     *slog.Logger
	path    string
	factory registry.Factory
	coord   *lifecycle.Coordinator
	info    mcp.ImplementationInfo
	instr   string
	timeout time.Duration
	metrics *Metrics
	mux     *http.ServeMux
}

// New constructs a Handler serving the exchange on path.
func New(path string, factory registry.Factory, coord *lifecycle.Coordinator, opts ...Option) (*Handler, error) {
	if path == "" || path[0] != '/' {
		return nil, errors.New("exchange path must be absolute")
	}
	if factory == nil {
		return nil, errors.New("registry factory is required")
	}
	if coord == nil {
		return nil, errors.New("lifecycle coordinator is required")
	}
	cfg := newConfig{
		logger:     slog.Default(),
		serverInfo: mcp.ImplementationInfo{Name: "mcp-server", Version: "0.0.0"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &Handler{
		log:     cfg.logger,
		path:    path,
		factory: factory,
		coord:   coord,
		info:    cfg.serverInfo,
		instr:   cfg.instructions,
		timeout: cfg.requestTimeout,
		mux:     http.NewServeMux(),
	}
	if cfg.registerer != nil {
		h.metrics = NewMetrics(cfg.registerer)
	}
	h.mux.HandleFunc("POST "+path, h.handlePost)
	// Bare pattern catches every other verb so we control the 405 body
	// instead of ServeMux's plain-text default.
	h.mux.HandleFunc(path, h.handleMethodNotAllowed)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  newRequestCorrelationID(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	h.mux.ServeHTTP(rec, r.WithContext(ctx))
	h.metrics.observeHTTP(rec.codeLabel(), time.Since(start))
}

// handleMethodNotAllowed answers every non-POST verb on the exchange path.
// The body is fixed and written before any inspection of the request.
func (h *Handler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_, _ = w.Write([]byte(methodNotAllowedBody))
	h.log.InfoContext(r.Context(), "http.method_not_allowed", slog.String("verb", r.Method))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.coord.Phase() != lifecycle.PhaseRunning {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "draining"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handlePost serves one JSON-RPC exchange.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.metrics.enterRequest()
	defer h.metrics.leaveRequest()
	h.log.InfoContext(ctx, "http.post.start")

	sess := NewSession()
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), State: sess.State().String()})

	release, err := h.coord.Register(sess)
	if err != nil {
		writeRPCError(w, http.StatusServiceUnavailable, jsonrpc.ErrorCodeInternalError, "Server is shutting down.")
		h.log.WarnContext(ctx, "http.post.draining")
		return
	}
	defer func() {
		_ = sess.Close()
		release()
	}()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeRPCError(w, http.StatusUnsupportedMediaType, jsonrpc.ErrorCodeInternalError, "Content-Type must be application/json.")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeParseError, "Parse error.")
		h.log.WarnContext(ctx, "json.decode.fail", slog.String("err", err.Error()))
		return
	}
	if len(raw) > 0 && raw[0] == '[' {
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeParseError, "Batch requests are not supported.")
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		return
	}

	env, err := jsonrpc.Decode(raw)
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeParseError, "Parse error.")
		h.log.WarnContext(ctx, "jsonrpc.decode.fail", slog.String("err", err.Error()))
		return
	}
	ctx = logctx.WithEnvelopeData(ctx, &logctx.EnvelopeData{Method: env.Method, ID: env.ID.String()})

	// Notifications and client-side responses produce no reply body.
	if !env.IsRequest() {
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "rpc.inbound.accepted", slog.Duration("dur", time.Since(start)))
		return
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	// SSE framing only when the client asked for it explicitly. An absent
	// Accept header negotiates as accept-anything, which must stay JSON.
	sse := false
	if r.Header.Get("Accept") != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err == nil {
			sse = true
		}
	}
	if err := sess.Bind(w, r, sse); err != nil {
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.ErrorCodeInternalError, "Internal error.")
		h.log.ErrorContext(ctx, "session.bind.fail", slog.String("err", err.Error()))
		return
	}

	inst := &serverInstance{
		handler: h,
		reg:     h.factory(),
		sess:    sess,
	}
	inst.serveRequest(ctx, env)
	h.log.InfoContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))
}

// serverInstance is the per-request pairing of a registry snapshot and the
// transport session that carries its single exchange.
type serverInstance struct {
	handler *Handler
	reg     *registry.Registry
	sess    *Session
}

// serveRequest dispatches one request envelope and writes exactly one
// response envelope. Panics below the registry boundary are contained here:
// if the response has not started, the client gets an internal error;
// otherwise the stream is abandoned.
func (si *serverInstance) serveRequest(ctx context.Context, env *jsonrpc.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			si.handler.log.ErrorContext(ctx, "rpc.dispatch.panic", slog.Any("panic", rec))
			if !si.sess.Started() {
				si.writeError(ctx, env, jsonrpc.ErrorCodeInternalError, "Internal error.")
			} else {
				_ = si.sess.Close()
			}
		}
	}()

	result, rpcErr := si.dispatch(ctx, env)
	if rpcErr != nil {
		si.handler.metrics.observeRPC(env.Method, "error")
		si.writeError(ctx, env, rpcErr.Code, rpcErr.Message)
		return
	}
	si.handler.metrics.observeRPC(env.Method, "ok")
	out, err := jsonrpc.NewResult(env.ID, result)
	if err != nil {
		si.handler.log.ErrorContext(ctx, "rpc.outbound.encode_fail", slog.String("err", err.Error()))
		si.writeError(ctx, env, jsonrpc.ErrorCodeInternalError, "Internal error.")
		return
	}
	if err := si.sess.WriteEnvelope(out); err != nil {
		si.handler.log.WarnContext(ctx, "rpc.outbound.write_fail", slog.String("err", err.Error()))
		return
	}
	si.handler.log.InfoContext(ctx, "rpc.inbound.ok")
}

func (si *serverInstance) writeError(ctx context.Context, env *jsonrpc.Envelope, code jsonrpc.ErrorCode, msg string) {
	if err := si.sess.WriteEnvelope(jsonrpc.NewError(env.ID, code, msg)); err != nil {
		si.handler.log.WarnContext(ctx, "rpc.outbound.write_fail", slog.String("err", err.Error()))
	}
}

// dispatch routes a request envelope to its protocol method. It returns
// either a result payload or a protocol error; domain failures inside tool
// handlers never surface here.
func (si *serverInstance) dispatch(ctx context.Context, env *jsonrpc.Envelope) (any, *jsonrpc.Error) {
	switch mcp.Method(env.Method) {
	case mcp.InitializeMethod:
		return si.initialize(ctx, env.Params)

	case mcp.PingMethod:
		return &mcp.EmptyResult{}, nil

	case mcp.ToolsListMethod:
		ctx = logctx.WithCapabilityData(ctx, &logctx.CapabilityData{Kind: "tool"})
		si.handler.log.DebugContext(ctx, "tools.list")
		return &mcp.ListToolsResult{Tools: si.reg.ListTools()}, nil

	case mcp.ToolsCallMethod:
		var req mcp.CallToolRequestReceived
		if err := json.Unmarshal(env.Params, &req); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: "Invalid params."}
		}
		ctx = logctx.WithCapabilityData(ctx, &logctx.CapabilityData{Kind: "tool", Name: req.Name})
		res, err := si.reg.CallTool(ctx, &req)
		if err != nil {
			return nil, mapRegistryError(err)
		}
		si.handler.log.InfoContext(ctx, "tools.call.ok", slog.Bool("is_error", res.IsError))
		return res, nil

	case mcp.PromptsListMethod:
		ctx = logctx.WithCapabilityData(ctx, &logctx.CapabilityData{Kind: "prompt"})
		si.handler.log.DebugContext(ctx, "prompts.list")
		return &mcp.ListPromptsResult{Prompts: si.reg.ListPrompts()}, nil

	case mcp.PromptsGetMethod:
		var req mcp.GetPromptRequestReceived
		if err := json.Unmarshal(env.Params, &req); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: "Invalid params."}
		}
		ctx = logctx.WithCapabilityData(ctx, &logctx.CapabilityData{Kind: "prompt", Name: req.Name})
		res, err := si.reg.GetPrompt(ctx, &req)
		if err != nil {
			return nil, mapRegistryError(err)
		}
		si.handler.log.InfoContext(ctx, "prompts.get.ok")
		return res, nil

	default:
		return nil, &jsonrpc.Error{Code: jsonrpc.ErrorCodeMethodNotFound, Message: "Method not found."}
	}
}

func (si *serverInstance) initialize(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
	var req mcp.InitializeRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: "Invalid params."}
		}
	}
	version := mcp.LatestProtocolVersion
	for _, v := range mcp.SupportedProtocolVersions {
		if v == req.ProtocolVersion {
			version = v
			break
		}
	}
	si.handler.log.InfoContext(ctx, "initialize.ok",
		slog.String("client", req.ClientInfo.Name),
		slog.String("protocol_version", version),
	)
	return &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities: mcp.ServerCapabilities{
			Tools:   &mcp.ToolsCapability{ListChanged: false},
			Prompts: &mcp.PromptsCapability{ListChanged: false},
		},
		ServerInfo:   si.handler.info,
		Instructions: si.handler.instr,
	}, nil
}

// mapRegistryError translates registry sentinel errors into protocol error
// codes. Unknown capability names are an argument fault, not a missing
// protocol method.
func mapRegistryError(err error) *jsonrpc.Error {
	switch {
	case errors.Is(err, registry.ErrCapabilityNotFound), errors.Is(err, registry.ErrInvalidParams):
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: err.Error()}
	default:
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodeInternalError, Message: "Internal error."}
	}
}

// writeRPCError writes a bare JSON-RPC error envelope with a null id. Used
// for transport-level failures that happen before an exchange is bound to a
// session.
func writeRPCError(w http.ResponseWriter, status int, code jsonrpc.ErrorCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, err := jsonrpc.NewError(nil, code, msg).Encode()
	if err != nil {
		return
	}
	_, _ = w.Write(body)
}

// statusRecorder captures the response status for instrumentation while
// passing flushes through to the underlying writer.
type statusRecorder struct {
	http.ResponseWriter
	code    int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.code = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.written = true
	return r.ResponseWriter.Write(p)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) codeLabel() string {
	return strconv.Itoa(r.code)
}
