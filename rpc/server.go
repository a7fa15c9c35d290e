package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"subledger/indexer"
	"subledger/native/market"
	"subledger/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader = "X-Request-ID"
	limiterIdleTTL  = 10 * time.Minute
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeForbidden      = -32003
	codeNotFound       = -32004
	codeModulePaused   = -32005
	codeConflict       = -32009
	codeRateLimited    = -32020
	codeRejected       = -32022
	codeOracle         = -32050
)

// Ledger is the node surface served over RPC.
type Ledger interface {
	RegisterProvider(ctx context.Context, caller [20]byte, id market.ProviderID, fee *big.Int, plan market.Plan) (*market.Provider, error)
	RemoveProvider(caller [20]byte, id market.ProviderID) (*big.Int, error)
	SetProviderStatus(caller [20]byte, id market.ProviderID, active bool) (*market.Provider, error)
	RegisterSubscriber(caller [20]byte, id market.SubscriberID) (*market.Subscriber, error)
	Deposit(caller [20]byte, id market.SubscriberID, amount *big.Int) (*market.Subscriber, error)
	Subscribe(ctx context.Context, caller [20]byte, subscriber market.SubscriberID, provider market.ProviderID) (*market.Subscription, error)
	Pause(caller [20]byte, key market.SubscriptionKey) (*big.Int, error)
	Settle(key market.SubscriptionKey) (*big.Int, error)
	PayDebt(caller [20]byte, key market.SubscriptionKey, amount *big.Int) (*market.Subscription, error)
	WithdrawEarnings(caller [20]byte, id market.ProviderID) (*big.Int, error)
	ProcessBillingCycle(caller [20]byte, id market.ProviderID) (*big.Int, error)
	SetMinimumFee(caller [20]byte, minimum *big.Int) (market.Params, error)
	SetMinimumDeposit(caller [20]byte, minimum *big.Int) (market.Params, error)
	SetProviderCapacity(caller [20]byte, capacity uint64) (market.Params, error)
	SetPeriodLength(caller [20]byte, ticks uint64) (market.Params, error)
	TransferAdmin(caller [20]byte, next [20]byte) (market.Params, error)
	SetModulePaused(caller [20]byte, paused bool) error

	EstimateCost(key market.SubscriptionKey) (*market.Estimate, error)
	CanWithdraw(id market.ProviderID) (bool, error)
	Provider(id market.ProviderID) (*market.Provider, error)
	Subscriber(id market.SubscriberID) (*market.Subscriber, error)
	Subscription(key market.SubscriptionKey) (*market.Subscription, error)
	SubscriptionKey(subscriber market.SubscriberID, provider market.ProviderID) market.SubscriptionKey
	ProviderCount() (uint64, uint64, error)
	ProviderSubscriptions(id market.ProviderID) ([]market.SubscriptionKey, error)
	StableBalance(ctx context.Context, id market.SubscriberID) (*big.Int, error)
	Params() (market.Params, error)
	Totals() (*market.Totals, error)
	Paused() bool
	AssetBalance(addr [20]byte) (*big.Int, error)
	Tick() uint64
	Height() uint64
}

// EventJournal lists indexed events.
type EventJournal interface {
	List(ctx context.Context, filter indexer.Filter) ([]indexer.EventRecord, error)
}

// ServerConfig tunes authentication and throttling.
type ServerConfig struct {
	// AuthToken guards every state-changing method. Empty disables the check.
	AuthToken string
	// RateLimit is the sustained number of write calls per second allowed per
	// client. Zero disables throttling.
	RateLimit float64
	Burst     int
	Logger    *slog.Logger
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Server exposes the ledger over JSON-RPC 2.0.
type Server struct {
	ledger  Ledger
	journal EventJournal
	cfg     ServerConfig
	logger  *slog.Logger
	metrics *observability.RPCMetrics
	methods map[string]method

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	nowFn    func() time.Time
}

type handlerFunc func(ctx context.Context, s *Server, params []json.RawMessage) (interface{}, error)

type method struct {
	write   bool
	handler handlerFunc
}

// NewServer returns a server over ledger. The journal is optional; without it
// market_listEvents fails.
func NewServer(ledger Ledger, journal EventJournal, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ledger:   ledger,
		journal:  journal,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "rpc")),
		metrics:  observability.RPC(),
		methods:  methodTable(),
		limiters: make(map[string]*limiterEntry),
		nowFn:    time.Now,
	}
}

// Handler returns the HTTP routes: POST /rpc, GET /healthz and GET /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	r.Post("/", s.handle)

	return otelhttp.NewHandler(r, "subledger-rpc")
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type requestIDKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RPCRequest is a JSON-RPC 2.0 call. Params are positional; every market
// method takes at most one object.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id interface{}, rpcErr *RPCError) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, &RPCError{Code: codeInvalidRequest, Message: message, Data: err.Error()})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeInvalidRequest, Message: "request body required"})
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC})
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "method required"})
		return
	}

	status, result, rpcErr := s.dispatch(r, req)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	s.metrics.Observe(req.Method, code, time.Since(start))
	if rpcErr != nil {
		s.logger.Debug("rpc call rejected",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("method", req.Method),
			slog.Int("code", rpcErr.Code),
			slog.String("error", rpcErr.Message))
		writeError(w, status, req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(r *http.Request, req *RPCRequest) (int, interface{}, *RPCError) {
	m, ok := s.methods[req.Method]
	if !ok {
		return http.StatusNotFound, nil, &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method}
	}
	if m.write {
		if authErr := s.requireAuth(r); authErr != nil {
			return http.StatusUnauthorized, nil, authErr
		}
		if !s.allowSource(clientSource(r)) {
			s.metrics.RecordThrottle("write_rate")
			return http.StatusTooManyRequests, nil, &RPCError{Code: codeRateLimited, Message: "rate limit exceeded"}
		}
	}
	result, err := m.handler(r.Context(), s, req.Params)
	if err != nil {
		status, rpcErr := mapError(err)
		return status, nil, rpcErr
	}
	return http.StatusOK, result, nil
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.cfg.AuthToken == "" {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if s.cfg.RateLimit <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(s.limiters, key)
		}
	}
	entry, ok := s.limiters[source]
	if !ok {
		burst := s.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.cfg.RateLimit), burst)}
		s.limiters[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
