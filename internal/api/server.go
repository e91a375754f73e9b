// Package api exposes the ledger operations over HTTP with JSON bodies.
//
// Callers identify themselves with the X-Ledger-Principal header. IssueToken
// credits the account named by X-Ledger-Account.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/engine"
)

// Caller headers.
const (
	HeaderPrincipal = "X-Ledger-Principal"
	HeaderAccount   = "X-Ledger-Account"
)

// retryAfterSeconds is advertised on ConcurrentModification responses.
const retryAfterSeconds = 1

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Server serves the ledger API.
type Server struct {
	engine *engine.Engine
	router *mux.Router
	logger zerolog.Logger
}

// Options for creating a Server.
type Options struct {
	Engine *engine.Engine
	Logger zerolog.Logger

	// Optional handlers mounted next to the API.
	Metrics http.Handler // served on /metrics
	Feed    http.Handler // served on /ws/commits
}

// NewServer creates a Server with all routes registered.
func NewServer(opts Options) *Server {
	s := &Server{
		engine: opts.Engine,
		router: mux.NewRouter(),
		logger: opts.Logger.With().Str("component", "api").Logger(),
	}
	s.registerRoutes()

	if opts.Metrics != nil {
		s.router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	if opts.Feed != nil {
		s.router.Handle("/ws/commits", opts.Feed).Methods(http.MethodGet)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/tokens", s.handleListTokens).Methods(http.MethodGet)
	v1.HandleFunc("/tokens", s.handleCreateToken).Methods(http.MethodPost)
	v1.HandleFunc("/tokens/{symbol}", s.handleLookupToken).Methods(http.MethodGet)
	v1.HandleFunc("/tokens/{symbol}/supply", s.handleTokenSupply).Methods(http.MethodGet)
	v1.HandleFunc("/tokens/{symbol}/issue", s.handleIssueToken).Methods(http.MethodPost)
	v1.HandleFunc("/tokens/{symbol}/distribute", s.handleDistributeToken).Methods(http.MethodPost)
	v1.HandleFunc("/tokens/{symbol}/transfer", s.handleTransferToken).Methods(http.MethodPost)

	v1.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	v1.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{name}", s.handleLookupAccount).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{name}/share", s.handleShareAccount).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{name}/balances/{symbol}", s.handleQueryBalance).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{name}/holdings/{symbol}", s.handleListHoldings).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

var errMissingPrincipal = errors.New(HeaderPrincipal + " header is required")

// callerFrom extracts the caller identity from request headers.
func callerFrom(r *http.Request) (domain.Caller, error) {
	p := r.Header.Get(HeaderPrincipal)
	if p == "" {
		return domain.Caller{}, errMissingPrincipal
	}
	return domain.Caller{
		Principal: domain.Principal(p),
		Account:   r.Header.Get(HeaderAccount),
	}, nil
}

// withCaller rejects requests without a principal.
func (s *Server) withCaller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return caller, false
	}
	return caller, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// requestErrorStatus maps a decodeJSON failure to an HTTP status.
func requestErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// writeEngineError maps the ledger error taxonomy to an HTTP status.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusConflict && domain.IsRetryable(err) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Retryable: domain.IsRetryable(err),
	})
}

// StatusFor returns the HTTP status for an engine error.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIssuerPolicyViolation), errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
