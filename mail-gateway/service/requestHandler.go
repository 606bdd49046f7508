package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	router "github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"github.com/cadiot/hub/mail-gateway/mailbox"
	"github.com/cadiot/hub/mail-gateway/uri"
	"github.com/cadiot/hub/pkg/audit"
	"github.com/cadiot/hub/pkg/log"
)

// subscriptionLister is the provider surface of the management API.
type subscriptionLister interface {
	ListSubscriptions(ctx context.Context) ([]mailbox.Subscription, error)
}

// RequestHandler handles incoming requests.
type RequestHandler struct {
	config   Config
	executor *DispatchExecutor
	subs     subscriptionLister
	sink     audit.Sink

	// seen suppresses repeated deliveries of the same message within a
	// short window. Best effort only: correctness rests on the idempotent
	// mail-state transitions, not on this cache.
	seen *cache.Cache
	// dispatchPool bounds concurrent per-item dispatches within one batch.
	dispatchPool *semaphore.Weighted
}

// NewRequestHandler factory for new RequestHandler
func NewRequestHandler(config Config, executor *DispatchExecutor, subs subscriptionLister, sink audit.Sink) *RequestHandler {
	return &RequestHandler{
		config:       config,
		executor:     executor,
		subs:         subs,
		sink:         sink,
		seen:         cache.New(config.Dispatch.DuplicateWindow, config.Dispatch.DuplicateWindow*2),
		dispatchPool: semaphore.NewWeighted(config.Dispatch.MaxParallel),
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("failed to write response body: %v", err)
	}
}

type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, statusCode int, code string) {
	writeJSON(w, statusCode, errorBody{OK: false, Error: code})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("%v %v", r.Method, r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func (h *RequestHandler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.config.APIs.HTTP.Authorization.APIToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// NewHTTP returns HTTP server
func NewHTTP(requestHandler *RequestHandler) *http.Server {
	r := router.NewRouter()
	r.StrictSlash(true)
	r.Use(loggingMiddleware)

	// health check
	r.HandleFunc("/", healthCheck).Methods(http.MethodGet)

	// webhook endpoint; the provider authenticates via the clientState echo,
	// not a bearer token
	r.HandleFunc(uri.Notifications, requestHandler.Notifications).Methods(http.MethodGet, http.MethodPost)

	// management API
	s := r.PathPrefix(uri.API).Subrouter()
	s.Use(requestHandler.authMiddleware)
	s.HandleFunc(strings.TrimPrefix(uri.Subscriptions, uri.API), requestHandler.ListSubscriptions).Methods(http.MethodGet)
	s.HandleFunc(strings.TrimPrefix(uri.TestDispatch, uri.API), requestHandler.TestDispatch).Methods(http.MethodGet)

	return &http.Server{Handler: r}
}
