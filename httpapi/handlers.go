package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/alexedwards/flow"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/registry"
	"github.com/goliatone/go-operations/store"
)

const maxBodySize = 1 << 20

// Publisher sends a snapshot as retained operation state.
type Publisher interface {
	Publish(ctx context.Context, msg operations.Message) error
}

// WorkflowLister lists registered workflows in priority order.
type WorkflowLister interface {
	Entries() []registry.EntryInfo
}

// Config wires the API to the running coordinator.
type Config struct {
	Root      string
	Store     store.Store
	Publisher Publisher
	Workflows WorkflowLister
	Gatherer  prometheus.Gatherer
	Version   string
	Logger    operations.Logger
}

// Created is returned for a new operation request.
type Created struct {
	Key     operations.OperationKey `json:"key"`
	Topic   string                  `json:"topic"`
	Status  string                  `json:"status"`
	Payload map[string]any          `json:"payload"`
}

// New builds the API router.
func New(cfg Config) *flow.Mux {
	logger := operations.NormalizeLogger(cfg.Logger)
	if cfg.Root == "" {
		cfg.Root = operations.DefaultRoot
	}

	mux := flow.New()
	mux.Handle("/v1/operations", ListOperations(cfg.Store, logger), "GET")
	mux.Handle("/v1/operations/:subsystem/:operation/:request/:instance", GetOperation(cfg.Store, logger), "GET")
	mux.Handle("/v1/operations/:subsystem/:operation/:request/:instance", ClearOperation(cfg.Publisher, logger), "DELETE")
	mux.Handle("/v1/operations/:subsystem/:operation/:request", CreateOperation(cfg.Root, cfg.Publisher, logger), "POST")
	mux.Handle("/v1/workflows", ListWorkflows(cfg.Workflows), "GET")
	mux.Handle("/version", VersionHandler(cfg.Version), "GET")
	if cfg.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}), "GET")
	}
	return mux
}

func handlerLogger(r *http.Request, logger operations.Logger, name string) operations.Logger {
	return operations.WithLoggerFields(logger.WithContext(r.Context()), map[string]any{"handler": name})
}

func keyParam(r *http.Request) operations.OperationKey {
	return operations.OperationKey{
		Subsystem: flow.Param(r.Context(), "subsystem"),
		Operation: flow.Param(r.Context(), "operation"),
		Request:   flow.Param(r.Context(), "request"),
		Instance:  flow.Param(r.Context(), "instance"),
	}
}

// ListOperations returns the journal records matching the query filter.
func ListOperations(s store.Store, logger operations.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := handlerLogger(r, logger, "list operations")
		q := r.URL.Query()
		filter := operations.Filter{
			Subsystem: q.Get("subsystem"),
			Operation: q.Get("operation"),
			Request:   q.Get("request"),
		}
		if err := filter.Validate(); err != nil {
			logger.Info("invalid filter: %v", err)
			JSONError(w, err, http.StatusBadRequest)
			return
		}

		records, err := s.List(r.Context(), filter)
		if err != nil {
			logger.Error("list operations: %v", err)
			JSONError(w, err, 0)
			return
		}
		if records == nil {
			records = []store.Record{}
		}
		if err := writeJSON(w, http.StatusOK, records); err != nil {
			logger.Info("encoding json to body: %v", err)
		}
	}
}

// GetOperation returns the latest snapshot of one operation.
func GetOperation(s store.Store, logger operations.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := handlerLogger(r, logger, "get operation")
		key := keyParam(r)
		if err := key.Validate(); err != nil {
			JSONError(w, err, http.StatusBadRequest)
			return
		}

		record, err := s.Get(r.Context(), key)
		if err != nil {
			if !store.IsNotFound(err) {
				logger.Error("get operation %s: %v", key, err)
			}
			JSONError(w, err, 0)
			return
		}
		if err := writeJSON(w, http.StatusOK, record); err != nil {
			logger.Info("encoding json to body: %v", err)
		}
	}
}

// CreateOperation publishes a new operation request. The body is the
// request payload; a missing status starts the operation at init.
func CreateOperation(root string, pub Publisher, logger operations.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := handlerLogger(r, logger, "create operation")
		key := keyParam(r)
		key.Instance = uuid.NewString()
		if err := key.Validate(); err != nil {
			JSONError(w, err, http.StatusBadRequest)
			return
		}

		payload := map[string]any{}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			JSONError(w, err, http.StatusBadRequest)
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
				JSONError(w, operations.NewError(operations.ErrInvalidPayload, "Not a JSON message", err, nil), 0)
				return
			}
		}
		if _, ok := payload[operations.StatusField]; !ok {
			payload[operations.StatusField] = operations.StatusInit
		}

		msg, err := operations.NewMessage(key, "").WithJSON(payload)
		if err != nil {
			JSONError(w, err, 0)
			return
		}
		if err := pub.Publish(r.Context(), msg); err != nil {
			logger.Error("publish %s: %v", key, err)
			JSONError(w, err, 0)
			return
		}

		topic := key.Topic(root)
		logger.Info("requested %s at %s", msg.Type(), topic)
		w.Header().Set("Location", "/v1/operations/"+key.String())
		if err := writeJSON(w, http.StatusCreated, Created{
			Key:     key,
			Topic:   topic,
			Status:  msg.Status,
			Payload: msg.JSON,
		}); err != nil {
			logger.Info("encoding json to body: %v", err)
		}
	}
}

// ClearOperation publishes the empty retained payload that ends an operation.
func ClearOperation(pub Publisher, logger operations.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := handlerLogger(r, logger, "clear operation")
		key := keyParam(r)
		if err := key.Validate(); err != nil {
			JSONError(w, err, http.StatusBadRequest)
			return
		}

		if err := pub.Publish(r.Context(), operations.Message{Key: key, JSON: map[string]any{}}); err != nil {
			logger.Error("clear %s: %v", key, err)
			JSONError(w, err, 0)
			return
		}
		logger.Info("cleared %s", key)
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListWorkflows(wl WorkflowLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if wl == nil {
			JSONError(w, errors.New("no registry"), http.StatusServiceUnavailable)
			return
		}
		entries := wl.Entries()
		if entries == nil {
			entries = []registry.EntryInfo{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func VersionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version})
	}
}
