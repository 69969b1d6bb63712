// Command conductor wires the orchestration kernel's packages into a
// runnable HTTP service: one endpoint accepts a natural-language request,
// the planner drives it through planning/validation/execution/evaluation,
// and a handful of observability endpoints expose history and live
// progress.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxweave/conductor/capability"
	"github.com/fluxweave/conductor/config"
	"github.com/fluxweave/conductor/conductorlog"
	"github.com/fluxweave/conductor/history"
	"github.com/fluxweave/conductor/lifecycle"
	"github.com/fluxweave/conductor/llm"
	"github.com/fluxweave/conductor/planner"
	"github.com/fluxweave/conductor/telemetry"
)

func main() {
	logger := conductorlog.New("conductor")

	cfg, err := config.Load(os.Getenv("CONDUCTOR_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("conductor: loading config: %v", err)
	}

	telemetryProvider, err := telemetry.NewProvider("conductor", os.Getenv("CONDUCTOR_OTEL_ENDPOINT"))
	if err != nil {
		log.Fatalf("conductor: initializing telemetry: %v", err)
	}

	registry := capability.NewRegistry(logger.WithComponent("conductor/capability"))
	if err := registry.Register(capability.NewLayerInfo(registry)); err != nil {
		log.Fatalf("conductor: registering layer-info capability: %v", err)
	}

	clients := map[llm.Tier]llm.Client{
		llm.TierSimple:  llm.NewHTTPClient(cfg.Simple.BaseURL, cfg.Simple.APIKey, cfg.Simple.ModelID, cfg.Simple.Timeout, nil),
		llm.TierMedium:  llm.NewHTTPClient(cfg.Medium.BaseURL, cfg.Medium.APIKey, cfg.Medium.ModelID, cfg.Medium.Timeout, nil),
		llm.TierComplex: llm.NewHTTPClient(cfg.Complex.BaseURL, cfg.Complex.APIKey, cfg.Complex.ModelID, cfg.Complex.Timeout, nil),
	}
	router := llm.NewRouter(clients,
		llm.WithLogger(logger.WithComponent("conductor/llm")),
		llm.WithTelemetry(telemetryProvider),
	)

	historyManager := history.NewManager()
	publisher := history.NewPublisher()

	plnr := planner.New(registry, router, historyManager, publisher, cfg.MaxDepth,
		planner.WithLogger(logger.WithComponent("conductor/planner")),
		planner.WithTelemetry(telemetryProvider),
		planner.WithMaxAttempts(cfg.MaxAttempts),
	)

	mux := http.NewServeMux()
	registerHandlers(mux, plnr, historyManager, publisher)

	server := &http.Server{
		Addr:    ":" + port(),
		Handler: mux,
	}

	lm := lifecycle.New(logger.WithComponent("conductor/lifecycle"), lifecycle.DefaultTotalTimeout)
	lm.Register("http-server", func(ctx context.Context) error { return server.Shutdown(ctx) })
	lm.Register("telemetry", func(ctx context.Context) error { return telemetryProvider.Shutdown(ctx) })

	go func() {
		logger.Info("conductor listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("received shutdown signal", nil)
	if err := lm.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func registerHandlers(mux *http.ServeMux, plnr *planner.Planner, hist *history.Manager, pub *history.Publisher) {
	mux.HandleFunc("/orchestrate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		outcome := plnr.Handle(r.Context(), req.Query)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(outcome)
	})

	mux.HandleFunc("/conductor/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hist.All())
	})

	mux.HandleFunc("/conductor/stream", func(w http.ResponseWriter, r *http.Request) {
		executionID := r.URL.Query().Get("id")
		if executionID == "" {
			http.Error(w, "missing id query parameter", http.StatusBadRequest)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		events, unsubscribe := pub.Subscribe(executionID)
		defer unsubscribe()

		w.Header().Set("Content-Type", "application/x-ndjson")
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				json.NewEncoder(w).Encode(evt)
				flusher.Flush()
				if evt.Kind == "done" || evt.Kind == "aborted" {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func port() string {
	if p := os.Getenv("CONDUCTOR_PORT"); p != "" {
		return p
	}
	return "8080"
}
