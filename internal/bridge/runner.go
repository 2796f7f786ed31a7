package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tobyrush/chatbridge/internal/llm"
)

// ServicesRunner hosts a set of services behind one network listener,
// dispatching each inbound request to the service owning the matched route.
type ServicesRunner struct {
	port     int
	services map[string]*Service
	logger   *slog.Logger
}

// NewServicesRunner validates route uniqueness and builds the runner.
// Duplicate routes are a configuration error, fatal at startup.
func NewServicesRunner(port int, logger *slog.Logger, services ...*Service) (*ServicesRunner, error) {
	byRoute := make(map[string]*Service, len(services))
	for _, svc := range services {
		if svc.Route() == "" {
			return nil, errors.New("service has an empty webhook route")
		}
		if _, dup := byRoute[svc.Route()]; dup {
			return nil, fmt.Errorf("duplicate webhook route %q", svc.Route())
		}
		byRoute[svc.Route()] = svc
	}
	return &ServicesRunner{port: port, services: byRoute, logger: logger}, nil
}

// Dispatch routes one raw payload to the service owning route. Unmatched
// routes are a routing error, not a pipeline error.
func (r *ServicesRunner) Dispatch(ctx context.Context, route string, raw []byte) ([]byte, error) {
	svc, ok := r.services[route]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, route)
	}
	return svc.HandleInbound(ctx, raw)
}

// Handler builds the HTTP surface: one POST endpoint per service plus the
// Prometheus endpoint. The rendered outbound payload is returned in the
// response body for the delivery collaborator.
func (r *ServicesRunner) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	for route, svc := range r.services {
		mux.HandleFunc(route, r.serveWebhook(svc))
	}
	return mux
}

func (r *ServicesRunner) serveWebhook(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		out, err := svc.HandleInbound(req.Context(), raw)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(out)
	}
}

// statusFor maps the pipeline error taxonomy to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrModelUnavailable):
		if me, ok := llm.AsModelError(err); ok && me.Kind == llm.KindTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (r *ServicesRunner) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", r.port),
		Handler: r.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("server shutdown failed", "error", err)
		}
	}()

	r.logger.Info("listening for webhooks", "port", r.port, "services", len(r.services))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
