package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Secret []byte
	// RateLimit is the number of requests per minute allowed from one IP. Zero disables the limit.
	RateLimit int
	Gatherer  prometheus.Gatherer
}

// NewRouter mounts the handlers. Routes under /api are validated against
// the embedded OpenAPI document.
func NewRouter(logger *slog.Logger, cfg RouterConfig, h *TACBridge) (http.Handler, error) {
	swagger, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	swagger.Servers = nil

	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(rateLimiter(cfg.RateLimit, time.Minute))
		}
		r.Use(oapimiddleware.OapiRequestValidatorWithOptions(swagger, &oapimiddleware.Options{
			ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
				logger.Debug("Request validation failed", slog.String("error", message))
				writeError(w, statusCode, message)
			},
		}))

		r.Post("/user/register", h.RegisterUser)
		r.Post("/user/login", h.LoginUser)
		r.Get("/conversions", h.GetConversions)
		r.Get("/bridge", h.GetBridge)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.Secret))
			r.Get("/user/balance", h.GetBalance)
			r.Post("/user/approve", h.Approve)
			r.Post("/user/convert", h.Convert)
			r.Get("/user/conversions", h.GetUserConversions)
		})
	})

	return r, nil
}

func rateLimiter(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, "Too many requests")
		}),
	)
}
