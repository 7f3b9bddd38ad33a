// Package spacecatsrest serves the read API: the cached post history as
// JSON and GraphQL, the realtime websocket channel, and a health check.
// Every handler reads the in-memory timeline snapshot and never touches
// the network.
package spacecatsrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/spacecats-dao/spacecats-sync/cache"
	"github.com/spacecats-dao/spacecats-sync/graphiql"
	"github.com/spacecats-dao/spacecats-sync/pipeline"
	"github.com/spacecats-dao/spacecats-sync/post"
)

// StatusReporter reports the health of the sync pipeline.
type StatusReporter interface {
	Status() pipeline.Status
}

type Config struct {
	Logger   zerolog.Logger
	Timeline *cache.Timeline
	Status   StatusReporter
	// Realtime serves the websocket channel; nil disables /ws.
	Realtime http.Handler
	// AllowIntrospection enables GraphQL introspection and the GraphiQL page.
	AllowIntrospection bool
}

// Router builds the read API.
func Router(config Config) (chi.Router, error) {
	relay, err := GraphQLRelay(config.Timeline, config.AllowIntrospection)
	if err != nil {
		return nil, err
	}

	routes := Middlewares(config.Logger, chi.NewRouter())
	routes.Get("/posts", CacheControl(postsHandler(config.Timeline), 1))
	routes.Post("/graphql", middleware.NoCache(relay).ServeHTTP)
	if config.AllowIntrospection {
		routes.Get("/graphql", graphiql.New("/graphql"))
	}
	routes.Get("/healthz", healthHandler(config.Status))
	if config.Realtime != nil {
		routes.Handle("/ws", config.Realtime)
	}
	routes.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("spacecats sync online"))
	})
	return routes, nil
}

func Middlewares(logger zerolog.Logger, routes chi.Router) chi.Router {
	routes.Use(
		withEmbedPolicyHeaders,
		withCORS(),
		withLogger(logger),
		middleware.Recoverer,
	)
	return routes
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("starting http server")
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdown); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func CacheControl(handler http.HandlerFunc, maxAge int) http.HandlerFunc {
	value := fmt.Sprintf("max-age=%v", maxAge)
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Cache-Control", value)
		handler.ServeHTTP(w, req)
	}
}

func writeJSON(w http.ResponseWriter, req *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(req.Context()).Warn().Err(err).Str("path", req.URL.Path).Msg("unable to write response")
	}
}

func postsHandler(timeline *cache.Timeline) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		posts := timeline.Snapshot()
		if posts == nil {
			posts = []post.DurablePost{}
		}
		writeJSON(w, req, http.StatusOK, posts)
	}
}

func healthHandler(reporter StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if reporter == nil {
			writeJSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		status := reporter.Status()
		code := http.StatusOK
		if !status.Subscribed {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, req, code, status)
	}
}

func withEmbedPolicyHeaders(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		header := w.Header()
		if req.Method == http.MethodGet && (strings.HasSuffix(req.URL.Path, "/graphql") || req.URL.Path == "/ws") {
			handler.ServeHTTP(w, req)
			return
		}

		header.Add("cross-origin-embedder-policy", "require-corp")
		header.Add("cross-origin-opener-policy", "same-origin")
		header.Add("cross-origin-resource-policy", "cross-origin")
		handler.ServeHTTP(w, req)
	})
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}
