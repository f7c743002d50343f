package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/betagouv/quotecheck/internal/feedback"
	"github.com/betagouv/quotecheck/internal/regression"
	"github.com/betagouv/quotecheck/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quote-check HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, e),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the API routes. serverCtx outlives individual
// requests and bounds the asynchronous recheck runs.
func newRouter(serverCtx context.Context, e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/quote_checks/{id}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			qc, err := e.Store.GetQuoteCheck(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, qc)
		})

		r.Post("/feedbacks", func(w http.ResponseWriter, req *http.Request) {
			detailID := req.URL.Query().Get("validation_error_detail_id")
			if detailID == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation_error_detail_id is required"})
				return
			}
			var payload feedback.Payload
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			fb, err := e.Feedback.Attach(req.Context(), chi.URLParam(req, "id"), detailID, payload)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, fb)
		})

		r.Put("/expected_validation_errors", func(w http.ResponseWriter, req *http.Request) {
			payload, err := io.ReadAll(req.Body)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable request body"})
				return
			}
			expected, err := e.Regression.SetExpected(req.Context(), chi.URLParam(req, "id"), payload)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"expected_validation_errors": len(expected)})
		})

		r.Post("/recheck", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			if err := e.Store.ResetForRecheck(req.Context(), id); err != nil {
				writeError(w, err)
				return
			}
			go func() {
				if _, err := e.Pipeline.Run(serverCtx, id); err != nil {
					zap.L().Error("recheck run failed",
						zap.String("quote_check_id", id),
						zap.Error(err),
					)
				}
			}()
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "quote_check_id": id})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, regression.ErrInvalidPayload), errors.Is(err, feedback.ErrInvalidRating):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": eris.Cause(err).Error()})
}
