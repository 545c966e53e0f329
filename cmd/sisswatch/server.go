package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/andaqua/sisswatch/vigia"
)

// newRouter builds the admin API. When authHash is non-nil every route
// except the health check requires basic auth.
func newRouter(svc *vigia.Service, logger *slog.Logger, authHash []byte) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if authHash != nil {
			r.Use(basicAuth(authHash, logger))
		}

		r.Post("/run", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, svc.RunAll(req.Context()))
		})

		r.Post("/run/{stage}", func(w http.ResponseWriter, req *http.Request) {
			var out any
			switch stage := chi.URLParam(req, "stage"); stage {
			case vigia.StageCheck:
				out = svc.CheckPortal(req.Context())
			case vigia.StageScrape:
				out = svc.ScrapeTariffs(req.Context())
			case vigia.StageDownload:
				out = svc.DownloadPDFs(req.Context())
			case vigia.StageAnalyze:
				out = svc.AnalyzePDFs(req.Context())
			default:
				writeError(w, http.StatusNotFound, "unknown stage: "+stage)
				return
			}
			writeJSON(w, http.StatusOK, out)
		})

		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, svc.Status())
		})

		r.Get("/tasks", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			writeJSON(w, http.StatusOK, svc.Tasks().List(q.Get("estado"), q.Get("prioridad")))
		})

		r.Post("/tasks", func(w http.ResponseWriter, req *http.Request) {
			var in struct {
				Description string         `json:"descripcion"`
				Priority    string         `json:"prioridad"`
				Metadata    map[string]any `json:"metadata"`
			}
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
				return
			}
			if in.Description == "" {
				writeError(w, http.StatusBadRequest, "descripcion is required")
				return
			}
			task, err := svc.Tasks().Add(in.Description, in.Priority, in.Metadata)
			if err != nil {
				if errors.Is(err, vigia.ErrInvalidPriority) {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusCreated, task)
		})

		r.Post("/tasks/{id}/complete", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			if !svc.Tasks().Complete(id) {
				writeError(w, http.StatusNotFound, "no task with id "+id)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"id": id, "estado": vigia.TaskCompleted})
		})

		r.Get("/tasks/stats", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, svc.Tasks().Stats())
		})
	})

	return r
}

// basicAuth guards the API with a single admin user and a bcrypt-hashed
// password.
func basicAuth(hash []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			user, pass, ok := req.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte("admin")) != 1 ||
				bcrypt.CompareHashAndPassword(hash, []byte(pass)) != nil {
				logger.Warn("unauthorized request", "path", req.URL.Path, "remote", req.RemoteAddr)
				w.Header().Set("WWW-Authenticate", `Basic realm="sisswatch"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
