package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/formcat/internal/provider"
	"github.com/kalambet/formcat/internal/session"
	"github.com/kalambet/formcat/internal/storage"
)

// AuditLog is the read side of the audit store.
type AuditLog interface {
	RecentEvents(ctx context.Context, limit int) ([]storage.Event, error)
	EventsForKey(ctx context.Context, number, title string) ([]storage.Event, error)
	GetEvent(ctx context.Context, id string) (storage.Event, error)
}

type Deps struct {
	Sessions  *session.Manager
	Providers *provider.Registry
	Audit     AuditLog // optional; if nil, /audit returns 503
	// AdminPassword gates privileged sessions. Empty disables login.
	AdminPassword string
}

// NewHandler returns the catalogue JSON API. Every route except /health runs
// inside a caller session; mutating routes also require a privileged session.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(WithSession(deps.Sessions))

		r.Get("/session", handleSessionInfo)
		r.Post("/session/login", handleLogin(deps))
		r.Post("/session/logout", handleLogout)
		r.Put("/session/provider", handleSelectProvider(deps))
		r.Get("/providers", handleProviders(deps))

		r.Get("/records", handleListRecords)
		r.Get("/records/display", handleDisplay)
		r.Post("/records/generate", handleGenerate(deps))
		r.Post("/records/revert", handleRevert)
		r.Post("/records/delete/cancel", handleCancelDelete)
		r.Get("/export", handleExport)

		r.Group(func(r chi.Router) {
			r.Use(RequirePrivileged)

			r.Post("/records", handleAdd)
			r.Put("/records", handleSave)
			r.Post("/records/draft", handleDraft)
			r.Post("/records/delete", handleRequestDelete)
			r.Post("/records/delete/confirm", handleConfirmDelete)
			r.Get("/audit", handleAudit(deps))
			r.Get("/audit/{id}", handleAuditEvent(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r.Context()).Info())
}

type loginRequest struct {
	Password string `json:"password"`
}

func handleLogin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if deps.AdminPassword == "" {
			httpError(w, http.StatusForbidden, "permission_error", "admin login is disabled")
			return
		}
		if !secretMatches(req.Password, deps.AdminPassword) {
			httpError(w, http.StatusForbidden, "permission_error", "incorrect password")
			return
		}

		// A fresh ID keeps an identifier handed out before login from
		// carrying the privilege.
		sess := sessionFrom(r.Context())
		sess.SetPrivileged(true)
		setSessionID(w, deps.Sessions.Rotate(sess))
		writeJSON(w, http.StatusOK, sess.Info())
	}
}

func handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.SetPrivileged(false)
	writeJSON(w, http.StatusOK, sess.Info())
}

type providerRequest struct {
	Provider string `json:"provider"`
}

func handleSelectProvider(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Provider == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "provider is required")
			return
		}
		gen, err := deps.Providers.Get(req.Provider)
		if err != nil {
			writeError(w, err)
			return
		}

		sess := sessionFrom(r.Context())
		sess.SelectProvider(gen.Name())
		writeJSON(w, http.StatusOK, sess.Info())
	}
}

type providersResponse struct {
	Providers []provider.Info `json:"providers"`
	Selected  string          `json:"selected"`
}

func handleProviders(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, providersResponse{
			Providers: deps.Providers.List(r.Context()),
			Selected:  sessionFrom(r.Context()).Provider(),
		})
	}
}
