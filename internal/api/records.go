package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/formcat/internal/catalogue"
	"github.com/kalambet/formcat/internal/storage"
)

type recordsResponse struct {
	Records []catalogue.Record `json:"records"`
	Count   int                `json:"count"`
}

func handleListRecords(w http.ResponseWriter, r *http.Request) {
	records := sessionFrom(r.Context()).List(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, recordsResponse{Records: records, Count: len(records)})
}

// keyFromQuery reads number and title query parameters, writing a 400 when either is missing.
func keyFromQuery(w http.ResponseWriter, r *http.Request) (catalogue.Key, bool) {
	q := r.URL.Query()
	key := catalogue.Key{Number: q.Get("number"), Title: q.Get("title")}
	if key.Number == "" || key.Title == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "number and title are required")
		return key, false
	}
	return key, true
}

// decodeKey reads a {number, title} body.
func decodeKey(w http.ResponseWriter, r *http.Request) (catalogue.Key, bool) {
	var key catalogue.Key
	if !decodeBody(w, r, &key) {
		return key, false
	}
	if key.Number == "" || key.Title == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "number and title are required")
		return key, false
	}
	return key, true
}

func handleDisplay(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromQuery(w, r)
	if !ok {
		return
	}
	sess := sessionFrom(r.Context())
	d, err := sess.DisplayText(key, sess.Privileged())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type generateResponse struct {
	Key      catalogue.Key `json:"key"`
	Text     string        `json:"text"`
	Provider string        `json:"provider"`
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := decodeKey(w, r)
		if !ok {
			return
		}
		sess := sessionFrom(r.Context())
		gen, err := deps.Providers.Get(sess.Provider())
		if err != nil {
			writeError(w, err)
			return
		}

		text, err := sess.RequestGeneration(r.Context(), key, gen)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, generateResponse{Key: key, Text: text, Provider: gen.Name()})
	}
}

func handleRevert(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}
	d, err := sessionFrom(r.Context()).Revert(key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func handleAdd(w http.ResponseWriter, r *http.Request) {
	var f catalogue.Fields
	if !decodeBody(w, r, &f) {
		return
	}
	rec, err := sessionFrom(r.Context()).Add(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type editRequest struct {
	Key    catalogue.Key    `json:"key"`
	Fields catalogue.Fields `json:"fields"`
}

func handleSave(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := sessionFrom(r.Context()).Save(r.Context(), req.Key, req.Fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func handleDraft(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sessionFrom(r.Context()).StageEdit(req.Key, req.Fields); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pendingResponse struct {
	Key     catalogue.Key `json:"key"`
	Pending bool          `json:"pending"`
}

func handleRequestDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}
	if err := sessionFrom(r.Context()).RequestDelete(key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, pendingResponse{Key: key, Pending: true})
}

func handleConfirmDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}
	if err := sessionFrom(r.Context()).ConfirmDelete(r.Context(), key); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleCancelDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}
	sessionFrom(r.Context()).CancelDelete(key)
	writeJSON(w, http.StatusOK, pendingResponse{Key: key, Pending: false})
}

func handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := sessionFrom(r.Context()).Export()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="forms_catalogue.csv"`)
	w.Write(data)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

type auditResponse struct {
	Events []storage.Event `json:"events"`
}

func handleAudit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Audit == nil {
			httpError(w, http.StatusServiceUnavailable, "storage_unavailable", "audit log is not configured")
			return
		}

		var (
			events []storage.Event
			err    error
		)
		q := r.URL.Query()
		if number, title := q.Get("number"), q.Get("title"); number != "" && title != "" {
			events, err = deps.Audit.EventsForKey(r.Context(), number, title)
		} else {
			events, err = deps.Audit.RecentEvents(r.Context(), parseIntParam(r, "limit", 50, 500))
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read audit log: %v", err)
			return
		}
		if events == nil {
			events = []storage.Event{}
		}
		writeJSON(w, http.StatusOK, auditResponse{Events: events})
	}
}

func handleAuditEvent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Audit == nil {
			httpError(w, http.StatusServiceUnavailable, "storage_unavailable", "audit log is not configured")
			return
		}
		ev, err := deps.Audit.GetEvent(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "audit event not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get audit event: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}
