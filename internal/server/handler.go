package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/recvault/recvault/internal/index"
	"github.com/recvault/recvault/internal/models"
	"github.com/recvault/recvault/internal/vault"
)

// Config holds configurable limits for the server.
type Config struct {
	MaxUploadBytes    int64  // bytes, for recording uploads
	RequestsPerMinute int    // per-token rate limit
	AdminToken        string // for admin endpoints
	Webhooks          *WebhookNotifier
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxUploadBytes:    512 * 1024 * 1024, // 512MB
		RequestsPerMinute: 300,
	}
}

// Readiness gates /readyz until the startup recovery scan has completed.
type Readiness struct {
	ready atomic.Bool
}

func (r *Readiness) Set() {
	r.ready.Store(true)
}

func (r *Readiness) Ready() bool {
	return r.ready.Load()
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(v *vault.Vault, tokens TokenStore, ready *Readiness, cfg *Config, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ready == nil {
		ready = &Readiness{}
		ready.Set()
	}

	rl := newRateLimiter(cfg.RequestsPerMinute)
	auth := authMiddleware(tokens)

	// Execution order: auth -> rl -> handler
	withAuth := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, auth, rl.middleware)
	}
	// Execution order: auth -> requireWrite -> rl -> handler
	withAuthWrite := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, auth, requireWrite, rl.middleware)
	}

	mux := http.NewServeMux()

	// Health endpoints (no auth)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: recovery scan in progress"))
			return
		}
		if _, err := tokens.ListTokens(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: token store unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Admin endpoints
	if cfg.AdminToken != "" {
		adminMux := http.NewServeMux()
		adminMux.HandleFunc("POST /admin/tokens", makeAdminCreateTokenHandler(tokens, logger))
		adminMux.HandleFunc("GET /admin/tokens", makeAdminListTokensHandler(tokens, logger))
		adminMux.HandleFunc("DELETE /admin/tokens/{id}", makeAdminDeleteTokenHandler(tokens, logger))
		mux.Handle("/admin/", adminAuth(cfg.AdminToken, adminMux))
	}

	// Recordings
	mux.Handle("POST /api/v1/recordings", withAuthWrite(makeIngestHandler(v, cfg)))
	mux.Handle("GET /api/v1/recordings", withAuth(makeListHandler(v)))
	mux.Handle("GET /api/v1/recordings/{id}", withAuth(makeGetHandler(v)))
	mux.Handle("GET /api/v1/recordings/{id}/content", withAuth(makeContentHandler(v)))
	mux.Handle("DELETE /api/v1/recordings/{id}", withAuthWrite(makeRemoveHandler(v, cfg)))

	// Apply global middleware
	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
	)

	cleanup := func() {
		rl.Stop()
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// --- Recording Handlers ---

func makeIngestHandler(v *vault.Vault, cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		body := http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
		rec, err := v.Ingest(r.Context(), vault.IngestRequest{
			Source:      r.Header.Get("X-Recording-Source"),
			Name:        r.Header.Get("X-Recording-Name"),
			ContentType: contentType,
			Body:        body,
		})
		if err != nil {
			writeVaultError(w, err)
			return
		}

		cfg.Webhooks.NotifyIngested(rec)
		writeJSON(w, http.StatusCreated, rec)
	}
}

func makeListHandler(v *vault.Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := defaultListLimit
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "invalid limit"})
				return
			}
			limit = min(n, maxListLimit)
		}

		recs, next, err := v.List(r.Context(), index.ListOptions{
			Source: q.Get("source"),
			Limit:  limit,
			After:  q.Get("after"),
		})
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}
		if recs == nil {
			recs = []*models.Recording{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"recordings":  recs,
			"next_cursor": next,
		})
	}
}

func makeGetHandler(v *vault.Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := v.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeVaultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func makeContentHandler(v *vault.Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, rc, err := v.Retrieve(r.Context(), r.PathValue("id"))
		if err != nil {
			writeVaultError(w, err)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", rec.ContentType)

		// Both backends hand out seekable readers, which enables byte-range
		// requests for audio scrubbing. Fall back to a plain copy otherwise.
		if rs, ok := rc.(io.ReadSeeker); ok {
			http.ServeContent(w, r, rec.Name, rec.UpdatedAt, rs)
			return
		}

		w.Header().Set("Accept-Ranges", "none")
		w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
		w.WriteHeader(http.StatusOK)
		io.Copy(w, rc)
	}
}

func makeRemoveHandler(v *vault.Vault, cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := v.Remove(r.Context(), id); err != nil {
			writeVaultError(w, err)
			return
		}
		cfg.Webhooks.NotifyRemoved(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeVaultError translates coordinator errors into the JSON error envelope.
func writeVaultError(w http.ResponseWriter, err error) {
	var (
		ingestErr   *vault.IngestError
		corruptErr  *vault.CorruptionError
		maxBytesErr *http.MaxBytesError
	)
	switch {
	case errors.Is(err, vault.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "recording not found",
		})
	case errors.As(err, &corruptErr):
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "corrupted",
			"message": err.Error(),
		})
	case errors.As(err, &maxBytesErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error":   "payload_too_large",
			"message": "request body exceeds the upload limit",
		})
	case errors.As(err, &ingestErr):
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "ingest_failed",
			"message": err.Error(),
		})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- Admin Token Handlers ---

func makeAdminCreateTokenHandler(tokens TokenStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Description string `json:"description"`
			Permission  string `json:"permission"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "invalid JSON"})
			return
		}
		if req.Permission == "" {
			req.Permission = "ro"
		}
		if req.Permission != "ro" && req.Permission != "rw" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "permission must be 'ro' or 'rw'"})
			return
		}

		rawToken, info, err := tokens.CreateToken(req.Description, req.Permission)
		if err != nil {
			logger.Error("create token", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"token":       rawToken,
			"id":          info.ID,
			"description": info.Desc,
			"permission":  info.Permission,
		})
	}
}

func makeAdminListTokensHandler(tokens TokenStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := tokens.ListTokens()
		if err != nil {
			logger.Error("list tokens", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}

		// Return metadata only, never the hashes.
		type tokenEntry struct {
			ID          string `json:"id"`
			Description string `json:"description"`
			Permission  string `json:"permission"`
		}
		entries := make([]tokenEntry, len(list))
		for i, t := range list {
			entries[i] = tokenEntry{
				ID:          t.ID,
				Description: t.Desc,
				Permission:  t.Permission,
			}
		}

		writeJSON(w, http.StatusOK, entries)
	}
}

func makeAdminDeleteTokenHandler(tokens TokenStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "token ID required"})
			return
		}

		if err := tokens.DeleteToken(id); err != nil {
			logger.Error("delete token", "error", err, "token_id", id)
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": err.Error()})
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
