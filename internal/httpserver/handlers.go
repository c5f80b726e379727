package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"github.com/skip2/go-qrcode"

	"pastebin-lite/internal/paste"
)

// PasswordHeader carries the password for protected pastes. The "password"
// query parameter is accepted as a fallback.
const PasswordHeader = "X-Paste-Password"

// Worst case JSON escaping turns one content byte into six.
const jsonOverhead = 6

const (
	qrDefaultSize = 256
	qrMinSize     = 128
	qrMaxSize     = 1024
)

type createRequest struct {
	Content    string `json:"content"`
	TTLSeconds *int64 `json:"ttl_seconds"`
	MaxViews   *int   `json:"max_views"`
	Password   string `json:"password"`
}

type createResponse struct {
	ID                string     `json:"id"`
	URL               string     `json:"url"`
	ExpiresAt         *time.Time `json:"expires_at"`
	MaxViews          *int       `json:"max_views"`
	PasswordProtected bool       `json:"password_protected"`
}

type pasteResponse struct {
	ID             string     `json:"id"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	RemainingViews *int       `json:"remaining_views"`
	Views          int        `json:"views"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxBytes)*jsonOverhead+4096)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(w, r, decodeErr(err))
		return
	}

	created, err := s.svc.Create(r.Context(), paste.CreateInput{
		Content:    req.Content,
		TTLSeconds: req.TTLSeconds,
		MaxViews:   req.MaxViews,
		Password:   req.Password,
	}, s.nowFor(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	resp := createResponse{
		ID:                created.ID,
		URL:               s.canonicalURL(r, created.ID),
		PasswordProtected: created.Protected,
	}
	if !created.ExpiresAt.IsZero() {
		exp := created.ExpiresAt
		resp.ExpiresAt = &exp
	}
	if created.MaxViews > 0 {
		mv := created.MaxViews
		resp.MaxViews = &mv
	}
	hlog.FromRequest(r).Info().
		Str("paste_id", created.ID).
		Str("request_id", requestIDFrom(r.Context())).
		Msg("paste created")

	w.Header().Set("Location", resp.URL)
	writeJSON(w, http.StatusCreated, resp)
}

// decodeErr maps a body decoding failure to the most specific input error.
func decodeErr(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return paste.ErrContentTooLarge
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		switch typeErr.Field {
		case "ttl_seconds":
			return paste.ErrInvalidTTL
		case "max_views":
			return paste.ErrInvalidMaxViews
		case "content":
			return paste.ErrContentRequired
		}
	}
	return errors.Wrap(paste.ErrInvalidRequest, err.Error())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	v, err := s.retrieve(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, pasteResponse{
		ID:             v.ID,
		Content:        v.Content,
		CreatedAt:      v.CreatedAt,
		ExpiresAt:      v.ExpiresAt,
		RemainingViews: v.RemainingViews,
		Views:          v.Views,
	})
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	v, err := s.retrieve(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	if v.RemainingViews != nil {
		h.Set("X-Remaining-Views", strconv.Itoa(*v.RemainingViews))
	}
	if v.ExpiresAt != nil {
		h.Set("X-Expires-At", v.ExpiresAt.UTC().Format(time.RFC3339))
	}
	_, _ = io.WriteString(w, v.Content)
}

func (s *Server) retrieve(r *http.Request) (*paste.View, error) {
	password := r.Header.Get(PasswordHeader)
	if password == "" {
		password = r.URL.Query().Get("password")
	}
	return s.svc.Retrieve(r.Context(), chi.URLParam(r, "id"), password, s.nowFor(r))
}

// handleQR renders the share link. It never consumes a view.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.svc.Lookup(r.Context(), id, s.nowFor(r)); err != nil {
		s.writeErr(w, r, err)
		return
	}

	size := qrDefaultSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeErr(w, r, paste.ErrInvalidRequest)
			return
		}
		size = min(max(n, qrMinSize), qrMaxSize)
	}

	png, err := qrcode.Encode(s.canonicalURL(r, id), qrcode.Medium, size)
	if err != nil {
		s.writeErr(w, r, errors.Wrap(err, "encode qr"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "unchecked"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("store readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "store": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "up"})
}

// writeErr renders err as the JSON error envelope. Unless reasons are
// revealed, expired and exhausted pastes look exactly like missing ones.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	e := paste.AsErr(err)
	if !s.revealReason && (e == paste.ErrExpired || e == paste.ErrViewLimitReached) {
		e = paste.ErrNotFound
	}
	reqID := requestIDFrom(r.Context())
	if e.Status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().
			Err(err).
			Str("request_id", reqID).
			Msg("internal error")
	}
	writeJSON(w, e.Status, errorResponse{
		Error:     errorBody{Code: e.Code, Message: e.Msg},
		RequestID: reqID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
