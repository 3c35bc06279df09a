package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"pasteline/cfg"
	"pasteline/pkg/domain"
	"pasteline/svc/svc"
	"pasteline/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

// TestNowHeader overrides the clock for create and read when TEST_MODE=1.
const TestNowHeader = "X-Test-Now-Ms"

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			log.Warn().Str("content_type", ct).Msg("invalid Content-Type header")
			writeErr(w, domain.ErrUnsupportedMedia, requestID)
			return
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxPasteSize*2)
	var in domain.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			log.Warn().Int64("limit", tooLarge.Limit).Msg("request body exceeds maximum")
			writeErr(w, domain.ErrPasteTooLarge, requestID)
		case err == io.EOF:
			log.Warn().Msg("empty request body")
			writeErr(w, domain.ErrInvalidRequest, requestID)
		default:
			log.Warn().Err(err).Msg("invalid request")
			writeErr(w, domain.ErrInvalidRequest, requestID)
		}
		return
	}

	created, err := h.paste.Create(r.Context(), in, h.now(r))
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrPasteTooLarge) {
			log.Warn().Str("reason", err.Error()).Msg("paste rejected")
		} else {
			log.Error().Err(err).Msg("failed to create paste")
		}
		writeErr(w, err, requestID)
		return
	}
	log.Info().Str("paste_id", created.ID).Msg("paste created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	view, err := h.fetch(r)
	if err != nil {
		if !errors.Is(err, domain.ErrPasteNotFound) {
			log.Error().Err(err).Str("paste_id", chi.URLParam(r, "id")).Msg("get failed")
		}
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("paste_id", chi.URLParam(r, "id")).
		Str("client_ip", util.RedactIP(r.RemoteAddr)).
		Msg("paste retrieved")
	json.NewEncoder(w).Encode(view)
}

// fetch performs one counted retrieval for the {id} route parameter.
func (h *Hdl) fetch(r *http.Request) (*domain.View, error) {
	id := chi.URLParam(r, "id")
	if !util.ValidID(id) {
		return nil, domain.ErrPasteNotFound
	}
	return h.paste.Get(r.Context(), id, true, h.now(r))
}

// now is the zero time (wall clock) unless test mode supplies an override.
// The header wins over TEST_NOW_MS.
func (h *Hdl) now(r *http.Request) time.Time {
	if !h.cfg.TestMode {
		return time.Time{}
	}
	fallback := time.Time{}
	if h.cfg.TestNowMs > 0 {
		fallback = domain.FromMillis(h.cfg.TestNowMs)
	}
	raw := r.Header.Get(TestNowHeader)
	if raw == "" {
		return fallback
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		hlog.FromRequest(r).Warn().Str("value", raw).Msg("ignoring malformed test clock header")
		return fallback
	}
	return domain.FromMillis(ms)
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	resp := domain.ToResp(err)
	if statusCode == http.StatusInternalServerError {
		resp = domain.ToResp(domain.ErrInternalServer)
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
