package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/buffer"
	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
)

const maxBodyBytes = 256 << 10

// DueHandler flushes a lead whose debounce window is due.
type DueHandler interface {
	HandleDue(ctx context.Context, tenantID, leadID string) (bool, error)
}

// SignatureVerifier checks a signed callback body.
type SignatureVerifier interface {
	Verify(signature string, body []byte, destination string) error
}

// Handler is the HTTP surface of the engine.
type Handler struct {
	ingress   *Ingress
	processor contractx.TurnProcessor

	due         DueHandler
	verifier    SignatureVerifier
	callbackURL string
}

type HandlerOption func(*Handler)

// WithFlushCallback serves the QStash flush callback. A nil verifier
// accepts unsigned callbacks.
func WithFlushCallback(due DueHandler, verifier SignatureVerifier, callbackURL string) HandlerOption {
	return func(h *Handler) {
		h.due = due
		h.verifier = verifier
		h.callbackURL = strings.TrimSpace(callbackURL)
	}
}

func NewHandler(ing *Ingress, opts ...HandlerOption) (*Handler, error) {
	if ing == nil {
		return nil, errors.New("ingress is required")
	}
	h := &Handler{ingress: ing, processor: ing.processor}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Router builds the chi router with the engine routes.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/turns", h.processTurn)
		r.Post("/messages", h.receiveMessage)
	})
	if h.due != nil {
		r.Post("/internal/flush", h.flushCallback)
	}
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) processTurn(w http.ResponseWriter, r *http.Request) {
	var req contractx.TurnRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.LeadID) == "" || strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "lead_id and text are required")
		return
	}

	resp, err := h.processor.ProcessTurn(r.Context(), req)
	if err != nil {
		writeTurnError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

func (h *Handler) receiveMessage(w http.ResponseWriter, r *http.Request) {
	var msg InboundMessage
	if err := decodeBody(r, &msg); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.ingress.Receive(r.Context(), msg)
	if err != nil {
		writeTurnError(w, r, err)
		return
	}
	if resp == nil {
		JSON(w, http.StatusAccepted, map[string]string{"status": "buffered"})
		return
	}
	JSON(w, http.StatusOK, resp)
}

func (h *Handler) flushCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		Error(w, http.StatusBadRequest, "read body")
		return
	}
	if h.verifier != nil {
		if err := h.verifier.Verify(r.Header.Get("Upstash-Signature"), body, h.callbackURL); err != nil {
			log.Warn().Err(err).Msg("flush_callback_rejected")
			Error(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var cb buffer.FlushCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		Error(w, http.StatusBadRequest, "invalid callback body")
		return
	}

	flushed, err := h.due.HandleDue(r.Context(), cb.TenantID, cb.LeadID)
	if errors.Is(err, buffer.ErrEmptyKey) {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).
			Str("tenant_id", cb.TenantID).
			Str("lead_id", cb.LeadID).
			Msg("flush_callback_failed")
		Error(w, http.StatusInternalServerError, "flush failed")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"flushed": flushed})
}

func writeTurnError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, contractx.ErrValidation), errors.Is(err, buffer.ErrEmptyKey):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, contractx.ErrAgentNotFound):
		Error(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Msg("turn_failed")
		Error(w, http.StatusInternalServerError, "turn failed")
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode_response_failed")
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}
