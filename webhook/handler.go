package webhook

import (
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/botmesh/core"
)

// maxBodyBytes bounds the request body read from the platform.
const maxBodyBytes = 1 << 20

// Handler serves the webhook endpoint of a messenger.
type Handler struct {
	dispatcher *Dispatcher
	messenger  core.Messenger
}

var _ http.Handler = (*Handler)(nil)

// NewHandler creates the HTTP handler for d.
func NewHandler(d *Dispatcher) *Handler {
	return &Handler{dispatcher: d, messenger: d.engine.Messenger()}
}

// ServeHTTP validates the signature, extracts the events and processes them
// concurrently. Any failed event turns the response into a 500.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.dispatcher.opts.Logger

	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	if !h.messenger.ValidateSignature(r.Header, body) {
		logger.Warn("Signature validation failed", "messenger", h.messenger.Type())
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	events, err := h.messenger.ExtractEvents(body)
	if err != nil {
		logger.Warn("Events not extracted", "error", err)
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	var g errgroup.Group
	for _, ev := range events {
		g.Go(func() error {
			_, err := h.dispatcher.Process(r.Context(), ev)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("Webhook failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
