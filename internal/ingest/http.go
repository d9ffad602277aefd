package ingest

import (
	"context"
	"net/http"

	goahttp "goa.design/goa/v3/http"

	"forestwatch/internal/pipeline"
	"forestwatch/pkg/log"
)

// maxFrameBody bounds the request size of a single frame event
const maxFrameBody = 16 << 20

// Ack is returned to the producer for every accepted frame
type Ack struct {
	Signal pipeline.Signal `json:"signal"`
	Seq    uint64          `json:"seq"`
}

// Handler accepts frame events over HTTP
type Handler struct {
	decoder  *Decoder
	consumer pipeline.FrameConsumer
	logger   log.Logger
}

// NewHandler creates the HTTP ingest handler
func NewHandler(decoder *Decoder, consumer pipeline.FrameConsumer, logger log.Logger) *Handler {
	return &Handler{decoder: decoder, consumer: consumer, logger: logger}
}

// ServeHTTP decodes one frame event and processes it before replying
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxFrameBody)

	var p Payload
	if err := goahttp.RequestDecoder(r).Decode(&p); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid frame event: "+err.Error())
		return
	}
	ev, err := h.decoder.FromPayload(ctx, &p)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Alert side effects (SMTP, GPIO pulse) must not be cut short when the
	// producer gives up on the request.
	signal := h.consumer.OnFrame(context.WithoutCancel(ctx), ev)
	w.Header().Set("Content-Type", "application/json")
	if err := goahttp.ResponseEncoder(ctx, w).Encode(&Ack{Signal: signal, Seq: ev.Seq}); err != nil {
		h.logger.Errorf(ctx, "[Ingest] Failed to write ack: %v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	goahttp.ResponseEncoder(r.Context(), w).Encode(&errorBody{Error: msg})
}
