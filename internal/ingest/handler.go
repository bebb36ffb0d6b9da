package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/museguide/internal/observe"
	"github.com/MrWong99/museguide/pkg/audio"
	"github.com/MrWong99/museguide/pkg/audio/opus"
)

// Supported codecs announced in a [Header].
const (
	CodecPCM16 = "pcm16"
	CodecOpus  = "opus"
)

const (
	defaultHeaderTimeout = 10 * time.Second
	defaultReadLimit     = 1 << 20
)

// Header is the first (text) message a client sends. Every following binary
// message is one audio packet in the announced codec.
type Header struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format returns the PCM format the header announces.
func (h Header) Format() audio.Format {
	return audio.Format{SampleRate: h.SampleRate, Channels: h.Channels}
}

// Ready is sent back once the stream is registered with the hub.
type Ready struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
}

// HandlerOption is a functional option for configuring a [Handler].
type HandlerOption func(*Handler)

// WithMetrics records ingest counters on m.
func WithMetrics(m *observe.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithOriginPatterns sets the host patterns allowed to connect cross-origin.
func WithOriginPatterns(patterns ...string) HandlerOption {
	return func(h *Handler) { h.accept.OriginPatterns = patterns }
}

// WithHeaderTimeout bounds how long a client may take to send its header.
func WithHeaderTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.headerTimeout = d }
}

// Handler upgrades GET /v1/clients/{id}/audio to a websocket and publishes
// the client's audio on the [Hub].
type Handler struct {
	hub           *Hub
	metrics       *observe.Metrics
	accept        websocket.AcceptOptions
	headerTimeout time.Duration
}

// NewHandler creates a Handler publishing to hub.
func NewHandler(hub *Hub, opts ...HandlerOption) *Handler {
	h := &Handler{hub: hub, headerTimeout: defaultHeaderTimeout}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("id")
	if clientID == "" {
		http.Error(w, "missing client id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &h.accept)
	if err != nil {
		slog.Warn("ingest: websocket accept failed", "client_id", clientID, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(defaultReadLimit)

	ctx := r.Context()
	hdr, err := h.readHeader(ctx, conn)
	if err != nil {
		slog.Warn("ingest: bad stream header", "client_id", clientID, "err", err)
		conn.Close(websocket.StatusUnsupportedData, err.Error())
		return
	}

	decode, err := newDecoder(hdr)
	if err != nil {
		conn.Close(websocket.StatusUnsupportedData, err.Error())
		return
	}

	stream, err := h.hub.Open(clientID, hdr.Format())
	if err != nil {
		status := websocket.StatusInternalError
		if errors.Is(err, ErrClientConnected) {
			status = websocket.StatusPolicyViolation
		}
		conn.Close(status, err.Error())
		return
	}
	defer stream.Close()

	// Hub shutdown ends the read loop even while the client stays silent.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stream.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if h.metrics != nil {
		h.metrics.ActiveClients.Add(ctx, 1)
		defer h.metrics.ActiveClients.Add(context.WithoutCancel(ctx), -1)
	}

	ready, _ := json.Marshal(Ready{Status: "ready", ClientID: clientID})
	if err := conn.Write(ctx, websocket.MessageText, ready); err != nil {
		return
	}

	h.pump(ctx, conn, stream, hdr, decode)
}

// pump reads audio packets until the client goes away.
func (h *Handler) pump(ctx context.Context, conn *websocket.Conn, stream *Stream, hdr Header, decode decodeFunc) {
	format := hdr.Format()
	var elapsed time.Duration

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					slog.Debug("ingest: read ended", "client_id", stream.ClientID(), "err", err)
				}
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}

		pcm, err := decode(data)
		if h.metrics != nil {
			h.metrics.RecordIngest(ctx, hdr.Codec, 1, err)
		}
		if err != nil {
			slog.Debug("ingest: dropping packet", "client_id", stream.ClientID(), "codec", hdr.Codec, "err", err)
			continue
		}

		frame := audio.AudioFrame{
			Data:       pcm,
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			Timestamp:  elapsed,
		}
		elapsed += frame.Duration()
		stream.Publish(frame)
	}
}

func (h *Handler) readHeader(ctx context.Context, conn *websocket.Conn) (Header, error) {
	ctx, cancel := context.WithTimeout(ctx, h.headerTimeout)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	if typ != websocket.MessageText {
		return Header{}, errors.New("first message must be a JSON text header")
	}
	var hdr Header
	if err := json.Unmarshal(data, &hdr); err != nil {
		return Header{}, fmt.Errorf("decode header: %w", err)
	}
	if hdr.Codec == "" {
		hdr.Codec = CodecPCM16
	}
	if err := hdr.Format().Validate(); err != nil {
		return Header{}, err
	}
	return hdr, nil
}

type decodeFunc func([]byte) ([]byte, error)

func newDecoder(hdr Header) (decodeFunc, error) {
	switch hdr.Codec {
	case CodecPCM16:
		return func(b []byte) ([]byte, error) {
			if len(b)%(2*hdr.Channels) != 0 {
				return nil, fmt.Errorf("pcm16 packet of %d bytes is not whole frames", len(b))
			}
			return b, nil
		}, nil
	case CodecOpus:
		dec, err := opus.NewDecoder(hdr.Format())
		if err != nil {
			return nil, err
		}
		return dec.Decode, nil
	default:
		return nil, fmt.Errorf("unsupported codec %q", hdr.Codec)
	}
}
