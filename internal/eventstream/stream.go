// Package eventstream serves session events to local processes over a
// WebSocket, so other applications on the machine can follow logins and
// logouts without polling the keychain.
//
// Each connection first receives a "state" message describing the live
// session, then one "event" message per session event, in order.
package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"idkeeper/cli/internal/eventbus"
	"idkeeper/cli/internal/session"
)

// Subprotocol must be offered by clients.
const Subprotocol = "idkeeper.events.v1"

const (
	TypeState = "state"
	TypeEvent = "event"
)

// Source is the controller surface the stream needs.
type Source interface {
	Subscribe() *eventbus.Subscription[session.Event]
	State() session.State
}

// Message is one JSON frame sent to clients. Tokens are never included.
type Message struct {
	Type       string                      `json:"type"`
	At         time.Time                   `json:"at"`
	Seq        uint64                      `json:"seq,omitempty"`
	Kind       string                      `json:"kind,omitempty"`
	Status     string                      `json:"status,omitempty"`
	Identifier string                      `json:"identifier,omitempty"`
	Reason     string                      `json:"reason,omitempty"`
	Degraded   bool                        `json:"degraded,omitempty"`
	Info       *session.AccountInformation `json:"info,omitempty"`
}

// StateMessage describes st.
func StateMessage(st session.State, at time.Time) Message {
	m := Message{Type: TypeState, At: at, Status: st.Status.String(), Degraded: st.Degraded, Info: st.Info}
	if st.Session != nil {
		m.Identifier = st.Session.Identifier
	}
	return m
}

// EventMessage describes ev.
func EventMessage(ev session.Event) Message {
	return Message{
		Type:       TypeEvent,
		At:         ev.At,
		Seq:        ev.Seq,
		Kind:       ev.Kind.String(),
		Identifier: ev.Identifier,
		Reason:     ev.Reason(),
		Info:       ev.Info,
	}
}

// Handler upgrades requests and streams events until the client leaves.
type Handler struct {
	src          Source
	log          zerolog.Logger
	writeTimeout time.Duration
	// OriginPatterns lists extra browser origins allowed to connect.
	OriginPatterns []string
}

// NewHandler streams events from src.
func NewHandler(src Source, log zerolog.Logger) *Handler {
	return &Handler{
		src:          src,
		log:          log.With().Str("component", "eventstream").Logger(),
		writeTimeout: 5 * time.Second,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if conn.Subprotocol() != Subprotocol {
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol "+Subprotocol+" required")
		return
	}

	// Clients only listen; CloseRead cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	sub := h.src.Subscribe()
	defer sub.Unsubscribe()

	if err := h.write(ctx, conn, StateMessage(h.src.State(), time.Now())); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := h.write(ctx, conn, EventMessage(ev)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) write(parent context.Context, conn *websocket.Conn, m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, h.writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		if !errors.Is(err, context.Canceled) {
			h.log.Debug().Err(err).Int("close_status", int(websocket.CloseStatus(err))).Msg("event write failed")
		}
		return err
	}
	return nil
}
