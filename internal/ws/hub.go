package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/koderpark/ani-relayer-be/internal/session"
)

// Hub owns the /ws endpoint: it parses the handshake, hands the connection
// to the session service, and pumps inbound events until the client goes
// away.
type Hub struct {
	log *slog.Logger
	svc *session.Service
}

func NewHub(log *slog.Logger, svc *session.Service) *Hub {
	return &Hub{log: log, svc: svc}
}

// ServeWS handles a new /ws connection. Handshake parameters come in as
// query values: type, username, and name+password (host) or
// roomId+password (peer).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	hs := parseHandshake(r.URL.Query())

	sock, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	ctx := r.Context()
	c := NewConn(sock)

	// The writer must outlive this handler's context: net/http cancels
	// r.Context() the moment ServeWS returns, and the final frames (the
	// "error" event before a forced disconnect included) still have to
	// flush during teardown. WriteLoop ends when the conn is closed.
	go c.WriteLoop(context.WithoutCancel(ctx))

	if err := h.svc.OnConnect(ctx, c.ID(), hs, c); err != nil {
		h.log.Warn("ws.handshake.rejected", "conn", c.ID(), "err", err)
		c.Send("error", err.Error())
		c.Close(err.Error())
		return
	}

	// Cleanup must run to completion even though the request context dies
	// with this handler.
	defer h.svc.OnDisconnect(context.WithoutCancel(ctx), c.ID())

	for {
		ev, ok := c.Read(ctx)
		if !ok {
			break
		}
		if err := h.dispatch(c, ev); err != nil {
			c.Send("error", err.Error())
			c.Close(err.Error())
			break
		}
	}
	c.Close("bye")
}

// dispatch routes one inbound event. A returned error means the client is
// told why and then force-disconnected.
func (h *Hub) dispatch(c *Conn, ev Event) error {
	switch ev.Event {
	case "video":
		var v session.Video
		if err := json.Unmarshal(ev.Data, &v); err != nil {
			return session.ErrInvalidInputType
		}
		return h.svc.Video(c.ID(), v)

	case "chat":
		var msg string
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			return session.ErrInvalidInputType
		}
		return h.svc.Chat(c.ID(), msg)

	case "room/kick":
		var body struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(ev.Data, &body); err != nil {
			return session.ErrInvalidInputType
		}
		return h.svc.Kick(c.ID(), body.UserID)

	default:
		h.log.Debug("ws.event.unknown", "conn", c.ID(), "event", ev.Event)
		return nil
	}
}

// parseHandshake pulls the connection-scoped parameters out of the query.
// Validation of the role itself belongs to the session service.
func parseHandshake(q url.Values) session.Handshake {
	hs := session.Handshake{
		Type:     q.Get("type"),
		Username: q.Get("username"),
		RoomName: q.Get("name"),
	}
	if v := q.Get("roomId"); v != "" {
		hs.RoomID, _ = strconv.Atoi(v)
	}
	if v := q.Get("password"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			hs.Password = &n
		}
	}
	return hs
}
