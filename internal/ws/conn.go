package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// Event is the JSON envelope used in both directions.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Conn wraps one websocket connection. It implements session.Sender:
// outbound frames go through a buffered channel drained by WriteLoop, so
// Send never blocks a broadcast.
type Conn struct {
	id string
	ws *websocket.Conn

	out    chan outEvent
	closed chan struct{}
	once   sync.Once
	reason string
}

// Accept upgrades HTTP to websocket (allow all origins)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps an accepted websocket and assigns the connection ID that
// the whole session core keys on.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		out:    make(chan outEvent, 64),
		closed: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues an outbound event. Fire-and-forget: a full buffer or a
// closing connection drops the frame and reports false.
func (c *Conn) Send(event string, data any) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.out <- outEvent{Event: event, Data: data}:
		return true
	default:
		return false
	}
}

// Close asks the writer to flush queued frames and close the socket.
// Safe to call from any goroutine, any number of times.
func (c *Conn) Close(reason string) {
	c.once.Do(func() {
		c.reason = reason
		close(c.closed)
	})
}

// Read blocks until the next well-formed inbound event.
// Returns false when the connection is gone.
func (c *Conn) Read(ctx context.Context) (Event, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return Event{}, false
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Event == "" {
			continue // skip malformed frames
		}
		return ev, true
	}
}

// WriteLoop sends outbound events + periodic pings until the connection is
// closed or ctx is cancelled. On Close it drains what is queued, then shuts
// the socket with the close reason. Callers pass a context detached from
// the request so the drain still delivers after the handler returns; every
// write is bounded by its own timeout instead.
func (c *Conn) WriteLoop(ctx context.Context) {
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case ev := <-c.out:
			c.write(ctx, ev)
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			_ = c.ws.Ping(pctx)
			cancel()
		case <-c.closed:
			for {
				select {
				case ev := <-c.out:
					c.write(ctx, ev)
				default:
					_ = c.ws.Close(websocket.StatusNormalClosure, c.reason)
					return
				}
			}
		case <-ctx.Done():
			_ = c.ws.Close(websocket.StatusGoingAway, "server shutdown")
			return
		}
	}
}

const writeTimeout = 5 * time.Second

func (c *Conn) write(ctx context.Context, ev outEvent) {
	buf, err := json.Marshal(ev)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = c.ws.Write(wctx, websocket.MessageText, buf)
}
