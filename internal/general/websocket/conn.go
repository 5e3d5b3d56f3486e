package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"fleet-realtime/internal/general/apperr"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/ports"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Conn is one authenticated socket. Frames are queued on a buffered channel
// and written by a single goroutine; a full queue drops the frame for this
// connection only.
type Conn struct {
	id      string
	ws      *websocket.Conn
	opts    Options
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter

	closeCode   int // sent by the writer once done is closed
	closeReason string
}

var _ ports.Subscriber = (*Conn)(nil)

func newConn(id string, ws *websocket.Conn, opts Options) *Conn {
	return &Conn{
		id:      id,
		ws:      ws,
		opts:    opts,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		limiter: newLimiter(opts),

		closeCode:   websocket.CloseNormalClosure,
		closeReason: "bye",
	}
}

func (c *Conn) ID() string { return c.id }

// Deliver queues frame without blocking. It reports false once the connection
// is closed or when its queue is full.
func (c *Conn) Deliver(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Conn) Reply(event string, data any) {
	b, err := json.Marshal(contracts.OutboundFrame{Type: event, Data: data})
	if err != nil {
		c.replyError(event, err)
		return
	}
	c.Deliver(b)
}

func (c *Conn) replyError(event string, err error) {
	b, mErr := json.Marshal(errorFrame(event, err))
	if mErr != nil {
		return
	}
	c.Deliver(b)
}

// shutdown stops further deliveries and lets the writer close the socket.
func (c *Conn) shutdown() {
	c.closeWith(websocket.CloseNormalClosure, "bye")
}

// closeWith is shutdown with an explicit close frame. The first call wins.
func (c *Conn) closeWith(code int, reason string) {
	c.once.Do(func() {
		c.closeCode, c.closeReason = code, reason
		close(c.done)
	})
}

// writePump drains the queue and pings until shutdown or a write error.
func (c *Conn) writePump(ctx context.Context, log *logger.Logger) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				log.Warn(ctx, "ws_write_failed", "Failed to write frame", map[string]any{"reason": err.Error()})
				c.shutdown()
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				log.Warn(ctx, "ws_ping_failed", "Failed to send ping", map[string]any{"reason": err.Error()})
				c.shutdown()
				return
			}

		case <-c.done:
			// flush what is already queued, then say goodbye
			for {
				select {
				case frame := <-c.send:
					if c.write(websocket.TextMessage, frame) != nil {
						return
					}
				default:
					_ = c.ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(c.closeCode, c.closeReason),
						time.Now().Add(c.opts.WriteWait))
					return
				}
			}
		}
	}
}

func (c *Conn) write(mt int, payload []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.ws.WriteMessage(mt, payload)
}

func errorFrame(event string, err error) contracts.ErrorFrame {
	return contracts.ErrorFrame{
		Type:  contracts.EventError,
		Error: apperr.Message(err),
		Data:  contracts.ErrorData{Event: event, Code: apperr.Code(err)},
	}
}
