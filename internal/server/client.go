package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const pingInterval = 30 * time.Second

// Client represents a connected WebSocket client
type Client struct {
	conn    *websocket.Conn
	handler *Handler
	send    chan Message
	// done is closed when the read side stops; senders must not block after that
	done chan struct{}

	// one analysis at a time per connection
	mu     sync.Mutex
	cancel context.CancelFunc
}

func newClient(conn *websocket.Conn, handler *Handler) *Client {
	return &Client{
		conn:    conn,
		handler: handler,
		send:    make(chan Message, 256),
		done:    make(chan struct{}),
	}
}

// SendMessage queues msg for the writer; it is dropped once the connection is gone
func (c *Client) SendMessage(msg Message) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}

func (c *Client) SendLog(message, level string) {
	c.SendMessage(NewLogMessage(message, level))
}

func (c *Client) SendProgress(percent int, stage, message string) {
	c.SendMessage(NewProgressMessage(percent, stage, message))
}

func (c *Client) SendError(message string, err error) {
	c.SendMessage(NewErrorMessage(message, err))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				slog.Debug("error writing message", "err", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		// Cancel any running analysis
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Unlock()
		close(c.done)
		c.conn.Close()
	}()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket error", "err", err)
			}
			return
		}

		switch msg.Type {
		case TypeAnalyze:
			c.handleAnalyze(msg)
		case TypePing:
			c.SendMessage(Message{Type: TypePong})
		default:
			c.SendError(fmt.Sprintf("Unknown message type: %s", msg.Type), nil)
		}
	}
}

// handleAnalyze starts an analysis in the background so the read loop keeps
// serving pings and can notice a closed connection.
func (c *Client) handleAnalyze(msg Message) {
	payload, err := ParseAnalyzePayload(msg)
	if err != nil {
		c.SendError("Failed to parse analyze request", err)
		return
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		c.SendError("Analysis already in progress", nil)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		pipeline := NewPipeline(c.handler.Options, c.handler.Reviewer, c)
		err := pipeline.Run(ctx, payload.Requirements)

		// release the slot before reporting so the client can start the next one
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()

		switch {
		case errors.Is(err, context.Canceled):
			c.SendLog("Analysis cancelled", "warning")
		case err != nil:
			c.SendError("Analysis failed", err)
		default:
			c.SendMessage(NewCompleteMessage(true, "Analysis complete"))
		}
	}()
}
