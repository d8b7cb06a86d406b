// Package cdp is a small Chrome DevTools Protocol client over a websocket.
// One reader goroutine matches responses to calls by id and hands events to a
// callback; writes are serialized.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by calls on a closed or broken connection
var ErrClosed = errors.New("cdp connection closed")

// Error is a protocol-level error returned by the browser
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// Event is an unsolicited message from the browser
type Event struct {
	SessionID string
	Method    string
	Params    json.RawMessage
}

type message struct {
	ID        int64           `json:"id,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

// Client is one DevTools connection
type Client struct {
	conn    *websocket.Conn
	onEvent func(Event)

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan message
	err     error
	done    chan struct{}
}

// Dial connects to a DevTools websocket endpoint. onEvent runs on the reader
// goroutine and must not block.
func Dial(ctx context.Context, url string, onEvent func(Event)) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		onEvent: onEvent,
		pending: make(map[int64]chan message),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Call sends a command, optionally scoped to a target session, and waits for
// its result.
func (c *Client) Call(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s params: %w", method, err)
		}
		raw = b
	}

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(message{ID: id, SessionID: sessionID, Method: method, Params: raw})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, msg.Error)
		}
		return msg.Result, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// Done is closed once the connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection and waits for the reader to stop
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.fail(err)
			return
		}
		if msg.ID != 0 {
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
			continue
		}
		if msg.Method != "" && c.onEvent != nil {
			c.onEvent(Event{SessionID: msg.SessionID, Method: msg.Method, Params: msg.Params})
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	c.pending = make(map[int64]chan message)
	close(c.done)
}
