package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBrowser answers Echo with its params, Fail with a protocol error and
// announces every command with a Test.called event first.
func fakeBrowser(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var msg message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Method == "Hang" {
				continue
			}
			_ = conn.WriteJSON(message{SessionID: msg.SessionID, Method: "Test.called", Params: json.RawMessage(`{"method":"` + msg.Method + `"}`)})
			reply := message{ID: msg.ID, SessionID: msg.SessionID}
			switch msg.Method {
			case "Fail":
				reply.Error = &Error{Code: -32000, Message: "no such target"}
			case "Close":
				return
			default:
				reply.Result = msg.Params
			}
			_ = conn.WriteJSON(reply)
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestCallReturnsResult(t *testing.T) {
	srv := fakeBrowser(t)
	defer srv.Close()

	events := make(chan Event, 10)
	c, err := Dial(context.Background(), wsURL(srv), func(ev Event) { events <- ev })
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Call(context.Background(), "S1", "Echo", map[string]int{"n": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":3}`, string(res))

	select {
	case ev := <-events:
		assert.Equal(t, "Test.called", ev.Method)
		assert.Equal(t, "S1", ev.SessionID)
		assert.JSONEq(t, `{"method":"Echo"}`, string(ev.Params))
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestCallReturnsProtocolError(t *testing.T) {
	srv := fakeBrowser(t)
	defer srv.Close()

	c, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Call(context.Background(), "", "Fail", nil)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, -32000, perr.Code)
}

func TestCallHonoursContext(t *testing.T) {
	srv := fakeBrowser(t)
	defer srv.Close()

	c, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Call(ctx, "", "Hang", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBrokenConnectionFailsCalls(t *testing.T) {
	srv := fakeBrowser(t)
	defer srv.Close()

	c, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "", "Close", nil)
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("client did not notice the closed socket")
	}
	_, err = c.Call(context.Background(), "", "Echo", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDialFailure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/devtools", nil)
	assert.Error(t, err)
}
