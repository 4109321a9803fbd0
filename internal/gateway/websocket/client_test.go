package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single", `{"a":1}`, []string{`{"a":1}`}},
		{"multiple", "one\ntwo\r\nthree", []string{"one", "two", "three"}},
		{"blank lines skipped", "\n  \none\n\n", []string{"one"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, l := range splitLines([]byte(tt.in)) {
				got = append(got, string(l))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServeWs_RoundTrip(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// controller -> bridge
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"chat_id":"x@c.us","message":"hi"}`)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	line, err := hub.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"chat_id":"x@c.us","message":"hi"}`, string(line))

	// bridge -> controller
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Send(ctx, []byte("hello")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}
