package ws

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func dial(t *testing.T, srvURL string) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(srvURL)
	u.Scheme = "ws"
	u.Path = "/ws"
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func readFrame(t *testing.T, c *websocket.Conn) Frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return f
}

func TestServerLifecycleAndBroadcast(t *testing.T) {
	s := NewServer(zap.NewNop())

	var mu sync.Mutex
	connected := map[string]string{}
	disconnected := map[string]bool{}
	s.OnConnection(func(sock Socket) {
		mu.Lock()
		connected[sock.ID()] = sock.RemoteAddr()
		mu.Unlock()
		sock.OnDisconnect(func() {
			mu.Lock()
			disconnected[sock.ID()] = true
			mu.Unlock()
		})
	})

	srv := httptest.NewServer(s)
	defer srv.Close()

	c1 := dial(t, srv.URL)
	defer c1.Close()
	c2 := dial(t, srv.URL)

	waitUntil(t, time.Second, func() bool { return s.Count() == 2 }, "sockets not registered")
	mu.Lock()
	if len(connected) != 2 {
		t.Fatalf("connection listener calls = %d", len(connected))
	}
	for id, addr := range connected {
		if id == "" || addr == "" {
			t.Fatalf("socket identity incomplete: %q %q", id, addr)
		}
	}
	mu.Unlock()

	s.Emit("event:volume-change", `{"type":"volume-change","data":{}}`)
	for _, c := range []*websocket.Conn{c1, c2} {
		f := readFrame(t, c)
		if f.Event != "event:volume-change" || f.Data != `{"type":"volume-change","data":{}}` {
			t.Fatalf("unexpected frame %+v", f)
		}
	}

	_ = c2.Close()
	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(disconnected) == 1
	}, "disconnect listener not called")
	if s.Count() != 1 {
		t.Fatalf("count after disconnect = %d", s.Count())
	}

	s.Emit("event:mute-change", `{}`)
	if f := readFrame(t, c1); f.Event != "event:mute-change" {
		t.Fatalf("remaining socket missed frame: %+v", f)
	}
}

func TestEmitDropsForFullBuffer(t *testing.T) {
	s := NewServer(zap.NewNop())
	c := &Conn{id: "slow", send: make(chan []byte, 1), server: s}
	s.conns[c.id] = c

	s.Emit("event:a", "1")
	s.Emit("event:b", "2") // buffer full, dropped

	if len(c.send) != 1 {
		t.Fatalf("buffered frames = %d", len(c.send))
	}
	var f Frame
	_ = json.Unmarshal(<-c.send, &f)
	if f.Event != "event:a" {
		t.Fatalf("kept frame = %+v", f)
	}
}
