package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	wrp "github.com/xmidt-org/wrp-go/v3"
)

type captured struct {
	contentType string
	header      string
	body        []byte
}

func newCaptureServer(t *testing.T, status int, out *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		out.contentType = r.Header.Get("Content-Type")
		out.header = r.Header.Get("X-Sonos-Token")
		out.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPostJSON(t *testing.T) {
	var got captured
	srv := newCaptureServer(t, http.StatusOK, &got)
	c := New(Config{URL: srv.URL})

	envelope := []byte(`{"type":"volume-change","data":{"newVolume":10}}`)
	if err := c.Post(context.Background(), "volume-change", envelope); err != nil {
		t.Fatalf("post: %v", err)
	}
	if got.contentType != "application/json" {
		t.Fatalf("content type = %q", got.contentType)
	}
	if string(got.body) != string(envelope) {
		t.Fatalf("body = %s", got.body)
	}
	if got.header != "" {
		t.Fatalf("custom header should not be sent when unconfigured")
	}
}

func TestPostCustomHeader(t *testing.T) {
	cases := []struct {
		name     string
		cfg      Config
		expected string
	}{
		{"name and contents", Config{HeaderName: "X-Sonos-Token", HeaderContents: "abc"}, "abc"},
		{"name only", Config{HeaderName: "X-Sonos-Token"}, ""},
		{"contents only", Config{HeaderContents: "abc"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got captured
			srv := newCaptureServer(t, http.StatusNoContent, &got)
			tc.cfg.URL = srv.URL
			if err := New(tc.cfg).Post(context.Background(), "mute-change", []byte(`{}`)); err != nil {
				t.Fatalf("post: %v", err)
			}
			if got.header != tc.expected {
				t.Fatalf("header = %q, want %q", got.header, tc.expected)
			}
		})
	}
}

func TestPostBadStatus(t *testing.T) {
	var got captured
	srv := newCaptureServer(t, http.StatusBadGateway, &got)
	err := New(Config{URL: srv.URL}).Post(context.Background(), "transport-state", []byte(`{}`))
	if !errors.Is(err, ErrBadStatus) {
		t.Fatalf("expected ErrBadStatus, got %v", err)
	}
}

func TestPostUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	if err := New(Config{URL: url}).Post(context.Background(), "transport-state", []byte(`{}`)); err == nil {
		t.Fatalf("expected network error")
	}
}

func TestPostWRP(t *testing.T) {
	var got captured
	srv := newCaptureServer(t, http.StatusAccepted, &got)
	c := New(Config{URL: srv.URL, Format: FormatWRP})

	envelope := []byte(`{"type":"topology-change","data":[]}`)
	if err := c.Post(context.Background(), "topology-change", envelope); err != nil {
		t.Fatalf("post: %v", err)
	}
	if got.contentType != "application/msgpack" {
		t.Fatalf("content type = %q", got.contentType)
	}
	var msg wrp.Message
	if err := wrp.NewDecoderBytes(got.body, wrp.Msgpack).Decode(&msg); err != nil {
		t.Fatalf("decode wrp: %v", err)
	}
	if msg.Type != wrp.SimpleEventMessageType {
		t.Fatalf("type = %v", msg.Type)
	}
	if msg.Destination != "event:topology-change" || msg.Source != "sonosgw" {
		t.Fatalf("addressing = %s -> %s", msg.Source, msg.Destination)
	}
	if string(msg.Payload) != string(envelope) || msg.ContentType != "application/json" {
		t.Fatalf("payload = %s (%s)", msg.Payload, msg.ContentType)
	}
	if msg.TransactionUUID == "" {
		t.Fatalf("transaction uuid missing")
	}
}

func TestUnknownFormat(t *testing.T) {
	c := New(Config{URL: "http://127.0.0.1:1", Format: "xml"})
	if err := c.Post(context.Background(), "mute-change", []byte(`{}`)); err == nil {
		t.Fatalf("expected format error")
	}
}
