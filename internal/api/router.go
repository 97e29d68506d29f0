// Package api maps request paths onto registered actions.
//
// A path is /<device>/<action>/<args...> or, when the first segment does not
// name a device, /<action>/<args...> against any discovered device.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stepherg/sonosgw/internal/action"
	"github.com/stepherg/sonosgw/internal/discovery"
	"github.com/stepherg/sonosgw/internal/metrics"
)

const (
	faviconPath = "/favicon.ico"
	contentType = "application/json;charset=utf-8"

	// NotReadyMessage is returned while discovery has found no zones.
	NotReadyMessage = "No system has yet been discovered. Please retry in a few seconds."
)

const tracerName = "github.com/stepherg/sonosgw/internal/api"

// ErrorBody is the envelope of every failed request.
type ErrorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Stack  string `json:"stack,omitempty"`
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Router is the action-dispatch handler.
type Router struct {
	disc    discovery.Service
	actions *action.Registry
	tracer  trace.Tracer
	logger  *zap.Logger
}

// New traces dispatches with the global provider installed by tracing.Setup.
func New(d discovery.Service, actions *action.Registry, logger *zap.Logger) *Router {
	return &Router{disc: d, actions: actions, tracer: otel.Tracer(tracerName), logger: logger}
}

// NewHandler wraps rt in the chi middleware stack. sockets, when non-nil, is
// served at /ws ahead of the catch-all.
func NewHandler(rt *Router, sockets http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if sockets != nil {
		r.Handle("/ws", sockets)
	}
	r.Handle("/*", rt)
	return r
}

type target struct {
	player discovery.Player
	action string
	args   []string
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.EscapedPath()
	if path == faviconPath {
		return
	}
	if len(rt.disc.Zones()) == 0 {
		rt.logger.Error("request before discovery", zap.String("path", path))
		metrics.Requests.WithLabelValues("", "not_ready").Inc()
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Status: "error", Error: NotReadyMessage})
		return
	}

	t, err := rt.resolve(path)
	if err != nil {
		rt.logger.Error("could not resolve request", zap.String("path", path), zap.Error(err))
		metrics.Requests.WithLabelValues("", "error").Inc()
		rt.fail(w, err)
		return
	}

	body, err := rt.dispatch(r.Context(), t)
	if err != nil {
		label := t.action
		if errors.Is(err, action.ErrNotFound) {
			label = "unknown"
		}
		metrics.Requests.WithLabelValues(label, "error").Inc()
		rt.logger.Error("action failed", zap.String("action", t.action), zap.Error(err))
		rt.fail(w, err)
		return
	}
	metrics.Requests.WithLabelValues(t.action, "success").Inc()
	write(w, http.StatusOK, body)
}

// resolve splits path into device, action and arguments. Only the first
// segment is unescaped; arguments are passed through as sent.
func (rt *Router) resolve(path string) (target, error) {
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	name, err := url.PathUnescape(segs[0])
	if err != nil {
		return target{}, errors.Wrapf(err, "decode path segment %q", segs[0])
	}
	if !utf8.ValidString(name) {
		return target{}, errors.Errorf("URI malformed: %q", segs[0])
	}

	if p, ok := rt.disc.Player(name); ok {
		t := target{player: p, args: segs[min(2, len(segs)):]}
		if len(segs) > 1 {
			t.action = strings.ToLower(segs[1])
		}
		return t, nil
	}

	p, err := rt.disc.AnyPlayer()
	if err != nil {
		return target{}, errors.WithStack(err)
	}
	return target{player: p, action: strings.ToLower(segs[0]), args: segs[1:]}, nil
}

// dispatch runs the action and returns the encoded response body.
func (rt *Router) dispatch(ctx context.Context, t target) ([]byte, error) {
	ctx, span := rt.tracer.Start(ctx, "action "+t.action)
	defer span.End()
	span.SetAttributes(
		attribute.String("sonos.player", t.player.RoomName()),
		attribute.Int("sonos.args", len(t.args)),
	)

	res, err := rt.actions.Dispatch(ctx, t.action, t.player, t.args)
	if err == nil {
		var body []byte
		if body, err = json.Marshal(res.Body()); err == nil {
			return body, nil
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// fail writes the 500 envelope. Errors without a stack gain the stack of this
// boundary, except the unknown-action rejection which reports none.
func (rt *Router) fail(w http.ResponseWriter, err error) {
	body := ErrorBody{Status: "error", Error: err.Error()}
	if !errors.Is(err, action.ErrNotFound) {
		var st stackTracer
		if !errors.As(err, &st) {
			err = errors.WithStack(err)
		}
		body.Stack = fmt.Sprintf("%+v", err)
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	write(w, status, b)
}

func write(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
