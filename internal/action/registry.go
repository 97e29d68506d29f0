// Package action holds the named commands the HTTP router dispatches to.
package action

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/stepherg/sonosgw/internal/discovery"
)

// ErrNotFound matches, via errors.Is, the error Dispatch returns for an
// unregistered name.
var ErrNotFound = errors.New("action not found")

type notFoundError struct{ name string }

func (e *notFoundError) Error() string        { return fmt.Sprintf("action '%s' not found", e.name) }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

// Handler executes an action against player with the remaining path segments.
type Handler func(ctx context.Context, player discovery.Player, args []string) (Result, error)

// Result is what a handler produced. Handlers that only drive the device
// return Ack; handlers that answer with data return Value.
type Result struct {
	body any
	ack  bool
}

// Ack marks a transport-level acknowledgement with nothing to report.
func Ack() Result { return Result{ack: true} }

// Value wraps a response body.
func Value(v any) Result { return Result{body: v} }

// Success is the body an acknowledged or empty result is normalized to.
type Success struct {
	Status string `json:"status"`
}

// Body returns the value to serialize: acknowledgements and empty results
// become {"status":"success"}, anything else passes through unchanged.
func (r Result) Body() any {
	if r.ack || r.body == nil {
		return Success{Status: "success"}
	}
	return r.body
}

// Registry maps lower-cased action names to handlers. It is populated at
// startup and only read afterwards.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name (case-insensitive) to h. Names are unique.
func (r *Registry) Register(name string, h Handler) error {
	key := strings.ToLower(name)
	if h == nil {
		return errors.Errorf("action %q: nil handler", key)
	}
	if _, dup := r.handlers[key]; dup {
		return errors.Errorf("action %q already registered", key)
	}
	r.handlers[key] = h
	return nil
}

// MustRegister is Register for startup code, where a clash is a programming error.
func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the handler registered under name.
func (r *Registry) Dispatch(ctx context.Context, name string, player discovery.Player, args []string) (Result, error) {
	h, ok := r.Lookup(name)
	if !ok {
		return Result{}, &notFoundError{name: name}
	}
	return h(ctx, player, args)
}
