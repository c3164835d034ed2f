package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/juhoohuj/triviacircle-backend/pkg/metrics"
)

// errUnknownEvent is logged by the reader loop; unrecognized events never
// produce an error frame.
var errUnknownEvent = errors.New("unknown_event")

// internal (untyped) handler signature.
type rawHandler func(ctx context.Context, c *ConnContext, body json.RawMessage) error

// Router keeps a map[event]handler, à-la gin.Engine. Payloads are validated
// before any handler touches room state.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
	validate *validator.Validate
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]rawHandler),
		validate: validator.New(),
	}
}

// Register binds an event to a strongly-typed handler.
func Register[Req any](
	r *Router,
	event string,
	h func(ctx context.Context, c *ConnContext, req Req) error,
) {
	if event == "" {
		panic("ws router: empty event")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[event] = func(ctx context.Context, c *ConnContext, body json.RawMessage) error {
		var req Req
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return err
			}
		}
		if err := r.validate.Struct(&req); err != nil {
			return err
		}
		return h(ctx, c, req)
	}
}

// dispatch is called by the server's reader loop. Only registered events mint
// a metric label; every client-chosen unknown name counts under one fixed
// label so label cardinality stays bounded.
func (r *Router) dispatch(ctx context.Context, c *ConnContext, env Envelope) error {
	r.mu.RLock()
	h, ok := r.handlers[env.Event]
	r.mu.RUnlock()
	if !ok {
		metrics.EventsDispatched.WithLabelValues("unknown").Inc()
		return errUnknownEvent
	}
	metrics.EventsDispatched.WithLabelValues(env.Event).Inc()
	return h(ctx, c, env.Body)
}
