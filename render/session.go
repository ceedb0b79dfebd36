package render

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	doorstep "github.com/goliatone/go-doorstep"
)

// PanicLogger receives a recovered renderer panic with a trimmed stack.
type PanicLogger func(step doorstep.Step, err any, stack []byte, fields map[string]any)

// Session renders the current step of the store's active delivery.
type Session struct {
	store       Dispatcher
	registry    *Registry
	logger      doorstep.Logger
	panicLogger PanicLogger
}

type SessionOption func(*Session)

func WithSessionLogger(l doorstep.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

func WithPanicLogger(l PanicLogger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.panicLogger = l
		}
	}
}

// NewSession builds a session. The registry must cover every step of table.
func NewSession(store Dispatcher, registry *Registry, table doorstep.Table, opts ...SessionOption) (*Session, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	if err := registry.Validate(table); err != nil {
		return nil, err
	}
	s := &Session{store: store, registry: registry}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = doorstep.WithLoggerFields(doorstep.NormalizeLogger(s.logger), map[string]any{"component": "render"})
	if s.panicLogger == nil {
		s.panicLogger = s.logPanic
	}
	return s, nil
}

// RenderCurrent hands the current step to its renderer. It returns the
// request, or nil when there is nothing to render (no active delivery or
// the completion gate is open).
func (s *Session) RenderCurrent(ctx context.Context) (*Request, error) {
	view, err := s.store.View()
	if err != nil {
		s.logger.Error("cannot resolve current step: %v", err)
		return nil, err
	}
	if !view.HasStep {
		return nil, nil
	}

	renderer, ok := s.registry.Lookup(view.Current)
	if !ok {
		err := doorstep.NewError(doorstep.ErrUnknownStep, fmt.Sprintf("no renderer for %s", view.Current), nil, map[string]any{
			"step":        view.Current.String(),
			"delivery_id": view.Instance.DeliveryID(),
		})
		s.logger.Error("render aborted: %v", err)
		return nil, err
	}

	req := NewRequest(view, s.store)
	logger := doorstep.WithLoggerFields(s.logger, map[string]any{
		"step":        view.Current.String(),
		"delivery_id": view.Instance.DeliveryID(),
	})
	logger.Debug("rendering step")

	if err := s.render(ctx, renderer, req); err != nil {
		logger.Warn("render failed: %v", err)
		return req, err
	}
	return req, nil
}

func (s *Session) render(ctx context.Context, renderer Renderer, req *Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := make([]byte, 8096)
			stack = cleanStackTrace(stack[:runtime.Stack(stack, false)])
			fields := map[string]any{"delivery_id": req.DeliveryID()}
			s.panicLogger(req.Step, rec, stack, fields)
			err = doorstep.NewError(ErrRenderFailed, fmt.Sprintf("renderer for %s panicked: %v", req.Step, rec), nil, map[string]any{
				"step":        req.Step.String(),
				"delivery_id": req.DeliveryID(),
			})
		}
	}()
	return renderer.Render(ctx, req)
}

func (s *Session) logPanic(step doorstep.Step, err any, stack []byte, fields map[string]any) {
	doorstep.WithLoggerFields(s.logger, fields).
		Error("recovered from panic in %s renderer: %v (%T)\n%s", step, err, err, stack)
}

// cleanStackTrace drops the frames above the panic call.
func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")
	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}
	return []byte(strings.Join(lines, "\n"))
}
