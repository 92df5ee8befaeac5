package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sharetube/syncroom/pkg/validator"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("invalid payload")
)

// ValidationError is returned for payloads that decode but fail validation.
type ValidationError struct {
	Errors []validator.ValidationError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d field error(s)", ErrInvalidPayload, len(e.Errors))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Reader interface {
	ReadJSON(v any) error
}

type iValidator interface {
	Validate(any) ([]validator.ValidationError, bool)
}

type HandlerFunc[C, T any] func(ctx context.Context, conn C, payload T) error

type Middleware[C any] func(next HandlerFunc[C, any]) HandlerFunc[C, any]

type ErrorHandlerFunc[C any] func(ctx context.Context, conn C, err error)

type route[C any] struct {
	decode  func(json.RawMessage) (any, error)
	handler HandlerFunc[C, any]
}

type WSRouter[C any] struct {
	routes      map[string]route[C]
	middlewares []Middleware[C]
	validate    iValidator
	onError     ErrorHandlerFunc[C]
}

func New[C any](validate iValidator) *WSRouter[C] {
	return &WSRouter[C]{
		routes:   make(map[string]route[C]),
		validate: validate,
		onError:  func(context.Context, C, error) {},
	}
}

func (r *WSRouter[C]) Use(mw ...Middleware[C]) {
	r.middlewares = append(r.middlewares, mw...)
}

func (r *WSRouter[C]) OnError(h ErrorHandlerFunc[C]) {
	r.onError = h
}

// Handle registers h for messageType. The payload is decoded into T and
// validated before h is called, so handlers only ever see well-formed input.
func Handle[C, T any](r *WSRouter[C], messageType string, h HandlerFunc[C, T]) {
	r.routes[messageType] = route[C]{
		decode: func(raw json.RawMessage) (any, error) {
			var payload T
			if len(raw) > 0 && string(raw) != "null" {
				if err := json.Unmarshal(raw, &payload); err != nil {
					return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
				}
			}

			if r.validate != nil {
				if errs, ok := r.validate.Validate(payload); !ok {
					return nil, &ValidationError{Errors: errs}
				}
			}

			return payload, nil
		},
		handler: func(ctx context.Context, conn C, payload any) error {
			return h(ctx, conn, payload.(T))
		},
	}
}

// Dispatch routes one raw frame.
func (r *WSRouter[C]) Dispatch(ctx context.Context, conn C, data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		r.onError(ctx, conn, fmt.Errorf("%w: %w", ErrInvalidPayload, err))
		return
	}

	r.dispatch(ctx, conn, &msg)
}

func (r *WSRouter[C]) dispatch(ctx context.Context, conn C, msg *message) {
	ctx = context.WithValue(ctx, messageTypeKey, msg.Type)

	rt, exists := r.routes[msg.Type]
	if !exists {
		r.onError(ctx, conn, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type))
		return
	}

	payload, err := rt.decode(msg.Payload)
	if err != nil {
		r.onError(ctx, conn, err)
		return
	}

	handler := rt.handler
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	if err := handler(ctx, conn, payload); err != nil {
		r.onError(ctx, conn, err)
	}
}

// ServeConn reads frames from rd until it fails or ctx is done and returns the read error.
func (r *WSRouter[C]) ServeConn(ctx context.Context, conn C, rd Reader) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var msg message
		if err := rd.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				r.onError(ctx, conn, fmt.Errorf("%w: %w", ErrInvalidPayload, err))
				continue
			}

			return err
		}

		r.dispatch(ctx, conn, &msg)
	}
}
