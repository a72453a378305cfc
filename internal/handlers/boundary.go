package handlers

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"shopdash/internal/logger"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
)

// Section is one independently computed part of a response. Error is set
// when the section fell back after a failure.
type Section[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error,omitempty"`
}

// guard runs fn and turns a panic into a fallback section so the rest of the
// response still renders.
func guard[T any](ctx context.Context, name string, fallback T, fn func() T) (s Section[T]) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx).
				Str("section", name).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("section failed")
			s = Section[T]{Data: fallback, Error: name + " unavailable"}
		}
	}()
	return Section[T]{Data: fn()}
}

type HandlerFunc func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// Recover wraps a whole handler: a panic becomes a 500 and is logged, and
// every request is logged with its status and a request id.
func Recover(h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (resp events.APIGatewayV2HTTPResponse, err error) {
		start := time.Now()
		id := logger.RequestID(ctx)
		if id == "" {
			id = req.RequestContext.RequestID
		}
		if id == "" {
			id = uuid.NewString()
		}
		ctx = logger.WithRequestID(ctx, id)

		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("handler panic")
				resp, err = errResp(500, "internal error")
			}
			if resp.Headers == nil {
				resp.Headers = map[string]string{}
			}
			resp.Headers["x-request-id"] = id
			logRequest(ctx, req, resp, start)
		}()
		return h(ctx, req)
	}
}
