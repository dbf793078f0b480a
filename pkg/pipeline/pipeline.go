// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ExecutionRequest is the payload one pipeline invocation carries from the
// PriorityQueue dequeue to the terminal handler.
type ExecutionRequest struct {
	Message QueuedMessage
	Payload interface{}
	Elapsed time.Duration // stamped by Timing
	Attempt int           // stamped by Retry, 0 on first try
}

// ExecutionResult is what the terminal handler (or any short-circuiting
// middleware) returns.
type ExecutionResult struct {
	Output interface{}
	Err    error
}

// Handler is the terminal operation a Pipeline wraps — in this runtime,
// "drain one QueuedMessage and invoke AgentLoop.Run/RunStream".
type Handler func(ctx context.Context, req *ExecutionRequest) (*ExecutionResult, error)

// Middleware wraps a Handler. It either calls next or returns an error
// without calling it; Retry is the one middleware here that calls next
// again after a failed attempt.
type Middleware func(next Handler) Handler

// Pipeline is a composable chain of middleware around a terminal Handler.
type Pipeline struct {
	handler Handler
}

// New builds a Pipeline by wrapping terminal in middlewares, applied so
// that the first middleware listed is the outermost (sees the request
// first, the result last).
func New(terminal Handler, middlewares ...Middleware) *Pipeline {
	h := terminal
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return &Pipeline{handler: h}
}

// Run drives one request through the full middleware chain.
func (p *Pipeline) Run(ctx context.Context, req *ExecutionRequest) (*ExecutionResult, error) {
	return p.handler(ctx, req)
}

// Logging logs start/end of each request with its duration.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ExecutionRequest) (*ExecutionResult, error) {
			start := time.Now()
			logger.Debug("pipeline: request started", zap.String("session_id", req.Message.SessionID))
			result, err := next(ctx, req)
			logger.Debug("pipeline: request finished",
				zap.String("session_id", req.Message.SessionID),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return result, err
		}
	}
}

// Timing stamps req.Elapsed with the total time spent in the rest of the
// chain, including everything downstream of this middleware.
func Timing() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ExecutionRequest) (*ExecutionResult, error) {
			start := time.Now()
			result, err := next(ctx, req)
			req.Elapsed = time.Since(start)
			return result, err
		}
	}
}

// ErrNilPayload is returned by Validation when a request has no payload.
var ErrNilPayload = errors.New("pipeline: request payload is nil")

// Validation rejects any request whose Payload is nil before it reaches
// the rest of the chain.
func Validation() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ExecutionRequest) (*ExecutionResult, error) {
			if req.Payload == nil {
				return nil, ErrNilPayload
			}
			return next(ctx, req)
		}
	}
}

// Retry re-invokes the rest of the chain up to maxRetries additional times
// on error, with linear backoff delay·(attempt+1). req.Attempt is stamped
// with the 0-based attempt number the downstream handler is seeing.
func Retry(maxRetries int, delay time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ExecutionRequest) (*ExecutionResult, error) {
			var lastResult *ExecutionResult
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				req.Attempt = attempt
				lastResult, lastErr = next(ctx, req)
				if lastErr == nil {
					return lastResult, nil
				}
				if attempt == maxRetries {
					break
				}
				wait := delay * time.Duration(attempt+1)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return lastResult, fmt.Errorf("pipeline: retry exhausted after %d attempts: %w", maxRetries+1, lastErr)
		}
	}
}

// RateLimit enforces a minimum inter-call gap of 1/rps between invocations
// reaching the rest of the chain, via a single last-call-timestamp gate.
func RateLimit(rps float64) Middleware {
	var (
		mu       chanMutex
		lastCall time.Time
	)
	minGap := time.Duration(float64(time.Second) / rps)
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ExecutionRequest) (*ExecutionResult, error) {
			mu.Lock()
			defer mu.Unlock()

			if !lastCall.IsZero() {
				wait := minGap - time.Since(lastCall)
				if wait > 0 {
					select {
					case <-time.After(wait):
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
			}
			lastCall = time.Now()
			return next(ctx, req)
		}
	}
}

// chanMutex is a trivial channel-based mutex so RateLimit's closure state
// doesn't need a separate sync import alias collision with other files.
type chanMutex struct {
	ch chan struct{}
}

func (m *chanMutex) Lock() {
	if m.ch == nil {
		m.ch = make(chan struct{}, 1)
	}
	m.ch <- struct{}{}
}

func (m *chanMutex) Unlock() {
	<-m.ch
}
