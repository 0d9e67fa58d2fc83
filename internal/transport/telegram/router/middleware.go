package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "orderbot/pkg/logx"
)

var (
	ErrNotOwner    = errors.New("not an owner")
	ErrRateLimited = errors.New("rate limited")
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("panic recovered", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			fields := []logx.Field{
				logx.Int64("chat_id", req.Chat.ChatID),
				logx.Int64("from_id", req.FromID),
				logx.String("cmd", req.Command),
				logx.Duration("dur", time.Since(start)),
			}
			if err != nil {
				req.Logger.Warn("request failed", append(fields, logx.Err(err))...)
			} else {
				req.Logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}

// MWOwnerOnly rejects senders outside the allowlist returned by owners.
func MWOwnerOnly(owners func() []int64) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if !slices.Contains(owners(), req.FromID) {
				return ErrNotOwner
			}
			return next(ctx, req)
		}
	}
}

// chatLimiter hands out one token bucket per chat.
type chatLimiter struct {
	mu       sync.Mutex
	perSec   int
	limiters map[int64]*rate.Limiter
}

func newChatLimiter(perSec int) *chatLimiter {
	return &chatLimiter{perSec: perSec, limiters: map[int64]*rate.Limiter{}}
}

// setRate swaps the rate and drops existing buckets.
func (l *chatLimiter) setRate(perSec int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if perSec == l.perSec {
		return
	}
	l.perSec = perSec
	clear(l.limiters)
}

func (l *chatLimiter) allow(chatID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perSec <= 0 {
		return true
	}
	lim, ok := l.limiters[chatID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.perSec), l.perSec)
		l.limiters[chatID] = lim
	}
	return lim.Allow()
}

func MWRateLimit(l *chatLimiter) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if !l.allow(req.Chat.ChatID) {
				return ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}
