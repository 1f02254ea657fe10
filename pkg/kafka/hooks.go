package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes every handler attempt. An error from BeforeHandle
// fails the message without calling the handler. Panics in hooks are
// contained by the consumer.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
	return ctx, data, nil
}
func (NoopHook) AfterHandle(context.Context, string, kafka.Message, error) {}
func (NoopHook) OnError(context.Context, string, kafka.Message, error)     {}

// HookFuncs builds a ConsumerHook from whichever funcs are set.
type HookFuncs struct {
	Before func(context.Context, string, kafka.Message, []byte) (context.Context, []byte, error)
	After  func(context.Context, string, kafka.Message, error)
	Err    func(context.Context, string, kafka.Message, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, []byte, error) {
	if h.Before == nil {
		return ctx, data, nil
	}
	return h.Before(ctx, topic, km, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, km kafka.Message, err error) {
	if h.After != nil {
		h.After(ctx, topic, km, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, err)
	}
}

type traceKey struct{}

// TraceHeader is the message header carrying a producer supplied trace id.
const TraceHeader = "trace_id"

// TraceID returns the id TraceHook placed in ctx, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// TraceHook lifts the trace_id header into the handler context.
func TraceHook() ConsumerHook {
	return HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, []byte, error) {
			for _, h := range km.Headers {
				if h.Key == TraceHeader && len(h.Value) > 0 {
					return context.WithValue(ctx, traceKey{}, string(h.Value)), data, nil
				}
			}
			return ctx, data, nil
		},
	}
}

func (c *Consumer) safeBefore(ctx context.Context, topic string, km kafka.Message, data []byte) (outCtx context.Context, out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			outCtx, out, err = ctx, data, fmt.Errorf("before hook panic: %v", r)
		}
	}()
	return c.hook.BeforeHandle(ctx, topic, km, data)
}

func (c *Consumer) safeAfter(ctx context.Context, topic string, km kafka.Message, err error) {
	defer func() { _ = recover() }()
	c.hook.AfterHandle(ctx, topic, km, err)
}

func (c *Consumer) safeOnError(ctx context.Context, topic string, km kafka.Message, err error) {
	defer func() { _ = recover() }()
	c.hook.OnError(ctx, topic, km, err)
}
