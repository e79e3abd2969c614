// Package events forwards swap events to external sinks. Publishing happens after the
// store call returns, so a slow or failing sink never holds up a state transition.
package events

import (
	"context"
	"errors"

	"swapkv/internal/model"
)

type Sink interface {
	Publish(ctx context.Context, ev model.Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, model.Event) error { return nil }

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Combine drops nil sinks and avoids wrapping a single sink.
func Combine(sinks ...Sink) Sink {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return Nop{}
	case 1:
		return out[0]
	default:
		return out
	}
}
