// Package notify holds the fire-and-forget text sinks: Slack channels and a Twitter account.
package notify

import (
	"context"
	"errors"
)

// Sender posts a short text somewhere.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Multi fans a text out to several senders and joins their errors.
type Multi []Sender

var _ Sender = Multi(nil)

func (m Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop drops every text.
type Noop struct{}

func (Noop) Send(context.Context, string) error { return nil }
