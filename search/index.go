// Package search is the keyword index used when a query asks for the "search" topic. The
// index holds a thin projection of pages and tweets; hits carry the key to rejoin them
// against the store.
package search

import (
	"context"
	"errors"
)

// ErrDisabled is returned by Disabled for every search.
var ErrDisabled = errors.New("keyword search is disabled")

// Query is a free-text search restricted to a set of internal country codes.
type Query struct {
	Text string
	// Terms are the internal country codes; a hit must match at least one.
	Terms  []string
	Lang   string
	Offset int
	Limit  int
}

// Hit is one ranked match. Key is the page URL or the tweet ID.
type Hit struct {
	Key        string
	Highlights []string
}

// Index is a keyword search provider.
type Index interface {
	SearchPages(ctx context.Context, q Query) ([]Hit, error)
	SearchTweets(ctx context.Context, q Query) ([]Hit, error)
}

// Disabled is the Index used when no search backend is configured.
type Disabled struct{}

var _ Index = Disabled{}

func (Disabled) SearchPages(context.Context, Query) ([]Hit, error)  { return nil, ErrDisabled }
func (Disabled) SearchTweets(context.Context, Query) ([]Hit, error) { return nil, ErrDisabled }
