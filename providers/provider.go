package providers

import (
	"context"
	"time"

	"covid-news/models"
)

// PageProvider ist das Interface für Quellen klassifizierter Artikel.
type PageProvider interface {
	// ReadPages ruft fn für jedes neue Dokument auf. Der Lesefortschritt wird nur
	// gespeichert, wenn alle Aufrufe erfolgreich waren.
	ReadPages(ctx context.Context, fn func(*models.RawDocument) error) (ReadStats, error)

	// Name gibt den eindeutigen Namen der Quelle zurück.
	Name() string
}

// TweetProvider liefert die Tweets eines Tages.
type TweetProvider interface {
	ReadTweets(ctx context.Context, day time.Time) ([]*models.Tweet, error)
	Name() string
}

// ReadStats summarises one pass over a page source.
type ReadStats struct {
	Offset    int64
	Read      int
	Malformed int
}
