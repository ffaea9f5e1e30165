package storage

import (
	"context"
	"errors"
	"sort"

	"covid-news/models"
)

// ErrNotFound is returned when a page, review or tweet does not exist.
var ErrNotFound = errors.New("not found")

// PageStore persists Page records keyed by URL.
type PageStore interface {
	// InsertPage inserts p if no page with the same URL exists and reports whether it did.
	InsertPage(ctx context.Context, p *models.Page) (bool, error)
	// ReplacePageIfNewer replaces the stored page only if its origin timestamp is strictly
	// older than p's, as one conditional write. It reports whether the replace happened.
	ReplacePageIfNewer(ctx context.Context, p *models.Page) (bool, error)
	GetPage(ctx context.Context, url string) (*models.Page, error)
	GetPages(ctx context.Context, urls []string) ([]*models.Page, error)
	FindPages(ctx context.Context, q PageQuery) ([]*models.Page, error)
	CountPages(ctx context.Context) (int64, error)
}

// ReviewStore keeps the latest human review per URL and applies reviews to pages.
type ReviewStore interface {
	// SaveReview stores r unless a review with a higher version is already stored for the URL.
	SaveReview(ctx context.Context, r *models.Review) error
	LatestReview(ctx context.Context, url string) (*models.Review, error)
	// ApplyReview overwrites the review-controlled fields of the page unless the page already
	// carries a newer review. It returns ErrNotFound for unknown URLs.
	ApplyReview(ctx context.Context, r *models.Review) (bool, error)
}

// TweetStore persists tweets with first-write-wins semantics.
type TweetStore interface {
	// InsertTweets inserts every tweet whose ID is not stored yet and returns how many were new.
	InsertTweets(ctx context.Context, tweets []*models.Tweet) (int, error)
	GetTweets(ctx context.Context, ids []string) ([]*models.Tweet, error)
	FindTweets(ctx context.Context, q TweetQuery) ([]*models.Tweet, error)
	CountTweets(ctx context.Context) (int64, error)
}

// Store is the full persistence contract.
type Store interface {
	PageStore
	ReviewStore
	TweetStore
	Close() error
}

// PositiveFilter restricts a page query to recent articles with a positive tone.
type PositiveFilter struct {
	MinSentiment float64
	// Since is the inclusive lower bound on the origin timestamp (ISO-8601).
	Since string
}

// PageQuery selects visible pages. Empty Topics or Countries means no filter on that
// dimension; callers resolve unknown taxonomy keys to "no query" before getting here.
type PageQuery struct {
	Topics    []string
	Countries []string
	Positive  *PositiveFilter
	// SortTopics are secondary descending sort keys after the publication day.
	SortTopics []string
	Offset     int
	Limit      int
}

// Match reports whether p satisfies q, including the base visibility rule.
func (q PageQuery) Match(p *models.Page) bool {
	if !Visible(p) {
		return false
	}
	if len(q.Topics) > 0 && !p.HasAnyTopic(q.Topics) {
		return false
	}
	if len(q.Countries) > 0 && !containsString(q.Countries, p.DisplayedCountry) {
		return false
	}
	if q.Positive != nil {
		if p.Sentiment == nil || *p.Sentiment <= q.Positive.MinSentiment {
			return false
		}
		if p.IsPositive != nil && *p.IsPositive == 0 {
			return false
		}
		if p.Orig.Timestamp < q.Positive.Since {
			return false
		}
	}
	return true
}

// Visible is the base predicate every article query starts from: about the crisis and not
// hidden. This also covers domestic pages, which need the crisis flag like every other page.
func Visible(p *models.Page) bool {
	return p.IsAboutCrisis == 1 && p.IsHidden == 0
}

// Less orders a before b: newest day first, then each sort topic's score descending
// (missing scores last), then newest origin timestamp, then URL.
func (q PageQuery) Less(a, b *models.Page) bool {
	if a.Orig.SimpleTimestamp != b.Orig.SimpleTimestamp {
		return a.Orig.SimpleTimestamp > b.Orig.SimpleTimestamp
	}
	for _, label := range q.SortTopics {
		as, aok := a.Topics[label]
		bs, bok := b.Topics[label]
		if aok != bok {
			return aok
		}
		if as != bs {
			return as > bs
		}
	}
	if a.Orig.Timestamp != b.Orig.Timestamp {
		return a.Orig.Timestamp > b.Orig.Timestamp
	}
	return a.URL < b.URL
}

// Apply filters, sorts and slices pages in memory.
func (q PageQuery) Apply(pages []*models.Page) []*models.Page {
	out := make([]*models.Page, 0, len(pages))
	for _, p := range pages {
		if q.Match(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return q.Less(out[i], out[j]) })
	return paginate(out, q.Offset, q.Limit)
}

// TweetQuery selects tweets by country, newest day first then by retweet count.
type TweetQuery struct {
	Countries []string
	Offset    int
	Limit     int
}

// Less orders tweets: newest day, most retweets, then ID.
func (q TweetQuery) Less(a, b *models.Tweet) bool {
	if a.SimpleTimestamp != b.SimpleTimestamp {
		return a.SimpleTimestamp > b.SimpleTimestamp
	}
	if a.RetweetCount != b.RetweetCount {
		return a.RetweetCount > b.RetweetCount
	}
	return a.ID < b.ID
}

// Apply filters, sorts and slices tweets in memory.
func (q TweetQuery) Apply(tweets []*models.Tweet) []*models.Tweet {
	out := make([]*models.Tweet, 0, len(tweets))
	for _, t := range tweets {
		if len(q.Countries) == 0 || containsString(q.Countries, t.Country) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return q.Less(out[i], out[j]) })
	return paginate(out, q.Offset, q.Limit)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
