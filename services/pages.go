package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/width"

	"covid-news/auditlog"
	"covid-news/cache"
	"covid-news/metrics"
	"covid-news/models"
	"covid-news/storage"
	"covid-news/taxonomy"
)

// Status is the outcome of an automated upsert.
type Status int

const (
	StatusIgnored Status = iota
	StatusInserted
	StatusUpdated
)

func (s Status) String() string {
	switch s {
	case StatusInserted:
		return "inserted"
	case StatusUpdated:
		return "updated"
	default:
		return "ignored"
	}
}

// tweetBatchSize ist die maximale Anzahl Tweets pro Schreibvorgang.
const tweetBatchSize = 1000

// ReviewRequest is a human category check as submitted by a reviewer.
type ReviewRequest struct {
	URL               string
	IsHidden          bool
	IsAboutCrisis     bool
	IsUseful          bool
	IsAboutFalseRumor bool
	IsPositive        *bool
	// Country is an internal country code or an external country key.
	Country string
	// Topics are external topic keys; each contributes its first internal label.
	Topics []string
	Notes  string
}

// PageService owns every write to pages, reviews and tweets.
type PageService struct {
	store  storage.Store
	audit  *auditlog.Log
	tx     *taxonomy.Taxonomy
	cache  cache.Cache
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	lastVersion int64
}

// NewPageService erstellt den Service. c darf nil sein.
func NewPageService(store storage.Store, audit *auditlog.Log, tx *taxonomy.Taxonomy, c cache.Cache, logger *zap.Logger) *PageService {
	if c == nil {
		c = cache.Noop{}
	}
	return &PageService{store: store, audit: audit, tx: tx, cache: c, logger: logger, now: time.Now}
}

// UpsertPage inserts p, or replaces the stored page when p's origin timestamp is strictly newer.
// After an insert or update the latest stored review for the URL is applied again, so human
// corrections survive re-ingestion.
func (s *PageService) UpsertPage(ctx context.Context, p *models.Page) (Status, error) {
	status := StatusIgnored
	inserted, err := s.store.InsertPage(ctx, p)
	if err != nil {
		return status, fmt.Errorf("insert page: %w", err)
	}
	if inserted {
		status = StatusInserted
	} else {
		replaced, err := s.store.ReplacePageIfNewer(ctx, p)
		if err != nil {
			return status, fmt.Errorf("replace page: %w", err)
		}
		if replaced {
			status = StatusUpdated
		}
	}
	metrics.PagesUpserted.WithLabelValues(status.String()).Inc()
	if status == StatusIgnored {
		return status, nil
	}

	r, err := s.store.LatestReview(ctx, p.URL)
	if errors.Is(err, storage.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return status, fmt.Errorf("load review: %w", err)
	}
	if _, err := s.store.ApplyReview(ctx, r); err != nil {
		return status, fmt.Errorf("reapply review: %w", err)
	}
	return status, nil
}

// ApplyHumanReview records a review in the audit log, persists it as the latest review of the
// URL and overwrites the page's review-controlled fields. An unknown URL is logged, the review
// is still kept so that a later insert picks it up.
func (s *PageService) ApplyHumanReview(ctx context.Context, req ReviewRequest) (*models.Review, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, errors.New("review without url")
	}
	log := s.logger.With(zap.String("url", url))

	now := s.now()
	r := &models.Review{
		ID:                uuid.NewString(),
		URL:               url,
		IsHidden:          boolToInt(req.IsHidden),
		IsAboutCrisis:     boolToInt(req.IsAboutCrisis),
		IsUseful:          boolToInt(req.IsUseful),
		IsAboutFalseRumor: boolToInt(req.IsAboutFalseRumor),
		NewCountry:        s.reviewCountry(req.Country),
		NewTopics:         s.reviewTopics(log, req.Topics),
		Notes:             width.Widen.String(req.Notes),
		Time:              now,
		Version:           s.nextVersion(now),
	}
	if req.IsPositive != nil {
		r.IsPositive = models.IntPtr(boolToInt(*req.IsPositive))
	}

	if err := s.audit.AppendReview(r); err != nil {
		return nil, fmt.Errorf("append review log: %w", err)
	}
	if err := s.store.SaveReview(ctx, r); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}
	applied, err := s.store.ApplyReview(ctx, r)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Warn("Review für unbekannte URL, Seite bleibt unverändert")
		metrics.ReviewsApplied.WithLabelValues("unknown_url").Inc()
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("apply review: %w", err)
	case !applied:
		metrics.ReviewsApplied.WithLabelValues("stale").Inc()
	default:
		metrics.ReviewsApplied.WithLabelValues("applied").Inc()
	}
	s.PurgeCache(ctx)
	return r, nil
}

// PurgeCache drops every cached query answer. Failures are only logged; entries expire anyway.
func (s *PageService) PurgeCache(ctx context.Context) {
	if err := s.cache.Purge(ctx); err != nil {
		s.logger.Warn("Cache konnte nicht geleert werden", zap.Error(err))
	}
}

// ReplayReviews applies every review in the audit log in file order and returns how many
// reached a stored page. Replaying is idempotent.
func (s *PageService) ReplayReviews(ctx context.Context) (int, error) {
	applied := 0
	err := s.audit.Reviews(func(r *models.Review) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.store.SaveReview(ctx, r); err != nil {
			return fmt.Errorf("save review: %w", err)
		}
		ok, err := s.store.ApplyReview(ctx, r)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("apply review: %w", err)
		}
		if ok {
			applied++
		}
		return nil
	})
	return applied, err
}

// UpsertTweets stores tweets not seen before, in batches, and returns how many were new.
func (s *PageService) UpsertTweets(ctx context.Context, tweets []*models.Tweet) (int, error) {
	total := 0
	for start := 0; start < len(tweets); start += tweetBatchSize {
		end := start + tweetBatchSize
		if end > len(tweets) {
			end = len(tweets)
		}
		n, err := s.store.InsertTweets(ctx, tweets[start:end])
		total += n
		metrics.TweetsInserted.Add(float64(n))
		if err != nil {
			return total, fmt.Errorf("insert tweets: %w", err)
		}
	}
	return total, nil
}

// History returns the latest logged review of url.
func (s *PageService) History(url string) (auditlog.History, error) {
	return s.audit.FindReview(url)
}

func (s *PageService) nextVersion(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := now.UnixNano()
	if v <= s.lastVersion {
		v = s.lastVersion + 1
	}
	s.lastVersion = v
	return v
}

func (s *PageService) reviewCountry(in string) string {
	in = strings.TrimSpace(in)
	if in == "" || s.tx.IsCountryCode(in) {
		return in
	}
	key := s.tx.ResolveCountry(in)
	if key == taxonomy.All {
		return ""
	}
	if codes := s.tx.InternalCountries(key); len(codes) > 0 {
		return codes[0]
	}
	return in
}

func (s *PageService) reviewTopics(log *zap.Logger, keys []string) []string {
	labels := make([]string, 0, len(keys))
	seen := map[string]bool{}
	for _, k := range keys {
		key := s.tx.ResolveTopic(k)
		internal := s.tx.InternalTopics(key)
		if key == taxonomy.All || len(internal) == 0 {
			log.Warn("Unbekanntes Thema im Review ignoriert", zap.String("topic", k))
			continue
		}
		if !seen[internal[0]] {
			seen[internal[0]] = true
			labels = append(labels, internal[0])
		}
	}
	return labels
}
