package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"covid-news/auditlog"
	"covid-news/metrics"
	"covid-news/models"
	"covid-news/notify"
	"covid-news/providers"
	"covid-news/taxonomy"
)

// ErrIngestRunning is returned when a run is requested while another one is in progress.
var ErrIngestRunning = errors.New("ingestion already running")

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Read           int    `json:"read"`
	Malformed      int    `json:"malformed"`
	Rejected       int    `json:"rejected"`
	Inserted       int    `json:"inserted"`
	Updated        int    `json:"updated"`
	Ignored        int    `json:"ignored"`
	ReviewsApplied int    `json:"reviews_applied"`
	TweetsInserted int    `json:"tweets_inserted"`
	Announced      string `json:"announced,omitempty"`
}

// Ingestor führt den periodischen Import aus: Seiten-Feed, Review-Replay, optionaler Tweet
// einer neuen nützlichen Seite und Tweet-Dumps von heute und gestern.
type Ingestor struct {
	Pages      providers.PageProvider
	Tweets     providers.TweetProvider
	Normalizer *Normalizer
	Service    *PageService
	Audit      *auditlog.Log
	// Announcer posts one newly inserted useful page per run; nil disables it.
	Announcer notify.Sender
	SiteURL   string
	Logger    *zap.Logger

	tx   *taxonomy.Taxonomy
	now  func() time.Time
	rand *rand.Rand
	mu   sync.Mutex
}

// NewIngestor verdrahtet die Abhängigkeiten; Tweets und Announcer bleiben optional.
func NewIngestor(pages providers.PageProvider, normalizer *Normalizer, service *PageService, audit *auditlog.Log, tx *taxonomy.Taxonomy, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		Pages:      pages,
		Normalizer: normalizer,
		Service:    service,
		Audit:      audit,
		Logger:     logger,
		tx:         tx,
		now:        time.Now,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes one ingestion pass. Store failures abort the run without committing the feed
// cursor, so the next run retries from the same offset.
func (in *Ingestor) Run(ctx context.Context) (IngestReport, error) {
	if !in.mu.TryLock() {
		return IngestReport{}, ErrIngestRunning
	}
	defer in.mu.Unlock()

	report, err := in.run(ctx)
	if report.Inserted+report.Updated+report.TweetsInserted > 0 {
		in.Service.PurgeCache(context.WithoutCancel(ctx))
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.IngestRuns.WithLabelValues(result).Inc()
	return report, err
}

func (in *Ingestor) run(ctx context.Context) (IngestReport, error) {
	var report IngestReport
	var fresh []*models.Page
	log := in.Logger.With(zap.String("provider", in.Pages.Name()))

	stats, err := in.Pages.ReadPages(ctx, func(doc *models.RawDocument) error {
		page, err := in.Normalizer.Normalize(doc)
		if errors.Is(err, ErrRejected) {
			report.Rejected++
			return nil
		}
		if err != nil {
			return err
		}
		status, err := in.Service.UpsertPage(ctx, page)
		if err != nil {
			return err
		}
		switch status {
		case StatusInserted:
			report.Inserted++
			if page.IsUseful == 1 {
				fresh = append(fresh, page)
			}
		case StatusUpdated:
			report.Updated++
		default:
			report.Ignored++
		}
		return nil
	})
	report.Read, report.Malformed = stats.Read, stats.Malformed
	if err != nil {
		return report, fmt.Errorf("read pages: %w", err)
	}
	log.Info("Seiten importiert",
		zap.Int("read", report.Read),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("ignored", report.Ignored),
		zap.Int("rejected", report.Rejected),
		zap.Int64("offset", stats.Offset))

	count, err := in.Service.store.CountPages(ctx)
	if err != nil {
		return report, fmt.Errorf("count pages: %w", err)
	}
	if err := in.Audit.AppendPageCount(count, in.now()); err != nil {
		log.Warn("Seitenanzahl konnte nicht protokolliert werden", zap.Error(err))
	}

	applied, err := in.Service.ReplayReviews(ctx)
	if err != nil {
		return report, fmt.Errorf("replay reviews: %w", err)
	}
	report.ReviewsApplied = applied

	if in.Announcer != nil && len(fresh) > 0 {
		page := fresh[in.rand.Intn(len(fresh))]
		if err := in.Announcer.Send(ctx, in.AnnouncementText(page)); err != nil {
			log.Warn("Tweet fehlgeschlagen", zap.String("url", page.URL), zap.Error(err))
		} else {
			report.Announced = page.URL
		}
	}

	if in.Tweets != nil {
		today := in.now()
		for _, day := range []time.Time{today, today.AddDate(0, 0, -1)} {
			tweets, err := in.Tweets.ReadTweets(ctx, day)
			if err != nil {
				log.Warn("Tweet-Dump nicht lesbar", zap.Time("day", day), zap.Error(err))
				continue
			}
			n, err := in.Service.UpsertTweets(ctx, tweets)
			report.TweetsInserted += n
			if err != nil {
				return report, err
			}
		}
		total, err := in.Service.store.CountTweets(ctx)
		if err != nil {
			return report, fmt.Errorf("count tweets: %w", err)
		}
		if err := in.Audit.AppendTweetCount(total, in.now()); err != nil {
			log.Warn("Tweetanzahl konnte nicht protokolliert werden", zap.Error(err))
		}
	}
	return report, nil
}

// AnnouncementText formats a page for the project's social account, in the first display
// language: "title（country，topic のニュース，source）" followed by the site URL.
func (in *Ingestor) AnnouncementText(p *models.Page) string {
	lang := in.tx.Languages()[0]
	countryKey, ok := in.tx.ExternalCountry(p.DisplayedCountry)
	if !ok {
		countryKey = p.DisplayedCountry
	}
	country := in.tx.CountryName(countryKey, lang)

	var b strings.Builder
	b.WriteString(p.Translated(lang).Title)
	b.WriteString("（")
	b.WriteString(country)
	if label := topTopic(p.Topics); label != "" {
		key, _ := in.tx.ExternalTopic(label)
		b.WriteString("，")
		b.WriteString(in.tx.TopicName(key, lang))
	}
	b.WriteString("のニュース，")
	b.WriteString(p.DomainLabels[lang])
	b.WriteString("）")
	if in.SiteURL != "" {
		b.WriteString("\n")
		b.WriteString(in.SiteURL)
	}
	return b.String()
}

func topTopic(topics map[string]float64) string {
	labels := make([]string, 0, len(topics))
	for l := range topics {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if topics[labels[i]] != topics[labels[j]] {
			return topics[labels[i]] > topics[labels[j]]
		}
		return labels[i] < labels[j]
	})
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}
