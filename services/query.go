package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"covid-news/metrics"
	"covid-news/models"
	"covid-news/search"
	"covid-news/storage"
	"covid-news/taxonomy"
)

// DefaultLimit is the page size used when a caller passes no limit.
const DefaultLimit = 10

// QueryParams are the filters of one article or tweet query. Topic and Country accept
// external keys or localized display names; empty means the dimension is unbound.
type QueryParams struct {
	Topic   string
	Country string
	Start   int
	Limit   int
	Lang    string
	Query   string
}

// cellFunc answers one (topic, country) cell with both dimensions resolved.
type cellFunc[T any] func(ctx context.Context, topic, country string) ([]T, error)

// QueryEngine answers the read side: filtered, sorted and paginated articles and tweets in
// list, grouped or matrix shape.
type QueryEngine struct {
	store   storage.Store
	index   search.Index
	tx      *taxonomy.Taxonomy
	workers int
	logger  *zap.Logger
	now     func() time.Time
}

// NewQueryEngine erstellt die Query Engine. index darf nil sein (Suche deaktiviert).
func NewQueryEngine(store storage.Store, index search.Index, tx *taxonomy.Taxonomy, workers int, logger *zap.Logger) *QueryEngine {
	if index == nil {
		index = search.Disabled{}
	}
	if workers < 1 {
		workers = 1
	}
	return &QueryEngine{store: store, index: index, tx: tx, workers: workers, logger: logger, now: time.Now}
}

// ArticlesByTopic groups by topic first: a bound topic alone yields one list per country,
// nothing bound yields a topic × country matrix.
func (e *QueryEngine) ArticlesByTopic(ctx context.Context, p QueryParams) (models.Result[models.ArticleView], error) {
	p = e.normalize(p)
	return dispatch(ctx, e, p.Topic, p.Country, e.TopicKeys(), e.tx.CountryKeys(), false, e.articleCell(p, nil))
}

// ArticlesByCountry is ArticlesByTopic with country as the outer dimension.
func (e *QueryEngine) ArticlesByCountry(ctx context.Context, p QueryParams) (models.Result[models.ArticleView], error) {
	p = e.normalize(p)
	return dispatch(ctx, e, p.Topic, p.Country, e.TopicKeys(), e.tx.CountryKeys(), true, e.articleCell(p, nil))
}

// PositiveArticles is ArticlesByTopic restricted to recent articles with a positive tone.
// The general topic is left out of topic fan-out and of "all"; it only answers when it is
// the bound topic.
func (e *QueryEngine) PositiveArticles(ctx context.Context, p QueryParams) (models.Result[models.ArticleView], error) {
	p = e.normalize(p)
	th := e.tx.Thresholds()
	filter := &storage.PositiveFilter{
		MinSentiment: th.Sentiment,
		Since:        e.now().AddDate(0, 0, -th.PositiveWindowDays).Format("2006-01-02"),
	}
	topics := make([]string, 0, len(e.TopicKeys()))
	for _, key := range e.TopicKeys() {
		if key != e.tx.GeneralTopic() {
			topics = append(topics, key)
		}
	}
	return dispatch(ctx, e, p.Topic, p.Country, topics, e.tx.CountryKeys(), false, e.articleCell(p, filter))
}

// TweetsByTopic answers tweet queries. Tweets carry no topics: only "all" (and the search
// topic) yields tweets, and the topic fan-out consists of "all" alone.
func (e *QueryEngine) TweetsByTopic(ctx context.Context, p QueryParams) (models.Result[models.TweetView], error) {
	p = e.normalize(p)
	return dispatch(ctx, e, p.Topic, p.Country, []string{taxonomy.All}, e.tx.CountryKeys(), false, e.tweetCell(p))
}

// TweetsByCountry is TweetsByTopic with country as the outer dimension.
func (e *QueryEngine) TweetsByCountry(ctx context.Context, p QueryParams) (models.Result[models.TweetView], error) {
	p = e.normalize(p)
	return dispatch(ctx, e, p.Topic, p.Country, []string{taxonomy.All}, e.tx.CountryKeys(), true, e.tweetCell(p))
}

// TopicKeys are the external topics, without "all".
func (e *QueryEngine) TopicKeys() []string { return e.tx.TopicKeys() }

func (e *QueryEngine) normalize(p QueryParams) QueryParams {
	if p.Topic != "" {
		p.Topic = e.tx.ResolveTopic(p.Topic)
	}
	if p.Country != "" {
		p.Country = e.tx.ResolveCountry(p.Country)
	}
	if p.Start < 0 {
		p.Start = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if !e.tx.HasLanguage(p.Lang) {
		p.Lang = e.tx.Languages()[0]
	}
	return p
}

// dispatch picks the result shape from the bound dimensions. countryOuter selects which
// dimension is outer when neither is bound.
func dispatch[T any](ctx context.Context, e *QueryEngine, topic, country string, topics, countries []string, countryOuter bool, cell cellFunc[T]) (models.Result[T], error) {
	start := time.Now()
	var (
		res models.Result[T]
		err error
	)
	switch {
	case topic != "" && country != "":
		res, err = queryOne(ctx, topic, country, cell)
	case topic != "":
		res, err = queryByDimension(ctx, e.workers, countries, func(ctx context.Context, c string) ([]T, error) {
			return cell(ctx, topic, c)
		})
	case country != "":
		res, err = queryByDimension(ctx, e.workers, topics, func(ctx context.Context, t string) ([]T, error) {
			return cell(ctx, t, country)
		})
	case countryOuter:
		res, err = queryMatrix(ctx, e.workers, countries, topics, func(ctx context.Context, c, t string) ([]T, error) {
			return cell(ctx, t, c)
		})
	default:
		res, err = queryMatrix(ctx, e.workers, topics, countries, cell)
	}
	label := res.Shape.String()
	if topic == e.tx.SearchTopic() {
		label = "search"
	}
	metrics.QueryDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return res, err
}

func queryOne[T any](ctx context.Context, topic, country string, cell cellFunc[T]) (models.Result[T], error) {
	items, err := cell(ctx, topic, country)
	if err != nil {
		return models.Result[T]{}, err
	}
	return models.NewList(items), nil
}

func queryByDimension[T any](ctx context.Context, workers int, keys []string, cell func(context.Context, string) ([]T, error)) (models.Result[T], error) {
	results := make([][]T, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, key := range keys {
		if gctx.Err() != nil {
			break
		}
		i, key := i, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items, err := cell(gctx, key)
			if err != nil {
				return fmt.Errorf("query %s: %w", key, err)
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Result[T]{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Result[T]{}, err
	}
	groups := make(map[string][]T, len(keys))
	for i, key := range keys {
		groups[key] = results[i]
	}
	return models.NewGrouped(keys, groups), nil
}

func queryMatrix[T any](ctx context.Context, workers int, outer, inner []string, cell cellFunc[T]) (models.Result[T], error) {
	results := make([][][]T, len(outer))
	for i := range results {
		results[i] = make([][]T, len(inner))
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
loop:
	for i, o := range outer {
		for j, in := range inner {
			if gctx.Err() != nil {
				break loop
			}
			i, j, o, in := i, j, o, in
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				items, err := cell(gctx, o, in)
				if err != nil {
					return fmt.Errorf("query %s/%s: %w", o, in, err)
				}
				results[i][j] = items
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return models.Result[T]{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Result[T]{}, err
	}
	cells := make(map[string]map[string][]T, len(outer))
	for i, o := range outer {
		row := make(map[string][]T, len(inner))
		for j, in := range inner {
			row[in] = results[i][j]
		}
		cells[o] = row
	}
	return models.NewMatrix(outer, inner, cells), nil
}

// articleCell is the shared per-cell primitive for article queries.
func (e *QueryEngine) articleCell(p QueryParams, positive *storage.PositiveFilter) cellFunc[models.ArticleView] {
	return func(ctx context.Context, topic, country string) ([]models.ArticleView, error) {
		if topic == e.tx.SearchTopic() {
			return e.searchArticles(ctx, country, p)
		}
		q, ok := e.pageQuery(topic, country, positive != nil)
		if !ok {
			return []models.ArticleView{}, nil
		}
		q.Positive = positive
		q.Offset, q.Limit = p.Start, p.Limit
		pages, err := e.store.FindPages(ctx, q)
		if err != nil {
			return nil, err
		}
		views := make([]models.ArticleView, 0, len(pages))
		for _, page := range pages {
			views = append(views, e.articleView(page, p.Lang))
		}
		return views, nil
	}
}

// pageQuery expands external keys to internal sets. It reports false when a bound key is
// unknown, which matches nothing.
func (e *QueryEngine) pageQuery(topic, country string, positive bool) (storage.PageQuery, bool) {
	var q storage.PageQuery
	if topic != "" {
		labels := e.tx.InternalTopics(topic)
		if positive && topic != e.tx.GeneralTopic() {
			labels = without(labels, e.tx.InternalTopics(e.tx.GeneralTopic()))
		}
		if len(labels) == 0 {
			return q, false
		}
		q.Topics = labels
		q.SortTopics = labels
	}
	if country != "" {
		codes := e.tx.InternalCountries(country)
		if len(codes) == 0 {
			return q, false
		}
		q.Countries = codes
	}
	return q, true
}

func (e *QueryEngine) tweetCell(p QueryParams) cellFunc[models.TweetView] {
	return func(ctx context.Context, topic, country string) ([]models.TweetView, error) {
		if topic == e.tx.SearchTopic() {
			return e.searchTweets(ctx, country, p)
		}
		if topic != taxonomy.All {
			return []models.TweetView{}, nil
		}
		q := storage.TweetQuery{Offset: p.Start, Limit: p.Limit}
		if country != "" {
			q.Countries = e.tx.InternalCountries(country)
			if len(q.Countries) == 0 {
				return []models.TweetView{}, nil
			}
		}
		tweets, err := e.store.FindTweets(ctx, q)
		if err != nil {
			return nil, err
		}
		return tweetViews(tweets, p.Lang), nil
	}
}

func tweetViews(tweets []*models.Tweet, lang string) []models.TweetView {
	views := make([]models.TweetView, 0, len(tweets))
	for _, t := range tweets {
		views = append(views, t.View(lang))
	}
	return views
}

func without(list, drop []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		keep := true
		for _, d := range drop {
			if v == d {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, v)
		}
	}
	return out
}
