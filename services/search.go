package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"covid-news/metrics"
	"covid-news/models"
	"covid-news/search"
	"covid-news/storage"
)

const (
	// SearchTopicName is the display name of the synthetic topic carrying the search excerpt.
	SearchTopicName = "Search"
	// searchRelatedness sorts the search excerpt after every real topic.
	searchRelatedness = -1.0
	maxSnippetRunes   = 70
)

// searchArticles asks the keyword index and rehydrates the hits from the store in hit order.
// Index failures answer empty; store failures propagate.
func (e *QueryEngine) searchArticles(ctx context.Context, country string, p QueryParams) ([]models.ArticleView, error) {
	q, ok := e.searchQuery(country, p)
	if !ok {
		return []models.ArticleView{}, nil
	}
	hits, err := e.index.SearchPages(ctx, q)
	if err != nil {
		return []models.ArticleView{}, e.searchFailed(ctx, err)
	}
	if len(hits) == 0 {
		return []models.ArticleView{}, nil
	}

	urls := make([]string, 0, len(hits))
	for _, h := range hits {
		urls = append(urls, h.Key)
	}
	pages, err := e.store.GetPages(ctx, urls)
	if err != nil {
		return nil, err
	}
	byURL := make(map[string]*models.Page, len(pages))
	for _, page := range pages {
		byURL[page.URL] = page
	}

	views := make([]models.ArticleView, 0, len(hits))
	for _, h := range hits {
		page, ok := byURL[h.Key]
		if !ok || !storage.Visible(page) {
			continue
		}
		view := e.articleView(page, p.Lang)
		snippet := ""
		if len(h.Highlights) > 0 {
			snippet = TrimSnippet(h.Highlights[0])
		}
		view.Topics = append(view.Topics, models.TopicView{Name: SearchTopicName, Snippet: snippet, Relatedness: searchRelatedness})
		views = append(views, view)
	}
	return views, nil
}

func (e *QueryEngine) searchTweets(ctx context.Context, country string, p QueryParams) ([]models.TweetView, error) {
	q, ok := e.searchQuery(country, p)
	if !ok {
		return []models.TweetView{}, nil
	}
	hits, err := e.index.SearchTweets(ctx, q)
	if err != nil {
		return []models.TweetView{}, e.searchFailed(ctx, err)
	}
	if len(hits) == 0 {
		return []models.TweetView{}, nil
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Key)
	}
	tweets, err := e.store.GetTweets(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Tweet, len(tweets))
	for _, t := range tweets {
		byID[t.ID] = t
	}
	ordered := make([]*models.Tweet, 0, len(hits))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
		}
	}
	return tweetViews(ordered, p.Lang), nil
}

func (e *QueryEngine) searchQuery(country string, p QueryParams) (search.Query, bool) {
	text := strings.TrimSpace(p.Query)
	if text == "" {
		return search.Query{}, false
	}
	q := search.Query{Text: text, Lang: p.Lang, Offset: p.Start, Limit: p.Limit}
	if country != "" {
		q.Terms = e.tx.InternalCountries(country)
		if len(q.Terms) == 0 {
			return search.Query{}, false
		}
	}
	return q, true
}

// searchFailed degrades index errors to an empty answer. A cancelled caller still gets its
// context error so that partial results are not reported as complete.
func (e *QueryEngine) searchFailed(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !errors.Is(err, search.ErrDisabled) {
		metrics.SearchFailures.Inc()
		e.logger.Warn("Suchindex nicht verfügbar, leeres Ergebnis", zap.Error(err))
	}
	return nil
}

// TrimSnippet shortens a highlighted excerpt longer than 70 characters: the text before the
// first <em> is cut back to the last clause boundary (、), the highlight and what follows stay.
func TrimSnippet(s string) string {
	if utf8.RuneCountInString(s) <= maxSnippetRunes {
		return s
	}
	before, rest, found := strings.Cut(s, "<em>")
	if !found {
		return s
	}
	if i := strings.LastIndex(before, "、"); i >= 0 {
		before = before[i+len("、"):]
	}
	return before + "<em>" + rest
}
