package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	essearch "github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
)

// Elasticsearch queries per-language indices named "<prefix>-<lang>".
type Elasticsearch struct {
	client      *elasticsearch.Client
	pagePrefix  string
	tweetPrefix string
}

var _ Index = (*Elasticsearch)(nil)

// NewElasticsearch creates a client for the cluster at url.
func NewElasticsearch(url, pagePrefix, tweetPrefix string) (*Elasticsearch, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Elasticsearch{client: client, pagePrefix: pagePrefix, tweetPrefix: tweetPrefix}, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID        string              `json:"_id"`
			Source    map[string]any      `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *Elasticsearch) SearchPages(ctx context.Context, q Query) ([]Hit, error) {
	resp, err := e.search(ctx, indexName(e.pagePrefix, q.Lang), pageQueryBody(q))
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		url, _ := h.Source["url"].(string)
		if url == "" {
			continue
		}
		hits = append(hits, Hit{Key: url, Highlights: h.Highlight["text"]})
	}
	return hits, nil
}

func (e *Elasticsearch) SearchTweets(ctx context.Context, q Query) ([]Hit, error) {
	resp, err := e.search(ctx, indexName(e.tweetPrefix, q.Lang), tweetQueryBody(q))
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, Hit{Key: h.ID})
	}
	return hits, nil
}

func (e *Elasticsearch) search(ctx context.Context, index string, body *essearch.Request) (*searchResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s", index, res.String())
	}
	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}

func indexName(prefix, lang string) string {
	if lang != "ja" {
		lang = "en"
	}
	return prefix + "-" + lang
}

func termsClause(field string, terms []string) types.Query {
	should := make([]types.Query, 0, len(terms))
	for _, t := range terms {
		should = append(should, types.Query{Term: map[string]types.TermQuery{field: {Value: t}}})
	}
	return types.Query{Bool: &types.BoolQuery{Should: should}}
}

func matchText(text string) types.Query {
	return types.Query{Match: map[string]types.MatchQuery{"text": {Query: strings.TrimSpace(text)}}}
}

// sortByLocalTimestamp sorts on the nested timestamp.local field, newest first.
func sortByLocalTimestamp() []types.SortCombinations {
	return []types.SortCombinations{types.SortOptions{SortOptions: map[string]types.FieldSort{
		"timestamp.local": {Order: &sortorder.Desc, Nested: &types.NestedSortValue{Path: "timestamp"}},
	}}}
}

func queryBody(field string, q Query) *essearch.Request {
	from, size := q.Offset, q.Limit
	return &essearch.Request{
		Query: &types.Query{Bool: &types.BoolQuery{Must: []types.Query{
			termsClause(field, q.Terms),
			matchText(q.Text),
		}}},
		Sort: sortByLocalTimestamp(),
		From: &from,
		Size: &size,
	}
}

func pageQueryBody(q Query) *essearch.Request {
	req := queryBody("region", q)
	req.Highlight = &types.Highlight{Fields: map[string]types.HighlightField{"text": {}}}
	return req
}

func tweetQueryBody(q Query) *essearch.Request {
	return queryBody("country", q)
}
