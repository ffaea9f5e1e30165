package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler func(path string, body map[string]any) (int, string)) *Elasticsearch {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		status, resp := handler(r.URL.Path, body)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, resp)
	}))
	t.Cleanup(srv.Close)

	es, err := NewElasticsearch(srv.URL, "covid19-pages", "covid19-tweets")
	if err != nil {
		t.Fatalf("NewElasticsearch: %v", err)
	}
	return es
}

func TestSearchPages(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody map[string]any
	es := newTestServer(t, func(path string, body map[string]any) (int, string) {
		gotPath, gotBody = path, body
		return 200, `{"hits":{"hits":[
			{"_id":"1","_source":{"url":"https://a.example/1"},"highlight":{"text":["a <em>mask</em> b"]}},
			{"_id":"2","_source":{}},
			{"_id":"3","_source":{"url":"https://a.example/3"}}
		]}}`
	})

	hits, err := es.SearchPages(context.Background(), Query{Text: " mask ", Terms: []string{"us", "us_other"}, Lang: "ja", Offset: 5, Limit: 10})
	if err != nil {
		t.Fatalf("SearchPages: %v", err)
	}
	if gotPath != "/covid19-pages-ja/_search" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody["from"].(float64) != 5 || gotBody["size"].(float64) != 10 {
		t.Fatalf("pagination not forwarded: %v", gotBody)
	}
	if len(hits) != 2 || hits[0].Key != "https://a.example/1" || hits[0].Highlights[0] != "a <em>mask</em> b" {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if hits[1].Highlights != nil {
		t.Fatalf("expected no highlight for second hit, got %v", hits[1].Highlights)
	}
}

func TestSearchTweetsUsesIDs(t *testing.T) {
	t.Parallel()

	var gotPath string
	es := newTestServer(t, func(path string, body map[string]any) (int, string) {
		gotPath = path
		return 200, `{"hits":{"hits":[{"_id":"123"},{"_id":"456"}]}}`
	})
	hits, err := es.SearchTweets(context.Background(), Query{Text: "vaccine", Lang: "fr"})
	if err != nil {
		t.Fatalf("SearchTweets: %v", err)
	}
	if gotPath != "/covid19-tweets-en/_search" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if len(hits) != 2 || hits[1].Key != "456" {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestSearchErrorStatus(t *testing.T) {
	t.Parallel()

	es := newTestServer(t, func(string, map[string]any) (int, string) {
		return 500, `{"error":"boom"}`
	})
	if _, err := es.SearchPages(context.Background(), Query{Text: "x", Lang: "en"}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func encodeBody(t *testing.T, req any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatal(err)
	}
	return body
}

func TestPageQueryBody(t *testing.T) {
	t.Parallel()

	body := encodeBody(t, pageQueryBody(Query{Text: " mask ", Terms: []string{"jp"}, Limit: 10}))
	must := body["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	should := must[0].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	if len(should) != 1 {
		t.Fatalf("unexpected should clause %v", should)
	}
	term := should[0].(map[string]any)["term"].(map[string]any)["region"].(map[string]any)
	if term["value"] != "jp" {
		t.Fatalf("unexpected term %v", term)
	}
	match := must[1].(map[string]any)["match"].(map[string]any)["text"].(map[string]any)
	if match["query"] != "mask" {
		t.Fatalf("unexpected match %v", match)
	}
	if _, ok := body["highlight"].(map[string]any)["fields"].(map[string]any)["text"]; !ok {
		t.Fatal("page query must request highlights on text")
	}
	sort := body["sort"].([]any)[0].(map[string]any)["timestamp.local"].(map[string]any)
	if sort["order"] != "desc" || sort["nested"].(map[string]any)["path"] != "timestamp" {
		t.Fatalf("unexpected sort %v", sort)
	}
	if _, ok := encodeBody(t, tweetQueryBody(Query{}))["highlight"]; ok {
		t.Fatal("tweet query must not request highlights")
	}
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	if _, err := (Disabled{}).SearchPages(context.Background(), Query{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
