package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"covid-news/models"
	"covid-news/search"
)

func seedPages(t *testing.T, env *testEnv) {
	t.Helper()
	us := rawDoc("us-1", "2021-01-10T08:00:00", map[string]float64{"prevention": 0.9})
	us2 := rawDoc("us-2", "2021-01-10T09:00:00", map[string]float64{"lockdown": 0.95})
	us3 := rawDoc("us-3", "2021-01-09T09:00:00", map[string]float64{"prevention": 0.99})
	cn := rawDoc("cn-1", "2021-01-11T00:00:00", map[string]float64{"infection": 0.9})
	cn.Country = "cn"
	for _, d := range []*models.RawDocument{us, us2, us3, cn} {
		env.ingest(t, d)
	}
}

func urls(items []models.ArticleView) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.URL)
	}
	return out
}

func TestQueryShapeDispatch(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	seedPages(t, env)
	ctx := context.Background()
	topic := "preventionAndMitigationMeasures"

	list, err := env.engine.ArticlesByTopic(ctx, QueryParams{Topic: topic, Country: "us", Lang: "en"})
	if err != nil || list.Shape != models.ShapeList {
		t.Fatalf("bound/bound: shape=%s err=%v", list.Shape, err)
	}

	grouped, err := env.engine.ArticlesByTopic(ctx, QueryParams{Topic: topic, Lang: "en"})
	if err != nil || grouped.Shape != models.ShapeGrouped {
		t.Fatalf("topic only: shape=%s err=%v", grouped.Shape, err)
	}
	if !reflect.DeepEqual(grouped.Keys, env.tx.CountryKeys()) {
		t.Fatalf("grouped keys %v, want %v", grouped.Keys, env.tx.CountryKeys())
	}
	if len(grouped.Group("us")) != 3 || len(grouped.Group("cn")) != 0 {
		t.Fatalf("unexpected groups %v", grouped.Groups)
	}

	byTopic, err := env.engine.ArticlesByTopic(ctx, QueryParams{Country: "cn", Lang: "en"})
	if err != nil || byTopic.Shape != models.ShapeGrouped || !reflect.DeepEqual(byTopic.Keys, env.tx.TopicKeys()) {
		t.Fatalf("country only: %+v err=%v", byTopic, err)
	}
	if len(byTopic.Group("currentStateOfInfection")) != 1 {
		t.Fatalf("cn infection page missing: %v", byTopic.Groups)
	}

	matrix, err := env.engine.ArticlesByTopic(ctx, QueryParams{Lang: "ja"})
	if err != nil || matrix.Shape != models.ShapeMatrix {
		t.Fatalf("unbound: shape=%s err=%v", matrix.Shape, err)
	}
	if !reflect.DeepEqual(matrix.Keys, env.tx.TopicKeys()) || !reflect.DeepEqual(matrix.InnerKeys, env.tx.CountryKeys()) {
		t.Fatalf("matrix keys %v × %v", matrix.Keys, matrix.InnerKeys)
	}
	if len(matrix.Cell(topic, "us")) != 3 {
		t.Fatalf("unexpected matrix cell %v", matrix.Cell(topic, "us"))
	}

	byCountry, err := env.engine.ArticlesByCountry(ctx, QueryParams{Lang: "ja"})
	if err != nil || !reflect.DeepEqual(byCountry.Keys, env.tx.CountryKeys()) {
		t.Fatalf("country matrix keys %v err=%v", byCountry.Keys, err)
	}
	if len(byCountry.Cell("us", topic)) != 3 {
		t.Fatalf("unexpected country matrix cell %v", byCountry.Cell("us", topic))
	}
}

func TestQuerySortByDayThenFirstLabel(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	seedPages(t, env)

	res, err := env.engine.ArticlesByTopic(context.Background(), QueryParams{Topic: "preventionAndMitigationMeasures", Country: "us"})
	if err != nil {
		t.Fatal(err)
	}
	// Same day: the prevention score ranks before the lockdown-only page.
	if got := urls(res.Items); !reflect.DeepEqual(got, []string{"us-1", "us-2", "us-3"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestQueryPaginationBoundary(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	seedPages(t, env)
	ctx := context.Background()

	p := QueryParams{Topic: "preventionAndMitigationMeasures", Country: "us", Start: 2, Limit: 10}
	res, _ := env.engine.ArticlesByTopic(ctx, p)
	if len(res.Items) != 1 {
		t.Fatalf("start=2: expected 1 item, got %d", len(res.Items))
	}
	p.Start = 5
	res, err := env.engine.ArticlesByTopic(ctx, p)
	if err != nil || res.Items == nil || len(res.Items) != 0 {
		t.Fatalf("start=5: expected empty list, got %v err=%v", res.Items, err)
	}
}

func TestQueryUnknownKeysMatchNothing(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	seedPages(t, env)
	ctx := context.Background()

	res, err := env.engine.ArticlesByTopic(ctx, QueryParams{Topic: "retired-topic", Country: "us"})
	if err != nil || len(res.Items) != 0 {
		t.Fatalf("unknown topic: %v err=%v", res.Items, err)
	}
	grouped, err := env.engine.ArticlesByCountry(ctx, QueryParams{Country: "atlantis"})
	if err != nil || grouped.Shape != models.ShapeGrouped {
		t.Fatalf("unknown country: %+v err=%v", grouped, err)
	}
	for _, key := range grouped.Keys {
		if len(grouped.Group(key)) != 0 {
			t.Fatalf("unknown country matched pages under %s", key)
		}
	}
}

func TestQueryResolvesLocalizedNames(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	seedPages(t, env)

	res, err := env.engine.ArticlesByTopic(context.Background(), QueryParams{Topic: "予防・防疫・緩和", Country: "アメリカ"})
	if err != nil || len(res.Items) != 3 {
		t.Fatalf("localized names: %v err=%v", urls(res.Items), err)
	}
}

func TestQueryVisibility(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()

	offTopic := rawDoc("off", "2021-01-10T00:00:00", map[string]float64{"infection": 0.9})
	offTopic.Classes["is_about_COVID-19"] = 0
	env.ingest(t, offTopic)
	env.ingest(t, rawDoc("hidden", "2021-01-10T00:00:00", map[string]float64{"infection": 0.9}))
	env.ingest(t, rawDoc("shown", "2021-01-10T00:00:00", map[string]float64{"infection": 0.9}))
	env.service.ApplyHumanReview(ctx, ReviewRequest{URL: "hidden", IsHidden: true, IsAboutCrisis: true, Topics: []string{"currentStateOfInfection"}})

	res, _ := env.engine.ArticlesByTopic(ctx, QueryParams{Topic: "currentStateOfInfection", Country: "us"})
	if got := urls(res.Items); !reflect.DeepEqual(got, []string{"shown"}) {
		t.Fatalf("unexpected visible pages %v", got)
	}
}

func TestArticleView(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()

	d := rawDoc("rumor", "2021-01-10T00:00:00", map[string]float64{"infection": 0.75, "economy": 0.95})
	d.Domain = "fij.info"
	d.DomainLabelEn = "FIJ"
	d.SnippetsEn = map[string][]string{"economy": {"stimulus"}}
	env.ingest(t, d)

	res, _ := env.engine.ArticlesByTopic(ctx, QueryParams{Topic: "all", Country: "us", Lang: "en"})
	if len(res.Items) != 1 {
		t.Fatalf("expected one article, got %d", len(res.Items))
	}
	v := res.Items[0]
	want := []models.TopicView{
		{Name: "Economic and welfare policies", Snippet: "stimulus", Relatedness: 0.95},
		{Name: "Current State of Infection", Snippet: "stimulus", Relatedness: 0.75},
	}
	if !reflect.DeepEqual(v.Topics, want) {
		t.Fatalf("unexpected topics %+v", v.Topics)
	}
	if v.IsAboutFalseRumor != 1 || v.DomainLabel != "FIJ" || v.Translated.Title != "Masks rumor" {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestPositiveArticles(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()

	add := func(url, ts string, scores map[string]float64) {
		env.ingest(t, rawDoc(url, ts, scores))
	}
	add("edu", "2021-01-15T00:00:00", map[string]float64{"education": 0.9, "is_positive": 0.95})
	add("cases", "2021-01-15T00:00:00", map[string]float64{"infection": 0.9, "is_positive": 0.95})
	add("old", "2020-11-01T00:00:00", map[string]float64{"education": 0.9, "is_positive": 0.95})
	add("gloomy", "2021-01-15T00:00:00", map[string]float64{"education": 0.9, "is_positive": 0.2})

	all, err := env.engine.PositiveArticles(ctx, QueryParams{Topic: "all", Country: "us"})
	if err != nil {
		t.Fatal(err)
	}
	if got := urls(all.Items); !reflect.DeepEqual(got, []string{"edu"}) {
		t.Fatalf("all: unexpected %v", got)
	}

	general, _ := env.engine.PositiveArticles(ctx, QueryParams{Topic: "currentStateOfInfection", Country: "us"})
	if got := urls(general.Items); !reflect.DeepEqual(got, []string{"cases"}) {
		t.Fatalf("explicit general topic: unexpected %v", got)
	}

	byTopic, _ := env.engine.PositiveArticles(ctx, QueryParams{Country: "us"})
	for _, key := range byTopic.Keys {
		if key == "currentStateOfInfection" {
			t.Fatal("general topic must not be fanned out")
		}
	}
}

func TestTweetsOnlyAnswerAll(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.service.UpsertTweets(ctx, []*models.Tweet{
		{ID: "1", Country: "jp", SimpleTimestamp: "2021-01-01", RetweetCount: 3, ContentJaTrans: "こんにちは", ContentEnTrans: "hello"},
		{ID: "2", Country: "us", SimpleTimestamp: "2021-01-02"},
	})

	list, err := env.engine.TweetsByTopic(ctx, QueryParams{Topic: "all", Country: "jp", Lang: "en"})
	if err != nil || len(list.Items) != 1 || list.Items[0].ContentTrans != "hello" {
		t.Fatalf("all/jp: %+v err=%v", list.Items, err)
	}
	none, _ := env.engine.TweetsByTopic(ctx, QueryParams{Topic: "Education", Country: "jp"})
	if len(none.Items) != 0 {
		t.Fatalf("topic tweets must be empty, got %v", none.Items)
	}
	matrix, _ := env.engine.TweetsByTopic(ctx, QueryParams{})
	if !reflect.DeepEqual(matrix.Keys, []string{"all"}) || len(matrix.Cell("all", "us")) != 1 {
		t.Fatalf("unexpected tweet matrix %+v", matrix)
	}
	byCountry, _ := env.engine.TweetsByCountry(ctx, QueryParams{Country: "jp"})
	if !reflect.DeepEqual(byCountry.Keys, []string{"all"}) {
		t.Fatalf("unexpected tweet groups %v", byCountry.Keys)
	}
}

func TestSearchBridge(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	seedPages(t, env)
	ctx := context.Background()
	long := "これは長い前置きの文章です、さらに続く説明があり、ここで<em>マスク</em>の着用について詳しく述べられています。長い長い長い長い文章"
	env.index.hits = []search.Hit{
		{Key: "us-3", Highlights: []string{long}},
		{Key: "missing"},
		{Key: "us-1", Highlights: []string{"short <em>mask</em>"}},
	}

	res, err := env.engine.ArticlesByTopic(ctx, QueryParams{Topic: "search", Country: "us", Query: "マスク", Lang: "ja", Limit: 5})
	if err != nil || res.Shape != models.ShapeList {
		t.Fatalf("search: shape=%s err=%v", res.Shape, err)
	}
	if got := urls(res.Items); !reflect.DeepEqual(got, []string{"us-3", "us-1"}) {
		t.Fatalf("hit order not kept: %v", got)
	}
	last := res.Items[0].Topics[len(res.Items[0].Topics)-1]
	if last.Name != SearchTopicName || last.Relatedness != -1 || last.Snippet != TrimSnippet(long) {
		t.Fatalf("unexpected search topic %+v", last)
	}
	q := env.index.queries[0]
	if q.Text != "マスク" || q.Lang != "ja" || q.Limit != 5 || !reflect.DeepEqual(q.Terms, []string{"us", "us_other"}) {
		t.Fatalf("unexpected index query %+v", q)
	}

	grouped, _ := env.engine.ArticlesByTopic(ctx, QueryParams{Topic: "search", Query: "マスク"})
	if grouped.Shape != models.ShapeGrouped || len(grouped.Keys) != len(env.tx.CountryKeys()) {
		t.Fatalf("search without country must group by country, got %s", grouped.Shape)
	}
}

func TestSearchFailureDegradesToEmpty(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	env.index.err = errors.New("index down")

	res, err := env.engine.ArticlesByTopic(context.Background(), QueryParams{Topic: "search", Country: "us", Query: "x"})
	if err != nil || res.Items == nil || len(res.Items) != 0 {
		t.Fatalf("expected empty result, got %v err=%v", res.Items, err)
	}
	empty, _ := env.engine.ArticlesByTopic(context.Background(), QueryParams{Topic: "search", Country: "us"})
	if len(empty.Items) != 0 || len(env.index.queries) != 1 {
		t.Fatal("blank query must not hit the index")
	}
}

func TestMatrixCancelled(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	seedPages(t, env)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := env.engine.ArticlesByTopic(ctx, QueryParams{}); err == nil {
		t.Fatal("cancelled matrix query must fail instead of returning partial results")
	}
}

func TestTrimSnippet(t *testing.T) {
	t.Parallel()

	short := "短い<em>文</em>"
	if TrimSnippet(short) != short {
		t.Fatal("short snippets must stay")
	}
	long := "前置き一、前置き二、ここから<em>重要</em>な話が続きます。さらに長い説明がここに入り、七十文字を超えるようにたくさんの文字を並べておきます。"
	if got := TrimSnippet(long); got != "ここから<em>重要</em>な話が続きます。さらに長い説明がここに入り、七十文字を超えるようにたくさんの文字を並べておきます。" {
		t.Fatalf("unexpected trim %q", got)
	}
	noEm := string(make([]rune, 80))
	if TrimSnippet(noEm) != noEm {
		t.Fatal("snippets without highlight must stay")
	}
}
