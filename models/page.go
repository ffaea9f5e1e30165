package models

import "strings"

// Origin is the original-language title and crawl timestamp of a page.
type Origin struct {
	Title     string `json:"title" bson:"title"`
	Timestamp string `json:"timestamp" bson:"timestamp"`
	// SimpleTimestamp ist der Tagesanteil von Timestamp (Sortierschlüssel).
	SimpleTimestamp string `json:"simple_timestamp" bson:"simple_timestamp"`
}

// Translation is a machine-translated title for one display language.
type Translation struct {
	Title     string `json:"title" bson:"title"`
	Timestamp string `json:"timestamp" bson:"timestamp"`
}

// Page is the canonical stored record for one article, keyed by URL.
type Page struct {
	URL              string                       `json:"url" bson:"url"`
	Country          string                       `json:"country" bson:"country"`
	DisplayedCountry string                       `json:"displayed_country" bson:"displayed_country"`
	Orig             Origin                       `json:"orig" bson:"orig"`
	Translations     map[string]Translation       `json:"translations" bson:"translations"`
	Topics           map[string]float64           `json:"topics" bson:"topics"`
	Snippets         map[string]map[string]string `json:"snippets" bson:"snippets"`

	IsAboutCrisis     int      `json:"is_about_COVID-19" bson:"is_about_COVID-19"`
	IsUseful          int      `json:"is_useful" bson:"is_useful"`
	IsClear           int      `json:"is_clear" bson:"is_clear"`
	IsAboutFalseRumor int      `json:"is_about_false_rumor" bson:"is_about_false_rumor"`
	IsHidden          int      `json:"is_hidden" bson:"is_hidden"`
	IsChecked         int      `json:"is_checked" bson:"is_checked"`
	IsPositive        *int     `json:"is_positive,omitempty" bson:"is_positive,omitempty"`
	Sentiment         *float64 `json:"sentiment,omitempty" bson:"sentiment,omitempty"`

	Domain       string            `json:"domain" bson:"domain"`
	DomainLabels map[string]string `json:"domain_labels" bson:"domain_labels"`

	// ReviewVersion is the version of the last human review applied, 0 if none.
	ReviewVersion int64 `json:"review_version" bson:"review_version"`
}

// Clone returns a deep copy.
func (p *Page) Clone() *Page {
	if p == nil {
		return nil
	}
	c := *p
	if p.Translations != nil {
		c.Translations = make(map[string]Translation, len(p.Translations))
		for k, v := range p.Translations {
			c.Translations[k] = v
		}
	}
	c.Topics = cloneScores(p.Topics)
	if p.Snippets != nil {
		c.Snippets = make(map[string]map[string]string, len(p.Snippets))
		for lang, m := range p.Snippets {
			c.Snippets[lang] = cloneStrings(m)
		}
	}
	c.DomainLabels = cloneStrings(p.DomainLabels)
	if p.IsPositive != nil {
		v := *p.IsPositive
		c.IsPositive = &v
	}
	if p.Sentiment != nil {
		v := *p.Sentiment
		c.Sentiment = &v
	}
	return &c
}

// Translated returns the title block for lang, or the zero value.
func (p *Page) Translated(lang string) Translation {
	return p.Translations[lang]
}

// HasAnyTopic reports whether the page carries at least one of labels.
func (p *Page) HasAnyTopic(labels []string) bool {
	for _, l := range labels {
		if _, ok := p.Topics[l]; ok {
			return true
		}
	}
	return false
}

// SimpleDate returns the date part of an ISO-8601 timestamp ("2021-01-02T10:00:00" -> "2021-01-02").
func SimpleDate(ts string) string {
	ts = strings.TrimSpace(ts)
	if i := strings.IndexAny(ts, "T "); i >= 0 {
		return ts[:i]
	}
	return ts
}

func cloneScores(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	c := make(map[string]float64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// IntPtr is a helper for optional flags.
func IntPtr(v int) *int { return &v }

// FloatPtr is a helper for optional scores.
func FloatPtr(v float64) *float64 { return &v }
