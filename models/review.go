package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Layouts accepted for a review's time. Older log lines carry local timestamps without a zone.
var reviewTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Review is a human category check. It is persisted as the latest review per URL and appended
// to the audit log, one JSON object per line.
type Review struct {
	ID                string    `json:"id" bson:"_id"`
	URL               string    `json:"url" bson:"url"`
	IsHidden          int       `json:"is_hidden" bson:"is_hidden"`
	IsAboutCrisis     int       `json:"is_about_COVID-19" bson:"is_about_COVID-19"`
	IsUseful          int       `json:"is_useful" bson:"is_useful"`
	IsAboutFalseRumor int       `json:"is_about_false_rumor" bson:"is_about_false_rumor"`
	IsPositive        *int      `json:"is_positive,omitempty" bson:"is_positive,omitempty"`
	NewCountry        string    `json:"new_country" bson:"new_country"`
	NewTopics         []string  `json:"new_topics" bson:"new_topics"`
	Notes             string    `json:"notes" bson:"notes"`
	Time              time.Time `json:"time" bson:"time"`
	Version           int64     `json:"version" bson:"version"`
}

// UnmarshalJSON accepts RFC 3339 times as well as zoneless ones, which are read as UTC.
// A missing or empty time stays zero.
func (r *Review) UnmarshalJSON(data []byte) error {
	type plain Review
	aux := struct {
		*plain
		Time string `json:"time"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t, err := ParseReviewTime(aux.Time)
	if err != nil {
		return err
	}
	r.Time = t
	return nil
}

// ParseReviewTime parses a review timestamp in any of the accepted layouts.
func ParseReviewTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range reviewTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("review time %q: unknown layout", s)
}

// TopicScores is the topic map a review writes: every chosen label at full relevance.
func (r *Review) TopicScores() map[string]float64 {
	topics := make(map[string]float64, len(r.NewTopics))
	for _, label := range r.NewTopics {
		topics[label] = 1.0
	}
	return topics
}

// ApplyTo overwrites the review-controlled fields of p. Classifier-derived fields stay as they are.
func (r *Review) ApplyTo(p *Page) {
	p.IsHidden = r.IsHidden
	p.IsAboutCrisis = r.IsAboutCrisis
	p.IsUseful = r.IsUseful
	p.IsAboutFalseRumor = r.IsAboutFalseRumor
	if r.IsPositive != nil {
		v := *r.IsPositive
		p.IsPositive = &v
	}
	p.IsChecked = 1
	if r.NewCountry != "" {
		p.DisplayedCountry = r.NewCountry
	}
	p.Topics = r.TopicScores()
	if r.Version > p.ReviewVersion {
		p.ReviewVersion = r.Version
	}
}
