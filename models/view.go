package models

// TopicView is one entry of the topic list returned to clients.
type TopicView struct {
	Name        string  `json:"name"`
	Snippet     string  `json:"snippet"`
	Relatedness float64 `json:"relatedness"`
}

// ArticleView is a Page reshaped for one display language.
type ArticleView struct {
	URL               string      `json:"url"`
	Country           string      `json:"country"`
	DisplayedCountry  string      `json:"displayed_country"`
	Orig              Origin      `json:"orig"`
	Translated        Translation `json:"translated"`
	Topics            []TopicView `json:"topics"`
	IsAboutCrisis     int         `json:"is_about_COVID-19"`
	IsUseful          int         `json:"is_useful"`
	IsClear           int         `json:"is_clear"`
	IsAboutFalseRumor int         `json:"is_about_false_rumor"`
	IsHidden          int         `json:"is_hidden"`
	IsChecked         int         `json:"is_checked"`
	IsPositive        *int        `json:"is_positive,omitempty"`
	Domain            string      `json:"domain"`
	DomainLabel       string      `json:"domain_label"`
}
