package models

// RawStamp is a title/timestamp pair as delivered by the classification pipeline.
type RawStamp struct {
	Title     string `json:"title"`
	Timestamp string `json:"timestamp"`
}

// RawDocument is one line of the classified-page feed. Score maps hold continuous classifier
// outputs (classes_bert), discrete flags (classes) and keyword hits (classes_kwd).
type RawDocument struct {
	URL           string              `json:"url"`
	Country       string              `json:"country"`
	Orig          RawStamp            `json:"orig"`
	JaTranslated  RawStamp            `json:"ja_translated"`
	EnTranslated  RawStamp            `json:"en_translated"`
	Classes       map[string]float64  `json:"classes"`
	ClassesBert   map[string]float64  `json:"classes_bert"`
	ClassesKwd    map[string]float64  `json:"classes_kwd"`
	Snippets      map[string][]string `json:"snippets"`
	SnippetsEn    map[string][]string `json:"snippets_en"`
	Domain        string              `json:"domain"`
	DomainLabel   string              `json:"domain_label"`
	DomainLabelEn string              `json:"domain_label_en"`
}

// Translated returns the translated title block for lang.
func (d *RawDocument) Translated(lang string) (RawStamp, bool) {
	switch lang {
	case "ja":
		return d.JaTranslated, true
	case "en":
		return d.EnTranslated, true
	}
	return RawStamp{}, false
}

// SnippetCandidates returns the per-label candidate excerpts for lang.
func (d *RawDocument) SnippetCandidates(lang string) map[string][]string {
	if lang == "en" {
		return d.SnippetsEn
	}
	return d.Snippets
}

// DomainLabelFor returns the source label for lang.
func (d *RawDocument) DomainLabelFor(lang string) string {
	if lang == "en" {
		return d.DomainLabelEn
	}
	return d.DomainLabel
}
