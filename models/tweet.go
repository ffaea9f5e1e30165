package models

// Tweet is a social-media post. Tweets are insert-if-absent: the first write wins.
type Tweet struct {
	ID              string `json:"id" bson:"_id"`
	Name            string `json:"name" bson:"name"`
	Verified        bool   `json:"verified" bson:"verified"`
	Username        string `json:"username" bson:"username"`
	Avatar          string `json:"avatar" bson:"avatar"`
	Timestamp       string `json:"timestamp" bson:"timestamp"`
	SimpleTimestamp string `json:"simpleTimestamp" bson:"simpleTimestamp"`
	ContentOrig     string `json:"contentOrig" bson:"contentOrig"`
	ContentJaTrans  string `json:"contentJaTrans" bson:"contentJaTrans"`
	ContentEnTrans  string `json:"contentEnTrans" bson:"contentEnTrans"`
	RetweetCount    int    `json:"retweetCount" bson:"retweetCount"`
	Country         string `json:"country" bson:"country"`
	Lang            string `json:"lang" bson:"lang"`
}

// TweetView is the API projection of a tweet for one display language.
type TweetView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Verified     bool   `json:"verified"`
	Username     string `json:"username"`
	Avatar       string `json:"avatar"`
	Timestamp    string `json:"timestamp"`
	ContentOrig  string `json:"contentOrig"`
	ContentTrans string `json:"contentTrans"`
	RetweetCount int    `json:"retweetCount"`
	Country      string `json:"country"`
}

// View projects t for lang.
func (t *Tweet) View(lang string) TweetView {
	trans := t.ContentEnTrans
	if lang == "ja" {
		trans = t.ContentJaTrans
	}
	return TweetView{
		ID:           t.ID,
		Name:         t.Name,
		Verified:     t.Verified,
		Username:     t.Username,
		Avatar:       t.Avatar,
		Timestamp:    t.Timestamp,
		ContentOrig:  t.ContentOrig,
		ContentTrans: trans,
		RetweetCount: t.RetweetCount,
		Country:      t.Country,
	}
}
