package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store backends understood by StoreBackend.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config holds every setting the API server and the ingestion job read from the environment.
type Config struct {
	StoreBackend string `envconfig:"STORE_BACKEND" default:"postgres"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"covid19"`

	MongoURI             string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB              string `envconfig:"MONGO_DB" default:"covid19"`
	MongoPageCollection  string `envconfig:"MONGO_PAGE_COLLECTION" default:"pages"`
	MongoTweetCollection string `envconfig:"MONGO_TWEET_COLLECTION" default:"tweets"`

	// Elasticsearch keyword index. Empty disables keyword search.
	ESURL              string `envconfig:"ES_URL"`
	ESPageIndexPrefix  string `envconfig:"ES_PAGE_INDEX_PREFIX" default:"covid19-pages"`
	ESTweetIndexPrefix string `envconfig:"ES_TWEET_INDEX_PREFIX" default:"covid19-tweets"`

	// Redis query cache. Empty disables caching.
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"60s"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	AllowOrigin  string `envconfig:"ACCESS_CONTROL_ALLOW_ORIGIN" default:"*"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`
	// Password guards the human review endpoint.
	Password string `envconfig:"PASSWORD"`

	TaxonomyPath string `envconfig:"TAXONOMY_PATH"`
	QueryWorkers int    `envconfig:"QUERY_WORKERS" default:"8"`

	LogDir              string `envconfig:"LOG_DIR" default:"./log"`
	InputPagePath       string `envconfig:"DB_INPUT_PAGE_PATH"`
	TweetDumpDir        string `envconfig:"TWEET_DUMP_DIR"`
	SiteListPath        string `envconfig:"SITE_LIST_PATH"`
	CronSchedule        string `envconfig:"CRON_SCHEDULE" default:"0 * * * *"`
	DoTweet             bool   `envconfig:"DO_TWEET" default:"false"`
	VerifyTitleLanguage bool   `envconfig:"VERIFY_TITLE_LANGUAGE" default:"true"`

	SlackAccessTokens []string `envconfig:"SLACK_ACCESS_TOKENS"`
	SlackChannels     []string `envconfig:"SLACK_APP_CHANNELS"`

	TwitterToken          string `envconfig:"TWITTER_TOKEN"`
	TwitterTokenSecret    string `envconfig:"TWITTER_TOKEN_SECRET"`
	TwitterConsumerKey    string `envconfig:"TWITTER_CONSUMER_KEY"`
	TwitterConsumerSecret string `envconfig:"TWITTER_CONSUMER_SECRET"`
	SiteURL               string `envconfig:"SITE_URL" default:"https://lotus.kuee.kyoto-u.ac.jp/NLPforCOVID-19"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Validate checks combinations envconfig tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMongo:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if len(c.SlackAccessTokens) != len(c.SlackChannels) {
		return fmt.Errorf("SLACK_ACCESS_TOKENS has %d entries but SLACK_APP_CHANNELS has %d",
			len(c.SlackAccessTokens), len(c.SlackChannels))
	}
	if c.QueryWorkers < 1 {
		return fmt.Errorf("QUERY_WORKERS must be positive, got %d", c.QueryWorkers)
	}
	return nil
}

// TwitterEnabled reports whether all four OAuth1 credentials are present.
func (c *Config) TwitterEnabled() bool {
	return c.TwitterToken != "" && c.TwitterTokenSecret != "" &&
		c.TwitterConsumerKey != "" && c.TwitterConsumerSecret != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
