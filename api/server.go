// Package api is the HTTP layer over the query engine and the review workflow.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"covid-news/cache"
	"covid-news/providers/sitelist"
	"covid-news/services"
	"covid-news/taxonomy"
)

// Deps are the collaborators of the router. Cache, Sources and Ingestor are optional.
type Deps struct {
	Taxonomy *taxonomy.Taxonomy
	Queries  *services.QueryEngine
	Pages    *services.PageService
	Feedback *services.FeedbackService
	Ingestor *services.Ingestor
	Cache    cache.Cache
	Sources  sitelist.Sources
	Logger   *zap.Logger

	// Password guards POST /update; APIKey guards the /admin routes.
	Password    string
	APIKey      string
	AllowOrigin string
}

type server struct {
	Deps
}

// errBadRequest carries a message for a 400 answer.
type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	if d.Cache == nil {
		d.Cache = cache.Noop{}
	}
	s := &server{Deps: d}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(d.AllowOrigin))
	router.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupArticleRoutes(router, s)
	setupTweetRoutes(router, s)
	setupReviewRoutes(router, s)
	setupMetaRoutes(router, s)
	setupAdminRoutes(router, s)
	return router
}

// params reads start, limit, lang and query. start and limit must be decimal when present.
func (s *server) params(c *gin.Context) (services.QueryParams, error) {
	p := services.QueryParams{Start: 0, Limit: services.DefaultLimit, Lang: "ja", Query: c.Query("query")}
	var err error
	if p.Start, err = decimalParam(c, "start", 0); err != nil {
		return p, err
	}
	if p.Limit, err = decimalParam(c, "limit", services.DefaultLimit); err != nil {
		return p, err
	}
	if p.Lang, err = s.lang(c); err != nil {
		return p, err
	}
	return p, nil
}

func (s *server) lang(c *gin.Context) (string, error) {
	lang := c.DefaultQuery("lang", "ja")
	if !s.Taxonomy.HasLanguage(lang) {
		return "", errBadRequest{"Allowed languages are `ja` and `en`."}
	}
	return lang, nil
}

func decimalParam(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok {
		return def, nil
	}
	if raw == "" {
		return 0, errBadRequest{"Parameter `" + name + "` must be an integer."}
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, errBadRequest{"Parameter `" + name + "` must be an integer."}
		}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errBadRequest{"Parameter `" + name + "` must be an integer."}
	}
	return n, nil
}

// cached answers from the query cache or runs fn and stores its JSON.
func (s *server) cached(c *gin.Context, fn func(ctx context.Context) (any, error)) {
	ctx := c.Request.Context()
	key := cache.Key(c.Request.URL.Path, c.Request.URL.Query())
	if body, ok, err := s.Cache.Get(ctx, key); err != nil {
		s.Logger.Warn("Cache-Lesefehler", zap.Error(err))
	} else if ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
		return
	}

	v, err := fn(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Cache.Set(ctx, key, body); err != nil {
		s.Logger.Warn("Cache-Schreibfehler", zap.Error(err))
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (s *server) fail(c *gin.Context, err error) {
	var bad errBadRequest
	switch {
	case errors.As(err, &bad):
		c.JSON(http.StatusBadRequest, gin.H{"error": bad.msg})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		s.Logger.Error("Anfrage fehlgeschlagen", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
	}
}
