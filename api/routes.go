package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"covid-news/services"
)

func setupArticleRoutes(router *gin.Engine, s *server) {
	byTopic := func(c *gin.Context) {
		p, err := s.params(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		p.Topic, p.Country = c.Param("topic"), c.Param("country")
		s.cached(c, func(ctx context.Context) (any, error) { return s.Queries.ArticlesByTopic(ctx, p) })
	}
	router.GET("/classes", byTopic)
	router.GET("/classes/:topic", byTopic)
	router.GET("/classes/:topic/:country", byTopic)

	byCountry := func(c *gin.Context) {
		p, err := s.params(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		p.Country, p.Topic = c.Param("country"), c.Param("topic")
		s.cached(c, func(ctx context.Context) (any, error) { return s.Queries.ArticlesByCountry(ctx, p) })
	}
	router.GET("/countries", byCountry)
	router.GET("/countries/:country", byCountry)
	router.GET("/countries/:country/:topic", byCountry)

	positive := func(c *gin.Context) {
		p, err := s.params(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		p.Topic, p.Country = c.Param("topic"), c.Param("country")
		s.cached(c, func(ctx context.Context) (any, error) { return s.Queries.PositiveArticles(ctx, p) })
	}
	router.GET("/positive", positive)
	router.GET("/positive/:topic", positive)
	router.GET("/positive/:topic/:country", positive)
}

func setupTweetRoutes(router *gin.Engine, s *server) {
	rg := router.Group("/tweets")

	byTopic := func(c *gin.Context) {
		p, err := s.params(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		p.Topic, p.Country = c.Param("topic"), c.Param("country")
		s.cached(c, func(ctx context.Context) (any, error) { return s.Queries.TweetsByTopic(ctx, p) })
	}
	rg.GET("/classes", byTopic)
	rg.GET("/classes/:topic", byTopic)
	rg.GET("/classes/:topic/:country", byTopic)

	byCountry := func(c *gin.Context) {
		p, err := s.params(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		p.Country, p.Topic = c.Param("country"), c.Param("topic")
		s.cached(c, func(ctx context.Context) (any, error) { return s.Queries.TweetsByCountry(ctx, p) })
	}
	rg.GET("/countries", byCountry)
	rg.GET("/countries/:country", byCountry)
	rg.GET("/countries/:country/:topic", byCountry)
}

type updateRequest struct {
	Password          string   `json:"password"`
	URL               string   `json:"url"`
	IsHidden          bool     `json:"is_hidden"`
	IsAboutCrisis     bool     `json:"is_about_COVID-19"`
	IsUseful          bool     `json:"is_useful"`
	IsAboutFalseRumor bool     `json:"is_about_false_rumor"`
	IsPositive        *bool    `json:"is_positive"`
	Country           string   `json:"new_displayed_country"`
	Topics            []string `json:"new_classes"`
	Notes             string   `json:"notes"`
}

func setupReviewRoutes(router *gin.Engine, s *server) {
	router.POST("/update", func(c *gin.Context) {
		var req updateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if s.Password == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.Password)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "The password is not correct"})
			return
		}
		if req.URL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
			return
		}
		review, err := s.Pages.ApplyHumanReview(c.Request.Context(), services.ReviewRequest{
			URL:               req.URL,
			IsHidden:          req.IsHidden,
			IsAboutCrisis:     req.IsAboutCrisis,
			IsUseful:          req.IsUseful,
			IsAboutFalseRumor: req.IsAboutFalseRumor,
			IsPositive:        req.IsPositive,
			Country:           req.Country,
			Topics:            req.Topics,
			Notes:             req.Notes,
		})
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, review)
	})

	router.GET("/history", func(c *gin.Context) {
		h, err := s.Pages.History(c.Query("url"))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, h)
	})

	router.POST("/feedback", func(c *gin.Context) {
		var req struct {
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		err := s.Feedback.Submit(c.Request.Context(), req.Content)
		if errors.Is(err, services.ErrInvalidFeedback) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	})
}

func setupMetaRoutes(router *gin.Engine, s *server) {
	router.GET("/meta", func(c *gin.Context) {
		lang, err := s.lang(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		meta := s.Taxonomy.Meta(lang)
		if s.Sources != nil {
			meta = s.Sources.Decorate(meta)
		}
		c.JSON(http.StatusOK, meta)
	})
}

func setupAdminRoutes(router *gin.Engine, s *server) {
	rg := router.Group("/admin")
	rg.Use(apiKeyAuthMiddleware(s.APIKey))

	rg.POST("/ingest", func(c *gin.Context) {
		if s.Ingestor == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "ingestion is not configured"})
			return
		}
		report, err := s.Ingestor.Run(c.Request.Context())
		if errors.Is(err, services.ErrIngestRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			s.Logger.Error("Manueller Import fehlgeschlagen", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	rg.POST("/replay", func(c *gin.Context) {
		n, err := s.Pages.ReplayReviews(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"applied": n})
	})
}
