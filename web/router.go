package web

import (
	"errors"
	"fmt"
	"html"
	"log"

	"github.com/MarkWieczorek/bridgy-fed/db"
	"github.com/MarkWieczorek/bridgy-fed/util"
	"github.com/MarkWieczorek/bridgy-fed/webmention"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"golang.org/x/time/rate"
)

// NewRouter wires the webmention endpoints onto a gin engine.
func NewRouter(database *db.DB, conf *util.AppConfig) *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Webmentions carry tiny form bodies
	maxBodySize := MaxBytesMiddleware(64 * 1024)

	in := webmention.NewIngestor(database, conf)

	g.POST("/webmention", maxBodySize, func(c *gin.Context) {
		status, body := handleWebmention(in, c, webmention.ModeSync)
		c.Render(status, render.String{Format: "%s", Data: []any{body}})
	})

	g.POST("/webmention-interactive", maxBodySize, func(c *gin.Context) {
		status, body := handleWebmention(in, c, webmention.ModeInteractive)
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Render(status, render.String{Format: "<p>%s</p>", Data: []any{html.EscapeString(body)}})
	})

	// Task queue callback, hit by the worker's HTTP mode and by manual
	// re-drives. Runs the follower fan-out inline.
	g.POST("/queue/webmention", maxBodySize, func(c *gin.Context) {
		status, body := handleWebmention(in, c, webmention.ModeTask)
		c.Render(status, render.String{Format: "%s", Data: []any{body}})
	})

	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/atom+xml; charset=utf-8")
		atom, err := GetFeed(database, conf)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: "%s", Data: []any{atom}})
		}
	})

	g.GET("/liveness_check", func(c *gin.Context) {
		c.Render(200, render.String{Format: "OK"})
	})

	g.GET("/readiness_check", func(c *gin.Context) {
		if err, _ := database.ReadRecentActivities(1); err != nil {
			c.Render(503, render.String{Format: "database unavailable"})
			return
		}
		c.Render(200, render.String{Format: "OK"})
	})

	return g
}

// Router starts the HTTP server and blocks until it fails.
func Router(conf *util.AppConfig) error {
	log.Printf("Starting webmention server on %s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	return NewRouter(db.GetDB(), conf).Run(fmt.Sprintf(":%d", conf.Conf.HttpPort))
}

// handleWebmention runs one ingestion and maps the result onto an HTTP
// status and body.
func handleWebmention(in *webmention.Ingestor, c *gin.Context, mode webmention.Mode) (int, string) {
	source := c.PostForm("source")
	log.Printf("Web: webmention source=%s target=%s", source, c.PostForm("target"))

	outcome, err := in.Ingest(source, mode)
	if err != nil {
		var ingErr *webmention.IngestError
		if errors.As(err, &ingErr) {
			return ingErr.HTTPStatus(), ingErr.Message
		}
		return 500, err.Error()
	}
	return outcome.Status, outcome.Body
}
