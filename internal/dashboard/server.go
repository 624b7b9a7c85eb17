// Package dashboard serves a read-only JSON view of the bot's activity:
// which conversations exist, what they searched for, and the stored result
// artifacts. It is an operator tool and exposes no write endpoints.
package dashboard

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bionicsv26/telegram-bot/internal/artifacts"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	DB    *gorm.DB
	Store *artifacts.Store
	Port  int
}

// Start launches the dashboard HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("dashboard: db is required")
	}
	if opts.Store == nil {
		return fmt.Errorf("dashboard: artifact store is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(opts.DB, opts.Store)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// NewRouter builds the dashboard router. Exported for testing.
func NewRouter(db *gorm.DB, store *artifacts.Store) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/api/health", handleHealth)
	router.GET("/api/stats", handleStats(db))
	router.GET("/api/chats", handleChats(db))
	router.GET("/api/history", handleHistory(db))
	router.GET("/api/artifacts", handleArtifacts(db, store))

	return router
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := Stats(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func handleChats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		chats, err := ChatSummary(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, chats)
	}
}

// handleHistory lists one chat's retained queries. The chat is a query
// parameter because timestamp labels contain characters that do not survive
// path segments.
func handleHistory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID := c.Query("chat")
		if chatID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "chat parameter is required"})
			return
		}
		entries, err := HistoryRows(db, chatID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

func handleArtifacts(db *gorm.DB, store *artifacts.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID := c.Query("chat")
		timestamp := c.Query("ts")
		if chatID == "" || timestamp == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "chat and ts parameters are required"})
			return
		}
		arts, err := ArtifactRows(db, store, chatID, timestamp)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, arts)
	}
}
