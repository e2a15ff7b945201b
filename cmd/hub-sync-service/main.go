package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/hubsync_backend/config"
	"github.com/mmdatafocus/hubsync_backend/hubsync"
	"github.com/mmdatafocus/hubsync_backend/middlewares"
	"github.com/mmdatafocus/hubsync_backend/models"
	"github.com/mmdatafocus/hubsync_backend/utils"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("HUB_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	hubCfg, err := config.LoadHubConfig()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "config"}).Fatal(err)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	transport := hubsync.NewHTTPTransport(hubCfg, nil)
	defer transport.Close()
	defer config.ClosePubSub()

	gcs, err := utils.GetGCSClient(sigCtx)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "gcs"}).Warn("gcs client unavailable; only local snapshots and documents can be read: ", err)
		gcs = nil
	} else {
		defer gcs.Close()
	}

	secret := []byte(strings.TrimSpace(os.Getenv("HUB_PUSH_SECRET")))
	if len(secret) == 0 {
		logger.WithFields(logrus.Fields{"field": "auth"}).Warn("HUB_PUSH_SECRET not set; push and api endpoints are unauthenticated")
	}

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsConfig))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	// The push handler is installed once the ledger and Redis are connected.
	var pushHandler atomic.Pointer[gin.HandlerFunc]
	r.POST("/pubsub/hub-sync", func(c *gin.Context) {
		h := pushHandler.Load()
		if h == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		(*h)(c)
	})

	api := r.Group("/api", middlewares.AuthMiddleware(secret))
	api.POST("/sync", triggerSyncHandler())
	api.GET("/sync-runs", hubsync.HistoryHandler())
	api.GET("/sync-runs/:id", hubsync.RunDetailHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(sigCtx)

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err)
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	worker := hubsync.NewWorker(
		transport,
		hubsync.NewPubSubPayrollSink(""),
		hubsync.NewGormRecorder(db),
		gcs,
		logger,
		hubsync.WorkerConfigFromEnv(),
	)
	lock := hubsync.NewCompanyLock(config.GetRedisLock(), 0, logger)
	worker.UseFeedLock(lock)
	handler := hubsync.PubSubPushHandler(worker, lock, secret)
	pushHandler.Store(&handler)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func triggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req hubsync.SyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(req.CompanyCode) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "company_code is required"})
			return
		}
		if !middlewares.CompanyAllowed(c.Request.Context(), req.CompanyCode) {
			c.JSON(http.StatusForbidden, gin.H{"error": "company code not allowed"})
			return
		}
		req.TriggeredBy = models.SyncTriggeredManual
		requestID, err := hubsync.PublishSyncRequest(c.Request.Context(), req)
		if err != nil {
			config.LogError(config.GetLogger(), "hub-sync-service", "triggerSyncHandler", "publish", req.CompanyCode, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"request_id": requestID})
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return []string{}
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
