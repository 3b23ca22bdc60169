// Package server exposes the analysis service over HTTP with gin, streams
// results to websocket clients and runs the periodic analysis engine over
// ingested traffic.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nshruti113/packet-analysis-service/internal/analysis"
	"github.com/nshruti113/packet-analysis-service/internal/config"
	"github.com/nshruti113/packet-analysis-service/internal/detection"
)

type Server struct {
	cfg      *config.Config
	log      *logrus.Logger
	service  *analysis.Service
	store    Store
	detector *detection.Detector
	hub      *Hub

	// lastAnalyzed is the newest receive time the engine has analysed.
	// Only the engine goroutine touches it.
	lastAnalyzed time.Time

	router     *gin.Engine
	httpServer *http.Server
}

// New builds the router. store may be nil, in which case ingestion and the
// dashboard endpoints report that storage is disabled and the engine never
// runs.
func New(cfg *config.Config, svc *analysis.Service, store Store, log *logrus.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		cfg:     cfg,
		log:     log,
		service: svc,
		store:   store,
		detector: detection.NewDetector(detection.Thresholds{
			DDoSLabelCount:     cfg.Alerts.DDoSLabelThreshold,
			PortScanLabelCount: cfg.Alerts.PortScanLabelThreshold,
			DistinctPorts:      cfg.Alerts.PortScanDistinctPorts,
			SYNFloodPackets:    cfg.Alerts.SYNFloodThreshold,
			PacketsPerSecond:   cfg.Alerts.RateThreshold,
			DedupWindow:        cfg.Alerts.DedupWindow,
		}),
		hub:    NewHub(log),
		router: router,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(corsMiddleware())

	api := s.router.Group("/api")
	{
		api.GET("/health", s.getHealth)
		api.GET("/model/info", s.getModelInfo)

		api.POST("/feature/extract", s.extractFeatures)
		api.POST("/predict/anomaly", s.predictAnomaly)
		api.POST("/predict/attack", s.predictAttack)
		api.POST("/predict/batch", s.predictBatch)

		api.POST("/traffic/ingest", s.ingestTraffic)
		api.GET("/attacks/active", s.getActiveAttacks)
		api.GET("/attacks/history", s.getAttackHistory)
		api.GET("/analyses/recent", s.getRecentAnalyses)
		api.GET("/stats/summary", s.getSummaryStats)
	}

	s.router.GET("/ws", s.hub.ServeWS)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Start launches the analysis engine when a store is configured. It stops
// when ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	if s.store == nil {
		s.log.Info("Storage disabled, analysis engine not started")
		return
	}
	go s.runAnalysisEngine(ctx)
}

// ListenAndServe blocks until the server is closed.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.cfg.Server.HTTPAddr).Info("Server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	}
}
