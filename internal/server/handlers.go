package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nshruti113/packet-analysis-service/internal/detection"
	"github.com/nshruti113/packet-analysis-service/internal/models"
	"github.com/nshruti113/packet-analysis-service/internal/version"
)

var errStorageDisabled = errors.New("storage is disabled")

// decodeBody reads the request envelope into v. An empty body is an empty
// request; anything that does not decode into v is malformed.
func decodeBody(c *gin.Context, op string, v any) error {
	data, err := c.GetRawData()
	if err != nil {
		return detection.Malformed(op, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return detection.Malformed(op, err)
	}
	return nil
}

func (s *Server) respondError(c *gin.Context, err error) {
	kind := detection.KindOf(err)
	status := http.StatusInternalServerError
	if kind == detection.KindMalformedInput {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}

// extractFeatures returns the named feature record of every packet
func (s *Server) extractFeatures(c *gin.Context) {
	var req models.PacketsRequest
	if err := decodeBody(c, "extract features", &req); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.service.ExtractFeatures(req.Packets))
}

// predictAnomaly flags outliers within the submitted packets
func (s *Server) predictAnomaly(c *gin.Context) {
	var req models.FeaturesRequest
	if err := decodeBody(c, "detect anomalies", &req); err != nil {
		s.respondError(c, err)
		return
	}
	res, err := s.service.DetectAnomalies(req.Features)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// predictAttack labels each submitted packet
func (s *Server) predictAttack(c *gin.Context) {
	var req models.FeaturesRequest
	if err := decodeBody(c, "classify attacks", &req); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.service.ClassifyAttacks(req.Features))
}

// predictBatch runs anomaly detection and classification over one batch
func (s *Server) predictBatch(c *gin.Context) {
	var req models.PacketsRequest
	if err := decodeBody(c, "analyze batch", &req); err != nil {
		s.respondError(c, err)
		return
	}
	res, err := s.service.AnalyzeBatch(req.Packets)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if len(req.Packets) > 0 {
		rec := s.service.Summarize(req.Packets, res, "api")
		if s.store != nil {
			if err := s.store.StoreAnalysis(c.Request.Context(), rec); err != nil {
				s.log.WithError(err).Warn("Failed to store analysis record")
			}
		}
		s.hub.Broadcast(Message{Type: "analysis", Payload: rec})
	}

	c.JSON(http.StatusOK, res)
}

// getHealth reports liveness, build version and detector parameters
func (s *Server) getHealth(c *gin.Context) {
	storage := "disabled"
	if s.store != nil {
		storage = "connected"
		if err := s.store.Ping(c.Request.Context()); err != nil {
			storage = "unavailable"
		}
	}

	cfg := s.service.Detector().Config()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   version.Version,
		"storage":   storage,
		"detector": gin.H{
			"contamination": cfg.Contamination,
			"seed":          cfg.Seed,
			"trees":         cfg.Trees,
			"max_samples":   cfg.MaxSamples,
		},
	})
}

type ruleInfo struct {
	ID            string              `json:"id"`
	Label         models.AttackLabel  `json:"label"`
	Description   string              `json:"description"`
	Probabilities models.Distribution `json:"probabilities"`
}

// getModelInfo describes the detector and classifier configuration
func (s *Server) getModelInfo(c *gin.Context) {
	cfg := s.service.Detector().Config()

	rules := make([]ruleInfo, 0, len(s.service.Classifier().Rules()))
	for _, r := range s.service.Classifier().Rules() {
		rules = append(rules, ruleInfo{
			ID:            r.ID,
			Label:         r.Label,
			Description:   r.Description,
			Probabilities: detection.DistributionFor(r.Label),
		})
	}
	distributions := make(map[models.AttackLabel]models.Distribution, len(models.Labels))
	for _, l := range models.Labels {
		distributions[l] = detection.DistributionFor(l)
	}

	c.JSON(http.StatusOK, gin.H{
		"feature_vector": []string{"length", "sourcePort", "destinationPort", "protocol", "tcpFlags"},
		"anomaly_detector": gin.H{
			"algorithm":     "isolation_forest",
			"trees":         cfg.Trees,
			"max_samples":   cfg.MaxSamples,
			"contamination": cfg.Contamination,
			"seed":          cfg.Seed,
			"fit":           "per_batch",
		},
		"attack_classifier": gin.H{
			"labels":        models.Labels,
			"rules":         rules,
			"default":       models.LabelNormal,
			"distributions": distributions,
		},
	})
}

// ingestTraffic stores packets for the periodic analysis engine. The body is
// either a single packet or a {"packets": [...]} envelope.
func (s *Server) ingestTraffic(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errStorageDisabled.Error()})
		return
	}

	var raw json.RawMessage
	if err := decodeBody(c, "ingest traffic", &raw); err != nil {
		s.respondError(c, err)
		return
	}
	packets, err := ingestPackets(raw)
	if err != nil {
		s.respondError(c, err)
		return
	}

	now := time.Now()
	for _, p := range packets {
		if err := s.store.StorePacket(c.Request.Context(), p, now); err != nil {
			s.log.WithError(err).Error("Error storing packet")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store traffic"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "stored": len(packets)})
}

// getActiveAttacks returns currently active attacks
func (s *Server) getActiveAttacks(c *gin.Context) {
	attacks := []models.Attack{}
	if s.store != nil {
		var err error
		attacks, err = s.store.GetActiveAttacks(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"attacks": attacks})
}

// getAttackHistory returns raised attacks, newest first
func (s *Server) getAttackHistory(c *gin.Context) {
	attacks := []models.Attack{}
	if s.store != nil {
		var err error
		attacks, err = s.store.GetAttackHistory(c.Request.Context(), limitParam(c, 50, 500))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"attacks": attacks})
}

// getRecentAnalyses returns batch history records, newest first
func (s *Server) getRecentAnalyses(c *gin.Context) {
	records := []models.AnalysisRecord{}
	if s.store != nil {
		var err error
		records, err = s.store.GetRecentAnalyses(c.Request.Context(), limitParam(c, 20, s.cfg.Redis.History))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"analyses": records})
}

// getSummaryStats returns dashboard summary statistics
func (s *Server) getSummaryStats(c *gin.Context) {
	summary := gin.H{
		"status":         "NORMAL",
		"active_attacks": 0,
		"current_pps":    0.0,
		"unique_ips":     0,
		"storage":        s.store != nil,
		"clients":        s.hub.Count(),
	}
	if s.store == nil {
		c.JSON(http.StatusOK, summary)
		return
	}

	ctx := c.Request.Context()
	if attacks, err := s.store.GetActiveAttacks(ctx); err == nil && len(attacks) > 0 {
		summary["status"] = "UNDER_ATTACK"
		summary["active_attacks"] = len(attacks)
	}
	if metrics, err := s.store.GetMetrics(ctx, time.Now()); err == nil {
		summary["current_pps"] = metrics.PacketsPerSec
		summary["unique_ips"] = metrics.UniqueSourceIPs
		summary["protocols"] = metrics.ProtocolBreakdown
		summary["top_source_ips"] = metrics.TopSourceIPs
	}

	c.JSON(http.StatusOK, summary)
}

func ingestPackets(raw json.RawMessage) ([]models.Packet, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, detection.Malformed("ingest traffic", err)
	}
	if _, ok := fields["packets"]; ok {
		var req models.PacketsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, detection.Malformed("ingest traffic", err)
		}
		return req.Packets, nil
	}
	if len(fields) == 0 {
		return nil, nil
	}
	var p models.Packet
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, detection.Malformed("ingest traffic", err)
	}
	return []models.Packet{p}, nil
}

func limitParam(c *gin.Context, def, ceiling int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		n = def
	}
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	return n
}
