package server

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nshruti113/packet-analysis-service/internal/metrics"
	"github.com/nshruti113/packet-analysis-service/internal/models"
)

// runAnalysisEngine runs periodic traffic analysis until ctx is cancelled
func (s *Server) runAnalysisEngine(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Engine.Interval)
	defer ticker.Stop()

	s.log.WithFields(logrus.Fields{
		"interval": s.cfg.Engine.Interval.String(),
		"window":   s.cfg.Engine.Window.String(),
	}).Info("Analysis engine started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Analysis engine stopped")
			return
		case <-ticker.C:
			if _, err := s.analyzeRecent(ctx); err != nil {
				s.log.WithError(err).Error("Analysis cycle failed")
			}
		}
	}
}

// analyzeRecent analyses the newest ingested packets once and returns the
// attacks it raised. Too few packets is not an error, and a window with
// nothing received since the previous cycle is skipped.
func (s *Server) analyzeRecent(ctx context.Context) ([]models.Attack, error) {
	since := time.Now().Add(-s.cfg.Engine.Window)
	packets, newest, err := s.store.GetRecentPackets(ctx, since, s.cfg.Engine.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("get recent packets: %w", err)
	}
	if len(packets) < s.cfg.Engine.MinPackets || len(packets) == 0 {
		return nil, nil
	}
	if !newest.After(s.lastAnalyzed) {
		s.log.WithField("newest", newest).Debug("No new packets since last cycle")
		return nil, nil
	}

	verdict, err := s.service.AnalyzeBatch(packets)
	if err != nil {
		return nil, fmt.Errorf("analyze batch: %w", err)
	}
	s.lastAnalyzed = newest

	rec := s.service.Summarize(packets, verdict, "engine")
	if err := s.store.StoreAnalysis(ctx, rec); err != nil {
		s.log.WithError(err).Warn("Failed to store analysis record")
	}
	s.hub.Broadcast(Message{Type: "analysis", Payload: rec})

	attacks := s.detector.AnalyzeTraffic(packets, verdict)
	for _, attack := range attacks {
		s.raise(ctx, attack)
	}

	if m, err := s.store.GetMetrics(ctx, time.Now()); err == nil {
		s.hub.Broadcast(Message{Type: "metrics", Payload: m})
	}
	return attacks, nil
}

func (s *Server) raise(ctx context.Context, attack models.Attack) {
	s.log.WithFields(logrus.Fields{
		"type":       attack.Type,
		"severity":   attack.Severity,
		"confidence": attack.Confidence,
	}).Warn("Attack detected")
	metrics.AlertsRaised.WithLabelValues(attack.Type).Inc()

	if err := s.store.StoreAttack(ctx, attack); err != nil {
		s.log.WithError(err).Error("Error storing attack")
	}

	alert := models.Alert{
		ID:         attack.ID,
		Level:      alertLevel(attack.Severity),
		Title:      fmt.Sprintf("%s Attack Detected", attack.Type),
		Message:    attack.Description,
		AttackType: attack.Type,
		Timestamp:  attack.StartTime,
	}
	if len(attack.SourceIPs) > 0 {
		alert.SourceIP = attack.SourceIPs[0]
	}

	if err := s.store.PublishAlert(ctx, alert); err != nil {
		s.log.WithError(err).Error("Error publishing alert")
	}
	s.hub.Broadcast(Message{Type: "alert", Payload: alert})
}

func alertLevel(severity string) string {
	switch severity {
	case "CRITICAL", "HIGH":
		return "CRITICAL"
	case "MEDIUM":
		return "WARNING"
	}
	return "INFO"
}
