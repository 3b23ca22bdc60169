package server

import (
	"context"
	"time"

	"github.com/nshruti113/packet-analysis-service/internal/models"
)

// Store is the persistence used by ingestion, the periodic engine and the
// dashboard endpoints. *storage.RedisClient implements it.
type Store interface {
	Ping(ctx context.Context) error

	StorePacket(ctx context.Context, p models.Packet, receivedAt time.Time) error
	GetRecentPackets(ctx context.Context, since time.Time, limit int) ([]models.Packet, time.Time, error)
	GetMetrics(ctx context.Context, windowStart time.Time) (*models.Metrics, error)

	StoreAnalysis(ctx context.Context, rec models.AnalysisRecord) error
	GetRecentAnalyses(ctx context.Context, n int) ([]models.AnalysisRecord, error)

	StoreAttack(ctx context.Context, attack models.Attack) error
	GetActiveAttacks(ctx context.Context) ([]models.Attack, error)
	GetAttackHistory(ctx context.Context, n int) ([]models.Attack, error)
	PublishAlert(ctx context.Context, alert models.Alert) error
}
