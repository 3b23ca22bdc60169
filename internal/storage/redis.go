package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nshruti113/packet-analysis-service/internal/models"
)

const (
	packetsKey       = "traffic:packets"
	analysesKey      = "analysis:history"
	activeAttacksKey = "attacks:active"
	attackHistoryKey = "attacks:history"
	alertsChannel    = "alerts"
)

// Options configures the Redis store.
type Options struct {
	Addr      string
	Password  string
	DB        int
	Retention time.Duration
	History   int
}

// RedisClient keeps the ingested packet window, the batch history and the
// raised attacks.
type RedisClient struct {
	client    *redis.Client
	retention time.Duration
	history   int
}

// StoredPacket wraps an ingested packet so identical packets stay distinct
// sorted-set members.
type StoredPacket struct {
	Key        string        `json:"key"`
	ReceivedAt time.Time     `json:"received_at"`
	Packet     models.Packet `json:"packet"`
}

func NewRedisClient(ctx context.Context, opts Options) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if opts.Retention <= 0 {
		opts.Retention = 5 * time.Minute
	}
	if opts.History <= 0 {
		opts.History = 100
	}
	return &RedisClient{
		client:    client,
		retention: opts.Retention,
		history:   opts.History,
	}, nil
}

// Ping checks the connection.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// StorePacket appends a packet to the time-ordered ingest window and drops
// entries older than the retention.
func (r *RedisClient) StorePacket(ctx context.Context, p models.Packet, receivedAt time.Time) error {
	data, err := json.Marshal(StoredPacket{Key: uuid.New().String(), ReceivedAt: receivedAt, Packet: p})
	if err != nil {
		return err
	}

	if err := r.client.ZAdd(ctx, packetsKey, redis.Z{
		Score:  float64(receivedAt.UnixMilli()),
		Member: string(data),
	}).Err(); err != nil {
		return err
	}

	cutoff := receivedAt.Add(-r.retention).UnixMilli()
	if err := r.client.ZRemRangeByScore(ctx, packetsKey, "-inf", fmt.Sprintf("(%d", cutoff)).Err(); err != nil {
		return err
	}

	return r.updateCounters(ctx, p, receivedAt)
}

// updateCounters maintains per-minute aggregates for the summary endpoint
func (r *RedisClient) updateCounters(ctx context.Context, p models.Packet, at time.Time) error {
	key := counterKey(at)

	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, key, "total_packets", 1)
	pipe.HIncrBy(ctx, key, "total_bytes", int64(p.Length))
	pipe.HIncrBy(ctx, key, "protocol:"+p.Protocol, 1)
	if p.SourceIP != "" {
		pipe.PFAdd(ctx, key+":unique_ips", p.SourceIP)
		pipe.ZIncrBy(ctx, key+":ip_counts", 1, p.SourceIP)
	}
	pipe.Expire(ctx, key, time.Hour)
	pipe.Expire(ctx, key+":unique_ips", time.Hour)
	pipe.Expire(ctx, key+":ip_counts", time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update counters: %w", err)
	}
	return nil
}

func counterKey(at time.Time) string {
	return fmt.Sprintf("metrics:%d", at.Truncate(time.Minute).Unix())
}

// GetRecentPackets returns at most limit of the newest packets received since
// since, oldest first, and the receive time of the newest one.
func (r *RedisClient) GetRecentPackets(ctx context.Context, since time.Time, limit int) ([]models.Packet, time.Time, error) {
	results, err := r.client.ZRevRangeByScore(ctx, packetsKey, &redis.ZRangeBy{
		Min:   strconv.FormatInt(since.UnixMilli(), 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, time.Time{}, err
	}

	stored := decodeMembers[StoredPacket](results)
	packets := make([]models.Packet, len(stored))
	var newest time.Time
	for i, s := range stored {
		packets[len(stored)-1-i] = s.Packet
		if s.ReceivedAt.After(newest) {
			newest = s.ReceivedAt
		}
	}
	return packets, newest, nil
}

// GetMetrics reads the per-minute aggregates for the minute containing
// windowStart.
func (r *RedisClient) GetMetrics(ctx context.Context, windowStart time.Time) (*models.Metrics, error) {
	key := counterKey(windowStart)

	data, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no metrics found for %s", key)
	}

	uniqueIPs, err := r.client.PFCount(ctx, key+":unique_ips").Result()
	if err != nil {
		uniqueIPs = 0
	}
	top, err := r.client.ZRevRangeWithScores(ctx, key+":ip_counts", 0, 9).Result()
	if err != nil {
		top = nil
	}

	return aggregateMetrics(windowStart.Truncate(time.Minute), data, uniqueIPs, top), nil
}

func aggregateMetrics(minute time.Time, data map[string]string, uniqueIPs int64, top []redis.Z) *models.Metrics {
	total, _ := strconv.Atoi(data["total_packets"])
	bytes, _ := strconv.Atoi(data["total_bytes"])

	protocols := make(map[string]int)
	for field, v := range data {
		if len(field) > len("protocol:") && field[:len("protocol:")] == "protocol:" {
			n, _ := strconv.Atoi(v)
			protocols[field[len("protocol:"):]] = n
		}
	}

	topIPs := make([]models.IPCount, 0, len(top))
	for _, z := range top {
		ip, ok := z.Member.(string)
		if !ok {
			continue
		}
		c := models.IPCount{IP: ip, Count: int(z.Score)}
		if total > 0 {
			c.Percentage = z.Score / float64(total) * 100
		}
		topIPs = append(topIPs, c)
	}

	m := &models.Metrics{
		Timestamp:         minute,
		TotalPackets:      total,
		PacketsPerSec:     float64(total) / 60.0,
		UniqueSourceIPs:   int(uniqueIPs),
		TopSourceIPs:      topIPs,
		ProtocolBreakdown: protocols,
		DurationSeconds:   60,
	}
	if total > 0 {
		m.AverageSize = float64(bytes) / float64(total)
	}
	return m
}

// StoreAnalysis prepends a batch record to the capped history list.
func (r *RedisClient) StoreAnalysis(ctx context.Context, rec models.AnalysisRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, analysesKey, string(data))
	pipe.LTrim(ctx, analysesKey, 0, int64(r.history-1))
	_, err = pipe.Exec(ctx)
	return err
}

// GetRecentAnalyses returns up to n history records, newest first.
func (r *RedisClient) GetRecentAnalyses(ctx context.Context, n int) ([]models.AnalysisRecord, error) {
	results, err := r.client.LRange(ctx, analysesKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	return decodeMembers[models.AnalysisRecord](results), nil
}

// StoreAttack stores detected attack information
func (r *RedisClient) StoreAttack(ctx context.Context, attack models.Attack) error {
	data, err := json.Marshal(attack)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, activeAttacksKey, attack.ID, string(data))
	pipe.ZAdd(ctx, attackHistoryKey, redis.Z{
		Score:  float64(attack.StartTime.Unix()),
		Member: string(data),
	})
	_, err = pipe.Exec(ctx)
	return err
}

// GetActiveAttacks returns attacks raised within the retention window. Older
// entries are removed from the active set.
func (r *RedisClient) GetActiveAttacks(ctx context.Context) ([]models.Attack, error) {
	data, err := r.client.HGetAll(ctx, activeAttacksKey).Result()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-r.retention)
	attacks := make([]models.Attack, 0, len(data))
	var stale []string
	for id, raw := range data {
		var attack models.Attack
		if err := json.Unmarshal([]byte(raw), &attack); err != nil {
			stale = append(stale, id)
			continue
		}
		if attack.StartTime.Before(cutoff) {
			stale = append(stale, id)
			continue
		}
		attacks = append(attacks, attack)
	}
	if len(stale) > 0 {
		if err := r.client.HDel(ctx, activeAttacksKey, stale...).Err(); err != nil {
			return nil, err
		}
	}
	return attacks, nil
}

// GetAttackHistory returns up to n attacks, newest first.
func (r *RedisClient) GetAttackHistory(ctx context.Context, n int) ([]models.Attack, error) {
	results, err := r.client.ZRevRange(ctx, attackHistoryKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	return decodeMembers[models.Attack](results), nil
}

// PublishAlert publishes an alert to subscribers
func (r *RedisClient) PublishAlert(ctx context.Context, alert models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, alertsChannel, string(data)).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// decodeMembers decodes JSON members, skipping entries that no longer parse.
func decodeMembers[T any](results []string) []T {
	out := make([]T, 0, len(results))
	for _, result := range results {
		var v T
		if err := json.Unmarshal([]byte(result), &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
