// Package intelligence tracks historical per-servicer submission outcomes and
// serves them back as channel success rates.
package intelligence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"submission-engine/internal/common/logger"
	"submission-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

// ChannelStats is the aggregate for one servicer/channel pair.
type ChannelStats struct {
	SuccessRate float64 `json:"successRate"`
	Attempts    int64   `json:"attempts"`
	Successes   int64   `json:"successes"`
}

// Patterns groups the learned statistics for a servicer.
type Patterns struct {
	SubmissionChannels map[models.Channel]ChannelStats `json:"submissionChannels"`
}

// Intelligence is the statistics bundle returned for a servicer. A nil
// Intelligence means no history has been recorded yet.
type Intelligence struct {
	ServicerID string   `json:"servicerId"`
	Patterns   Patterns `json:"patterns"`
}

// Interaction is one append-only event recorded against a servicer.
type Interaction struct {
	Type          string                 `json:"type"`
	TransactionID string                 `json:"transactionId"`
	ServicerID    string                 `json:"servicerId"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Service is the intelligence boundary the orchestrator consumes: a
// statistics oracle plus an append-only event sink.
type Service interface {
	GetServicerIntelligence(ctx context.Context, servicerID string) (*Intelligence, error)
	RecordInteraction(ctx context.Context, interaction Interaction) error
}

// EventIndexer receives raw interaction events for offline analysis.
// Indexing is best-effort and never affects task flow.
type EventIndexer interface {
	Index(ctx context.Context, index string, body io.Reader) error
}

// RedisService keeps per-servicer channel aggregates in Redis hashes and
// forwards raw events to an optional Elasticsearch indexer.
type RedisService struct {
	redis   *redis.Client
	indexer EventIndexer
	index   string
	logger  logger.Logger
}

func NewRedisService(rdb *redis.Client, indexer EventIndexer, index string, log logger.Logger) *RedisService {
	return &RedisService{
		redis:   rdb,
		indexer: indexer,
		index:   index,
		logger:  log.WithFields(map[string]interface{}{"component": "intelligence"}),
	}
}

func statsKey(servicerID string, channel models.Channel) string {
	return fmt.Sprintf("intel:%s:%s", servicerID, channel)
}

// GetServicerIntelligence returns the learned channel statistics for a
// servicer, or nil when nothing has been recorded.
func (s *RedisService) GetServicerIntelligence(ctx context.Context, servicerID string) (*Intelligence, error) {
	channels := make(map[models.Channel]ChannelStats)

	for _, channel := range models.AllChannels {
		vals, err := s.redis.HGetAll(ctx, statsKey(servicerID, channel)).Result()
		if err != nil {
			return nil, fmt.Errorf("read intelligence for %s/%s: %w", servicerID, channel, err)
		}
		if len(vals) == 0 {
			continue
		}

		var stats ChannelStats
		fmt.Sscanf(vals["attempts"], "%d", &stats.Attempts)
		fmt.Sscanf(vals["successes"], "%d", &stats.Successes)
		if stats.Attempts > 0 {
			stats.SuccessRate = float64(stats.Successes) / float64(stats.Attempts)
		}
		channels[channel] = stats
	}

	if len(channels) == 0 {
		return nil, nil
	}

	return &Intelligence{
		ServicerID: servicerID,
		Patterns:   Patterns{SubmissionChannels: channels},
	}, nil
}

// RecordInteraction updates the channel aggregates for submission outcomes
// and appends the raw event to the index. Event-sink failures are logged,
// never returned: the aggregates are the part the orchestrator depends on.
func (s *RedisService) RecordInteraction(ctx context.Context, interaction Interaction) error {
	if interaction.Timestamp.IsZero() {
		interaction.Timestamp = time.Now().UTC()
	}

	if channel, ok := interaction.Data["channel"].(models.Channel); ok {
		key := statsKey(interaction.ServicerID, channel)
		if err := s.redis.HIncrBy(ctx, key, "attempts", 1).Err(); err != nil {
			return fmt.Errorf("record interaction attempts: %w", err)
		}
		if success, _ := interaction.Data["success"].(bool); success {
			if err := s.redis.HIncrBy(ctx, key, "successes", 1).Err(); err != nil {
				return fmt.Errorf("record interaction successes: %w", err)
			}
		}
	}

	s.indexEvent(ctx, interaction)
	return nil
}

func (s *RedisService) indexEvent(ctx context.Context, interaction Interaction) {
	if s.indexer == nil {
		return
	}
	body, err := json.Marshal(interaction)
	if err != nil {
		s.logger.Warn("failed to marshal interaction event", map[string]interface{}{
			"servicerId": interaction.ServicerID,
			"error":      err.Error(),
		})
		return
	}
	if err := s.indexer.Index(ctx, s.index, bytes.NewReader(body)); err != nil {
		s.logger.Warn("failed to index interaction event", map[string]interface{}{
			"servicerId": interaction.ServicerID,
			"error":      err.Error(),
		})
	}
}
