package intelligence

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submission-engine/internal/common/logger"
	"submission-engine/internal/models"
)

type capturingIndexer struct {
	index  string
	bodies [][]byte
	err    error
}

func (c *capturingIndexer) Index(ctx context.Context, index string, body io.Reader) error {
	if c.err != nil {
		return c.err
	}
	c.index = index
	data, _ := io.ReadAll(body)
	c.bodies = append(c.bodies, data)
	return nil
}

func emptyHashesExcept(mock redismock.ClientMock, servicerID string, filled map[models.Channel]map[string]string) {
	for _, channel := range models.AllChannels {
		key := statsKey(servicerID, channel)
		if vals, ok := filled[channel]; ok {
			mock.ExpectHGetAll(key).SetVal(vals)
		} else {
			mock.ExpectHGetAll(key).SetVal(map[string]string{})
		}
	}
}

func TestRedisService_GetServicerIntelligence_NoHistory(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	emptyHashesExcept(mock, "chase", nil)

	svc := NewRedisService(rdb, nil, "servicer-interactions", logger.NewTestLogger(t))
	intel, err := svc.GetServicerIntelligence(context.Background(), "chase")
	require.NoError(t, err)
	assert.Nil(t, intel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisService_GetServicerIntelligence_ComputesRates(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	emptyHashesExcept(mock, "chase", map[models.Channel]map[string]string{
		models.ChannelAPI:    {"attempts": "20", "successes": "19"},
		models.ChannelPortal: {"attempts": "10", "successes": "6"},
	})

	svc := NewRedisService(rdb, nil, "servicer-interactions", logger.NewTestLogger(t))
	intel, err := svc.GetServicerIntelligence(context.Background(), "chase")
	require.NoError(t, err)
	require.NotNil(t, intel)
	assert.Equal(t, "chase", intel.ServicerID)

	api := intel.Patterns.SubmissionChannels[models.ChannelAPI]
	assert.Equal(t, int64(20), api.Attempts)
	assert.Equal(t, int64(19), api.Successes)
	assert.InDelta(t, 0.95, api.SuccessRate, 0.001)

	portal := intel.Patterns.SubmissionChannels[models.ChannelPortal]
	assert.InDelta(t, 0.6, portal.SuccessRate, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisService_RecordInteraction_SuccessfulSubmission(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	key := statsKey("chase", models.ChannelAPI)
	mock.ExpectHIncrBy(key, "attempts", 1).SetVal(1)
	mock.ExpectHIncrBy(key, "successes", 1).SetVal(1)

	indexer := &capturingIndexer{}
	svc := NewRedisService(rdb, indexer, "servicer-interactions", logger.NewTestLogger(t))

	err := svc.RecordInteraction(context.Background(), Interaction{
		Type:          "submission_attempt",
		TransactionID: "txn-1",
		ServicerID:    "chase",
		Data: map[string]interface{}{
			"channel": models.ChannelAPI,
			"success": true,
		},
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, indexer.bodies, 1)
	assert.Equal(t, "servicer-interactions", indexer.index)

	var event Interaction
	require.NoError(t, json.Unmarshal(indexer.bodies[0], &event))
	assert.Equal(t, "submission_attempt", event.Type)
	assert.Equal(t, "chase", event.ServicerID)
}

func TestRedisService_RecordInteraction_FailedSubmission(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	key := statsKey("chase", models.ChannelPortal)
	mock.ExpectHIncrBy(key, "attempts", 1).SetVal(5)

	svc := NewRedisService(rdb, nil, "servicer-interactions", logger.NewTestLogger(t))
	err := svc.RecordInteraction(context.Background(), Interaction{
		Type:       "submission_attempt",
		ServicerID: "chase",
		Data: map[string]interface{}{
			"channel": models.ChannelPortal,
			"success": false,
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisService_RecordInteraction_IndexerFailureIsSwallowed(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	key := statsKey("chase", models.ChannelAPI)
	mock.ExpectHIncrBy(key, "attempts", 1).SetVal(1)

	indexer := &capturingIndexer{err: bytes.ErrTooLarge}
	svc := NewRedisService(rdb, indexer, "servicer-interactions", logger.NewTestLogger(t))

	err := svc.RecordInteraction(context.Background(), Interaction{
		ServicerID: "chase",
		Data: map[string]interface{}{
			"channel": models.ChannelAPI,
			"success": false,
		},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
