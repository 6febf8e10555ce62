package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"stayhub/realtime-service/models"
	"stayhub/realtime-service/utils"
)

const (
	presenceKeyPrefix = "presence:"
	onlineSetKey      = "online_users"
)

// PresenceMirror publishes registry presence into Redis for external
// health/metrics consumers. Entries carry a TTL refreshed by heartbeats, so
// a crashed process ages out of the mirror on its own. Mirror writes are
// advisory: failures are logged and dropped, never surfaced to the registry.
type PresenceMirror struct {
	redis  *redis.Client
	logger *utils.Logger
	ttl    time.Duration
}

func NewPresenceMirror(redisClient *redis.Client, logger *utils.Logger, ttl time.Duration) *PresenceMirror {
	return &PresenceMirror{
		redis:  redisClient,
		logger: logger,
		ttl:    ttl,
	}
}

// Touch writes or refreshes the user's presence entry
func (pm *PresenceMirror) Touch(ctx context.Context, presence models.UserPresence) {
	data, err := json.Marshal(presence)
	if err != nil {
		pm.logger.Error("Failed to marshal presence data", "user_id", presence.UserID, "error", err)
		return
	}

	key := presenceKeyPrefix + presence.UserID

	// Use pipeline for atomic operations
	pipe := pm.redis.Pipeline()
	pipe.Set(ctx, key, data, pm.ttl)
	pipe.SAdd(ctx, onlineSetKey, presence.UserID)
	pipe.Expire(ctx, onlineSetKey, pm.ttl*2)

	if _, err := pipe.Exec(ctx); err != nil {
		pm.logger.Warn("Failed to mirror presence", "user_id", presence.UserID, "error", err)
	}
}

// Remove deletes the user's presence entry after their last connection drops
func (pm *PresenceMirror) Remove(ctx context.Context, userID string) {
	pipe := pm.redis.Pipeline()
	pipe.Del(ctx, presenceKeyPrefix+userID)
	pipe.SRem(ctx, onlineSetKey, userID)

	if _, err := pipe.Exec(ctx); err != nil {
		pm.logger.Warn("Failed to remove mirrored presence", "user_id", userID, "error", err)
	}
}

// OnlineUsers reads the mirrored presence set, pruning expired entries
func (pm *PresenceMirror) OnlineUsers(ctx context.Context) ([]models.UserPresence, error) {
	userIDs, err := pm.redis.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, err
	}

	var online []models.UserPresence
	var expired []string
	for _, userID := range userIDs {
		data, err := pm.redis.Get(ctx, presenceKeyPrefix+userID).Result()
		if err != nil {
			if err == redis.Nil {
				expired = append(expired, userID)
			}
			continue
		}

		var presence models.UserPresence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			pm.logger.Warn("Failed to unmarshal mirrored presence", "user_id", userID, "error", err)
			continue
		}
		online = append(online, presence)
	}

	if len(expired) > 0 {
		pm.redis.SRem(ctx, onlineSetKey, expired)
	}

	return online, nil
}
