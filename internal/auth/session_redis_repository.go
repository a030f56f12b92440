package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRedisRepository handles session persistence in Redis. Each session
// is a hash that expires with the session; a per-user set indexes them for
// bulk invalidation.
type SessionRedisRepository struct {
	client *redis.Client
}

func NewSessionRedisRepository(client *redis.Client) *SessionRedisRepository {
	return &SessionRedisRepository{client: client}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func userSessionsKey(userID string) string {
	return fmt.Sprintf("user_sessions:%s", userID)
}

// Create stores a session with a TTL matching its expiry
func (r *SessionRedisRepository) Create(ctx context.Context, session *Session) error {
	if !session.ExpiresAt.After(time.Now()) {
		return fmt.Errorf("session expiration time is in the past")
	}

	key := sessionKey(session.ID)
	indexKey := userSessionsKey(session.UserID)

	indexTTL, err := r.client.PTTL(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read session index ttl: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":    session.UserID,
		"created_at": session.CreatedAt.UnixMilli(),
		"expires_at": session.ExpiresAt.UnixMilli(),
	})
	pipe.PExpireAt(ctx, key, session.ExpiresAt)
	pipe.SAdd(ctx, indexKey, session.ID)
	if indexTTL < time.Until(session.ExpiresAt) {
		pipe.PExpireAt(ctx, indexKey, session.ExpiresAt)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

// Find retrieves a session by id
func (r *SessionRedisRepository) Find(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if len(data) == 0 {
		return nil, ErrSessionNotFound
	}

	createdAt, err := parseUnixMilli(data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse session created_at: %w", err)
	}

	expiresAt, err := parseUnixMilli(data["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse session expires_at: %w", err)
	}

	return &Session{
		ID:        sessionID,
		UserID:    data["user_id"],
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// UpdateExpiry moves the expiry and TTL of an existing session
func (r *SessionRedisRepository) UpdateExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	key := sessionKey(sessionID)

	userID, err := r.client.HGet(ctx, key, "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	indexKey := userSessionsKey(userID)
	indexTTL, err := r.client.PTTL(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read session index ttl: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "expires_at", expiresAt.UnixMilli())
	pipe.PExpireAt(ctx, key, expiresAt)
	if indexTTL < time.Until(expiresAt) {
		pipe.PExpireAt(ctx, indexKey, expiresAt)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update session expiry: %w", err)
	}

	return nil
}

// Delete removes a session and its index entry
func (r *SessionRedisRepository) Delete(ctx context.Context, sessionID string) error {
	key := sessionKey(sessionID)

	userID, err := r.client.HGet(ctx, key, "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, userSessionsKey(userID), sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// DeleteByUser removes every session indexed under userID. The index is
// watched so a session created mid-delete forces a retry instead of being
// dropped from the index while its hash survives.
func (r *SessionRedisRepository) DeleteByUser(ctx context.Context, userID string) error {
	indexKey := userSessionsKey(userID)

	deleteAll := func(tx *redis.Tx) error {
		sessionIDs, err := tx.SMembers(ctx, indexKey).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range sessionIDs {
				pipe.Del(ctx, sessionKey(id))
			}
			pipe.Del(ctx, indexKey)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchAttempts; i++ {
		err := r.client.Watch(ctx, deleteAll, indexKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to delete user sessions: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to delete user sessions: %w", redis.TxFailedErr)
}

// DeleteExpired is a no-op for Redis as TTL handles expiration
func (r *SessionRedisRepository) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func parseUnixMilli(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
