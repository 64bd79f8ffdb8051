package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"messenger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisDraftStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDraftStore(rdb *redis.Client, ttl time.Duration) *RedisDraftStore {
	return &RedisDraftStore{rdb: rdb, ttl: ttl}
}

type draftRecord struct {
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Save overwrites the draft and restarts its TTL.
func (s *RedisDraftStore) Save(ctx context.Context, d *domain.Draft) error {
	data, err := json.Marshal(draftRecord{Text: d.Text, UpdatedAt: d.UpdatedAt})
	if err != nil {
		return domain.NewStoreError(domain.StoreSerialization, "drafts.save", err)
	}
	return storeErr("drafts.save", s.rdb.Set(ctx, draftKey(d.UserID, d.ChatID), data, s.ttl).Err())
}

func (s *RedisDraftStore) Get(ctx context.Context, userID, chatID uuid.UUID) (*domain.Draft, error) {
	data, err := s.rdb.Get(ctx, draftKey(userID, chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("drafts.get", err)
	}
	var rec draftRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, domain.NewStoreError(domain.StoreSerialization, "drafts.get", err)
	}
	return &domain.Draft{
		UserID:    userID,
		ChatID:    chatID,
		Text:      rec.Text,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (s *RedisDraftStore) Delete(ctx context.Context, userID, chatID uuid.UUID) (bool, error) {
	n, err := s.rdb.Del(ctx, draftKey(userID, chatID)).Result()
	if err != nil {
		return false, storeErr("drafts.delete", err)
	}
	return n > 0, nil
}
