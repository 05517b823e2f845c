// Package remotestore opens the synchronized mysql backend used for
// authenticated sessions. Share-token resolution, the one hot unauthenticated
// read path, is cached in redis with a short TTL; regenerating or revoking a
// token evicts the cached row.
package remotestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/suPer8Hu/personallm/internal/model"
	"github.com/suPer8Hu/personallm/internal/store"
	"github.com/suPer8Hu/personallm/internal/store/gormstore"
)

const shareCacheTTL = 5 * time.Minute

type Store struct {
	*gormstore.Store
	rdb *redis.Client
}

var _ store.Store = (*Store)(nil)

// Open connects to mysql at dsn and migrates the schema. rdb is optional;
// without it share lookups always hit the database.
func Open(dsn string, rdb *redis.Client) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("remotestore: connect: %w", err)
	}
	if err := gormstore.Migrate(db); err != nil {
		return nil, fmt.Errorf("remotestore: migrate: %w", err)
	}
	return &Store{Store: gormstore.New(db), rdb: rdb}, nil
}

func shareKey(token string) string { return "share:" + token }

func (s *Store) ConversationByShareToken(ctx context.Context, token string) (*model.Conversation, error) {
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, shareKey(token)).Bytes(); err == nil {
			var c model.Conversation
			if json.Unmarshal(raw, &c) == nil {
				return &c, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			// Cache trouble is not a lookup failure; fall through to the DB.
			_ = err
		}
	}

	c, err := s.Store.ConversationByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.rdb != nil {
		if raw, err := json.Marshal(c); err == nil {
			_ = s.rdb.Set(ctx, shareKey(token), raw, shareCacheTTL).Err()
		}
	}
	return c, nil
}

func (s *Store) SetShareToken(ctx context.Context, userID, id, token string) error {
	s.evictShareToken(ctx, userID, id)
	return s.Store.SetShareToken(ctx, userID, id, token)
}

func (s *Store) ClearShareToken(ctx context.Context, userID, id string) error {
	s.evictShareToken(ctx, userID, id)
	return s.Store.ClearShareToken(ctx, userID, id)
}

func (s *Store) evictShareToken(ctx context.Context, userID, id string) {
	if s.rdb == nil {
		return
	}
	conv, err := s.Store.GetConversation(ctx, userID, id)
	if err != nil || conv.ShareToken == nil {
		return
	}
	_ = s.rdb.Del(ctx, shareKey(*conv.ShareToken)).Err()
}
