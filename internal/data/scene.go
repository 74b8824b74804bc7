package data

import (
	"context"
	"fmt"
	"time"

	"spinner/internal/conf"
	"spinner/internal/game/slot"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/yola1107/kratos/v2/log"
)

const (
	_sceneKeyTpl     = "scene-%d:%s" // scene-<gameID>:<playerID>
	_defaultSceneTTL = 7 * 24 * time.Hour
)

type sceneStore struct {
	rdb    redis.UniversalClient
	gameID int64
	ttl    time.Duration
	log    *log.Helper
}

// NewSceneStore builds the free-game scene store. Without redis the engine
// falls back to its in-process store (progress survives within the process).
func NewSceneStore(c *conf.Data, data *Data, logger log.Logger) slot.SceneStore {
	if data.rdb == nil {
		return slot.NewMemorySceneStore()
	}
	ttl := _defaultSceneTTL
	if c != nil && c.Redis != nil {
		ttl = conf.Duration(c.Redis.SceneTTL, ttl)
	}
	return &sceneStore{
		rdb:    data.rdb,
		gameID: slot.DefaultConfig().GameID,
		ttl:    ttl,
		log:    log.NewHelper(logger),
	}
}

func (s *sceneStore) key(playerID string) string {
	return fmt.Sprintf(_sceneKeyTpl, s.gameID, playerID)
}

func (s *sceneStore) Load(ctx context.Context, playerID string) (*slot.SceneData, error) {
	raw, err := s.rdb.Get(ctx, s.key(playerID)).Result()
	if err == redis.Nil {
		return &slot.SceneData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load scene %s: %w", playerID, err)
	}
	scene := &slot.SceneData{}
	if err = jsoniter.UnmarshalFromString(raw, scene); err != nil {
		return nil, fmt.Errorf("decode scene %s: %w", playerID, err)
	}
	return scene, nil
}

func (s *sceneStore) Save(ctx context.Context, playerID string, scene *slot.SceneData) error {
	raw, err := jsoniter.MarshalToString(scene)
	if err != nil {
		return fmt.Errorf("encode scene %s: %w", playerID, err)
	}
	return s.rdb.Set(ctx, s.key(playerID), raw, s.ttl).Err()
}

func (s *sceneStore) Delete(ctx context.Context, playerID string) error {
	return s.rdb.Del(ctx, s.key(playerID)).Err()
}
