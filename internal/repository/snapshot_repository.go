package repository

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// SnapshotRepository 进度快照的 Redis 存取。
// 快照整体序列化为 JSON blob，按版本化键名存储
type SnapshotRepository struct {
	client *redis.Client
}

func NewSnapshotRepository(client *redis.Client) *SnapshotRepository {
	return &SnapshotRepository{client: client}
}

// Load 返回键下的原始 JSON。键不存在时返回 ok=false 而非错误
func (r *SnapshotRepository) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *SnapshotRepository) Save(ctx context.Context, key string, data []byte) error {
	return r.client.Set(ctx, key, data, 0).Err()
}

func (r *SnapshotRepository) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
