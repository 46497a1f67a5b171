package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"Green_Community/internal/graph"

	"github.com/redis/go-redis/v9"
)

const (
	GraphCachePrefix = "plan:graph:"
	GraphGenPrefix   = "plan:graph:gen:"
)

// GraphCache 计划图读缓存（cache-aside），每次重建后删除并推进代数
type GraphCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewGraphCache(rdb *redis.Client, ttl time.Duration) *GraphCache {
	return &GraphCache{RDB: rdb, TTL: ttl}
}

// Get 第二个返回值表示是否命中
func (c *GraphCache) Get(ctx context.Context, s graph.Subject) (*graph.View, bool, error) {
	raw, err := c.RDB.Get(ctx, GraphCachePrefix+s.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v graph.View
	if err := json.Unmarshal(raw, &v); err != nil {
		// 坏数据当作未命中
		_ = c.RDB.Del(ctx, GraphCachePrefix+s.Key()).Err()
		return nil, false, nil
	}
	return &v, true, nil
}

// Generation 当前缓存代数，读库之前取，回填时带上
func (c *GraphCache) Generation(ctx context.Context, s graph.Subject) (string, error) {
	gen, err := c.RDB.Get(ctx, GraphGenPrefix+s.Key()).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// 代数没变才回填，避免读到旧图的请求在失效之后把旧图写回去
var setIfCurrentScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then cur = '0' end
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Set 返回 false 表示期间发生过失效，没有写入
func (c *GraphCache) Set(ctx context.Context, s graph.Subject, gen string, v *graph.View) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	n, err := setIfCurrentScript.Run(ctx, c.RDB,
		[]string{GraphGenPrefix + s.Key(), GraphCachePrefix + s.Key()},
		gen, raw, c.TTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var invalidateScript = redis.NewScript(`
redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
return 1
`)

// Delete 删除缓存并推进代数
func (c *GraphCache) Delete(ctx context.Context, s graph.Subject) error {
	return invalidateScript.Run(ctx, c.RDB,
		[]string{GraphGenPrefix + s.Key(), GraphCachePrefix + s.Key()},
		c.genTTL().Milliseconds(),
	).Err()
}

// 代数 key 要比缓存活得久
func (c *GraphCache) genTTL() time.Duration {
	if d := 24 * c.TTL; d > time.Hour {
		return d
	}
	return time.Hour
}
