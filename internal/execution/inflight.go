package execution

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/betbot/gorouter/router/types"
)

// ErrDuplicateInFlight 同一组订单的成交仍在进行（或在 TTL 窗口内）。
// 防止重复点击或重试导致同一批订单被提交两次。
var ErrDuplicateInFlight = fmt.Errorf("duplicate in-flight")

// InFlightDeduper 短时间窗口内的确定性去重。
//
// 分片 map + 短 TTL，过期项在访问时惰性清理；不做概率判定，
// 误判会直接让一次合法成交失败。
type InFlightDeduper struct {
	ttl    time.Duration
	shards []inFlightShard
}

type inFlightShard struct {
	mu sync.Mutex
	m  map[string]time.Time // key -> expiresAt
}

// NewInFlightDeduper ttl 应覆盖一次规划到回执的典型耗时
func NewInFlightDeduper(ttl time.Duration, shardCount int) *InFlightDeduper {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if shardCount <= 0 {
		shardCount = 64
	}
	shards := make([]inFlightShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]time.Time)
	}
	return &InFlightDeduper{ttl: ttl, shards: shards}
}

// TryAcquire 获取 key 的令牌，已被占用时返回 ErrDuplicateInFlight
func (d *InFlightDeduper) TryAcquire(key string) error {
	if d == nil || key == "" {
		return nil
	}
	now := time.Now()
	sh := d.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for k, exp := range sh.m {
		if !exp.After(now) {
			delete(sh.m, k)
		}
	}
	if exp, ok := sh.m[key]; ok && exp.After(now) {
		return fmt.Errorf("%w: %s", ErrDuplicateInFlight, key)
	}
	sh.m[key] = now.Add(d.ttl)
	return nil
}

// Release 提前释放 key
func (d *InFlightDeduper) Release(key string) {
	if d == nil || key == "" {
		return
	}
	sh := d.shard(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
}

func (d *InFlightDeduper) shard(key string) *inFlightShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &d.shards[h.Sum32()%uint32(len(d.shards))]
}

// OrderSetKey 排序后的订单 id，与提交顺序无关
func OrderSetKey(items []types.ExecutionItem) string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.Order != nil {
			ids = append(ids, strings.ToLower(it.Order.ID))
		}
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}
