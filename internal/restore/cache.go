package restore

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/redis/go-redis/v9"
)

// takenAtKey under a backup prefix holds the backup's unix timestamp
const takenAtKey = "__taken_at"

const scanBatch = 500

// CacheRestorer copies keys from a backup prefix to a target prefix in
// Redis. BackupLocation and TargetLocation are key prefixes.
type CacheRestorer struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewCacheRestorer wraps a Redis client
func NewCacheRestorer(client redis.UniversalClient) *CacheRestorer {
	return &CacheRestorer{client: client, now: time.Now}
}

func (r *CacheRestorer) Restore(ctx context.Context, comp domain.RecoveryComponent) (*Outcome, error) {
	src, dst := strings.TrimSuffix(comp.BackupLocation, ":"), strings.TrimSuffix(comp.TargetLocation, ":")
	if src == "" || dst == "" || src == dst {
		return nil, fmt.Errorf("%w: cache restore needs distinct backup and target prefixes", domain.ErrComponentRestore)
	}

	var (
		restored []string
		bytes    int64
		cursor   uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, src+":*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", src, err)
		}
		for _, key := range keys {
			if key == src+":"+takenAtKey {
				continue
			}
			dump, err := r.client.Dump(ctx, key).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("dump %s: %w", key, err)
			}
			target := rewriteKey(key, src, dst)
			if err := r.client.RestoreReplace(ctx, target, 0, dump).Err(); err != nil {
				return nil, fmt.Errorf("restore %s: %w", target, err)
			}
			restored = append(restored, target)
			bytes += int64(len(dump))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	log.Printf("Restored %d cache keys from %s to %s", len(restored), src, dst)

	rollback := func() (map[string]any, error) {
		if len(restored) == 0 {
			return map[string]any{"deleted": 0}, nil
		}
		n, err := r.client.Del(context.Background(), restored...).Result()
		if err != nil {
			return nil, fmt.Errorf("delete restored keys under %s: %w", dst, err)
		}
		log.Printf("Rollback: deleted %d cache keys under %s", n, dst)
		return map[string]any{"deleted": n}, nil
	}

	out := &Outcome{
		Success:             true,
		BytesTransferred:    bytes,
		Detail:              map[string]any{"action": "redis_copy", "source": src, "target": dst, "keys": len(restored)},
		Rollback:            rollback,
		RollbackDescription: fmt.Sprintf("delete %d restored keys under %s", len(restored), dst),
	}

	if raw, err := r.client.Get(ctx, src+":"+takenAtKey).Result(); err == nil {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			out.DataLossWindow = window(r.now().Sub(time.Unix(ts, 0)))
		}
	}
	return out, nil
}

// Prestage counts the keys currently under the target prefix
func (r *CacheRestorer) Prestage(ctx context.Context, comp domain.RecoveryComponent) (map[string]any, error) {
	dst := strings.TrimSuffix(comp.TargetLocation, ":")
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, dst+":*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dst, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return map[string]any{"key_count": len(keys)}, nil
}

func (r *CacheRestorer) EstimateResources(comp domain.RecoveryComponent) domain.ResourceRequirements {
	return DefaultEstimate(comp)
}

func rewriteKey(key, src, dst string) string {
	return dst + strings.TrimPrefix(key, src)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
