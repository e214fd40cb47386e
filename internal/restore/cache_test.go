package restore

import (
	"context"
	"testing"

	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestCacheRestoreRejectsBadPrefixes(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	r := NewCacheRestorer(client)

	tests := []struct {
		name   string
		backup string
		target string
	}{
		{"missing backup", "", "sessions"},
		{"missing target", "backup:sessions", ""},
		{"same prefix", "sessions:", "sessions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Restore(context.Background(), domain.RecoveryComponent{
				ID: "sessions", Type: domain.ComponentCache,
				BackupLocation: tt.backup, TargetLocation: tt.target,
			})
			assert.ErrorIs(t, err, domain.ErrComponentRestore)
		})
	}
}

func TestCacheRestoreUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	r := NewCacheRestorer(client)

	_, err := r.Restore(context.Background(), domain.RecoveryComponent{
		ID: "sessions", BackupLocation: "backup:sessions", TargetLocation: "sessions",
	})
	assert.ErrorContains(t, err, "scan backup:sessions")
}

func TestRewriteKey(t *testing.T) {
	assert.Equal(t, "sessions:user:1", rewriteKey("backup:sessions:user:1", "backup:sessions", "sessions"))
}
