package uid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type redisUID struct {
	client redis.Cmdable
	name   string
}

// NewRedisUID returns ids made of the local time, a shared redis counter and a
// uuidv7, so two processes sharing the redis never hand out the same id.
func NewRedisUID(client redis.Cmdable, name string) UID {
	return &redisUID{
		client: client,
		name:   name,
	}
}

func (r *redisUID) New(ctx context.Context) (string, error) {
	counter, err := r.client.Incr(ctx, getCounterKey(r.name)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to get counter for uid: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate uuidv7 for uid: %w", err)
	}

	var sb strings.Builder
	// 16 (timestamp) + 1 (-) + 16 (counter) + 1 (-) + 32 (UUID without hyphens)
	sb.Grow(16 + 1 + 16 + 1 + 32)
	sb.WriteString(strconv.FormatInt(time.Now().UnixNano(), 16))
	sb.WriteString("-")
	sb.WriteString(strconv.FormatInt(counter, 16))
	sb.WriteString("-")
	sb.WriteString(strings.ReplaceAll(id.String(), "-", ""))

	return sb.String(), nil
}

func getCounterKey(name string) string {
	if len(name) == 0 {
		return "counter:uid"
	}
	return "counter:uid:" + name
}
