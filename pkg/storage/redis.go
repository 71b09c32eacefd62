// Package storage keeps comment likes in Redis.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"scriptboard/pkg/annotation"
)

// likesKey returns the Redis key for the set of users liking a comment
func likesKey(commentID string) string {
	return fmt.Sprintf("comment:%s:likers", commentID)
}

// countsKey is the hash of like counts, one field per comment
const countsKey = "comment:likes"

// toggleScript flips membership of ARGV[2] in KEYS[1] and moves the count of
// ARGV[1] in KEYS[2]. Returns {liked, count}.
var toggleScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[2]) == 1 then
	redis.call("SREM", KEYS[1], ARGV[2])
	local n = redis.call("HINCRBY", KEYS[2], ARGV[1], -1)
	if n < 0 then
		redis.call("HSET", KEYS[2], ARGV[1], 0)
		n = 0
	end
	return {0, n}
end
redis.call("SADD", KEYS[1], ARGV[2])
return {1, redis.call("HINCRBY", KEYS[2], ARGV[1], 1)}
`)

// LikeStore implements annotation.LikeStore on Redis
type LikeStore struct {
	client *redis.Client
}

// NewLikeStore connects to redisURL
func NewLikeStore(redisURL string) (*LikeStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &LikeStore{client: client}, nil
}

// Close closes the Redis connection
func (s *LikeStore) Close() error {
	return s.client.Close()
}

// ToggleLike runs the toggle as one script, so concurrent toggles never lose
// an update.
func (s *LikeStore) ToggleLike(ctx context.Context, commentID, userID string) (annotation.LikeState, error) {
	res, err := toggleScript.Run(ctx, s.client, []string{likesKey(commentID), countsKey}, commentID, userID).Int64Slice()
	if err != nil {
		return annotation.LikeState{}, fmt.Errorf("failed to toggle like: %w", err)
	}
	if len(res) != 2 {
		return annotation.LikeState{}, fmt.Errorf("failed to toggle like: unexpected reply %v", res)
	}
	return annotation.LikeState{
		AnnotationID:  commentID,
		LikesCount:    int(res[1]),
		LikedByViewer: res[0] == 1,
	}, nil
}

// LikeSummaries reads the counts and likers of the given comments in one
// round trip. Comments nobody ever liked are left out.
func (s *LikeStore) LikeSummaries(ctx context.Context, commentIDs []string) (map[string]annotation.LikeSummary, error) {
	summaries := make(map[string]annotation.LikeSummary, len(commentIDs))
	if len(commentIDs) == 0 {
		return summaries, nil
	}

	pipe := s.client.Pipeline()
	counts := pipe.HMGet(ctx, countsKey, commentIDs...)
	members := make([]*redis.StringSliceCmd, len(commentIDs))
	for i, id := range commentIDs {
		members[i] = pipe.SMembers(ctx, likesKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load likes: %w", err)
	}

	vals := counts.Val()
	for i, id := range commentIDs {
		if i >= len(vals) || vals[i] == nil {
			continue
		}
		str, ok := vals[i].(string)
		if !ok {
			return nil, fmt.Errorf("failed to load likes: count of %s is %T", id, vals[i])
		}
		n, err := strconv.Atoi(str)
		if err != nil {
			return nil, fmt.Errorf("failed to load likes: count of %s: %w", id, err)
		}
		summaries[id] = annotation.LikeSummary{Count: n, Likers: members[i].Val()}
	}
	return summaries, nil
}

// Forget drops the likes of a deleted comment
func (s *LikeStore) Forget(ctx context.Context, commentID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, likesKey(commentID))
	pipe.HDel(ctx, countsKey, commentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to forget likes: %w", err)
	}
	return nil
}

var _ annotation.LikeStore = (*LikeStore)(nil)
