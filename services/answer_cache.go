package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AnswerCache memoizes generated answers in redis, keyed by question
// and document scope. It fails open: redis being down only means
// regenerating answers.
type AnswerCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAnswerCache(client *redis.Client, ttl time.Duration) *AnswerCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AnswerCache{client: client, ttl: ttl}
}

func (c *AnswerCache) Get(ctx context.Context, question string, scope *primitive.ObjectID) (string, bool) {
	answer, err := c.client.Get(ctx, c.key(question, scope)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("Answer cache read failed: %v", err)
		return "", false
	}
	return answer, true
}

func (c *AnswerCache) Set(ctx context.Context, question string, scope *primitive.ObjectID, answer string) {
	if err := c.client.Set(ctx, c.key(question, scope), answer, c.ttl).Err(); err != nil {
		log.Printf("Answer cache write failed: %v", err)
	}
}

// InvalidateDocument drops cached answers scoped to one document.
// Global-scope answers are left to expire by TTL.
func (c *AnswerCache) InvalidateDocument(ctx context.Context, documentID primitive.ObjectID) {
	pattern := "answer:" + documentID.Hex() + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("Answer cache scan failed: %v", err)
		return
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			log.Printf("Answer cache invalidation failed: %v", err)
		}
	}
}

func (c *AnswerCache) key(question string, scope *primitive.ObjectID) string {
	scopeKey := "global"
	if scope != nil {
		scopeKey = scope.Hex()
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(question))))
	return "answer:" + scopeKey + ":" + hex.EncodeToString(sum[:16])
}
