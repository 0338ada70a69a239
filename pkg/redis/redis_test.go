package redis

import (
	"VisionProxy/internal/entity"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	a := Key("google", []byte("image-a"))
	b := Key("google", []byte("image-b"))
	c := Key("openrouter", []byte("image-a"))

	assert.True(t, strings.HasPrefix(a, "vision:analysis:google:"))
	assert.Len(t, strings.TrimPrefix(a, "vision:analysis:google:"), 64)
	assert.Equal(t, a, Key("google", []byte("image-a")))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCache_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewWithClient(client, time.Minute)

	analysis, err := cache.GetAnalysis(context.Background(), "google", []byte("img"))
	assert.Nil(t, analysis)
	require.Error(t, err)

	err = cache.SetAnalysis(context.Background(), "google", []byte("img"), &entity.Analysis{Provider: "google"})
	require.Error(t, err)
}
