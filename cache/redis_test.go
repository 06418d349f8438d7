package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedback-radar/feedback"
)

func sampleItem(id string) feedback.ClassifiedItem {
	return feedback.ClassifiedItem{
		RawPost:         feedback.RawPost{ID: id, Title: "Export is slow", Upvotes: 8},
		Type:            feedback.TypeConstructive,
		Category:        feedback.CategoryUsabilityFriction,
		Confidence:      0.8,
		ProblemMetadata: &feedback.ProblemMetadata{FeatureArea: "Export", UrgencyScore: feedback.Float(6)},
		Summary:         feedback.Summary{KeyQuote: "export takes minutes"},
	}
}

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(sampleItem("hn:1"))
	require.NoError(t, err)

	item, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "hn:1", item.ID)
	assert.Equal(t, feedback.TypeConstructive, item.Type)
	require.NotNil(t, item.ProblemMetadata)
	assert.Equal(t, "Export", item.ProblemMetadata.FeatureArea)
	assert.Equal(t, 6.0, *item.ProblemMetadata.UrgencyScore)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	_, err := Decode([]byte("{"))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"id":"x","type":"Praise","category":"N/A","problemMetadata":{"featureArea":"Sync"},"summary":{}}`))
	assert.ErrorIs(t, err, feedback.ErrProblemMetadataMismatch)
}

func TestKey(t *testing.T) {
	r := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), WithPrefix("t:"))
	defer r.Close()
	assert.Equal(t, "t:hn:1", r.Key("hn:1"))

	d := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}))
	defer d.Close()
	assert.Equal(t, defaultPrefix+"hn:1", d.Key("hn:1"))
}

// TestRedisRoundTrip needs a live server: REDIS_TEST_ADDR=localhost:6379.
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()

	prefix := "feedback-radar-test:" + uuid.NewString() + ":"
	r, err := Connect(ctx, addr, WithPrefix(prefix), WithTTL(time.Minute))
	require.NoError(t, err)
	defer r.Close()

	_, ok, err := r.Lookup(ctx, "hn:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Store(ctx, sampleItem("hn:1")))
	t.Cleanup(func() { r.client.Del(context.Background(), r.Key("hn:1")) })

	item, ok, err := r.Lookup(ctx, "hn:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "export takes minutes", item.Summary.KeyQuote)

	ttl, err := r.client.TTL(ctx, r.Key("hn:1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestConnectFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Connect(ctx, "redis://127.0.0.1:1/0")
	assert.Error(t, err)
}
