//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStore_BasicOperations(t *testing.T) {
	testClient := NewTestClient(t, WithJetStream())
	client := testClient.Client
	ctx := context.Background()

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket: "test-basic",
	})
	require.NoError(t, err)

	kvStore := client.NewKVStore(bucket)

	t.Run("create and get", func(t *testing.T) {
		rev, err := kvStore.Create(ctx, "rule-1", []byte(`{"id":"rule-1"}`))
		require.NoError(t, err)
		assert.NotZero(t, rev)

		entry, err := kvStore.Get(ctx, "rule-1")
		require.NoError(t, err)
		assert.Equal(t, `{"id":"rule-1"}`, string(entry.Value))
	})

	t.Run("create rejects existing key", func(t *testing.T) {
		_, err := kvStore.Create(ctx, "rule-1", []byte("other"))
		assert.ErrorIs(t, err, ErrKVKeyExists)
	})

	t.Run("get missing key", func(t *testing.T) {
		_, err := kvStore.Get(ctx, "never-stored")
		assert.ErrorIs(t, err, ErrKVKeyNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, kvStore.Delete(ctx, "rule-1"))
		_, err := kvStore.Get(ctx, "rule-1")
		assert.ErrorIs(t, err, ErrKVKeyNotFound)
	})

	t.Run("keys on empty bucket", func(t *testing.T) {
		keys, err := kvStore.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestKVStore_UpdateWithRetry(t *testing.T) {
	testClient := NewTestClient(t, WithJetStream())
	client := testClient.Client
	ctx := context.Background()

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:  "test-cas",
		History: 5,
	})
	require.NoError(t, err)

	kvStore := client.NewKVStore(bucket)

	t.Run("successful update", func(t *testing.T) {
		_, err := kvStore.Put(ctx, "k", []byte("initial"))
		require.NoError(t, err)

		err = kvStore.UpdateWithRetry(ctx, "k", func(current []byte) ([]byte, error) {
			assert.Equal(t, "initial", string(current))
			return []byte("updated"), nil
		})
		require.NoError(t, err)

		entry, err := kvStore.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "updated", string(entry.Value))
	})

	t.Run("creates missing key", func(t *testing.T) {
		err := kvStore.UpdateWithRetry(ctx, "fresh", func(current []byte) ([]byte, error) {
			assert.Nil(t, current)
			return []byte("created"), nil
		})
		require.NoError(t, err)

		entry, err := kvStore.Get(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, "created", string(entry.Value))
	})

	t.Run("retries on conflict", func(t *testing.T) {
		_, err := kvStore.Put(ctx, "contended", []byte("v1"))
		require.NoError(t, err)

		attempts := 0
		err = kvStore.UpdateWithRetry(ctx, "contended", func([]byte) ([]byte, error) {
			attempts++
			if attempts == 1 {
				_, _ = kvStore.Put(ctx, "contended", []byte("interference"))
			}
			return []byte("final"), nil
		})
		require.NoError(t, err)
		assert.Greater(t, attempts, 1)

		entry, _ := kvStore.Get(ctx, "contended")
		assert.Equal(t, "final", string(entry.Value))
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		_, err := kvStore.Put(ctx, "hot", []byte("v1"))
		require.NoError(t, err)

		limitedStore := client.NewKVStore(bucket, func(opts *KVOptions) {
			opts.MaxRetries = 1
			opts.RetryDelay = time.Millisecond
		})

		err = limitedStore.UpdateWithRetry(ctx, "hot", func([]byte) ([]byte, error) {
			_, _ = kvStore.Put(ctx, "hot", []byte("interference"))
			return []byte("never"), nil
		})
		assert.ErrorIs(t, err, ErrKVMaxRetriesExceeded)
	})
}

func TestClient_PublishSubscribe(t *testing.T) {
	testClient := NewTestClient(t)
	client := testClient.Client
	ctx := context.Background()

	received := make(chan []byte, 1)
	require.NoError(t, client.Subscribe(ctx, "tracewatch.test", func(_ context.Context, data []byte) {
		received <- data
	}))

	require.NoError(t, client.Publish(ctx, "tracewatch.test", []byte("hello")))

	select {
	case data := <-received:
		assert.Equal(t, "hello", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}
}
