//go:build integration

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgtesting "github.com/mes-platform/production-service/pkg/testing"
)

func newRecord(key, fingerprint string) *Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Record{
		Key:         key,
		Service:     "production-test",
		Method:      "POST",
		Path:        "/api/v1/production/jobs",
		Fingerprint: fingerprint,
		Token:       uuid.NewString(),
		LockedAt:    &now,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

func TestMongoStore(t *testing.T) {
	ctx := pkgtesting.TestContext(t, 3*time.Minute)

	mongo, err := pkgtesting.StartMongoDB(ctx, "idempotency_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mongo.Terminate(context.Background()) })

	client, err := mongo.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	store := NewMongoStore(client.Database(), time.Minute)

	first := newRecord("order-1", "fp-a")
	stored, owned, err := store.Acquire(ctx, first)
	require.NoError(t, err)
	assert.True(t, owned)
	first.ID = stored.ID

	retry := newRecord("order-1", "fp-a")
	stored, owned, err = store.Acquire(ctx, retry)
	require.NoError(t, err)
	assert.False(t, owned)
	assert.True(t, stored.Locked(time.Now(), time.Minute))

	require.NoError(t, store.Release(ctx, first))
	stored, owned, err = store.Acquire(ctx, retry)
	require.NoError(t, err)
	require.True(t, owned, "released key is taken over")
	retry.ID = stored.ID

	require.NoError(t, store.Complete(ctx, retry, 201, "application/json", []byte(`{"ok":true}`)))

	stored, owned, err = store.Acquire(ctx, newRecord("order-1", "fp-a"))
	require.NoError(t, err)
	assert.False(t, owned)
	require.True(t, stored.Completed())
	assert.Equal(t, 201, stored.ResponseCode)
	assert.Equal(t, []byte(`{"ok":true}`), stored.ResponseBody)

	stored, owned, err = store.Acquire(ctx, newRecord("order-1", "fp-b"))
	require.NoError(t, err)
	assert.False(t, owned)
	assert.Equal(t, "fp-a", stored.Fingerprint)
}
