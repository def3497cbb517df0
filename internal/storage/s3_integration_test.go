//go:build integration

package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralforge/auralforge/internal/config"
	"github.com/auralforge/auralforge/internal/testutil"
)

func TestIntegrationStore_PutGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	endpoint := testutil.RequireEnv(t, "S3_ENDPOINT")

	ctx := context.Background()
	store, err := New(ctx, config.S3Config{
		Bucket:    "auralforge-test",
		Region:    "us-east-1",
		Endpoint:  endpoint,
		AccessKey: testutil.RequireEnv(t, "S3_ACCESS_KEY"),
		SecretKey: testutil.RequireEnv(t, "S3_SECRET_KEY"),
	}, testutil.DiscardLogger())
	require.NoError(t, err)
	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.Ping(ctx))

	key := AudioKey("team", testutil.UniqueID("job"), "wav")
	require.NoError(t, store.Put(ctx, key, []byte("RIFFdata"), "audio/wav"))

	obj, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer obj.Body.Close()
	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(body))
	assert.Equal(t, "audio/wav", obj.ContentType)

	_, err = store.Get(ctx, "audio/missing.wav")
	assert.True(t, errors.Is(err, ErrObjectNotFound), "got %v", err)
}
