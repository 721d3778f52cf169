package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/dtc-configurator/internal/storage/storagetest"
)

// TestStoreAgainstMongo creates a throwaway database on the server named by
// TEST_MONGO_URI, for example "mongodb://localhost:27017", and drops it after.
func TestStoreAgainstMongo(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	ctx := context.Background()
	name := "configurator_test_" + uuid.NewString()[:8]
	store, err := Connect(ctx, uri, name, 5*time.Second, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.client.Database(name).Drop(context.Background())
		_ = store.Close()
	})

	require.NoError(t, store.EnsureIndexes(ctx))
	storagetest.Run(t, store)
}
