package odras_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laserpointlabs/odras"
	"github.com/laserpointlabs/odras/application/service"
	"github.com/laserpointlabs/odras/domain"
	"github.com/laserpointlabs/odras/domain/document"
	"github.com/laserpointlabs/odras/domain/job"
	"github.com/laserpointlabs/odras/domain/search"
	"github.com/laserpointlabs/odras/infrastructure/provider"
)

const testPollPeriod = 50 * time.Millisecond

const (
	navigationText = "GPS receivers compute positioning accuracy from satellite geometry. " +
		"Differential corrections from reference stations improve GPS positioning accuracy " +
		"to the centimetre level for surveying."
	bakingText = "Sourdough bread rises slowly because wild yeast ferments the dough over " +
		"many hours before it is baked in a hot covered pot."
)

func newTestClient(t *testing.T, opts ...odras.Option) *odras.Client {
	t.Helper()
	dir := t.TempDir()
	embedder, err := provider.NewHashingEmbedding("", 256)
	require.NoError(t, err)

	base := []odras.Option{
		odras.WithDataDir(dir),
		odras.WithSQLite(filepath.Join(dir, "odras.db")),
		odras.WithEmbeddingProvider(embedder),
		odras.WithWorkerPollPeriod(testPollPeriod),
	}
	client, err := odras.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func waitForJob(t *testing.T, client *odras.Client, id string) job.Job {
	t.Helper()
	var last job.Job
	require.Eventually(t, func() bool {
		j, err := client.Jobs.Get(context.Background(), id)
		if err != nil {
			return false
		}
		last = j
		return j.Status().IsTerminal()
	}, 10*time.Second, testPollPeriod)
	return last
}

func TestNew_RequiresDatabase(t *testing.T) {
	_, err := odras.New()
	assert.ErrorIs(t, err, odras.ErrNoDatabase)
}

func TestNew_RequiresEmbedder(t *testing.T) {
	dir := t.TempDir()
	_, err := odras.New(
		odras.WithDataDir(dir),
		odras.WithSQLite(filepath.Join(dir, "odras.db")),
	)
	assert.ErrorIs(t, err, odras.ErrNoEmbedder)
}

func TestClient_CollectionFromModelIdentity(t *testing.T) {
	client := newTestClient(t)

	c := client.Collection()
	assert.Equal(t, "hashing_256_256", c.Name())
	assert.Equal(t, "hashing-256", c.Model())
	assert.Equal(t, 256, c.Dimension())

	named := newTestClient(t, odras.WithCollection("engineering_docs"))
	assert.Equal(t, "engineering_docs", named.Collection().Name())
}

func TestClient_IngestAndSearch(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	nav, err := client.Documents.Register(ctx, "proj-1", "Navigation", "text/plain", navigationText)
	require.NoError(t, err)
	bread, err := client.Documents.Register(ctx, "proj-1", "Bread", "text/plain", bakingText)
	require.NoError(t, err)

	for _, d := range []document.Document{nav, bread} {
		j, err := client.Ingestion.Submit(ctx, d.ID(), service.IngestParams{})
		require.NoError(t, err)
		done := waitForJob(t, client, j.ID())
		require.Equal(t, job.StatusComplete, done.Status(), done.Error())
	}

	results, err := client.Search.Query(ctx, "GPS positioning accuracy", search.WithProjectID("proj-1"))
	require.NoError(t, err)
	require.NotEmpty(t, results.Hits())
	assert.Equal(t, nav.ID(), results.Hits()[0].DocumentID())
	assert.Equal(t, "Navigation", results.Hits()[0].DocumentTitle())

	saved, err := client.Documents.Get(ctx, nav.ID())
	require.NoError(t, err)
	assert.Equal(t, document.StatusComplete, saved.Status())

	require.NoError(t, client.Documents.Delete(ctx, nav.ID()))
	_, err = client.Documents.Get(ctx, nav.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	results, err = client.Search.Query(ctx, "GPS positioning accuracy")
	require.NoError(t, err)
	for _, hit := range results.Hits() {
		assert.NotEqual(t, nav.ID(), hit.DocumentID())
	}
}

func TestClient_ReconcileNow(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	client.ReconcileNow(ctx)
	require.Eventually(t, func() bool {
		n, err := client.Tasks.Count(ctx)
		return err == nil && n == 0
	}, 10*time.Second, testPollPeriod)
}

func TestClient_CloseTwice(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Close(), odras.ErrClientClosed)
	assert.ErrorIs(t, client.Ping(context.Background()), odras.ErrClientClosed)
}

func TestClient_InvalidSchedule(t *testing.T) {
	dir := t.TempDir()
	embedder, err := provider.NewHashingEmbedding("", 64)
	require.NoError(t, err)

	_, err = odras.New(
		odras.WithDataDir(dir),
		odras.WithSQLite(filepath.Join(dir, "odras.db")),
		odras.WithEmbeddingProvider(embedder),
		odras.WithReconcileSchedule("every tuesday"),
	)
	assert.Error(t, err)
}
