package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/version"
)

var testNS = models.Namespace{Database: "app", Collection: "notes"}

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_RunsMigrations(t *testing.T) {
	s := setupTestStorage(t)

	var name string
	err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'documents'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "documents", name)
}

func TestCollection_CRUD(t *testing.T) {
	ctx := context.Background()
	coll := setupTestStorage(t).Collection(testNS)

	ids, err := coll.InsertMany(ctx, []models.Document{
		{"_id": "b", "n": 2, "nested": map[string]any{"x": 1.5}},
		{"_id": "a", "n": 1, "tags": []any{"x", "y"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids)

	docs, err := coll.Find(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0]["_id"], "documents are returned in _id order")
	assert.Equal(t, int64(1), docs[0]["n"], "integers survive JSON as int64")
	assert.Equal(t, map[string]any{"x": 1.5}, docs[1]["nested"])

	_, err = coll.InsertOne(ctx, models.Document{"_id": "a"})
	assert.ErrorIs(t, err, docstore.ErrDuplicateKey)

	res, err := coll.UpdateMany(ctx, models.Document{}, models.Document{"$inc": models.Document{"n": 10}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.ModifiedCount)

	n, err := coll.Count(ctx, models.Document{"n": models.Document{"$gt": 10}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	deleted, err := coll.DeleteOne(ctx, models.Document{"_id": "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = coll.FindOne(ctx, models.Document{"_id": "a"}, nil)
	assert.ErrorIs(t, err, docstore.ErrDocumentNotFound)
}

func TestCollection_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	_, err := s.Collection(testNS).InsertOne(ctx, models.Document{"_id": "1"})
	require.NoError(t, err)

	other := s.Collection(models.Namespace{Database: "app", Collection: "other"})
	n, err := other.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = other.InsertOne(ctx, models.Document{"_id": "1"})
	assert.NoError(t, err, "the same _id may exist in another namespace")
}

func TestCollection_VersionedReplace(t *testing.T) {
	ctx := context.Background()
	coll := setupTestStorage(t).Collection(testNS)

	stamp := version.Fresh()
	_, err := coll.InsertOne(ctx, version.WithVersion(models.Document{"_id": "1", "title": "a"}, stamp))
	require.NoError(t, err)

	res, err := coll.ReplaceOne(ctx, version.MatchFilter("1", version.Next(stamp)),
		models.Document{"title": "stale"}, nil)
	require.NoError(t, err)
	assert.Zero(t, res.MatchedCount, "stale version must not match")

	next := version.Next(stamp)
	res, err = coll.ReplaceOne(ctx, version.MatchFilter("1", stamp),
		version.WithVersion(models.Document{"_id": "1", "title": "b"}, next), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)

	doc, err := coll.FindOne(ctx, models.Document{"_id": "1"}, nil)
	require.NoError(t, err)
	got, err := version.FromDocument(doc)
	require.NoError(t, err)
	assert.True(t, next.Equal(got))
}

func TestStorage_WatchReceivesCommittedWrites(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := setupTestStorage(t)

	stream, err := s.Watch(ctx, testNS, []string{"1"})
	require.NoError(t, err)
	defer stream.Close()

	coll := s.Collection(testNS)
	_, err = coll.InsertOne(ctx, models.Document{"_id": "2"})
	require.NoError(t, err)
	_, err = coll.InsertOne(ctx, models.Document{"_id": "1", "n": 1})
	require.NoError(t, err)

	ev, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", ev.DocumentID, "only watched ids are delivered")
	assert.Equal(t, models.OperationInsert, ev.OperationType)
	assert.Equal(t, int64(1), ev.FullDocument["n"])

	// неудачная запись не публикуется
	_, err = coll.InsertOne(ctx, models.Document{"_id": "1"})
	require.ErrorIs(t, err, docstore.ErrDuplicateKey)
	_, err = coll.DeleteOne(ctx, models.Document{"_id": "1"})
	require.NoError(t, err)

	ev, err = stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.OperationDelete, ev.OperationType)
}
