package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
)

func TestEngine_ReadOperations(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, RemoteWins())

	ids, err := env.engine.InsertMany(env.ctx, testNS, []models.Document{
		{"_id": "a", "n": 1},
		{"_id": "b", "n": 2},
		{"_id": "c", "n": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	n, err := env.engine.Count(env.ctx, testNS, models.Document{"n": 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	docs, err := env.engine.Find(env.ctx, testNS, models.Document{}, &docstore.FindOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	doc, err := env.engine.FindOne(env.ctx, testNS, models.Document{"_id": "b"}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, doc["n"])

	_, err = env.engine.FindOne(env.ctx, testNS, models.Document{"_id": "zzz"}, nil)
	assert.ErrorIs(t, err, docstore.ErrDocumentNotFound)

	out, err := env.engine.Aggregate(env.ctx, testNS, []models.Document{
		{"$match": models.Document{"n": 2}},
		{"$count": "total"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.EqualValues(t, 2, out[0]["total"])
}

func TestEngine_InsertGeneratesIDAndStripsVersion(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, RemoteWins())

	id := env.insert(t, models.Document{"title": "x", models.VersionField: models.Document{"spv": 1}})
	assert.NotEmpty(t, id)

	local := env.localDoc(t, id)
	require.NotNil(t, local)
	assert.NotContains(t, local, models.VersionField)
}

func TestEngine_InsertManyIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, RemoteWins())
	env.insert(t, models.Document{"_id": "a"})

	_, err := env.engine.InsertMany(env.ctx, testNS, []models.Document{{"_id": "b"}, {"_id": "a"}})
	require.ErrorIs(t, err, docstore.ErrDuplicateKey)

	assert.Nil(t, env.localDoc(t, "b"))
	assert.Equal(t, []string{"a"}, env.engine.SyncedIDs(testNS))
}

func TestEngine_UpdateOne(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, RemoteWins())

	t.Run("no match", func(t *testing.T) {
		res, err := env.engine.UpdateOne(env.ctx, testNS, models.Document{"_id": "none"},
			models.Document{"$set": models.Document{"n": 1}}, nil)
		require.NoError(t, err)
		assert.Zero(t, res.MatchedCount)
		assert.Empty(t, res.UpsertedID)
	})

	t.Run("upsert inserts and syncs", func(t *testing.T) {
		res, err := env.engine.UpdateOne(env.ctx, testNS, models.Document{"_id": "u"},
			models.Document{"$set": models.Document{"n": 1}}, &docstore.UpdateOptions{Upsert: true})
		require.NoError(t, err)
		assert.Equal(t, "u", res.UpsertedID)
		assert.Contains(t, env.engine.SyncedIDs(testNS), "u")
		assert.Contains(t, env.engine.PendingIDs(testNS), "u")
	})

	t.Run("version field set by the application is dropped", func(t *testing.T) {
		res, err := env.engine.UpdateOne(env.ctx, testNS, models.Document{"_id": "u"},
			models.Document{"$set": models.Document{models.VersionField: models.Document{"spv": 1}, "n": 2}}, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 1, res.ModifiedCount)

		local := env.localDoc(t, "u")
		assert.NotContains(t, local, models.VersionField)
		assert.EqualValues(t, 2, local["n"])
	})

	t.Run("unchanged document is not modified", func(t *testing.T) {
		res, err := env.engine.UpdateOne(env.ctx, testNS, models.Document{"_id": "u"},
			models.Document{"$set": models.Document{"n": 2}}, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 1, res.MatchedCount)
		assert.Zero(t, res.ModifiedCount)
	})

	env.pass(t)
	remote := env.remoteDoc(t, "u")
	require.NotNil(t, remote)
	assert.EqualValues(t, 2, remote["n"])
}

func TestEngine_UpdateMany(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, RemoteWins())
	_, err := env.engine.InsertMany(env.ctx, testNS, []models.Document{{"_id": "a", "n": 1}, {"_id": "b", "n": 1}})
	require.NoError(t, err)
	env.pass(t)

	res, err := env.engine.UpdateMany(env.ctx, testNS, models.Document{"n": 1},
		models.Document{"$inc": models.Document{"n": 1}}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.MatchedCount)
	assert.EqualValues(t, 2, res.ModifiedCount)
	assert.Equal(t, []string{"a", "b"}, env.engine.PendingIDs(testNS))

	undo, err := env.store.UndoCollection(testNS).Count(env.ctx, models.Document{})
	require.NoError(t, err)
	assert.Zero(t, undo, "undo images are cleared once the write is recorded")

	env.pass(t)
	for _, id := range []string{"a", "b"} {
		assert.EqualValues(t, 2, env.remoteDoc(t, id)["n"])
	}
}

func TestEngine_DeleteUnsentInsert(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, RemoteWins())
	env.insert(t, models.Document{"_id": "a"})

	n, err := env.engine.DeleteMany(env.ctx, testNS, models.Document{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// вставка не была отправлена: документ просто перестает синхронизироваться
	assert.Empty(t, env.engine.SyncedIDs(testNS))
	env.pass(t)
	assert.Nil(t, env.remoteDoc(t, "a"))

	n, err = env.engine.DeleteOne(env.ctx, testNS, models.Document{"_id": "a"})
	require.NoError(t, err)
	assert.Zero(t, n)
}
