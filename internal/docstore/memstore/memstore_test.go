package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
)

var testNS = models.Namespace{Database: "app", Collection: "notes"}

func TestStore_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	coll := New().Collection(testNS)

	id, err := coll.InsertOne(ctx, models.Document{"_id": "b", "n": 2})
	require.NoError(t, err)
	assert.Equal(t, "b", id)

	ids, err := coll.InsertMany(ctx, []models.Document{{"_id": "a", "n": 1}, {"n": 3}})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "a", ids[0])
	assert.NotEmpty(t, ids[1], "missing _id must be generated")

	_, err = coll.InsertOne(ctx, models.Document{"_id": "a"})
	assert.ErrorIs(t, err, docstore.ErrDuplicateKey)

	_, err = coll.InsertOne(ctx, models.Document{"_id": 42})
	assert.ErrorIs(t, err, docstore.ErrInvalidID)

	docs, err := coll.Find(ctx, models.Document{"n": models.Document{"$lte": 2}}, nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0]["_id"], "documents are returned in _id order")

	docs, err = coll.Find(ctx, nil, &docstore.FindOptions{
		Sort:  []query.SortField{{Field: "n", Descending: true}},
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(3), docs[0]["n"])

	n, err := coll.Count(ctx, models.Document{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = coll.FindOne(ctx, models.Document{"_id": "missing"}, nil)
	assert.ErrorIs(t, err, docstore.ErrDocumentNotFound)
}

func TestStore_InsertManyIsAtomic(t *testing.T) {
	ctx := context.Background()
	coll := New().Collection(testNS)

	_, err := coll.InsertMany(ctx, []models.Document{{"_id": "x"}, {"_id": "x"}})
	require.ErrorIs(t, err, docstore.ErrDuplicateKey)

	n, err := coll.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	coll := New().Collection(testNS)
	_, err := coll.InsertMany(ctx, []models.Document{
		{"_id": "1", "group": "g", "n": 1},
		{"_id": "2", "group": "g", "n": 2},
	})
	require.NoError(t, err)

	res, err := coll.UpdateMany(ctx, models.Document{"group": "g"}, models.Document{"$inc": models.Document{"n": 10}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.MatchedCount)
	assert.Equal(t, int64(2), res.ModifiedCount)

	res, err = coll.UpdateOne(ctx, models.Document{"_id": "1"}, models.Document{"$set": models.Document{"n": 11}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)
	assert.Equal(t, int64(0), res.ModifiedCount, "setting the same value is not a modification")

	res, err = coll.UpdateOne(ctx, models.Document{"_id": "3"}, models.Document{"$set": models.Document{"n": 3}}, &docstore.UpdateOptions{Upsert: true})
	require.NoError(t, err)
	assert.Equal(t, "3", res.UpsertedID)

	doc, err := coll.FindOne(ctx, models.Document{"_id": "3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc["n"])

	res, err = coll.ReplaceOne(ctx, models.Document{"_id": "2"}, models.Document{"only": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ModifiedCount)

	doc, err = coll.FindOne(ctx, models.Document{"_id": "2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.Document{"_id": "2", "only": true}, doc)
}

func TestStore_FindOneAndUpdate(t *testing.T) {
	ctx := context.Background()
	coll := New().Collection(testNS)
	_, err := coll.InsertOne(ctx, models.Document{"_id": "1", "n": 1})
	require.NoError(t, err)

	before, err := coll.FindOneAndUpdate(ctx, models.Document{"_id": "1"}, models.Document{"$set": models.Document{"n": 2}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), before["n"])

	after, err := coll.FindOneAndUpdate(ctx, models.Document{"_id": "1"}, models.Document{"$set": models.Document{"n": 3}},
		&docstore.FindOneAndUpdateOptions{ReturnAfter: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), after["n"])

	_, err = coll.FindOneAndUpdate(ctx, models.Document{"_id": "nope"}, models.Document{"$set": models.Document{"n": 1}}, nil)
	assert.ErrorIs(t, err, docstore.ErrDocumentNotFound)

	upserted, err := coll.FindOneAndUpdate(ctx, models.Document{"_id": "new"}, models.Document{"$set": models.Document{"n": 1}},
		&docstore.FindOneAndUpdateOptions{Upsert: true, ReturnAfter: true})
	require.NoError(t, err)
	assert.Equal(t, "new", upserted["_id"])
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	coll := New().Collection(testNS)
	_, err := coll.InsertMany(ctx, []models.Document{{"_id": "1"}, {"_id": "2"}, {"_id": "3"}})
	require.NoError(t, err)

	n, err := coll.DeleteOne(ctx, models.Document{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = coll.DeleteMany(ctx, models.Document{"_id": models.Document{"$nin": []string{"3"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	docs, err := coll.Find(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "3", docs[0]["_id"])
}

func TestStore_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := New()
	a := store.Collection(testNS)
	b := store.Collection(models.Namespace{Database: "app", Collection: "other"})

	_, err := a.InsertOne(ctx, models.Document{"_id": "1"})
	require.NoError(t, err)

	_, err = b.InsertOne(ctx, models.Document{"_id": "1"})
	require.NoError(t, err)

	n, err := b.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_Watch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := New()
	coll := store.Collection(testNS)

	stream, err := store.Watch(ctx, testNS, []string{"watched"})
	require.NoError(t, err)
	defer stream.Close()

	_, err = coll.InsertOne(ctx, models.Document{"_id": "ignored"})
	require.NoError(t, err)
	_, err = coll.InsertOne(ctx, models.Document{"_id": "watched", "n": 1})
	require.NoError(t, err)
	_, err = coll.UpdateOne(ctx, models.Document{"_id": "watched"}, models.Document{"$set": models.Document{"n": 2}}, nil)
	require.NoError(t, err)

	ev, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.OperationInsert, ev.OperationType)
	assert.Equal(t, "watched", ev.DocumentID)

	ev, err = stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.OperationUpdate, ev.OperationType)
	assert.Equal(t, int64(2), ev.FullDocument["n"])
	assert.Equal(t, int64(2), ev.UpdateDescription.UpdatedFields["n"])

	require.NoError(t, stream.Close())
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, docstore.ErrStreamClosed)
	assert.Zero(t, store.Hub().Subscribers())
}
