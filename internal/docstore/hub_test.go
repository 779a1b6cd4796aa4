package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/models"
)

func TestHub_SlowSubscriberIsClosed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ns := models.Namespace{Database: "db", Collection: "c"}
	hub := NewHub(1)

	stream, err := hub.Watch(ctx, ns, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers())

	hub.Publish(models.NewInsertEvent(ns, "1", models.Document{"_id": "1"}, false))
	hub.Publish(models.NewInsertEvent(ns, "2", models.Document{"_id": "2"}, false))

	assert.Zero(t, hub.Subscribers(), "overflowing subscriber must be dropped")

	ev, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", ev.DocumentID)

	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestHub_FiltersByNamespace(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ns := models.Namespace{Database: "db", Collection: "c"}
	hub := NewHub(0)

	stream, err := hub.Watch(ctx, ns, nil)
	require.NoError(t, err)
	defer stream.Close()

	hub.Publish(models.NewDeleteEvent(models.Namespace{Database: "db", Collection: "other"}, "1", false))

	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIDFromFilter(t *testing.T) {
	tests := []struct {
		filter models.Document
		name   string
		want   string
		ok     bool
	}{
		{name: "plain", filter: models.Document{"_id": "a", "x": 1}, want: "a", ok: true},
		{name: "eq operator", filter: models.Document{"_id": models.Document{"$eq": "a"}}, want: "a", ok: true},
		{name: "in operator", filter: models.Document{"_id": models.Document{"$in": []any{"a"}}}},
		{name: "no id", filter: models.Document{"x": 1}},
		{name: "numeric id", filter: models.Document{"_id": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IDFromFilter(tt.filter)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrepareInsert(t *testing.T) {
	doc := models.Document{"n": 1}
	out, id, err := PrepareInsert(doc)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, out["_id"])
	assert.NotContains(t, doc, "_id", "input must not be modified")

	_, _, err = PrepareInsert(models.Document{"_id": ""})
	assert.ErrorIs(t, err, ErrInvalidID)
}
