package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/pkg/api"
)

var testNS = Namespace{Database: "app", Collection: "notes"}

func TestParseOperationType(t *testing.T) {
	for _, op := range []OperationType{OperationInsert, OperationUpdate, OperationReplace, OperationDelete} {
		assert.Equal(t, op, ParseOperationType(string(op)))
	}
	assert.Equal(t, OperationUnknown, ParseOperationType("drop"))
	assert.Equal(t, OperationUnknown, ParseOperationType(""))
}

func TestUpdateDescription(t *testing.T) {
	var empty *UpdateDescription
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, Document{}, empty.UpdateDocument())
	assert.True(t, (&UpdateDescription{}).IsEmpty())

	desc := &UpdateDescription{
		UpdatedFields: Document{"title": "new"},
		RemovedFields: []string{"draft"},
	}
	assert.False(t, desc.IsEmpty())
	assert.Equal(t, Document{
		"$set":   Document{"title": "new"},
		"$unset": Document{"draft": true},
	}, desc.UpdateDocument())
}

func TestChangeEvent_Constructors(t *testing.T) {
	doc := Document{IDField: "a", "n": int64(1)}

	insert := NewInsertEvent(testNS, "a", doc, true)
	assert.Equal(t, OperationInsert, insert.OperationType)
	assert.True(t, insert.HasUncommittedWrites)
	assert.NotEmpty(t, insert.ID)

	replace := NewReplaceEvent(testNS, "a", doc, false)
	assert.Equal(t, OperationReplace, replace.OperationType)
	assert.NotEqual(t, insert.ID, replace.ID, "every event gets its own id")

	update := NewUpdateEvent(testNS, "a", &UpdateDescription{UpdatedFields: Document{"n": int64(1)}}, doc, false)
	assert.Equal(t, OperationUpdate, update.OperationType)
	require.NotNil(t, update.UpdateDescription)

	del := NewDeleteEvent(testNS, "a", true)
	assert.Equal(t, OperationDelete, del.OperationType)
	assert.Nil(t, del.FullDocument)
}

func TestChangeEvent_Clone(t *testing.T) {
	assert.Nil(t, (*ChangeEvent)(nil).Clone())

	ev := NewUpdateEvent(testNS, "a",
		&UpdateDescription{UpdatedFields: Document{"n": int64(2)}, RemovedFields: []string{"x"}},
		Document{IDField: "a", "n": int64(2)}, true)
	clone := ev.Clone()
	require.Equal(t, ev, clone)

	clone.FullDocument["n"] = int64(3)
	clone.UpdateDescription.UpdatedFields["n"] = int64(3)
	clone.UpdateDescription.RemovedFields[0] = "y"
	assert.Equal(t, int64(2), ev.FullDocument["n"])
	assert.Equal(t, int64(2), ev.UpdateDescription.UpdatedFields["n"])
	assert.Equal(t, "x", ev.UpdateDescription.RemovedFields[0])

	committed := ev.WithoutUncommittedWrites()
	assert.False(t, committed.HasUncommittedWrites)
	assert.True(t, ev.HasUncommittedWrites)
}

func TestChangeEvent_WireRoundTrip(t *testing.T) {
	ev := NewUpdateEvent(testNS, "a",
		&UpdateDescription{UpdatedFields: Document{"n": "two"}, RemovedFields: []string{"x"}},
		Document{IDField: "a", "n": "two"}, false)

	data, err := json.Marshal(ev.ToAPI())
	require.NoError(t, err)

	var wire api.ChangeEvent
	require.NoError(t, json.Unmarshal(data, &wire))
	got := ChangeEventFromAPI(wire)

	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, OperationUpdate, got.OperationType)
	assert.Equal(t, testNS, got.Namespace)
	assert.Equal(t, "a", got.DocumentID)
	assert.Equal(t, ev.FullDocument, got.FullDocument)
	require.NotNil(t, got.UpdateDescription)
	assert.Equal(t, ev.UpdateDescription.UpdatedFields, got.UpdateDescription.UpdatedFields)
	assert.Equal(t, []string{"x"}, got.UpdateDescription.RemovedFields)
}

func TestChangeEventFromAPI_UnknownOperation(t *testing.T) {
	got := ChangeEventFromAPI(api.ChangeEvent{ID: "1", OperationType: "invalidate", DocumentID: "a"})
	assert.Equal(t, OperationUnknown, got.OperationType)
	assert.Nil(t, got.FullDocument)
	assert.Nil(t, got.UpdateDescription)
}

func TestDocumentsAPIConversion(t *testing.T) {
	assert.Nil(t, DocumentsToAPI(nil))
	assert.Nil(t, DocumentsFromAPI(nil))

	docs := []Document{{IDField: "a"}, {IDField: "b"}}
	wire := DocumentsToAPI(docs)
	require.Len(t, wire, 2)
	assert.Equal(t, "b", wire[1][IDField])
	assert.Equal(t, docs, DocumentsFromAPI(wire))
}
