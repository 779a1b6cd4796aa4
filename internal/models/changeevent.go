package models

import "github.com/google/uuid"

// OperationType тип операции, описанной событием изменения
type OperationType string

const (
	OperationInsert  OperationType = "insert"
	OperationUpdate  OperationType = "update"
	OperationReplace OperationType = "replace"
	OperationDelete  OperationType = "delete"
	OperationUnknown OperationType = "unknown"
)

// ParseOperationType returns OperationUnknown for anything it does not recognize.
func ParseOperationType(s string) OperationType {
	switch OperationType(s) {
	case OperationInsert, OperationUpdate, OperationReplace, OperationDelete:
		return OperationType(s)
	default:
		return OperationUnknown
	}
}

// UpdateDescription описывает изменение документа на уровне полей верхнего уровня
type UpdateDescription struct {
	UpdatedFields Document `json:"updatedFields,omitempty" msgpack:"updated_fields,omitempty"`
	RemovedFields []string `json:"removedFields,omitempty" msgpack:"removed_fields,omitempty"`
}

// IsEmpty сообщает, что описание не содержит ни измененных, ни удаленных полей
func (u *UpdateDescription) IsEmpty() bool {
	return u == nil || (len(u.UpdatedFields) == 0 && len(u.RemovedFields) == 0)
}

// UpdateDocument builds the equivalent {$set, $unset} update document.
func (u *UpdateDescription) UpdateDocument() Document {
	update := Document{}
	if u == nil {
		return update
	}
	if len(u.UpdatedFields) > 0 {
		update["$set"] = u.UpdatedFields.Clone()
	}
	if len(u.RemovedFields) > 0 {
		unset := Document{}
		for _, field := range u.RemovedFields {
			unset[field] = true
		}
		update["$unset"] = unset
	}
	return update
}

// ChangeEvent событие изменения одного документа.
// Приходит либо из удаленного потока изменений, либо формируется локально
// при записи через движок синхронизации.
type ChangeEvent struct {
	FullDocument         Document           `json:"fullDocument,omitempty" msgpack:"full_document,omitempty"`
	UpdateDescription    *UpdateDescription `json:"updateDescription,omitempty" msgpack:"update_description,omitempty"`
	ID                   string             `json:"id" msgpack:"id"`
	OperationType        OperationType      `json:"operationType" msgpack:"operation_type"`
	DocumentID           string             `json:"documentId" msgpack:"document_id"`
	Namespace            Namespace          `json:"ns" msgpack:"ns"`
	HasUncommittedWrites bool               `json:"hasUncommittedWrites,omitempty" msgpack:"has_uncommitted_writes"`
}

func newEvent(op OperationType, ns Namespace, id string, doc Document, pending bool) *ChangeEvent {
	return &ChangeEvent{
		ID:                   uuid.New().String(),
		OperationType:        op,
		FullDocument:         doc,
		Namespace:            ns,
		DocumentID:           id,
		HasUncommittedWrites: pending,
	}
}

// NewInsertEvent создает событие вставки документа
func NewInsertEvent(ns Namespace, id string, doc Document, pending bool) *ChangeEvent {
	return newEvent(OperationInsert, ns, id, doc, pending)
}

// NewReplaceEvent создает событие замены документа
func NewReplaceEvent(ns Namespace, id string, doc Document, pending bool) *ChangeEvent {
	return newEvent(OperationReplace, ns, id, doc, pending)
}

// NewUpdateEvent создает событие частичного обновления с полным документом после обновления
func NewUpdateEvent(ns Namespace, id string, desc *UpdateDescription, after Document, pending bool) *ChangeEvent {
	ev := newEvent(OperationUpdate, ns, id, after, pending)
	ev.UpdateDescription = desc
	return ev
}

// NewDeleteEvent создает событие удаления документа
func NewDeleteEvent(ns Namespace, id string, pending bool) *ChangeEvent {
	return newEvent(OperationDelete, ns, id, nil, pending)
}

// Clone создает глубокую копию события
func (e *ChangeEvent) Clone() *ChangeEvent {
	if e == nil {
		return nil
	}
	out := *e
	out.FullDocument = e.FullDocument.Clone()
	if e.UpdateDescription != nil {
		out.UpdateDescription = &UpdateDescription{
			UpdatedFields: e.UpdateDescription.UpdatedFields.Clone(),
			RemovedFields: append([]string(nil), e.UpdateDescription.RemovedFields...),
		}
	}
	return &out
}

// WithoutUncommittedWrites returns a copy flagged as committed.
func (e *ChangeEvent) WithoutUncommittedWrites() *ChangeEvent {
	out := e.Clone()
	if out != nil {
		out.HasUncommittedWrites = false
	}
	return out
}
