package models

import "github.com/iudanet/docsync/pkg/api"

// DocumentsToAPI converts documents to their wire form.
func DocumentsToAPI(docs []Document) []map[string]any {
	if docs == nil {
		return nil
	}
	out := make([]map[string]any, len(docs))
	for i, doc := range docs {
		out[i] = doc
	}
	return out
}

// DocumentsFromAPI converts wire documents back to Document.
func DocumentsFromAPI(docs []map[string]any) []Document {
	if docs == nil {
		return nil
	}
	out := make([]Document, len(docs))
	for i, doc := range docs {
		out[i] = doc
	}
	return out
}

// ToAPI переводит событие в формат потока watch
func (e *ChangeEvent) ToAPI() api.ChangeEvent {
	out := api.ChangeEvent{
		ID:            e.ID,
		OperationType: string(e.OperationType),
		DocumentID:    e.DocumentID,
		Database:      e.Namespace.Database,
		Collection:    e.Namespace.Collection,
		FullDocument:  e.FullDocument,
	}
	if e.UpdateDescription != nil {
		out.UpdateDescription = &api.UpdateDescription{
			UpdatedFields: e.UpdateDescription.UpdatedFields,
			RemovedFields: e.UpdateDescription.RemovedFields,
		}
	}
	return out
}

// ChangeEventFromAPI разбирает событие потока watch.
// Неизвестный тип операции сохраняется как OperationUnknown.
func ChangeEventFromAPI(in api.ChangeEvent) *ChangeEvent {
	out := &ChangeEvent{
		ID:            in.ID,
		OperationType: ParseOperationType(in.OperationType),
		DocumentID:    in.DocumentID,
		Namespace:     Namespace{Database: in.Database, Collection: in.Collection},
	}
	if in.FullDocument != nil {
		out.FullDocument = Document(in.FullDocument)
	}
	if in.UpdateDescription != nil {
		out.UpdateDescription = &UpdateDescription{
			UpdatedFields: Document(in.UpdateDescription.UpdatedFields),
			RemovedFields: in.UpdateDescription.RemovedFields,
		}
	}
	return out
}
