package models

// DocumentSyncSchemaVersion текущая версия формата DocumentSyncRecord
const DocumentSyncSchemaVersion = 1

// DocumentSyncRecord персистентное представление состояния синхронизации одного документа.
// Хранится в локальной конфигурации экземпляра и читается при старте.
type DocumentSyncRecord struct {
	LastKnownRemoteVersion     Document     `json:"last_known_remote_version,omitempty" msgpack:"last_known_remote_version,omitempty"`
	LastUncommittedChangeEvent *ChangeEvent `json:"last_uncommitted_change_event,omitempty" msgpack:"last_uncommitted_change_event,omitempty"`
	Namespace                  Namespace    `json:"namespace" msgpack:"namespace"`
	DocumentID                 string       `json:"document_id" msgpack:"document_id"`
	LastResolution             uint64       `json:"last_resolution" msgpack:"last_resolution"`
	SchemaVersion              int          `json:"schema_version" msgpack:"schema_version"`
	IsStale                    bool         `json:"is_stale" msgpack:"is_stale"`
	IsPaused                   bool         `json:"is_paused" msgpack:"is_paused"`
}

// Clone создает глубокую копию записи
func (r *DocumentSyncRecord) Clone() *DocumentSyncRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.LastKnownRemoteVersion = r.LastKnownRemoteVersion.Clone()
	out.LastUncommittedChangeEvent = r.LastUncommittedChangeEvent.Clone()
	return &out
}
