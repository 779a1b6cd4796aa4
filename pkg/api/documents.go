// Package api описывает JSON-формат HTTP API сервера документов.
package api

// Коды ошибок в ErrorResponse.Code
const (
	CodeDuplicateKey   = "duplicate_key"
	CodeNotFound       = "not_found"
	CodeInvalidID      = "invalid_id"
	CodeInvalidRequest = "invalid_request"
	CodeUnauthorized   = "unauthorized"
	CodeInternal       = "internal"
)

// Операции над коллекцией: последний сегмент пути /api/v1/namespaces/{db}/{coll}/{op}
const (
	OpFind             = "find"
	OpFindOne          = "findOne"
	OpCount            = "count"
	OpAggregate        = "aggregate"
	OpInsertOne        = "insertOne"
	OpInsertMany       = "insertMany"
	OpReplaceOne       = "replaceOne"
	OpUpdateOne        = "updateOne"
	OpUpdateMany       = "updateMany"
	OpFindOneAndUpdate = "findOneAndUpdate"
	OpDeleteOne        = "deleteOne"
	OpDeleteMany       = "deleteMany"
	OpWatch            = "watch"
)

// SortField поле сортировки
type SortField struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// DocumentRequest тело запроса любой операции над коллекцией.
// Каждая операция читает только свои поля.
type DocumentRequest struct {
	Filter      map[string]any   `json:"filter,omitempty"`
	Update      map[string]any   `json:"update,omitempty"`   // updateOne, updateMany, findOneAndUpdate
	Document    map[string]any   `json:"document,omitempty"` // insertOne, replaceOne
	Projection  map[string]any   `json:"projection,omitempty"`
	Documents   []map[string]any `json:"documents,omitempty"` // insertMany
	Pipeline    []map[string]any `json:"pipeline,omitempty"`  // aggregate
	Sort        []SortField      `json:"sort,omitempty"`
	Skip        int64            `json:"skip,omitempty"`
	Limit       int64            `json:"limit,omitempty"`
	Upsert      bool             `json:"upsert,omitempty"`
	ReturnAfter bool             `json:"return_after,omitempty"`
}

// DocumentResponse ответ операции над коллекцией
type DocumentResponse struct {
	Document      map[string]any   `json:"document,omitempty"`
	Documents     []map[string]any `json:"documents,omitempty"`
	InsertedID    string           `json:"inserted_id,omitempty"`
	UpsertedID    string           `json:"upserted_id,omitempty"`
	InsertedIDs   []string         `json:"inserted_ids,omitempty"`
	Count         int64            `json:"count"`
	MatchedCount  int64            `json:"matched_count"`
	ModifiedCount int64            `json:"modified_count"`
	DeletedCount  int64            `json:"deleted_count"`
}

// ChangeEvent событие изменения документа в потоке watch
type ChangeEvent struct {
	FullDocument      map[string]any     `json:"full_document,omitempty"`
	UpdateDescription *UpdateDescription `json:"update_description,omitempty"`
	ID                string             `json:"id"`
	OperationType     string             `json:"operation_type"`
	DocumentID        string             `json:"document_id"`
	Database          string             `json:"database"`
	Collection        string             `json:"collection"`
}

// UpdateDescription описание частичного обновления
type UpdateDescription struct {
	UpdatedFields map[string]any `json:"updated_fields,omitempty"`
	RemovedFields []string       `json:"removed_fields,omitempty"`
}

// HealthResponse ответ /api/v1/health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Code    string `json:"code,omitempty"`    // машиночитаемый код
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
