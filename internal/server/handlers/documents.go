package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
	"github.com/iudanet/docsync/internal/server/storage"
	"github.com/iudanet/docsync/internal/validation"
	"github.com/iudanet/docsync/pkg/api"
)

// maxRequestBody ограничивает размер тела запроса операции
const maxRequestBody = 16 << 20

var errUnknownOperation = errors.New("unknown operation")

// DocumentHandler обрабатывает операции над коллекциями
type DocumentHandler struct {
	logger *slog.Logger
	store  storage.DocumentStore
}

// NewDocumentHandler создает handler операций над коллекциями
func NewDocumentHandler(logger *slog.Logger, store storage.DocumentStore) *DocumentHandler {
	return &DocumentHandler{
		logger: logger,
		store:  store,
	}
}

// namespaceFromPath извлекает namespace из path parameters {db} и {coll}
func namespaceFromPath(r *http.Request) (models.Namespace, error) {
	ns := models.Namespace{Database: r.PathValue("db"), Collection: r.PathValue("coll")}
	if err := validation.ValidateNamespace(ns); err != nil {
		return models.Namespace{}, err
	}
	return ns, nil
}

// Handle обрабатывает POST /api/v1/namespaces/{db}/{coll}/{op}
func (h *DocumentHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	op := r.PathValue("op")

	ns, err := namespaceFromPath(r)
	if err != nil {
		h.logger.WarnContext(ctx, "Invalid namespace", slog.Any("error", err))
		sendError(h.logger, w, api.CodeInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := decodeDocumentRequest(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "Failed to decode document request", slog.String("op", op), slog.Any("error", err))
		sendError(h.logger, w, api.CodeInvalidRequest, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.execute(r, h.store.Collection(ns), op, req)
	if err != nil {
		h.sendStoreError(r, w, ns, op, err)
		return
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`docsync_server_operations_total{op=%q}`, op)).Inc()
	sendJSON(h.logger, w, resp, http.StatusOK)
}

func (h *DocumentHandler) execute(r *http.Request, coll docstore.Collection, op string, req *api.DocumentRequest) (*api.DocumentResponse, error) {
	ctx := r.Context()
	resp := &api.DocumentResponse{}

	switch op {
	case api.OpFind:
		docs, err := coll.Find(ctx, req.Filter, findOptions(req))
		if err != nil {
			return nil, err
		}
		resp.Documents = models.DocumentsToAPI(docs)
	case api.OpFindOne:
		doc, err := coll.FindOne(ctx, req.Filter, findOptions(req))
		if err != nil {
			return nil, err
		}
		resp.Document = doc
	case api.OpCount:
		n, err := coll.Count(ctx, req.Filter)
		if err != nil {
			return nil, err
		}
		resp.Count = n
	case api.OpAggregate:
		docs, err := coll.Aggregate(ctx, models.DocumentsFromAPI(req.Pipeline))
		if err != nil {
			return nil, err
		}
		resp.Documents = models.DocumentsToAPI(docs)
	case api.OpInsertOne:
		id, err := coll.InsertOne(ctx, req.Document)
		if err != nil {
			return nil, err
		}
		resp.InsertedID = id
	case api.OpInsertMany:
		ids, err := coll.InsertMany(ctx, models.DocumentsFromAPI(req.Documents))
		if err != nil {
			return nil, err
		}
		resp.InsertedIDs = ids
	case api.OpReplaceOne:
		res, err := coll.ReplaceOne(ctx, req.Filter, req.Document, &docstore.UpdateOptions{Upsert: req.Upsert})
		if err != nil {
			return nil, err
		}
		setUpdateResult(resp, res)
	case api.OpUpdateOne:
		res, err := coll.UpdateOne(ctx, req.Filter, req.Update, &docstore.UpdateOptions{Upsert: req.Upsert})
		if err != nil {
			return nil, err
		}
		setUpdateResult(resp, res)
	case api.OpUpdateMany:
		res, err := coll.UpdateMany(ctx, req.Filter, req.Update, &docstore.UpdateOptions{Upsert: req.Upsert})
		if err != nil {
			return nil, err
		}
		setUpdateResult(resp, res)
	case api.OpFindOneAndUpdate:
		doc, err := coll.FindOneAndUpdate(ctx, req.Filter, req.Update, &docstore.FindOneAndUpdateOptions{
			Upsert:      req.Upsert,
			ReturnAfter: req.ReturnAfter,
		})
		if err != nil {
			return nil, err
		}
		resp.Document = doc
	case api.OpDeleteOne:
		n, err := coll.DeleteOne(ctx, req.Filter)
		if err != nil {
			return nil, err
		}
		resp.DeletedCount = n
	case api.OpDeleteMany:
		n, err := coll.DeleteMany(ctx, req.Filter)
		if err != nil {
			return nil, err
		}
		resp.DeletedCount = n
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownOperation, op)
	}
	return resp, nil
}

// decodeDocumentRequest читает тело запроса; числа приводятся к int64/float64
func decodeDocumentRequest(w http.ResponseWriter, r *http.Request) (*api.DocumentRequest, error) {
	var req api.DocumentRequest
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		dec.UseNumber()
		// пустое тело допустимо: count и find без фильтра
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}

	req.Filter = query.NormalizeDocument(req.Filter)
	req.Update = query.NormalizeDocument(req.Update)
	req.Document = query.NormalizeDocument(req.Document)
	req.Projection = query.NormalizeDocument(req.Projection)
	for i := range req.Documents {
		req.Documents[i] = query.NormalizeDocument(req.Documents[i])
	}
	for i := range req.Pipeline {
		req.Pipeline[i] = query.NormalizeDocument(req.Pipeline[i])
	}
	return &req, nil
}

func findOptions(req *api.DocumentRequest) *docstore.FindOptions {
	opts := &docstore.FindOptions{
		Projection: req.Projection,
		Skip:       req.Skip,
		Limit:      req.Limit,
	}
	for _, s := range req.Sort {
		opts.Sort = append(opts.Sort, query.SortField{Field: s.Field, Descending: s.Descending})
	}
	return opts
}

func setUpdateResult(resp *api.DocumentResponse, res *docstore.UpdateResult) {
	resp.UpsertedID = res.UpsertedID
	resp.MatchedCount = res.MatchedCount
	resp.ModifiedCount = res.ModifiedCount
}

// sendStoreError переводит ошибку хранилища в HTTP статус и код ErrorResponse
func (h *DocumentHandler) sendStoreError(r *http.Request, w http.ResponseWriter, ns models.Namespace, op string, err error) {
	ctx := r.Context()
	attrs := []any{slog.String("namespace", ns.String()), slog.String("op", op), slog.Any("error", err)}

	switch {
	case errors.Is(err, docstore.ErrDuplicateKey):
		h.logger.InfoContext(ctx, "Duplicate key", attrs...)
		sendError(h.logger, w, api.CodeDuplicateKey, err.Error(), http.StatusConflict)
	case errors.Is(err, docstore.ErrDocumentNotFound):
		sendError(h.logger, w, api.CodeNotFound, err.Error(), http.StatusNotFound)
	case errors.Is(err, docstore.ErrInvalidID):
		h.logger.WarnContext(ctx, "Invalid document id", attrs...)
		sendError(h.logger, w, api.CodeInvalidID, err.Error(), http.StatusBadRequest)
	case errors.Is(err, errUnknownOperation):
		sendError(h.logger, w, api.CodeInvalidRequest, err.Error(), http.StatusNotFound)
	case errors.Is(err, query.ErrInvalidFilter),
		errors.Is(err, query.ErrUnsupportedOperator),
		errors.Is(err, query.ErrInvalidUpdate),
		errors.Is(err, query.ErrImmutableID):
		h.logger.WarnContext(ctx, "Invalid document request", attrs...)
		sendError(h.logger, w, api.CodeInvalidRequest, err.Error(), http.StatusBadRequest)
	default:
		h.logger.ErrorContext(ctx, "Document operation failed", attrs...)
		sendError(h.logger, w, api.CodeInternal, "internal server error", http.StatusInternalServerError)
	}
}

// sendJSON отправляет JSON ответ
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func sendError(logger *slog.Logger, w http.ResponseWriter, code, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    code,
		Message: message,
	}
	sendJSON(logger, w, resp, statusCode)
}
