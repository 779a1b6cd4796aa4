package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
	"github.com/iudanet/docsync/pkg/api"
)

// collection удаленная коллекция: каждая операция один POST запрос
type collection struct {
	client *Client
	ns     models.Namespace
}

var _ docstore.Collection = (*collection)(nil)

func (c *collection) Namespace() models.Namespace {
	return c.ns
}

func (c *collection) call(ctx context.Context, op string, req *api.DocumentRequest) (*api.DocumentResponse, error) {
	var resp api.DocumentResponse
	if err := c.client.doRequest(ctx, http.MethodPost, namespacePath(c.ns, op), req, &resp); err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, c.ns, err)
	}
	return &resp, nil
}

func findRequest(filter models.Document, opts *docstore.FindOptions) *api.DocumentRequest {
	req := &api.DocumentRequest{Filter: filter}
	if opts != nil {
		req.Projection = opts.Projection
		req.Skip = opts.Skip
		req.Limit = opts.Limit
		for _, s := range opts.Sort {
			req.Sort = append(req.Sort, api.SortField{Field: s.Field, Descending: s.Descending})
		}
	}
	return req
}

func documentFromAPI(doc map[string]any) models.Document {
	if doc == nil {
		return nil
	}
	return query.NormalizeDocument(models.Document(doc))
}

func documentsFromAPI(docs []map[string]any) []models.Document {
	out := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentFromAPI(doc))
	}
	return out
}

func updateResult(resp *api.DocumentResponse) *docstore.UpdateResult {
	return &docstore.UpdateResult{
		UpsertedID:    resp.UpsertedID,
		MatchedCount:  resp.MatchedCount,
		ModifiedCount: resp.ModifiedCount,
	}
}

func (c *collection) Find(ctx context.Context, filter models.Document, opts *docstore.FindOptions) ([]models.Document, error) {
	resp, err := c.call(ctx, api.OpFind, findRequest(filter, opts))
	if err != nil {
		return nil, err
	}
	return documentsFromAPI(resp.Documents), nil
}

func (c *collection) FindOne(ctx context.Context, filter models.Document, opts *docstore.FindOptions) (models.Document, error) {
	resp, err := c.call(ctx, api.OpFindOne, findRequest(filter, opts))
	if err != nil {
		return nil, err
	}
	return documentFromAPI(resp.Document), nil
}

func (c *collection) Count(ctx context.Context, filter models.Document) (int64, error) {
	resp, err := c.call(ctx, api.OpCount, &api.DocumentRequest{Filter: filter})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *collection) Aggregate(ctx context.Context, pipeline []models.Document) ([]models.Document, error) {
	resp, err := c.call(ctx, api.OpAggregate, &api.DocumentRequest{Pipeline: models.DocumentsToAPI(pipeline)})
	if err != nil {
		return nil, err
	}
	return documentsFromAPI(resp.Documents), nil
}

func (c *collection) InsertOne(ctx context.Context, doc models.Document) (string, error) {
	resp, err := c.call(ctx, api.OpInsertOne, &api.DocumentRequest{Document: doc})
	if err != nil {
		return "", err
	}
	return resp.InsertedID, nil
}

func (c *collection) InsertMany(ctx context.Context, docs []models.Document) ([]string, error) {
	resp, err := c.call(ctx, api.OpInsertMany, &api.DocumentRequest{Documents: models.DocumentsToAPI(docs)})
	if err != nil {
		return nil, err
	}
	return resp.InsertedIDs, nil
}

func (c *collection) ReplaceOne(ctx context.Context, filter, replacement models.Document, opts *docstore.UpdateOptions) (*docstore.UpdateResult, error) {
	req := &api.DocumentRequest{Filter: filter, Document: replacement}
	if opts != nil {
		req.Upsert = opts.Upsert
	}
	resp, err := c.call(ctx, api.OpReplaceOne, req)
	if err != nil {
		return nil, err
	}
	return updateResult(resp), nil
}

func (c *collection) UpdateOne(ctx context.Context, filter, update models.Document, opts *docstore.UpdateOptions) (*docstore.UpdateResult, error) {
	return c.update(ctx, api.OpUpdateOne, filter, update, opts)
}

func (c *collection) UpdateMany(ctx context.Context, filter, update models.Document, opts *docstore.UpdateOptions) (*docstore.UpdateResult, error) {
	return c.update(ctx, api.OpUpdateMany, filter, update, opts)
}

func (c *collection) update(ctx context.Context, op string, filter, update models.Document, opts *docstore.UpdateOptions) (*docstore.UpdateResult, error) {
	req := &api.DocumentRequest{Filter: filter, Update: update}
	if opts != nil {
		req.Upsert = opts.Upsert
	}
	resp, err := c.call(ctx, op, req)
	if err != nil {
		return nil, err
	}
	return updateResult(resp), nil
}

func (c *collection) FindOneAndUpdate(ctx context.Context, filter, update models.Document, opts *docstore.FindOneAndUpdateOptions) (models.Document, error) {
	req := &api.DocumentRequest{Filter: filter, Update: update}
	if opts != nil {
		req.Upsert = opts.Upsert
		req.ReturnAfter = opts.ReturnAfter
	}
	resp, err := c.call(ctx, api.OpFindOneAndUpdate, req)
	if err != nil {
		return nil, err
	}
	return documentFromAPI(resp.Document), nil
}

func (c *collection) DeleteOne(ctx context.Context, filter models.Document) (int64, error) {
	resp, err := c.call(ctx, api.OpDeleteOne, &api.DocumentRequest{Filter: filter})
	if err != nil {
		return 0, err
	}
	return resp.DeletedCount, nil
}

func (c *collection) DeleteMany(ctx context.Context, filter models.Document) (int64, error) {
	resp, err := c.call(ctx, api.OpDeleteMany, &api.DocumentRequest{Filter: filter})
	if err != nil {
		return 0, err
	}
	return resp.DeletedCount, nil
}
