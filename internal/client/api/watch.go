package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/query"
	"github.com/iudanet/docsync/pkg/api"
)

// watchReadLimit максимальный размер одного события в потоке
const watchReadLimit = 16 << 20

// Watch открывает websocket поток изменений документов ids namespace
func (c *Client) Watch(ctx context.Context, ns models.Namespace, ids []string) (docstore.ChangeStream, error) {
	wsURL, err := c.watchURL(ns, ids)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp == nil && ctx.Err() == nil {
			c.connected.Store(false)
		}
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("watch %s: %w", ns, ErrUnauthorized)
		}
		return nil, fmt.Errorf("watch %s: %w", ns, err)
	}
	c.connected.Store(true)
	conn.SetReadLimit(watchReadLimit)
	return &watchStream{conn: conn}, nil
}

func (c *Client) watchURL(ns models.Namespace, ids []string) (string, error) {
	u, err := url.Parse(c.baseURL + namespacePath(ns, api.OpWatch))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := url.Values{}
	for _, id := range ids {
		q.Add("id", id)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// watchStream поток событий поверх websocket соединения
type watchStream struct {
	conn *websocket.Conn
}

func (s *watchStream) Next(ctx context.Context) (*models.ChangeEvent, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil, docstore.ErrStreamClosed
		}
		return nil, err
	}

	var in api.ChangeEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to decode change event: %w", err)
	}
	event := models.ChangeEventFromAPI(in)
	event.FullDocument = query.NormalizeDocument(event.FullDocument)
	if desc := event.UpdateDescription; desc != nil {
		desc.UpdatedFields = query.NormalizeDocument(desc.UpdatedFields)
	}
	return event, nil
}

func (s *watchStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
