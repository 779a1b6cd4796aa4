// Package api реализует удаленное хранилище документов поверх HTTP API сервера:
// операции над коллекциями через JSON запросы и поток изменений через websocket.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/iudanet/docsync/internal/docstore"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/pkg/api"
)

// ErrUnauthorized возвращается, когда сервер отклонил токен доступа
var ErrUnauthorized = errors.New("unauthorized")

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	token      string
	connected  atomic.Bool
}

// NewClient создает новый API клиент. token передается как Bearer во все запросы.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
	c.connected.Store(true)
	return c
}

// Collection возвращает удаленную коллекцию namespace
func (c *Client) Collection(ns models.Namespace) docstore.Collection {
	return &collection{client: c, ns: ns}
}

// IsConnected возвращает результат последнего обращения к серверу
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// IsLoggedIn сообщает, задан ли токен доступа
func (c *Client) IsLoggedIn() bool {
	return c.token != ""
}

// Ping проверяет доступность сервера
func (c *Client) Ping(ctx context.Context) error {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	return nil
}

// MonitorConnectivity периодически проверяет доступность сервера и вызывает onChange
// при каждом изменении состояния. Блокируется до отмены ctx.
func (c *Client) MonitorConnectivity(ctx context.Context, interval time.Duration, onChange func(connected bool)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := c.IsConnected()
	for {
		_ = c.Ping(ctx)
		if ctx.Err() != nil {
			return
		}
		if now := c.IsConnected(); now != last {
			last = now
			c.logger.Info("Server connectivity changed", "connected", now)
			if onChange != nil {
				onChange(now)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func namespacePath(ns models.Namespace, op string) string {
	return fmt.Sprintf("/api/v1/namespaces/%s/%s/%s",
		url.PathEscape(ns.Database), url.PathEscape(ns.Collection), op)
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	reqURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.connected.Store(false)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	c.connected.Store(true)
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBody)
	}

	// Декодируем успешный ответ; числа остаются json.Number до нормализации
	if result != nil {
		dec := json.NewDecoder(bytes.NewReader(respBody))
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// statusError переводит код ошибки сервера в ошибку хранилища документов
func statusError(status int, body []byte) error {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("request failed with status %d: %s", status, string(body))
	}

	var sentinel error
	switch errResp.Code {
	case api.CodeDuplicateKey:
		sentinel = docstore.ErrDuplicateKey
	case api.CodeNotFound:
		sentinel = docstore.ErrDocumentNotFound
	case api.CodeInvalidID:
		sentinel = docstore.ErrInvalidID
	case api.CodeUnauthorized:
		sentinel = ErrUnauthorized
	}
	if sentinel == nil && status == http.StatusUnauthorized {
		sentinel = ErrUnauthorized
	}
	msg := errResp.Error
	if errResp.Message != "" {
		msg = errResp.Message
	}
	if sentinel != nil {
		return fmt.Errorf("server error (%d): %s: %w", status, msg, sentinel)
	}
	return fmt.Errorf("server error (%d): %s", status, msg)
}
