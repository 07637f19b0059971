package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teamsync/internal/logger"
)

// SocketIDFunc возвращает id текущего realtime-соединения ("" если нет).
type SocketIDFunc func() string

// HTTPClient — Caller поверх net/http. В каждое тело мутирующего запроса
// добавляется socketId, чтобы сервер не отправлял изменение обратно в наше соединение.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	socketID   SocketIDFunc
}

// NewHTTPClient создаёт клиента. signer может быть nil (без подписи, например в тестах).
func NewHTTPClient(baseURL string, timeout time.Duration, signer *Signer) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		signer:     signer,
	}
}

// SetSocketID подключает источник socketId (realtime-соединение создаётся позже клиента).
func (c *HTTPClient) SetSocketID(fn SocketIDFunc) {
	c.socketID = fn
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (c *HTTPClient) Call(ctx context.Context, path string, req Request) (json.RawMessage, error) {
	defer logger.DeferLogDuration("remote "+req.Method+" "+path, time.Now())()
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	if method != http.MethodGet {
		payload := make(map[string]any, len(req.Body)+1)
		for k, v := range req.Body {
			payload[k] = v
		}
		var sid any
		if c.socketID != nil {
			if id := c.socketID(); id != "" {
				sid = id
			}
		}
		payload["socketId"] = sid
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("remote %s: encode: %w", path, err)
		}
	}

	target := c.baseURL + path
	if len(req.Query) > 0 {
		q := url.Values{}
		for k, v := range req.Query {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		ts, sig := c.signer.Sign(method, path, body)
		httpReq.Header.Set("X-Session-Id", c.signer.SessionID)
		httpReq.Header.Set("X-Timestamp", ts)
		httpReq.Header.Set("X-Signature", sig)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote %s: read: %w", path, err)
	}

	var env envelope
	if len(raw) > 0 {
		// Ответ не в конверте {data|error} — отдаём как есть.
		if err := json.Unmarshal(raw, &env); err != nil {
			env = envelope{}
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Status: resp.StatusCode, Message: env.Error, Path: path}
	}
	if env.Error != "" {
		return nil, &Error{Status: resp.StatusCode, Message: env.Error, Path: path}
	}
	if len(env.Data) > 0 {
		return env.Data, nil
	}
	return raw, nil
}
