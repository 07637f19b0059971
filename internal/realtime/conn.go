// Package realtime — клиентское websocket-соединение: именованные события от сервера,
// подписки на комнаты, автоматическое переподключение.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teamsync/internal/logger"
	"github.com/teamsync/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufSize    = 256
	minBackoff     = time.Second
	maxBackoff     = 30 * time.Second
)

// bufPool переиспользует буферы для JSON-кодирования в writePump.
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Options — параметры подключения.
type Options struct {
	URL    string
	Header http.Header
	// Dialer по умолчанию websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Conn — переподключаемое websocket-соединение.
// Жизненный цикл: New -> Run(ctx) (блокирует до отмены ctx) -> Close.
type Conn struct {
	opts Options

	mu       sync.RWMutex
	handlers map[string]map[uint64]Handler
	nextID   uint64
	id       string
	ws       *websocket.Conn

	send      chan Frame
	connected chan struct{}
	closeOnce sync.Once
	connOnce  sync.Once
	done      chan struct{}
}

func New(opts Options) *Conn {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Conn{
		opts:      opts,
		handlers:  make(map[string]map[uint64]Handler),
		send:      make(chan Frame, sendBufSize),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ID возвращает socketId текущего соединения.
func (c *Conn) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *Conn) On(event string, h Handler) func() {
	c.mu.Lock()
	c.nextID++
	hid := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][hid] = h
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers[event], hid)
			if len(c.handlers[event]) == 0 {
				delete(c.handlers, event)
			}
			c.mu.Unlock()
		})
	}
}

func (c *Conn) Emit(event string, payload any) error {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = b
	}
	select {
	case c.send <- Frame{Event: event, Data: data}:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// WaitConnected блокирует до первого успешного подключения.
func (c *Conn) WaitConnected(ctx context.Context) error {
	select {
	case <-c.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close прерывает текущее соединение; Run завершится после отмены своего ctx.
// Безопасно вызывать многократно.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
	})
	return nil
}

func (c *Conn) dispatch(event string, data json.RawMessage) {
	c.mu.RLock()
	hs := make([]Handler, 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		hs = append(hs, h)
	}
	c.mu.RUnlock()
	for _, h := range hs {
		h(data)
	}
}

// Run подключается и держит соединение, переподключаясь с экспоненциальной задержкой.
// После каждого повторного подключения рассылается событие reconnect,
// после обрыва — disconnect, при ошибке подключения — error.
func (c *Conn) Run(ctx context.Context) error {
	first := true
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		default:
		}

		ws, id, err := c.dial(ctx)
		if err != nil {
			logger.Errorf("realtime dial failed, retry in %v: %v", backoff, err)
			c.dispatch(model.EventError, errorPayload(err))
			select {
			case <-ctx.Done():
				return nil
			case <-c.done:
				return nil
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = minBackoff

		c.mu.Lock()
		c.ws = ws
		c.id = id
		c.mu.Unlock()
		c.connOnce.Do(func() { close(c.connected) })
		logger.Infof("realtime connected socket=%s", id)

		if !first {
			c.dispatch(model.EventReconnect, nil)
		}
		first = false

		c.serve(ctx, ws)

		c.mu.Lock()
		c.ws = nil
		c.id = ""
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		default:
		}
		logger.Info("realtime disconnected")
		c.dispatch(model.EventDisconnect, nil)
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, string, error) {
	id := uuid.New().String()
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, "", err
	}
	q := u.Query()
	q.Set("socketId", id)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	ws, resp, err := c.opts.Dialer.DialContext(dialCtx, u.String(), c.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, "", err
	}
	return ws, id, nil
}

// serve запускает writePump и читает кадры до ошибки чтения или отмены ctx.
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(connCtx, ws)
	}()

	go func() {
		select {
		case <-connCtx.Done():
		case <-c.done:
		}
		ws.Close()
	}()

	c.readPump(ws)
	cancel()
	wg.Wait()
}

// readPump читает кадры и синхронно отдаёт их обработчикам.
func (c *Conn) readPump(ws *websocket.Conn) {
	defer ws.Close()
	ws.SetReadLimit(maxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("realtime set read deadline: %v", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("realtime read error: %v", err)
			}
			return
		}
		if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			logger.Errorf("realtime unmarshal error: %v", err)
			continue
		}
		if f.Event == "" {
			continue
		}
		c.dispatch(f.Event, f.Data)
	}
}

// writePump пишет кадры из очереди и шлёт ping. Выходит по отмене ctx или ошибке записи.
func (c *Conn) writePump(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case f := <-c.send:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("realtime set write deadline: %v", err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			if err := json.NewEncoder(buf).Encode(f); err != nil {
				bufPool.Put(buf)
				logger.Errorf("realtime marshal error event=%s: %v", f.Event, err)
				continue
			}
			data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
			writeErr := ws.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				logger.Errorf("realtime write event=%s: %v", f.Event, writeErr)
				return
			}
		case <-ticker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorPayload(err error) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}
