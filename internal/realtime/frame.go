package realtime

import (
	"encoding/json"
	"errors"
)

// ErrSendBufferFull — очередь исходящих кадров переполнена (соединение давно недоступно).
var ErrSendBufferFull = errors.New("realtime: send buffer full")

// Frame — кадр в обе стороны: {"event": "...", "data": {...}}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler получает data кадра. Вызывается из горутины чтения, по одному кадру за раз.
type Handler func(data json.RawMessage)

// Transport — то, что нужно кешу от realtime-соединения.
type Transport interface {
	// ID — id текущего соединения (socketId) или "" если соединения нет.
	ID() string
	// On регистрирует обработчик события и возвращает функцию отписки.
	On(event string, h Handler) (off func())
	// Emit ставит событие в очередь на отправку.
	Emit(event string, payload any) error
}
