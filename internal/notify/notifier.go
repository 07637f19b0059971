// Package notify отправляет web push, когда у зрителя появляется новое непрочитанное.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/teamsync/internal/cache"
	"github.com/teamsync/internal/logger"
)

const (
	queueSize   = 256
	bodyLimit   = 120
	sendTimeout = 10 * time.Second
)

// Source — кеш, из которого берутся изменения и тексты уведомлений.
type Source interface {
	Subscribe(fn func(cache.Change)) (unsubscribe func())
	Read(fn func(v *cache.Viewer)) error
}

// Sender доставляет payload на одну подписку и возвращает HTTP-статус push-сервиса.
type Sender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription) (int, error)
}

// WebPushSender — Sender поверх webpush-go с VAPID.
type WebPushSender struct {
	opts *webpush.Options
}

func NewWebPushSender(keys *VAPIDKeys, subject string) *WebPushSender {
	return &WebPushSender{opts: &webpush.Options{
		Subscriber:      subject,
		VAPIDPublicKey:  keys.PublicKey,
		VAPIDPrivateKey: keys.PrivateKey,
		TTL:             30,
	}}
}

func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, s.opts)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Payload — тело уведомления, которое получает service worker.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notifier слушает изменения кеша и рассылает уведомления о новом непрочитанном.
// Жизненный цикл: New -> Attach -> Run(ctx).
type Notifier struct {
	src    Source
	sender Sender

	mu   sync.Mutex
	subs []webpush.Subscription

	queue chan cache.Change
}

func New(src Source, sender Sender, subs []webpush.Subscription) *Notifier {
	return &Notifier{src: src, sender: sender, subs: subs, queue: make(chan cache.Change, queueSize)}
}

// Attach подписывается на изменения кеша. Обработчик не блокирует издателя.
func (n *Notifier) Attach() (detach func()) {
	return n.src.Subscribe(func(c cache.Change) {
		if c.Kind != cache.ChangeUnreadComment && c.Kind != cache.ChangeUnreadMessage {
			return
		}
		select {
		case n.queue <- c:
		default:
			logger.Errorf("notify: очередь переполнена, %s %s пропущено", c.Kind, c.ID)
		}
	})
}

// Run рассылает уведомления, пока не отменён ctx.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-n.queue:
			p, ok := n.build(c)
			if !ok {
				continue
			}
			n.deliver(ctx, p)
		}
	}
}

// Subscriptions — текущие живые подписки.
func (n *Notifier) Subscriptions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (n *Notifier) build(c cache.Change) (Payload, bool) {
	var p Payload
	found := false
	err := n.src.Read(func(v *cache.Viewer) {
		switch c.Kind {
		case cache.ChangeUnreadComment:
			p = Payload{Title: "Новый комментарий", Data: map[string]string{"discussionId": c.ParentID, "commentId": c.ID}}
			for _, d := range v.ActiveDiscussions {
				if d.ID != c.ParentID {
					continue
				}
				p.Title = d.Name
				for _, cm := range d.Comments {
					if cm.ID == c.ID {
						p.Body = truncate(cm.Content, bodyLimit)
					}
				}
			}
			found = true
		case cache.ChangeUnreadMessage:
			p = Payload{Title: "Новое сообщение", Data: map[string]string{"chatId": c.ParentID, "messageId": c.ID}}
			for _, ch := range v.Chats {
				if ch.ID != c.ParentID {
					continue
				}
				if m := findMessage(ch.Messages, c.ID); m != nil {
					p.Body = truncate(m.Content, bodyLimit)
				}
			}
			found = true
		}
	})
	if err != nil {
		logger.Debugf("notify: %v", err)
		return p, false
	}
	return p, found
}

func findMessage(ms []*cache.Message, id string) *cache.Message {
	for _, m := range ms {
		if m.ID == id {
			return m
		}
		if r := findMessage(m.Thread, id); r != nil {
			return r
		}
	}
	return nil
}

func (n *Notifier) deliver(ctx context.Context, p Payload) {
	payload, err := json.Marshal(p)
	if err != nil {
		logger.Errorf("notify: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	defer logger.DeferLogDuration("notify.deliver", time.Now())()

	n.mu.Lock()
	subs := append([]webpush.Subscription(nil), n.subs...)
	n.mu.Unlock()

	var gone []string
	for i := range subs {
		status, err := n.sender.Send(ctx, payload, &subs[i])
		if err != nil {
			logger.Errorf("notify: send %s: %v", shortEndpoint(subs[i].Endpoint), err)
			continue
		}
		// подписка отозвана браузером
		if status == http.StatusGone || status == http.StatusNotFound {
			gone = append(gone, subs[i].Endpoint)
		}
	}
	if len(gone) > 0 {
		n.drop(gone)
	}
}

func (n *Notifier) drop(endpoints []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	kept := n.subs[:0]
	for _, s := range n.subs {
		stale := false
		for _, e := range endpoints {
			if s.Endpoint == e {
				stale = true
			}
		}
		if !stale {
			kept = append(kept, s)
		}
	}
	n.subs = kept
	logger.Infof("notify: removed %d stale subscriptions", len(endpoints))
}

func shortEndpoint(e string) string {
	return e[:min(50, len(e))]
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "…"
}
