// Package cache: клиентский кеш сущностей зрителя (команды, обсуждения, комментарии,
// чаты, сообщения) и сверка его с realtime-событиями сервера.
//
// Все изменения применяются только после подтверждения сервером. Любое чтение и
// изменение коллекций идёт под одним мьютексом Store; удалённые вызовы выполняются
// без блокировки, после них сущности заново ищутся по id.
package cache

import (
	"errors"
	"time"

	"github.com/teamsync/internal/realtime"
	"github.com/teamsync/internal/remote"
	"github.com/teamsync/internal/storage"
)

var (
	// ErrNotLoaded: зритель ещё не загружен или уже выгружен.
	ErrNotLoaded = errors.New("viewer not loaded")
	// ErrNotFound: сущности с таким id нет в кеше.
	ErrNotFound = errors.New("not found in cache")
)

// TypingReset — как сбрасывается флаг «печатает».
type TypingReset string

const (
	// один перезапускаемый таймер на пару (чат, участник)
	TypingDebounce TypingReset = "debounce"
	// отдельный таймер на каждое событие; флаг может мигать
	TypingPerEvent TypingReset = "per_event"
)

// ChatOrder — порядок списка чатов.
type ChatOrder string

const (
	ChatOrderInsertion ChatOrder = "insertion"
	// по lastUpdatedAt, новые сверху
	ChatOrderRecency ChatOrder = "recency"
)

const defaultTypingDelay = 2 * time.Second

// Renderer превращает markdown в HTML, когда сервер не прислал htmlContent.
type Renderer interface {
	Render(source string) (string, error)
}

// Highlighter строит HTML-выдержку с подсвеченным запросом.
type Highlighter interface {
	Highlight(query, content string) string
}

type Options struct {
	Caller    remote.Caller
	Transport realtime.Transport
	// Staging — черновики и файлы ещё не созданных сущностей; может быть nil.
	Staging     storage.StagingStore
	Renderer    Renderer
	Highlighter Highlighter

	// Без живого клиента ленивые загрузки не выполняются.
	ServerRendering bool
	TypingReset     TypingReset
	TypingDelay     time.Duration
	ChatOrder       ChatOrder
}

func (o *Options) setDefaults() {
	if o.TypingReset == "" {
		o.TypingReset = TypingDebounce
	}
	if o.TypingDelay <= 0 {
		o.TypingDelay = defaultTypingDelay
	}
	if o.ChatOrder == "" {
		o.ChatOrder = ChatOrderInsertion
	}
}

// ChangeKind — что именно изменилось в кеше.
type ChangeKind string

const (
	ChangeViewer            ChangeKind = "viewer"
	ChangeTeam              ChangeKind = "team"
	ChangeTeamRemoved       ChangeKind = "teamRemoved"
	ChangeMembers           ChangeKind = "members"
	ChangePresence          ChangeKind = "presence"
	ChangeTyping            ChangeKind = "typing"
	ChangeDiscussion        ChangeKind = "discussion"
	ChangeDiscussionRemoved ChangeKind = "discussionRemoved"
	ChangeComments          ChangeKind = "comments"
	ChangeComment           ChangeKind = "comment"
	ChangeCommentRemoved    ChangeKind = "commentRemoved"
	ChangeChat              ChangeKind = "chat"
	ChangeChatRemoved       ChangeKind = "chatRemoved"
	ChangeMessages          ChangeKind = "messages"
	ChangeMessage           ChangeKind = "message"
	ChangeMessageRemoved    ChangeKind = "messageRemoved"
	ChangePinned            ChangeKind = "pinned"
	// ChangeUnreadComment / ChangeUnreadMessage — id добавлен в набор непрочитанного.
	ChangeUnreadComment ChangeKind = "unreadComment"
	ChangeUnreadMessage ChangeKind = "unreadMessage"
	// ChangeUnreadBySomeone — отправленное зрителем сообщение ещё не прочитано получателями.
	ChangeUnreadBySomeone ChangeKind = "unreadBySomeone"
	// ChangeRead — id удалён из какого-либо набора непрочитанного.
	ChangeRead ChangeKind = "read"
)

// Change доставляется подписчикам после снятия блокировки.
// ParentID — обсуждение для комментария, чат для сообщения, команда для участников.
// Пустой ID означает, что коллекция заменена целиком.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	ID       string     `json:"id,omitempty"`
	ParentID string     `json:"parentId,omitempty"`
}
