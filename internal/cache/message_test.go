package cache

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamsync/internal/model"
	"github.com/teamsync/internal/remote"
)

func TestLoadMessages_OlderBatchIsPrepended(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	env.caller.handle(http.MethodGet, pathMessages("c1"), func(req remote.Request) (any, error) {
		if req.Query["batchNumber"] == "2" {
			return []model.MessageDTO{msg("m2", t0), msg("m3", t0), msg("m4", t0)}, nil
		}
		return []model.MessageDTO{msg("m5", t1), msg("m6", t1), msg("m7", t1)}, nil
	})

	require.NoError(t, env.store.LoadMessages(ctx, "c1", 1))
	require.NoError(t, env.store.LoadMessages(ctx, "c1", 2))

	got, err := env.store.Messages("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3", "m4", "m5", "m6", "m7"}, ids(got, messageKey))
}

func TestLoadMessages_FirstBatchReplaces(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.withMessages(t, "c1", msg("m1", t0), msg("m2", t0))
	env.withMessages(t, "c1", msg("m9", t1))

	got, err := env.store.Messages("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m9"}, ids(got, messageKey))
}

// threadInvariant: ответы не лежат в списке чата, а длина треда равна счётчику.
func threadInvariant(t *testing.T, msgs []*Message) {
	t.Helper()
	for _, m := range msgs {
		assert.Empty(t, m.ParentMessageID, "reply %s leaked into the chat collection", m.ID)
		assert.Equal(t, len(m.Thread), m.CountOfThreadMessages, "thread count of %s", m.ID)
		for _, r := range m.Thread {
			assert.Equal(t, m.ID, r.ParentMessageID)
			assert.Empty(t, r.Thread, "thread depth is one level")
		}
	}
}

func TestThreadIsolation_AddAndDeleteReplies(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	env.withMessages(t, "c1", msg("m1", t0))
	env.caller.reply(http.MethodGet, pathThread("c1", "m1"), []model.MessageDTO{})
	require.NoError(t, env.store.LoadThreadMessages(ctx, "c1", "m1", "t1"))

	n := 0
	env.caller.handle(http.MethodPost, pathMessages("c1"), func(req remote.Request) (any, error) {
		n++
		id := "r" + string(rune('0'+n))
		return model.MessageDTO{ID: id, ChatID: "c1", ParentMessageID: req.Body["parentMessageId"].(string), Content: ptr("reply"), CreatedAt: t1}, nil
	})
	env.caller.reply(http.MethodDelete, pathMessage("c1", "r2"), nil)

	for range 3 {
		_, err := env.store.AddOrEditMessage(ctx, "c1", "reply", "", "m1", []model.FileDTO{})
		require.NoError(t, err)
	}
	require.NoError(t, env.store.DeleteMessage(ctx, "c1", "r2", "m1"))

	// реплика из realtime-канала идёт тем же путём
	require.NoError(t, env.store.OpenChat("c1"))
	env.transport.fire(t, model.EventMessage, model.MessageEvent{
		ActionType: model.ActionAdded, ChatID: "c1",
		Message: &model.MessageDTO{ID: "r9", ChatID: "c1", ParentMessageID: "m1", CreatedAt: t2},
	})
	env.transport.fire(t, model.EventMessage, model.MessageEvent{
		ActionType: model.ActionDeleted, ChatID: "c1", MessageID: "r1", ParentMessageID: "m1",
	})

	got, err := env.store.Messages("c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	threadInvariant(t, got)
	assert.Equal(t, []string{"r3", "r9"}, ids(got[0].Thread, messageKey))

	c, err := env.store.OrderedChats()
	require.NoError(t, err)
	assert.Equal(t, 1, c[0].NumberOfMessagesPerChat, "replies never touch the chat counter")
}

func TestAddOrEditMessage_TopLevelUpdatesCounterAndRecipientUnread(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	env.caller.reply(http.MethodPost, pathMessages("c1"), model.MessageDTO{ID: "m1", ChatID: "c1", CreatedUserID: viewerID, Content: ptr("hi"), CreatedAt: t2})
	env.caller.reply(http.MethodPost, pathMessages("c2"), model.MessageDTO{ID: "m2", ChatID: "c2", CreatedUserID: viewerID, Content: ptr("note"), CreatedAt: t2})

	_, err := env.store.AddOrEditMessage(ctx, "c1", "hi", "", "", []model.FileDTO{})
	require.NoError(t, err)
	_, err = env.store.AddOrEditMessage(ctx, "c2", "note", "", "", []model.FileDTO{})
	require.NoError(t, err)

	v := env.viewer(t)
	assert.True(t, v.IsMessageUnreadByRecipient("m1"))
	assert.False(t, v.IsMessageUnreadByRecipient("m2"), "single-participant chat has no recipient")
	assert.Equal(t, 1, v.chat("c1").NumberOfMessagesPerChat)
	assert.Equal(t, t2, v.chat("c1").LastUpdatedAt)
}

func TestAddOrEditMessage_EditAfterLosingMembership(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	env.withMessages(t, "c1", msg("m1", t0))
	env.caller.reply(http.MethodPatch, pathMessage("c1", "m1"), model.MessageDTO{ID: "m1", Content: ptr("edited"), IsEdited: ptr(true)})
	release := env.caller.block(http.MethodPatch, pathMessage("c1", "m1"))

	done := make(chan error, 1)
	go func() {
		_, err := env.store.AddOrEditMessage(ctx, "c1", "edited", "m1", "", []model.FileDTO{})
		done <- err
	}()
	<-env.caller.entered

	// зрителя исключили из чата, пока шёл запрос
	env.transport.fire(t, model.EventChat, model.ChatEvent{
		ActionType: model.ActionEdited,
		Chat:       &model.ChatDTO{ID: "c1", ChatParticipantIDs: []string{"u2"}, NumberOfMessagesPerChat: ptr(99)},
	})
	release()
	require.NoError(t, <-done)

	v := env.viewer(t)
	assert.Nil(t, v.chat("c1"), "chat is removed instead of patched")
	assert.NotNil(t, v.chat("c2"))
}

func TestAddOrEditMessage_EditPatchesReply(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	env.withMessages(t, "c1", msg("m1", t0))
	env.caller.reply(http.MethodGet, pathThread("c1", "m1"), []model.MessageDTO{{ID: "r1", Content: ptr("old"), CreatedAt: t1}})
	require.NoError(t, env.store.LoadThreadMessages(ctx, "c1", "m1", ""))
	env.caller.reply(http.MethodPatch, pathMessage("c1", "r1"), model.MessageDTO{ID: "r1", Content: ptr("new"), IsEdited: ptr(true)})

	_, err := env.store.AddOrEditMessage(ctx, "c1", "new", "r1", "m1", []model.FileDTO{})
	require.NoError(t, err)

	thread, err := env.store.ThreadMessages("c1", "m1")
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, "new", thread[0].Content)
	assert.True(t, thread[0].IsEdited)
	assert.Equal(t, "t1", env.caller.last(http.MethodGet, pathThread("c1", "m1")).Query["teamId"])
}

func TestMessageEvent_AddedDedupesAndFiles(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.withMessages(t, "c1", msg("m1", t0))
	require.NoError(t, env.store.OpenChat("c1"))

	added := model.MessageEvent{ActionType: model.ActionAdded, ChatID: "c1", Message: &model.MessageDTO{ID: "m2", ChatID: "c1", CreatedAt: t1}}
	env.transport.fire(t, model.EventMessage, added)
	env.transport.fire(t, model.EventMessage, added)
	env.transport.fire(t, model.EventMessage, model.MessageEvent{
		ActionType: model.ActionAddedFileInsideMessage, ChatID: "c1", MessageID: "m2",
		FileName: "plan.pdf", FileURL: "https://files/plan.pdf", AddedAt: t1,
	})
	// событие другого чата в той же комнате игнорируется
	env.transport.fire(t, model.EventMessage, model.MessageEvent{ActionType: model.ActionDeleted, ChatID: "c2", MessageID: "m1"})

	got, err := env.store.Messages("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids(got, messageKey))
	require.Len(t, got[1].Files, 1)
	assert.Equal(t, "plan.pdf", got[1].Files[0].FileName)

	env.transport.fire(t, model.EventMessage, model.MessageEvent{
		ActionType: model.ActionDeletedFileInsideMessage, ChatID: "c1", MessageID: "m2", FileURL: "https://files/plan.pdf",
	})
	got, err = env.store.Messages("c1")
	require.NoError(t, err)
	assert.Empty(t, got[1].Files)
}

func TestChatEvent_ClearedEmptiesInPlace(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.withMessages(t, "c1", msg("m1", t0), msg("m2", t0))

	env.transport.fire(t, model.EventChat, model.ChatEvent{ActionType: model.ActionCleared, ChatID: "c1"})

	v := env.viewer(t)
	c := v.chat("c1")
	require.NotNil(t, c, "chat itself survives")
	assert.Empty(t, c.Messages)
	assert.Zero(t, c.NumberOfMessagesPerChat)
	assert.False(t, env.store.HasMoreMessages("c1"))
}

func TestHasMoreMessages(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.transport.fire(t, model.EventChat, model.ChatEvent{
		ActionType: model.ActionEdited,
		Chat:       &model.ChatDTO{ID: "c1", NumberOfMessagesPerChat: ptr(40)},
	})
	env.withMessages(t, "c1", msg("m1", t0))
	assert.True(t, env.store.HasMoreMessages("c1"))
	assert.False(t, env.store.HasMoreMessages("missing"))
}

func TestLoadMessages_ReentrancyGuard(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.caller.reply(http.MethodGet, pathMessages("c1"), []model.MessageDTO{msg("m1", t0)})
	release := env.caller.block(http.MethodGet, pathMessages("c1"))

	done := make(chan error, 1)
	go func() { done <- env.store.LoadMessages(context.Background(), "c1", 1) }()
	<-env.caller.entered

	require.NoError(t, env.store.LoadMessages(context.Background(), "c1", 1))
	release()
	require.NoError(t, <-done)
	assert.Equal(t, 1, env.caller.count(http.MethodGet, pathMessages("c1")))
}
