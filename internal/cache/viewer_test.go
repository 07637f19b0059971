package cache

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamsync/internal/model"
)

func TestSeenEvent_RemovesOwnMessageFromRecipientUnread(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	env.caller.reply(http.MethodPost, pathMessages("c1"), model.MessageDTO{ID: "x", ChatID: "c1", CreatedUserID: viewerID, CreatedAt: t1})
	_, err := env.store.AddOrEditMessage(ctx, "c1", "ping", "", "", []model.FileDTO{})
	require.NoError(t, err)
	require.True(t, env.viewer(t).IsMessageUnreadByRecipient("x"))

	// событие для другого пользователя не трогает набор зрителя
	env.transport.fire(t, model.EventUnreadBySomeoneMessage, model.UnreadBySomeoneMessageEvent{ActionType: model.ActionDeleted, UserID: "u2", MessageID: "x"})
	assert.True(t, env.viewer(t).IsMessageUnreadByRecipient("x"))

	env.transport.fire(t, model.EventUnreadBySomeoneMessage, model.UnreadBySomeoneMessageEvent{ActionType: model.ActionDeleted, UserID: viewerID, MessageID: "x"})
	assert.False(t, env.viewer(t).IsMessageUnreadByRecipient("x"))
}

func TestUnreadBySomeone_AddedInserts(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.transport.fire(t, model.EventUnreadBySomeoneMessage, model.UnreadBySomeoneMessageEvent{ActionType: model.ActionAdded, UserID: viewerID, MessageID: "y"})
	assert.True(t, env.viewer(t).IsMessageUnreadByRecipient("y"))
}

func TestUnreadBySomeone_NotifiesOnce(t *testing.T) {
	env := newTestEnv(t, Options{})
	var got []Change
	unsubscribe := env.store.Subscribe(func(c Change) { got = append(got, c) })
	defer unsubscribe()

	added := model.UnreadBySomeoneMessageEvent{ActionType: model.ActionAdded, UserID: viewerID, MessageID: "y"}
	env.transport.fire(t, model.EventUnreadBySomeoneMessage, added)
	env.transport.fire(t, model.EventUnreadBySomeoneMessage, added)

	env.caller.reply(http.MethodPost, pathMessages("c1"), model.MessageDTO{ID: "m1", ChatID: "c1", CreatedUserID: viewerID, CreatedAt: t1})
	_, err := env.store.AddOrEditMessage(context.Background(), "c1", "hi", "", "", []model.FileDTO{})
	require.NoError(t, err)

	var unread []Change
	for _, c := range got {
		if c.Kind == ChangeUnreadBySomeone {
			unread = append(unread, c)
		}
	}
	assert.Equal(t, []Change{
		{Kind: ChangeUnreadBySomeone, ID: "y"},
		{Kind: ChangeUnreadBySomeone, ID: "m1", ParentID: "c1"},
	}, unread)
}

func TestParentUnreadDerivation(t *testing.T) {
	env := newTestEnv(t, Options{})
	add := func(reply string) {
		env.transport.fire(t, model.EventUnreadByUserMessage, model.UnreadByUserMessageEvent{
			ActionType: model.ActionAdded, UserID: viewerID, ChatID: "c1", MessageID: reply, ParentMessageID: "p",
		})
	}
	del := func(reply string) {
		env.transport.fire(t, model.EventUnreadByUserMessage, model.UnreadByUserMessageEvent{
			ActionType: model.ActionDeleted, UserID: viewerID, ChatID: "c1", MessageID: reply, ParentMessageID: "p",
		})
	}
	add("r1")
	add("r2")
	v := env.viewer(t)
	assert.True(t, v.IsMessageUnreadByViewer("p"))
	assert.True(t, v.IsMessageUnreadByViewer("r1"))

	del("r1")
	v = env.viewer(t)
	assert.False(t, v.IsMessageUnreadByViewer("r1"))
	assert.True(t, v.IsMessageUnreadByViewer("p"), "parent stays while another reply is unread")

	del("r2")
	v = env.viewer(t)
	assert.False(t, v.IsMessageUnreadByViewer("r2"))
	assert.False(t, v.IsMessageUnreadByViewer("p"))
}

func TestParentUnreadDerivation_SeededFromInitialData(t *testing.T) {
	seeded := func(t *testing.T) *testEnv {
		data := testInitialData()
		data.User.UnreadByUserMessageIDs = []string{"r1", "p"}
		return newTestEnvWith(t, Options{}, data)
	}

	t.Run("read event carries the parent", func(t *testing.T) {
		env := seeded(t)
		env.transport.fire(t, model.EventUnreadByUserMessage, model.UnreadByUserMessageEvent{
			ActionType: model.ActionDeleted, UserID: viewerID, ChatID: "c1", MessageID: "r1", ParentMessageID: "p",
		})
		v := env.viewer(t)
		assert.False(t, v.IsMessageUnreadByViewer("r1"))
		assert.False(t, v.IsMessageUnreadByViewer("p"), "parent goes with its only unread reply")
	})

	t.Run("reply deleted in the chat room", func(t *testing.T) {
		env := seeded(t)
		require.NoError(t, env.store.OpenChat("c1"))
		env.transport.fire(t, model.EventMessage, model.MessageEvent{
			ActionType: model.ActionDeleted, ChatID: "c1", MessageID: "r1", ParentMessageID: "p",
		})
		assert.False(t, env.viewer(t).IsMessageUnreadByViewer("p"))
	})

	t.Run("parent stays while a known reply is unread", func(t *testing.T) {
		env := seeded(t)
		env.transport.fire(t, model.EventUnreadByUserMessage, model.UnreadByUserMessageEvent{
			ActionType: model.ActionAdded, UserID: viewerID, ChatID: "c1", MessageID: "r2", ParentMessageID: "p",
		})
		env.transport.fire(t, model.EventUnreadByUserMessage, model.UnreadByUserMessageEvent{
			ActionType: model.ActionDeleted, UserID: viewerID, ChatID: "c1", MessageID: "r1", ParentMessageID: "p",
		})
		assert.True(t, env.viewer(t).IsMessageUnreadByViewer("p"))
	})
}

func TestParentUnreadDerivation_ViaLoadedThread(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	env.withMessages(t, "c1", msg("p", t0))
	env.caller.reply(http.MethodGet, pathThread("c1", "p"), []model.MessageDTO{{ID: "r1", CreatedAt: t1}, {ID: "r2", CreatedAt: t1}})
	require.NoError(t, env.store.LoadThreadMessages(ctx, "c1", "p", "t1"))
	env.caller.reply(http.MethodPost, pathReadMessages, nil)

	env.store.lock()
	for _, id := range []string{"p", "r1", "r2"} {
		env.store.viewer.UnreadByUserMessageIDs.add(id)
	}
	env.store.unlock()

	require.NoError(t, env.store.MarkMessagesRead(ctx, "c1", []string{"r1"}))
	assert.True(t, env.viewer(t).IsMessageUnreadByViewer("p"))

	require.NoError(t, env.store.MarkMessagesRead(ctx, "c1", []string{"r2"}))
	assert.False(t, env.viewer(t).IsMessageUnreadByViewer("p"))
}

func TestUnreadByUser_IgnoresInvisibleChatAndOtherViewer(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.transport.fire(t, model.EventUnreadByUserMessage, model.UnreadByUserMessageEvent{ActionType: model.ActionAdded, UserID: viewerID, ChatID: "nope", MessageID: "m1"})
	env.transport.fire(t, model.EventUnreadByUserMessage, model.UnreadByUserMessageEvent{ActionType: model.ActionAdded, UserID: "u2", ChatID: "c1", MessageID: "m2"})

	v := env.viewer(t)
	assert.Zero(t, v.UnreadByUserMessageIDs.Len())
}

func TestUnreadComment_AddedInsertsOnceAndMarksUnread(t *testing.T) {
	env := newTestEnv(t, Options{})
	var changes []Change
	unsubscribe := env.store.Subscribe(func(c Change) { changes = append(changes, c) })
	defer unsubscribe()

	ev := model.UnreadCommentEvent{
		ActionType: model.ActionAdded, UserID: viewerID, DiscussionID: "d1",
		Comment: &model.CommentDTO{ID: "cm2", DiscussionID: "d1", CreatedUserID: "u2", Content: ptr("hey"), CreatedAt: t2},
	}
	env.transport.fire(t, model.EventUnreadComment, ev)
	env.transport.fire(t, model.EventUnreadComment, ev)

	comments, err := env.store.Comments("d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cm1", "cm2"}, ids(comments, commentKey))
	assert.True(t, env.viewer(t).IsCommentUnread("cm2"))
	assert.Contains(t, changes, Change{Kind: ChangeUnreadComment, ID: "cm2", ParentID: "d1"})

	counts, err := env.store.UnreadCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Comments)
	assert.Equal(t, map[string]int{"d1": 1}, counts.Discussions)

	env.transport.fire(t, model.EventUnreadComment, model.UnreadCommentEvent{ActionType: model.ActionDeleted, UserID: viewerID, DiscussionID: "d1", CommentID: "cm2"})
	comments, err = env.store.Comments("d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cm1"}, ids(comments, commentKey))
	assert.False(t, env.viewer(t).IsCommentUnread("cm2"))
}

func TestUnreadComment_IgnoredForOtherViewerAndArchived(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.transport.fire(t, model.EventUnreadComment, model.UnreadCommentEvent{
		ActionType: model.ActionAdded, UserID: "u2", DiscussionID: "d1",
		Comment: &model.CommentDTO{ID: "cm2", CreatedAt: t1},
	})
	env.transport.fire(t, model.EventUnreadComment, model.UnreadCommentEvent{
		ActionType: model.ActionAdded, UserID: viewerID, DiscussionID: "d9",
		Comment: &model.CommentDTO{ID: "cm3", CreatedAt: t1},
	})

	v := env.viewer(t)
	assert.Zero(t, v.UnreadCommentIDs.Len())
	assert.Len(t, v.discussion("d1").Comments, 1)
	assert.Empty(t, v.discussion("d9").Comments)
}

func TestViewerScopedHandlers_NoopWithoutViewer(t *testing.T) {
	tr := newFakeTransport()
	s := New(Options{Caller: newFakeCaller(), Transport: tr})
	assert.NotPanics(t, func() {
		s.handleUnreadComment(&model.UnreadCommentEvent{ActionType: model.ActionAdded, UserID: viewerID, DiscussionID: "d1"})
		s.handleUnreadByUserMessage(&model.UnreadByUserMessageEvent{ActionType: model.ActionDeleted, UserID: viewerID, MessageID: "m"})
		s.handleUnreadBySomeoneMessage(&model.UnreadBySomeoneMessageEvent{ActionType: model.ActionDeleted, UserID: viewerID, MessageID: "m"})
	})
	_, err := s.Viewer()
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, s.Start(), ErrNotLoaded)
}
