package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsMissingID(t *testing.T) {
	var c CommentDTO
	err := Decode([]byte(`{"content":"hi"}`), &c)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestDecodeToleratesUnknownFields(t *testing.T) {
	var c CommentDTO
	err := Decode([]byte(`{"_id":"c1","content":"hi","reactions":[]}`), &c)
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	require.NotNil(t, c.Content)
	assert.Equal(t, "hi", *c.Content)
}

func TestUnknownKeys(t *testing.T) {
	raw := []byte(`{"_id":"c1","Content":"case-insensitive","reactions":[],"pinnedBy":"u2"}`)
	assert.Equal(t, []string{"pinnedBy", "reactions"}, unknownKeys(raw, &CommentDTO{}))
	assert.Empty(t, unknownKeys([]byte(`{"_id":"c1"}`), &CommentDTO{}))
	assert.Nil(t, unknownKeys([]byte(`[{"_id":"c1"}]`), &[]CommentDTO{}), "arrays are not inspected")
}

func TestDecodeDistinguishesOmittedFiles(t *testing.T) {
	var omitted, empty MessageDTO
	require.NoError(t, Decode([]byte(`{"_id":"m1"}`), &omitted))
	require.NoError(t, Decode([]byte(`{"_id":"m1","files":[]}`), &empty))
	assert.Nil(t, omitted.Files)
	assert.NotNil(t, empty.Files)
	assert.Nil(t, omitted.IsEdited)
}

func TestDecodeMalformed(t *testing.T) {
	var d DiscussionDTO
	err := Decode([]byte(`{"_id":`), &d)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingField)
}

func TestInitialDataValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"ok", `{"user":{"_id":"u1"},"teams":[{"_id":"t1"}]}`, false},
		{"no user", `{"teams":[]}`, true},
		{"team without id", `{"user":{"_id":"u1"},"teams":[{"name":"x"}]}`, true},
		{"nested comment without id", `{"user":{"_id":"u1"},"discussions":[{"_id":"d1","comments":[{"content":"x"}]}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d InitialData
			err := Decode([]byte(tt.raw), &d)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingField)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUnreadEventsRequireMessageID(t *testing.T) {
	var e UnreadByUserMessageEvent
	err := Decode([]byte(`{"actionType":"added","userId":"u1"}`), &e)
	assert.ErrorIs(t, err, ErrMissingField)
}
