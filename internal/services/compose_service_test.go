package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func openMessage() mailapi.MessageDetail {
	return mailapi.MessageDetail{
		MessageSummary: mailapi.MessageSummary{
			ID:         42,
			Subject:    "Quarterly numbers",
			Sender:     "Alice <alice@example.com>",
			ReceivedAt: time.Date(2024, 3, 4, 14, 5, 0, 0, time.UTC),
			IsRead:     true,
		},
		Recipients: "me@example.com, Bob <bob@example.com>, alice@example.com",
		BodyText:   "Numbers attached.\nThanks",
	}
}

func TestComposeService_Transitions(t *testing.T) {
	h := newHarness()
	assert.Equal(t, ModeCompose, h.state.Compose.Mode())

	err := h.compose.StartReply()
	assert.ErrorIs(t, err, ErrNoOpenMessage)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, ModeCompose, h.state.Compose.Mode())

	h.openDetail(openMessage())
	require.NoError(t, h.compose.StartReply())
	assert.Equal(t, ModeReply, h.state.Compose.Mode())
	src, ok := h.state.Compose.Source()
	require.True(t, ok)
	assert.Equal(t, int64(42), src.ID)

	require.NoError(t, h.compose.StartForward())
	assert.Equal(t, ModeForward, h.state.Compose.Mode())

	h.compose.ResetCompose()
	assert.Equal(t, ModeCompose, h.state.Compose.Mode())
	_, ok = h.state.Compose.Source()
	assert.False(t, ok)
}

func TestComposeService_Draft_Reply(t *testing.T) {
	h := newHarness()
	h.openDetail(openMessage())
	require.NoError(t, h.compose.StartReply())

	d := h.compose.Draft()

	require.Len(t, d.To, 1)
	assert.Equal(t, "alice@example.com", d.To[0].Email)
	assert.Equal(t, "Alice", d.To[0].Name)
	assert.Empty(t, d.Cc)
	assert.Equal(t, "Re: Quarterly numbers", d.Subject)
	assert.Contains(t, d.BodyText, "On Mon, Mar 4, 2024 at 14:05, Alice <alice@example.com> wrote:")
	assert.Contains(t, d.BodyText, "> Numbers attached.\n> Thanks")
	require.NotNil(t, d.ReplyToID)
	assert.Equal(t, int64(42), *d.ReplyToID)
}

func TestComposeService_Draft_ReplyAllDedupesAndDropsSelf(t *testing.T) {
	h := newHarness()
	h.openDetail(openMessage())
	require.NoError(t, h.compose.StartReplyAll())

	d := h.compose.Draft()

	require.Len(t, d.To, 1)
	assert.Equal(t, "alice@example.com", d.To[0].Email)
	require.Len(t, d.Cc, 1)
	assert.Equal(t, "bob@example.com", d.Cc[0].Email)
}

func TestComposeService_Draft_ForwardKeepsPrefix(t *testing.T) {
	h := newHarness()
	m := openMessage()
	m.Subject = "Fwd: Quarterly numbers"
	h.openDetail(m)
	require.NoError(t, h.compose.StartForward())

	d := h.compose.Draft()

	assert.Empty(t, d.To)
	assert.Equal(t, "Fwd: Quarterly numbers", d.Subject)
	assert.Contains(t, d.BodyText, "---------- Forwarded message ----------")
	assert.Contains(t, d.BodyText, "From: Alice <alice@example.com>")
	assert.True(t, strings.HasSuffix(d.BodyText, "Numbers attached.\nThanks"))
	assert.Nil(t, d.ReplyToID)
}

func TestComposeService_EditDraft(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	draft := &mailapi.MessageDetail{
		MessageSummary: mailapi.MessageSummary{ID: 77, Subject: "Plan"},
		Recipients:     "carol@example.com",
		BodyText:       "draft body",
	}
	h.repo.On("GetMessage", mock.Anything, int64(77)).Return(draft, nil)

	require.NoError(t, h.compose.EditDraft(ctx, 77))
	assert.Equal(t, ModeEditDraft, h.state.Compose.Mode())

	d := h.compose.Draft()
	require.Len(t, d.To, 1)
	assert.Equal(t, "carol@example.com", d.To[0].Email)
	assert.Equal(t, "Plan", d.Subject)
	assert.Equal(t, "draft body", d.BodyText)

	// sending a resumed draft removes it
	h.repo.On("SendMessage", mock.Anything, mock.MatchedBy(func(m mailapi.OutgoingMessage) bool {
		return m.Subject == "Plan" && m.BodyHTML == "<div>draft body</div>"
	})).Return(nil)
	h.repo.On("DeleteDraft", mock.Anything, int64(77)).Return(nil)

	require.NoError(t, h.compose.Send(ctx, d))
	assert.Equal(t, ModeCompose, h.state.Compose.Mode())
	h.repo.AssertExpectations(t)
}

func TestComposeService_Send(t *testing.T) {
	t.Run("requires a recipient", func(t *testing.T) {
		h := newHarness()
		err := h.compose.Send(context.Background(), mailapi.OutgoingMessage{Subject: "x"})
		assert.ErrorIs(t, err, ErrInvalidState)
		h.repo.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
	})

	t.Run("failure keeps the session", func(t *testing.T) {
		h := newHarness()
		h.openDetail(openMessage())
		require.NoError(t, h.compose.StartReply())
		h.repo.On("SendMessage", mock.Anything, mock.Anything).Return(mailapi.ErrServer)

		err := h.compose.Send(context.Background(), h.compose.Draft())

		assert.ErrorIs(t, err, mailapi.ErrServer)
		assert.Equal(t, ModeReply, h.state.Compose.Mode())
	})

	t.Run("reply carries the source id", func(t *testing.T) {
		h := newHarness()
		h.openDetail(openMessage())
		require.NoError(t, h.compose.StartReply())
		h.repo.On("SendMessage", mock.Anything, mock.MatchedBy(func(m mailapi.OutgoingMessage) bool {
			return m.ReplyToID != nil && *m.ReplyToID == 42
		})).Return(nil)

		msg := mailapi.OutgoingMessage{To: []mailapi.Recipient{{Email: "alice@example.com"}}, BodyText: "ok"}
		require.NoError(t, h.compose.Send(context.Background(), msg))
		assert.Equal(t, ModeCompose, h.state.Compose.Mode())
	})
}

func TestComposeService_SaveDraftAndDiscard(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.openDetail(mailapi.MessageDetail{MessageSummary: mailapi.MessageSummary{ID: 77, Subject: "Plan"}})
	require.NoError(t, h.compose.EditDraft(ctx, 77))

	saved := &mailapi.Draft{ID: 77, Subject: "Plan v2"}
	h.repo.On("SaveDraft", mock.Anything, mailapi.Draft{ID: 77, Subject: "Plan v2"}).Return(saved, nil)

	got, err := h.compose.SaveDraft(ctx, mailapi.Draft{Subject: "Plan v2"})
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.Equal(t, ModeCompose, h.state.Compose.Mode())

	require.NoError(t, h.compose.EditDraft(ctx, 77))
	h.repo.On("DeleteDraft", mock.Anything, int64(77)).Return(mailapi.ErrNetwork).Once()
	assert.ErrorIs(t, h.compose.Discard(ctx), mailapi.ErrNetwork)
	assert.Equal(t, ModeEditDraft, h.state.Compose.Mode())

	h.repo.On("DeleteDraft", mock.Anything, int64(77)).Return(nil).Once()
	require.NoError(t, h.compose.Discard(ctx))
	assert.Equal(t, ModeCompose, h.state.Compose.Mode())
}

func TestComposeService_Resend(t *testing.T) {
	h := newHarness()
	h.repo.On("ResendMessage", mock.Anything, int64(5)).Return(nil)

	require.NoError(t, h.compose.Resend(context.Background(), 5))
	assert.ErrorIs(t, h.compose.Resend(context.Background(), 0), ErrEmptyMessageID)
}

func TestWithPrefix(t *testing.T) {
	assert.Equal(t, "Re: Hi", withPrefix("Re: ", " Hi ", "re:"))
	assert.Equal(t, "RE: Hi", withPrefix("Re: ", "RE: Hi", "re:"))
	assert.Equal(t, "FW: Hi", withPrefix("Fwd: ", "FW: Hi", "fwd:", "fw:"))
}
