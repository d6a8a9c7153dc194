package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/events"
	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/ajramos/mailsync/internal/render"
	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
)

// ComposeMode is the current authoring mode
type ComposeMode string

const (
	ModeCompose   ComposeMode = "compose"
	ModeReply     ComposeMode = "reply"
	ModeReplyAll  ComposeMode = "replyAll"
	ModeForward   ComposeMode = "forward"
	ModeEditDraft ComposeMode = "editDraft"
)

// ComposeState is the authoring mode and the message it was derived from
type ComposeState struct {
	mu     sync.RWMutex
	mode   ComposeMode
	source *mailapi.MessageDetail
}

// Mode returns the current mode
func (c *ComposeState) Mode() ComposeMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Source returns a copy of the source message, if any
func (c *ComposeState) Source() (mailapi.MessageDetail, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.source == nil {
		return mailapi.MessageDetail{}, false
	}
	return copyDetail(c.source), true
}

func (c *ComposeState) set(mode ComposeMode, source *mailapi.MessageDetail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	c.source = nil
	if source != nil {
		cp := copyDetail(source)
		c.source = &cp
	}
}

// ComposeServiceImpl implements ComposeService
type ComposeServiceImpl struct {
	repo   OutboxRepository
	reader MessageRepository
	state  *State
	hub    *events.Hub
	self   string
	logger zerolog.Logger
}

// NewComposeService creates a new compose service. self is the user's own
// address and is left out of reply-all recipients.
func NewComposeService(repo OutboxRepository, reader MessageRepository, state *State, hub *events.Hub, self string) *ComposeServiceImpl {
	return &ComposeServiceImpl{
		repo:   repo,
		reader: reader,
		state:  state,
		hub:    hub,
		self:   strings.ToLower(strings.TrimSpace(self)),
		logger: zerolog.Nop(),
	}
}

// SetLogger sets the logger for send failures
func (s *ComposeServiceImpl) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// StartCompose begins a new message
func (s *ComposeServiceImpl) StartCompose() {
	s.transition(ModeCompose, nil)
}

// StartReply replies to the open message
func (s *ComposeServiceImpl) StartReply() error {
	return s.fromOpen(ModeReply)
}

// StartReplyAll replies to the sender and every other recipient of the open message
func (s *ComposeServiceImpl) StartReplyAll() error {
	return s.fromOpen(ModeReplyAll)
}

// StartForward forwards the open message
func (s *ComposeServiceImpl) StartForward() error {
	return s.fromOpen(ModeForward)
}

func (s *ComposeServiceImpl) fromOpen(mode ComposeMode) error {
	d, ok := s.state.Detail.Current()
	if !ok {
		return fmt.Errorf("start %s: %w", mode, ErrNoOpenMessage)
	}
	s.transition(mode, &d)
	return nil
}

// EditDraft resumes a saved draft, reusing the open message when it is the draft
func (s *ComposeServiceImpl) EditDraft(ctx context.Context, draftID int64) error {
	if draftID == 0 {
		return ErrEmptyMessageID
	}
	if d, ok := s.state.Detail.Current(); ok && d.ID == draftID {
		s.transition(ModeEditDraft, &d)
		return nil
	}
	d, err := s.reader.GetMessage(ctx, draftID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("draft_id", draftID).Msg("compose: load draft failed")
		return fmt.Errorf("load draft %d: %w", draftID, err)
	}
	if d == nil {
		return fmt.Errorf("load draft %d: %w", draftID, mailapi.ErrMalformedPayload)
	}
	s.transition(ModeEditDraft, d)
	return nil
}

// ResetCompose ends the authoring session
func (s *ComposeServiceImpl) ResetCompose() {
	s.transition(ModeCompose, nil)
}

func (s *ComposeServiceImpl) transition(mode ComposeMode, source *mailapi.MessageDetail) {
	s.state.Compose.set(mode, source)
	s.hub.Publish(events.Change{Kind: events.KindCompose})
}

// Draft returns the prefilled message for the current mode
func (s *ComposeServiceImpl) Draft() mailapi.OutgoingMessage {
	mode := s.state.Compose.Mode()
	src, ok := s.state.Compose.Source()
	if !ok {
		return mailapi.OutgoingMessage{}
	}

	body := src.BodyText
	if body == "" && src.BodyHTML != "" {
		if text, err := render.HTMLToText(src.BodyHTML); err == nil {
			body = text
		}
	}

	id := src.ID
	switch mode {
	case ModeReply:
		return mailapi.OutgoingMessage{
			To:        s.recipients(src.Sender),
			Subject:   withPrefix("Re: ", src.Subject, "re:"),
			BodyText:  replyBody(src, body),
			ReplyToID: &id,
		}
	case ModeReplyAll:
		to := s.recipients(src.Sender)
		seen := make(map[string]bool)
		for _, r := range to {
			seen[strings.ToLower(r.Email)] = true
		}
		var cc []mailapi.Recipient
		for _, r := range s.recipients(src.Recipients) {
			key := strings.ToLower(r.Email)
			if seen[key] || key == s.self {
				continue
			}
			seen[key] = true
			cc = append(cc, r)
		}
		return mailapi.OutgoingMessage{
			To:        to,
			Cc:        cc,
			Subject:   withPrefix("Re: ", src.Subject, "re:"),
			BodyText:  replyBody(src, body),
			ReplyToID: &id,
		}
	case ModeForward:
		return mailapi.OutgoingMessage{
			Subject:  withPrefix("Fwd: ", src.Subject, "fwd:", "fw:"),
			BodyText: forwardBody(src, body),
		}
	case ModeEditDraft:
		return mailapi.OutgoingMessage{
			To:       s.recipients(src.Recipients),
			Subject:  src.Subject,
			BodyText: body,
			BodyHTML: src.BodyHTML,
		}
	default:
		return mailapi.OutgoingMessage{}
	}
}

// Send sends msg and ends the session on success
func (s *ComposeServiceImpl) Send(ctx context.Context, msg mailapi.OutgoingMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("%w: message has no recipient", ErrInvalidState)
	}
	mode := s.state.Compose.Mode()
	src, hasSrc := s.state.Compose.Source()
	if msg.ReplyToID == nil && hasSrc && (mode == ModeReply || mode == ModeReplyAll) {
		id := src.ID
		msg.ReplyToID = &id
	}
	if msg.BodyHTML == "" {
		msg.BodyHTML = textToHTML(msg.BodyText)
	}
	if err := s.repo.SendMessage(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("mode", string(mode)).Msg("compose: send failed")
		return fmt.Errorf("send message: %w", err)
	}
	if mode == ModeEditDraft && hasSrc {
		if err := s.repo.DeleteDraft(ctx, src.ID); err != nil {
			s.logger.Warn().Err(err).Int64("draft_id", src.ID).Msg("compose: delete sent draft failed")
		}
	}
	s.ResetCompose()
	return nil
}

// SaveDraft stores d, updating the resumed draft when editing one, and ends the session
func (s *ComposeServiceImpl) SaveDraft(ctx context.Context, d mailapi.Draft) (*mailapi.Draft, error) {
	mode := s.state.Compose.Mode()
	if src, ok := s.state.Compose.Source(); ok {
		switch mode {
		case ModeEditDraft:
			if d.ID == 0 {
				d.ID = src.ID
			}
		case ModeReply, ModeReplyAll:
			if d.ReplyToID == nil {
				id := src.ID
				d.ReplyToID = &id
			}
		}
	}
	saved, err := s.repo.SaveDraft(ctx, d)
	if err != nil {
		s.logger.Error().Err(err).Msg("compose: save draft failed")
		return nil, fmt.Errorf("save draft: %w", err)
	}
	s.ResetCompose()
	return saved, nil
}

// Discard ends the session, deleting the resumed draft if there is one
func (s *ComposeServiceImpl) Discard(ctx context.Context) error {
	if s.state.Compose.Mode() == ModeEditDraft {
		if src, ok := s.state.Compose.Source(); ok {
			if err := s.repo.DeleteDraft(ctx, src.ID); err != nil {
				s.logger.Warn().Err(err).Int64("draft_id", src.ID).Msg("compose: discard draft failed")
				return fmt.Errorf("discard draft %d: %w", src.ID, err)
			}
		}
	}
	s.ResetCompose()
	return nil
}

// Resend re-queues a message whose delivery failed
func (s *ComposeServiceImpl) Resend(ctx context.Context, id int64) error {
	if id == 0 {
		return ErrEmptyMessageID
	}
	if err := s.repo.ResendMessage(ctx, id); err != nil {
		s.logger.Warn().Err(err).Int64("message_id", id).Msg("compose: resend failed")
		return fmt.Errorf("resend message %d: %w", id, err)
	}
	return nil
}

// recipients parses an address list, keeping unparsable entries verbatim
func (s *ComposeServiceImpl) recipients(list string) []mailapi.Recipient {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(list)
	if err != nil {
		var out []mailapi.Recipient
		for _, part := range strings.Split(list, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, mailapi.Recipient{Email: p})
			}
		}
		return out
	}
	out := make([]mailapi.Recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, mailapi.Recipient{Name: a.Name, Email: a.Address})
	}
	return out
}

func withPrefix(prefix, subject string, existing ...string) string {
	trimmed := strings.TrimSpace(subject)
	lower := strings.ToLower(trimmed)
	for _, e := range existing {
		if strings.HasPrefix(lower, e) {
			return trimmed
		}
	}
	return prefix + trimmed
}

func replyBody(src mailapi.MessageDetail, body string) string {
	return fmt.Sprintf("\n\nOn %s, %s wrote:\n%s", formatDate(src.ReceivedAt), src.Sender, render.QuoteText(body))
}

func forwardBody(src mailapi.MessageDetail, body string) string {
	var b strings.Builder
	b.WriteString("\n\n---------- Forwarded message ----------\n")
	fmt.Fprintf(&b, "From: %s\n", src.Sender)
	fmt.Fprintf(&b, "Date: %s\n", formatDate(src.ReceivedAt))
	fmt.Fprintf(&b, "Subject: %s\n", src.Subject)
	fmt.Fprintf(&b, "To: %s\n\n", src.Recipients)
	b.WriteString(body)
	return b.String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "an unknown date"
	}
	return t.Format("Mon, Jan 2, 2006 at 15:04")
}

// textToHTML wraps plain text for the html body the service requires
func textToHTML(text string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\n", "<br>")
	return "<div>" + r.Replace(text) + "</div>"
}
