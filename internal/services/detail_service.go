package services

import (
	"context"
	"fmt"

	"github.com/ajramos/mailsync/internal/events"
	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/ajramos/mailsync/internal/render"
	"github.com/rs/zerolog"
)

// DetailServiceImpl implements DetailService
type DetailServiceImpl struct {
	repo      MessageRepository
	state     *State
	hub       *events.Hub
	mutations MutationService // Optional - marks opened messages read
	logger    zerolog.Logger
}

// NewDetailService creates a new detail service
func NewDetailService(repo MessageRepository, state *State, hub *events.Hub) *DetailServiceImpl {
	return &DetailServiceImpl{
		repo:   repo,
		state:  state,
		hub:    hub,
		logger: zerolog.Nop(),
	}
}

// SetLogger sets the logger for load failures
func (s *DetailServiceImpl) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// SetMutationService sets the service used to mark opened messages read.
// This is called after initialization to avoid circular dependencies.
func (s *DetailServiceImpl) SetMutationService(mutations MutationService) {
	s.mutations = mutations
}

// LoadEmailDetail opens a message. Its list row is selected immediately and the
// detail replaces the previous one when the server answers. An unread message
// is then marked read.
func (s *DetailServiceImpl) LoadEmailDetail(ctx context.Context, id int64) error {
	if id == 0 {
		return ErrEmptyMessageID
	}
	s.state.View.setSelected(id)
	gen := s.state.Detail.begin(id)
	s.hub.Publish(events.Change{Kind: events.KindView})
	s.hub.Publish(events.Change{Kind: events.KindDetail})

	mark := s.state.ledger.mark()
	defer s.state.ledger.release(mark)
	d, err := s.repo.GetMessage(ctx, id)
	if err == nil && d == nil {
		err = mailapi.ErrMalformedPayload
	}
	if err != nil {
		s.state.Detail.fail(gen)
		s.hub.Publish(events.Change{Kind: events.KindDetail})
		s.logger.Warn().Err(err).Int64("message_id", id).Msg("detail: load failed")
		return fmt.Errorf("load message %d: %w", id, err)
	}

	detail := *d
	if detail.BodyText == "" && detail.BodyHTML != "" {
		if text, herr := render.HTMLToText(detail.BodyHTML); herr == nil {
			detail.BodyText = text
		} else {
			s.logger.Debug().Err(herr).Int64("message_id", id).Msg("detail: html to text failed")
		}
	}
	if !s.state.ledger.applyOne(&detail.MessageSummary, mark) {
		// removed locally while loading
		s.state.Detail.fail(gen)
		return nil
	}
	if !s.state.Detail.commit(gen, detail) {
		s.logger.Debug().Int64("message_id", id).Msg("detail: discarded stale result")
		return nil
	}
	s.state.View.updateItem(id, func(m *mailapi.MessageSummary) {
		m.IsRead = detail.IsRead
		m.IsStarred = detail.IsStarred
	})
	s.hub.Publish(events.Change{Kind: events.KindDetail})
	s.hub.Publish(events.Change{Kind: events.KindView})

	if !detail.IsRead && s.mutations != nil {
		if err := s.mutations.ToggleRead(ctx, id, true); err != nil {
			s.logger.Warn().Err(err).Int64("message_id", id).Msg("detail: mark read on open failed")
		}
	}
	return nil
}

// CloseDetail navigates away from the open message
func (s *DetailServiceImpl) CloseDetail() {
	s.state.Detail.clear()
	s.state.View.setSelected(0)
	s.hub.Publish(events.Change{Kind: events.KindDetail})
	s.hub.Publish(events.Change{Kind: events.KindView})
}

// SelectNext opens the message after the selected one, or the first one
func (s *DetailServiceImpl) SelectNext(ctx context.Context) error {
	return s.step(ctx, 1)
}

// SelectPrev opens the message before the selected one, or the last one
func (s *DetailServiceImpl) SelectPrev(ctx context.Context) error {
	return s.step(ctx, -1)
}

func (s *DetailServiceImpl) step(ctx context.Context, dir int) error {
	snap := s.state.View.Snapshot()
	if len(snap.Items) == 0 {
		return nil
	}
	idx := -1
	for i, it := range snap.Items {
		if it.ID == snap.SelectedID {
			idx = i
			break
		}
	}
	switch {
	case idx < 0 && dir > 0:
		idx = 0
	case idx < 0:
		idx = len(snap.Items) - 1
	default:
		idx += dir
	}
	if idx < 0 || idx >= len(snap.Items) {
		return nil
	}
	return s.LoadEmailDetail(ctx, snap.Items[idx].ID)
}
