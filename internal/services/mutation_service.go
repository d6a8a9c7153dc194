package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/events"
	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Mutation action names used in logs and MutationError
const (
	ActionMarkRead   = "mark_read"
	ActionMarkUnread = "mark_unread"
	ActionStar       = "star"
	ActionUnstar     = "unstar"
	ActionDelete     = "delete"
	ActionSnooze     = "snooze"
	ActionArchive    = "archive"
	ActionMove       = "move"
)

const bulkSnoozeConcurrency = 4

// MutationServiceImpl implements MutationService. Every change is applied to
// the view and the open detail before the server call, and reverted for the
// ids the server did not accept.
type MutationServiceImpl struct {
	repo   MutationRepository
	state  *State
	hub    *events.Hub
	logger zerolog.Logger
}

// NewMutationService creates a new mutation service
func NewMutationService(repo MutationRepository, state *State, hub *events.Hub) *MutationServiceImpl {
	return &MutationServiceImpl{
		repo:   repo,
		state:  state,
		hub:    hub,
		logger: zerolog.Nop(),
	}
}

// SetLogger sets the logger for mutation failures
func (s *MutationServiceImpl) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// ToggleRead sets the read flag of one message
func (s *MutationServiceImpl) ToggleRead(ctx context.Context, id int64, read bool) error {
	if id == 0 {
		return ErrEmptyMessageID
	}
	return s.setFlag(ctx, readAction(read), []int64{id}, fieldRead, read, func(ctx context.Context) ([]int64, error) {
		return nil, s.repo.SetRead(ctx, id, read)
	})
}

// ToggleStar sets the starred flag of one message
func (s *MutationServiceImpl) ToggleStar(ctx context.Context, id int64, starred bool) error {
	if id == 0 {
		return ErrEmptyMessageID
	}
	return s.setFlag(ctx, starAction(starred), []int64{id}, fieldStarred, starred, func(ctx context.Context) ([]int64, error) {
		return nil, s.repo.SetStarred(ctx, id, starred)
	})
}

// BulkSetRead sets the read flag of several messages in one call
func (s *MutationServiceImpl) BulkSetRead(ctx context.Context, ids []int64, read bool) error {
	ids = compactIDs(ids)
	if len(ids) == 0 {
		return ErrEmptyMessageID
	}
	return s.setFlag(ctx, readAction(read), ids, fieldRead, read, func(ctx context.Context) ([]int64, error) {
		return bulkFailures(s.repo.BulkSetRead(ctx, ids, read))
	})
}

// BulkSetStarred sets the starred flag of several messages in one call
func (s *MutationServiceImpl) BulkSetStarred(ctx context.Context, ids []int64, starred bool) error {
	ids = compactIDs(ids)
	if len(ids) == 0 {
		return ErrEmptyMessageID
	}
	return s.setFlag(ctx, starAction(starred), ids, fieldStarred, starred, func(ctx context.Context) ([]int64, error) {
		return bulkFailures(s.repo.BulkSetStarred(ctx, ids, starred))
	})
}

// RemoveEmail deletes a message and takes it out of the current list
func (s *MutationServiceImpl) RemoveEmail(ctx context.Context, id int64) error {
	if id == 0 {
		return ErrEmptyMessageID
	}
	return s.remove(ctx, ActionDelete, []int64{id}, func(ctx context.Context) ([]int64, error) {
		return nil, s.repo.DeleteMessage(ctx, id)
	})
}

// BulkDelete deletes several messages in one call
func (s *MutationServiceImpl) BulkDelete(ctx context.Context, ids []int64) error {
	ids = compactIDs(ids)
	if len(ids) == 0 {
		return ErrEmptyMessageID
	}
	return s.remove(ctx, ActionDelete, ids, func(ctx context.Context) ([]int64, error) {
		return bulkFailures(s.repo.BulkDelete(ctx, ids))
	})
}

// Snooze hides a message until the given time; nil lets the server pick the default
func (s *MutationServiceImpl) Snooze(ctx context.Context, id int64, until *time.Time) error {
	if id == 0 {
		return ErrEmptyMessageID
	}
	return s.remove(ctx, ActionSnooze, []int64{id}, func(ctx context.Context) ([]int64, error) {
		return nil, s.repo.SnoozeMessage(ctx, id, until)
	})
}

// BulkSnooze snoozes several messages. The server has no bulk endpoint for it,
// so the calls fan out with bounded concurrency.
func (s *MutationServiceImpl) BulkSnooze(ctx context.Context, ids []int64, until *time.Time) error {
	ids = compactIDs(ids)
	if len(ids) == 0 {
		return ErrEmptyMessageID
	}
	return s.remove(ctx, ActionSnooze, ids, func(ctx context.Context) ([]int64, error) {
		var (
			mu       sync.Mutex
			failed   []int64
			firstErr error
		)
		var g errgroup.Group
		g.SetLimit(bulkSnoozeConcurrency)
		for _, id := range ids {
			g.Go(func() error {
				if err := s.repo.SnoozeMessage(ctx, id, until); err != nil {
					mu.Lock()
					failed = append(failed, id)
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
		if len(failed) == len(ids) {
			return nil, firstErr
		}
		if len(failed) > 0 {
			return failed, fmt.Errorf("%w: %v", ErrPartialFailure, firstErr)
		}
		return nil, nil
	})
}

// Archive moves messages to the archive folder
func (s *MutationServiceImpl) Archive(ctx context.Context, ids []int64) error {
	ids = compactIDs(ids)
	if len(ids) == 0 {
		return ErrEmptyMessageID
	}
	if s.viewing(mailapi.RoleArchive) {
		return s.serverOnly(ctx, ActionArchive, ids, func(ctx context.Context) ([]int64, error) {
			return bulkFailures(s.repo.BulkArchive(ctx, ids))
		})
	}
	return s.remove(ctx, ActionArchive, ids, func(ctx context.Context) ([]int64, error) {
		return bulkFailures(s.repo.BulkArchive(ctx, ids))
	})
}

// Move moves messages to another folder
func (s *MutationServiceImpl) Move(ctx context.Context, ids []int64, folderID int64) error {
	ids = compactIDs(ids)
	if len(ids) == 0 {
		return ErrEmptyMessageID
	}
	if folderID == 0 {
		return fmt.Errorf("%w: target folder required", ErrInvalidState)
	}
	call := func(ctx context.Context) ([]int64, error) {
		return bulkFailures(s.repo.BulkMove(ctx, ids, folderID))
	}
	if d, ok := s.state.View.Descriptor(); ok && d.Equal(FolderView(folderID)) {
		return s.serverOnly(ctx, ActionMove, ids, call)
	}
	return s.remove(ctx, ActionMove, ids, call)
}

func (s *MutationServiceImpl) viewing(role mailapi.FolderRole) bool {
	f, ok := s.state.Folders.ByRole(role)
	if !ok || f.ID == 0 {
		return false
	}
	d, active := s.state.View.Descriptor()
	return active && d.Equal(FolderView(f.ID))
}

type serverCall func(ctx context.Context) (failed []int64, err error)

type flagUndo struct {
	id         int64
	prevView   mailapi.MessageSummary
	inView     bool
	prevDetail mailapi.MessageSummary
	inDetail   bool
}

func (s *MutationServiceImpl) setFlag(ctx context.Context, action string, ids []int64, field flagField, value bool, call serverCall) error {
	token := uuid.NewString()
	set := func(m *mailapi.MessageSummary) {
		if field == fieldRead {
			m.IsRead = value
		} else {
			m.IsStarred = value
		}
	}

	undo := make([]flagUndo, 0, len(ids))
	for _, id := range ids {
		u := flagUndo{id: id}
		u.prevView, u.inView = s.state.View.updateItem(id, set)
		u.prevDetail, u.inDetail = s.state.Detail.updateItem(id, set)
		s.state.ledger.setFlag(id, field, value, token)
		undo = append(undo, u)
	}
	s.publishLocal()
	s.logger.Debug().Str("action", action).Str("mutation", token).Ints64("ids", ids).Msg("mutation: applied locally")

	failed, err := s.call(ctx, ids, call)
	failedSet := toSet(failed)
	for _, u := range undo {
		if !failedSet[u.id] {
			s.state.ledger.confirmFlag(u.id, field, token)
			continue
		}
		// a newer change of the same field wins over this rollback
		if !s.state.ledger.owns(u.id, field, token) {
			continue
		}
		s.state.ledger.dropFlag(u.id, field, token)
		if u.inView {
			s.state.View.updateItem(u.id, func(m *mailapi.MessageSummary) { restoreField(m, u.prevView, field) })
		}
		if u.inDetail {
			s.state.Detail.updateItem(u.id, func(m *mailapi.MessageSummary) { restoreField(m, u.prevDetail, field) })
		}
	}
	return s.finish(action, token, failed, err)
}

func restoreField(m *mailapi.MessageSummary, prev mailapi.MessageSummary, field flagField) {
	if field == fieldRead {
		m.IsRead = prev.IsRead
	} else {
		m.IsStarred = prev.IsStarred
	}
}

func (s *MutationServiceImpl) remove(ctx context.Context, action string, ids []int64, call serverCall) error {
	token := uuid.NewString()
	rm := s.state.View.removeItems(ids)
	dr, hadDetail := s.state.Detail.take(ids)
	for _, id := range ids {
		s.state.ledger.setRemoved(id, token)
	}
	s.publishLocal()
	s.logger.Debug().Str("action", action).Str("mutation", token).Ints64("ids", ids).Msg("mutation: removed locally")

	failed, err := s.call(ctx, ids, call)
	failedSet := toSet(failed)
	for _, id := range ids {
		if failedSet[id] {
			s.state.ledger.dropRemoved(id, token)
		} else {
			s.state.ledger.confirmRemoved(id, token)
		}
	}
	if len(failed) > 0 {
		s.rollbackRemoval(rm, dr, hadDetail, failedSet)
	}
	return s.finish(action, token, failed, err)
}

// rollbackRemoval puts failed rows back into the view they were removed from
// and reopens the message taken from the detail cache. A view switch or a
// detail opened or closed meanwhile wins over the rollback.
func (s *MutationServiceImpl) rollbackRemoval(rm viewRemoval, dr detailRemoval, hadDetail bool, failed map[int64]bool) {
	shown := s.state.View.restoreItems(rm, func(id int64) bool { return failed[id] })

	sel := rm.cleared
	if hadDetail && dr.detail != nil && failed[dr.detail.ID] {
		if !s.state.Detail.put(dr) {
			return
		}
		sel = dr.detail.ID
	} else if !s.state.Detail.unchanged(dr.gen) {
		return
	}
	if shown && sel != 0 && failed[sel] {
		s.state.View.reselect(rm.epoch, sel)
	}
}

// serverOnly issues a call whose outcome does not change the current list
func (s *MutationServiceImpl) serverOnly(ctx context.Context, action string, ids []int64, call serverCall) error {
	failed, err := s.call(ctx, ids, call)
	return s.finish(action, uuid.NewString(), failed, err)
}

// call runs the server call; a plain error means every id failed
func (s *MutationServiceImpl) call(ctx context.Context, ids []int64, call serverCall) ([]int64, error) {
	failed, err := call(ctx)
	if err != nil && len(failed) == 0 {
		failed = ids
	}
	if err == nil && len(failed) > 0 {
		err = ErrPartialFailure
	}
	return failed, err
}

func (s *MutationServiceImpl) finish(action, token string, failed []int64, err error) error {
	if len(failed) == 0 {
		return nil
	}
	merr := &MutationError{Action: action, IDs: failed, Err: err}
	s.logger.Error().Err(err).Str("action", action).Str("mutation", token).Ints64("ids", failed).Msg("mutation: rejected by server, rolled back")
	s.publishLocal()
	s.hub.Publish(events.Change{Kind: events.KindMutationFailed, Err: merr})
	return merr
}

func (s *MutationServiceImpl) publishLocal() {
	s.hub.Publish(events.Change{Kind: events.KindView})
	s.hub.Publish(events.Change{Kind: events.KindDetail})
}

// bulkFailures turns a bulk response into the ids to roll back
func bulkFailures(res *mailapi.BulkResult, err error) ([]int64, error) {
	if err != nil {
		return nil, err
	}
	if res == nil || len(res.FailedIDs) == 0 {
		return nil, nil
	}
	return res.FailedIDs, fmt.Errorf("%w: %d of %d", ErrPartialFailure, res.FailedCount, res.FailedCount+res.SuccessCount)
}

func compactIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func toSet(ids []int64) map[int64]bool {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func readAction(read bool) string {
	if read {
		return ActionMarkRead
	}
	return ActionMarkUnread
}

func starAction(starred bool) string {
	if starred {
		return ActionStar
	}
	return ActionUnstar
}
