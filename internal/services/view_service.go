package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ajramos/mailsync/internal/events"
	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/rs/zerolog"
)

const defaultPageSize = 50

// ViewServiceImpl implements ViewService
type ViewServiceImpl struct {
	repo      MessageRepository
	state     *State
	hub       *events.Hub
	pageSize  int
	snapshots *SnapshotServiceImpl // Optional
	logger    zerolog.Logger
}

// NewViewService creates a new view service
func NewViewService(repo MessageRepository, state *State, hub *events.Hub, pageSize int) *ViewServiceImpl {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &ViewServiceImpl{
		repo:     repo,
		state:    state,
		hub:      hub,
		pageSize: pageSize,
		logger:   zerolog.Nop(),
	}
}

// SetLogger sets the logger for load failures
func (s *ViewServiceImpl) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// SetSnapshotService enables persisting each loaded list
func (s *ViewServiceImpl) SetSnapshotService(snapshots *SnapshotServiceImpl) {
	s.snapshots = snapshots
}

// SetView makes d the current view, clears selection and detail, and loads
// the first page. A result that arrives after a newer SetView is discarded.
func (s *ViewServiceImpl) SetView(ctx context.Context, d ViewDescriptor) error {
	if d.Kind == ViewSearch && d.Query == "" {
		return s.ClearSearch(ctx)
	}
	gen := s.state.View.begin(d)
	s.state.Detail.clear()
	s.hub.Publish(events.Change{Kind: events.KindView})
	s.hub.Publish(events.Change{Kind: events.KindDetail})
	return s.load(ctx, gen, d)
}

// LoadEmails shows a folder and marks it selected
func (s *ViewServiceImpl) LoadEmails(ctx context.Context, folderID int64) error {
	s.state.Folders.selectFolder(folderID)
	return s.SetView(ctx, FolderView(folderID))
}

// LoadFilteredEmails shows a saved filter
func (s *ViewServiceImpl) LoadFilteredEmails(ctx context.Context, pred FilterPredicate, inboxOnly bool) error {
	return s.SetView(ctx, FilterView(pred, inboxOnly))
}

// LoadAllEmails shows every message
func (s *ViewServiceImpl) LoadAllEmails(ctx context.Context) error {
	return s.SetView(ctx, AllView())
}

// LoadSnoozedEmails shows snoozed messages
func (s *ViewServiceImpl) LoadSnoozedEmails(ctx context.Context) error {
	return s.SetView(ctx, SnoozedView())
}

// Search shows the results of query; a blank query returns to the default folder
func (s *ViewServiceImpl) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ClearSearch(ctx)
	}
	return s.SetView(ctx, SearchView(query))
}

// ClearSearch returns to the selected folder, or the inbox
func (s *ViewServiceImpl) ClearSearch(ctx context.Context) error {
	id := s.defaultFolderID()
	if id == 0 {
		// no folder known yet; leave nothing active until the first folder load
		s.state.View.reset()
		s.state.Detail.clear()
		s.hub.Publish(events.Change{Kind: events.KindView})
		return nil
	}
	return s.SetView(ctx, FolderView(id))
}

func (s *ViewServiceImpl) defaultFolderID() int64 {
	if id := s.state.Folders.SelectedFolderID(); id != 0 {
		return id
	}
	if inbox, ok := s.state.Folders.ByRole(mailapi.RoleInbox); ok {
		return inbox.ID
	}
	return 0
}

// Reload refetches the current view without clearing what is shown
func (s *ViewServiceImpl) Reload(ctx context.Context) error {
	gen, d, ok := s.state.View.beginReload()
	if !ok {
		return nil
	}
	s.hub.Publish(events.Change{Kind: events.KindView})
	return s.load(ctx, gen, d)
}

func (s *ViewServiceImpl) load(ctx context.Context, gen uint64, d ViewDescriptor) error {
	mark := s.state.ledger.mark()
	defer s.state.ledger.release(mark)
	page, err := s.fetch(ctx, d, 1)
	if err != nil {
		s.state.View.fail(gen)
		s.hub.Publish(events.Change{Kind: events.KindView})
		s.logger.Warn().Err(err).Str("view", d.Key()).Msg("view: load failed, keeping previous list")
		return fmt.Errorf("load %s: %w", d.Key(), err)
	}

	items := s.state.ledger.apply(page.Items, mark)
	total := page.Total - (len(page.Items) - len(items))
	if !s.state.View.commit(gen, items, total) {
		s.logger.Debug().Str("view", d.Key()).Msg("view: discarded stale result")
		return nil
	}
	s.hub.Publish(events.Change{Kind: events.KindView})
	s.snapshots.SaveView(ctx, d, items, total)
	return nil
}

// LoadMore appends the next page of the current view
func (s *ViewServiceImpl) LoadMore(ctx context.Context) error {
	gen, d, next, ok := s.state.View.beginMore()
	if !ok {
		return nil
	}
	mark := s.state.ledger.mark()
	defer s.state.ledger.release(mark)
	page, err := s.fetch(ctx, d, next)
	if err != nil {
		s.state.View.fail(gen)
		s.logger.Warn().Err(err).Str("view", d.Key()).Int("page", next).Msg("view: load more failed")
		return fmt.Errorf("load %s page %d: %w", d.Key(), next, err)
	}
	items := s.state.ledger.apply(page.Items, mark)
	if !s.state.View.appendPage(gen, next, items, page.Total) {
		s.logger.Debug().Str("view", d.Key()).Int("page", next).Msg("view: discarded stale page")
		return nil
	}
	s.hub.Publish(events.Change{Kind: events.KindView})
	return nil
}

func (s *ViewServiceImpl) fetch(ctx context.Context, d ViewDescriptor, page int) (*mailapi.MessagePage, error) {
	opts := mailapi.ListOptions{Page: page, PageSize: s.pageSize}
	var (
		res *mailapi.MessagePage
		err error
	)
	switch d.Kind {
	case ViewFolder:
		res, err = s.repo.ListMessages(ctx, d.FolderID, opts)
	case ViewFilter:
		opts.IsRead = d.Filter.IsRead
		opts.IsStarred = d.Filter.IsStarred
		opts.InboxOnly = d.InboxOnly
		res, err = s.repo.ListAllMessages(ctx, opts)
	case ViewAll:
		res, err = s.repo.ListAllMessages(ctx, opts)
	case ViewSnoozed:
		res, err = s.repo.ListSnoozed(ctx, opts)
	case ViewSearch:
		res, err = s.repo.SearchMessages(ctx, d.Query, opts)
	default:
		return nil, fmt.Errorf("%w: unknown view kind %d", ErrInvalidState, d.Kind)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, mailapi.ErrMalformedPayload
	}
	return res, nil
}
