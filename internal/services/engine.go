package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ajramos/mailsync/internal/events"
	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// EngineOptions configures an Engine. Only Repository is required.
type EngineOptions struct {
	Repository   Repository
	Dialer       PushDialer         // Optional - nil means polling only
	Credentials  CredentialSource   // Optional
	Snapshots    SnapshotRepository // Optional - nil disables warm start
	Account      string
	Self         string // the user's address, left out of reply-all
	PageSize     int
	PollInterval time.Duration
	RetryPolicy  RetryPolicy
	Logger       *zerolog.Logger
	State        *State // Optional - tests inject isolated state
}

// Engine wires the services around one owned State and one change hub
type Engine struct {
	state *State
	hub   *events.Hub

	folders   *FolderServiceImpl
	views     *ViewServiceImpl
	details   *DetailServiceImpl
	mutations *MutationServiceImpl
	compose   *ComposeServiceImpl
	sync      *SyncServiceImpl
	snapshots *SnapshotServiceImpl

	logger zerolog.Logger
}

// NewEngine creates an engine with placeholder folders and no active view
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("%w: repository required", ErrInvalidState)
	}
	state := opts.State
	if state == nil {
		state = NewState()
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	hub := events.NewHub()
	repo := opts.Repository

	e := &Engine{
		state:     state,
		hub:       hub,
		folders:   NewFolderService(repo, state, hub),
		views:     NewViewService(repo, state, hub, opts.PageSize),
		details:   NewDetailService(repo, state, hub),
		mutations: NewMutationService(repo, state, hub),
		compose:   NewComposeService(repo, repo, state, hub, opts.Self),
		logger:    logger,
	}
	e.sync = NewSyncService(repo, e.folders, e.views, state, hub)

	if opts.Snapshots != nil {
		account := opts.Account
		if account == "" {
			account = "default"
		}
		e.snapshots = NewSnapshotService(opts.Snapshots, account, opts.PageSize)
		e.snapshots.SetLogger(logger)
		e.folders.SetSnapshotService(e.snapshots)
		e.views.SetSnapshotService(e.snapshots)
	}

	e.details.SetMutationService(e.mutations)
	if opts.Dialer != nil {
		e.sync.SetPushChannel(opts.Dialer, opts.Credentials)
	}
	e.sync.SetRetryPolicy(opts.RetryPolicy)
	e.sync.SetPollInterval(opts.PollInterval)

	e.folders.SetLogger(logger)
	e.views.SetLogger(logger)
	e.details.SetLogger(logger)
	e.mutations.SetLogger(logger)
	e.compose.SetLogger(logger)
	e.sync.SetLogger(logger)
	return e, nil
}

// State returns the engine's state objects
func (e *Engine) State() *State {
	return e.state
}

// Subscribe registers an observer of state changes
func (e *Engine) Subscribe(buffer int) (<-chan events.Change, func()) {
	return e.hub.Subscribe(buffer)
}

// Bootstrap restores the last snapshot while loading folders, then shows the
// selected folder, or the inbox. A restored list is shown until the reload lands.
func (e *Engine) Bootstrap(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		restored, err := e.snapshots.Restore(ctx, e.state)
		if err != nil {
			e.logger.Warn().Err(err).Msg("engine: snapshot restore failed")
			return nil
		}
		if restored {
			e.hub.Publish(events.Change{Kind: events.KindFolders})
			e.hub.Publish(events.Change{Kind: events.KindView})
		}
		return nil
	})
	g.Go(func() error {
		return e.folders.LoadFolders(ctx)
	})
	folderErr := g.Wait()

	id := e.state.Folders.SelectedFolderID()
	if id == 0 {
		if inbox, ok := e.state.Folders.ByRole(mailapi.RoleInbox); ok {
			id = inbox.ID
		}
	}
	if id == 0 {
		if folderErr != nil {
			return folderErr
		}
		return fmt.Errorf("%w: server reported no inbox", ErrInvalidState)
	}

	var listErr error
	if d, ok := e.state.View.Descriptor(); ok && d.Equal(FolderView(id)) {
		e.state.Folders.selectFolder(id)
		listErr = e.views.Reload(ctx)
	} else {
		listErr = e.views.LoadEmails(ctx, id)
	}
	return errors.Join(folderErr, listErr)
}

// Close stops auto-sync
func (e *Engine) Close() {
	e.sync.StopAutoSync()
}

// Folders

func (e *Engine) LoadFolders(ctx context.Context) error { return e.folders.LoadFolders(ctx) }
func (e *Engine) SelectFolder(id int64)                 { e.folders.SelectFolder(id) }

// Views

func (e *Engine) SetView(ctx context.Context, d ViewDescriptor) error { return e.views.SetView(ctx, d) }
func (e *Engine) LoadEmails(ctx context.Context, folderID int64) error {
	return e.views.LoadEmails(ctx, folderID)
}
func (e *Engine) LoadFilteredEmails(ctx context.Context, pred FilterPredicate, inboxOnly bool) error {
	return e.views.LoadFilteredEmails(ctx, pred, inboxOnly)
}
func (e *Engine) LoadAllEmails(ctx context.Context) error     { return e.views.LoadAllEmails(ctx) }
func (e *Engine) LoadSnoozedEmails(ctx context.Context) error { return e.views.LoadSnoozedEmails(ctx) }
func (e *Engine) Search(ctx context.Context, q string) error  { return e.views.Search(ctx, q) }
func (e *Engine) ClearSearch(ctx context.Context) error       { return e.views.ClearSearch(ctx) }
func (e *Engine) Reload(ctx context.Context) error            { return e.views.Reload(ctx) }
func (e *Engine) LoadMore(ctx context.Context) error          { return e.views.LoadMore(ctx) }

// Detail

func (e *Engine) LoadEmailDetail(ctx context.Context, id int64) error {
	return e.details.LoadEmailDetail(ctx, id)
}
func (e *Engine) CloseDetail()                          { e.details.CloseDetail() }
func (e *Engine) SelectNext(ctx context.Context) error { return e.details.SelectNext(ctx) }
func (e *Engine) SelectPrev(ctx context.Context) error { return e.details.SelectPrev(ctx) }

// Mutations

func (e *Engine) ToggleRead(ctx context.Context, id int64, read bool) error {
	return e.mutations.ToggleRead(ctx, id, read)
}
func (e *Engine) ToggleStar(ctx context.Context, id int64, starred bool) error {
	return e.mutations.ToggleStar(ctx, id, starred)
}
func (e *Engine) Snooze(ctx context.Context, id int64, until *time.Time) error {
	return e.mutations.Snooze(ctx, id, until)
}
func (e *Engine) RemoveEmail(ctx context.Context, id int64) error {
	return e.mutations.RemoveEmail(ctx, id)
}
func (e *Engine) Archive(ctx context.Context, ids []int64) error { return e.mutations.Archive(ctx, ids) }
func (e *Engine) Move(ctx context.Context, ids []int64, folderID int64) error {
	return e.mutations.Move(ctx, ids, folderID)
}
func (e *Engine) BulkSetRead(ctx context.Context, ids []int64, read bool) error {
	return e.mutations.BulkSetRead(ctx, ids, read)
}
func (e *Engine) BulkSetStarred(ctx context.Context, ids []int64, starred bool) error {
	return e.mutations.BulkSetStarred(ctx, ids, starred)
}
func (e *Engine) BulkDelete(ctx context.Context, ids []int64) error {
	return e.mutations.BulkDelete(ctx, ids)
}
func (e *Engine) BulkSnooze(ctx context.Context, ids []int64, until *time.Time) error {
	return e.mutations.BulkSnooze(ctx, ids, until)
}

// Compose

func (e *Engine) StartCompose()        { e.compose.StartCompose() }
func (e *Engine) StartReply() error    { return e.compose.StartReply() }
func (e *Engine) StartReplyAll() error { return e.compose.StartReplyAll() }
func (e *Engine) StartForward() error  { return e.compose.StartForward() }
func (e *Engine) EditDraft(ctx context.Context, id int64) error {
	return e.compose.EditDraft(ctx, id)
}
func (e *Engine) ResetCompose()                  { e.compose.ResetCompose() }
func (e *Engine) Draft() mailapi.OutgoingMessage { return e.compose.Draft() }
func (e *Engine) Send(ctx context.Context, msg mailapi.OutgoingMessage) error {
	return e.compose.Send(ctx, msg)
}
func (e *Engine) SaveDraft(ctx context.Context, d mailapi.Draft) (*mailapi.Draft, error) {
	return e.compose.SaveDraft(ctx, d)
}
func (e *Engine) Discard(ctx context.Context) error         { return e.compose.Discard(ctx) }
func (e *Engine) Resend(ctx context.Context, id int64) error { return e.compose.Resend(ctx, id) }

// Sync

func (e *Engine) StartAutoSync(ctx context.Context) error { return e.sync.StartAutoSync(ctx) }
func (e *Engine) StopAutoSync()                           { e.sync.StopAutoSync() }
func (e *Engine) Sync(ctx context.Context) error          { return e.sync.Sync(ctx) }
func (e *Engine) Refresh(ctx context.Context) error       { return e.sync.Refresh(ctx) }
func (e *Engine) Syncing() bool                           { return e.sync.Syncing() }
func (e *Engine) LastSync() time.Time                     { return e.sync.LastSync() }

// Interface checks
var (
	_ FolderService   = (*FolderServiceImpl)(nil)
	_ ViewService     = (*ViewServiceImpl)(nil)
	_ DetailService   = (*DetailServiceImpl)(nil)
	_ MutationService = (*MutationServiceImpl)(nil)
	_ ComposeService  = (*ComposeServiceImpl)(nil)
	_ SyncService     = (*SyncServiceImpl)(nil)
	_ FolderService   = (*Engine)(nil)
	_ ViewService     = (*Engine)(nil)
	_ DetailService   = (*Engine)(nil)
	_ MutationService = (*Engine)(nil)
	_ ComposeService  = (*Engine)(nil)
	_ SyncService     = (*Engine)(nil)
)
