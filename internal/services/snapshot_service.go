package services

import (
	"context"

	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/rs/zerolog"
)

// SnapshotServiceImpl persists the folder registry and loaded lists so a new
// session can show the last known state before the network answers
type SnapshotServiceImpl struct {
	store    SnapshotRepository
	account  string
	pageSize int
	logger   zerolog.Logger
}

// NewSnapshotService creates a snapshot service for one account
func NewSnapshotService(store SnapshotRepository, account string, pageSize int) *SnapshotServiceImpl {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &SnapshotServiceImpl{
		store:    store,
		account:  account,
		pageSize: pageSize,
		logger:   zerolog.Nop(),
	}
}

// SetLogger sets the logger for persistence failures
func (s *SnapshotServiceImpl) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

func (s *SnapshotServiceImpl) enabled() bool {
	return s != nil && s.store != nil
}

// SaveFolders persists the registry; failures are logged only
func (s *SnapshotServiceImpl) SaveFolders(ctx context.Context, folders []mailapi.Folder) {
	if !s.enabled() {
		return
	}
	if err := s.store.SaveFolders(ctx, s.account, folders); err != nil {
		s.logger.Warn().Err(err).Msg("snapshot: save folders failed")
	}
}

// SaveView persists a loaded list. Search results are not kept.
func (s *SnapshotServiceImpl) SaveView(ctx context.Context, d ViewDescriptor, items []mailapi.MessageSummary, total int) {
	if !s.enabled() || d.Kind == ViewSearch {
		return
	}
	if err := s.store.SaveView(ctx, s.account, d.Key(), items, total); err != nil {
		s.logger.Warn().Err(err).Str("view", d.Key()).Msg("snapshot: save view failed")
	}
}

// Restore installs persisted folders and the inbox list into state. Nothing is
// overwritten once a network load has populated the registry or a view is active.
// It reports whether a list was restored.
func (s *SnapshotServiceImpl) Restore(ctx context.Context, state *State) (bool, error) {
	if !s.enabled() {
		return false, nil
	}
	folders, err := s.store.LoadFolders(ctx, s.account)
	if err != nil {
		return false, err
	}
	if len(folders) == 0 || !state.Folders.restore(folders) {
		return false, nil
	}

	inbox, ok := state.Folders.ByRole(mailapi.RoleInbox)
	if !ok || inbox.ID == 0 {
		return false, nil
	}
	d := FolderView(inbox.ID)
	snap, found, err := s.store.LoadView(ctx, s.account, d.Key())
	if err != nil || !found {
		return false, err
	}
	pages := (len(snap.Items) + s.pageSize - 1) / s.pageSize
	if !state.View.restore(d, snap.Items, snap.Total, pages) {
		return false, nil
	}
	s.logger.Debug().Str("view", d.Key()).Int("items", len(snap.Items)).Msg("snapshot: restored list")
	return true, nil
}
