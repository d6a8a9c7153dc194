package services

import (
	"context"
	"fmt"

	"github.com/ajramos/mailsync/internal/events"
	"github.com/rs/zerolog"
)

// FolderServiceImpl implements FolderService
type FolderServiceImpl struct {
	repo      MessageRepository
	state     *State
	hub       *events.Hub
	snapshots *SnapshotServiceImpl // Optional
	logger    zerolog.Logger
}

// NewFolderService creates a new folder service
func NewFolderService(repo MessageRepository, state *State, hub *events.Hub) *FolderServiceImpl {
	return &FolderServiceImpl{
		repo:   repo,
		state:  state,
		hub:    hub,
		logger: zerolog.Nop(),
	}
}

// SetLogger sets the logger for load failures
func (s *FolderServiceImpl) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// SetSnapshotService enables persisting the registry after each load
func (s *FolderServiceImpl) SetSnapshotService(snapshots *SnapshotServiceImpl) {
	s.snapshots = snapshots
}

// LoadFolders fetches folder metadata and merges it onto the fixed roles.
// On failure the registry keeps its last known values and the error is returned
// for callers that want it; nothing is retried here.
func (s *FolderServiceImpl) LoadFolders(ctx context.Context) error {
	remote, err := s.repo.ListFolders(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("folders: load failed, keeping last known registry")
		return fmt.Errorf("load folders: %w", err)
	}

	selected := s.state.Folders.merge(remote)
	if selected {
		s.logger.Debug().Int64("folder_id", s.state.Folders.SelectedFolderID()).Msg("folders: selected inbox")
	}
	s.hub.Publish(events.Change{Kind: events.KindFolders})
	s.snapshots.SaveFolders(ctx, s.state.Folders.Folders())
	return nil
}

// SelectFolder marks a folder as the selected one without loading it
func (s *FolderServiceImpl) SelectFolder(folderID int64) {
	s.state.Folders.selectFolder(folderID)
	s.hub.Publish(events.Change{Kind: events.KindFolders})
}
