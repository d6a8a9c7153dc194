package services

import (
	"context"
	"time"

	"github.com/ajramos/mailsync/internal/db"
	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/ajramos/mailsync/internal/push"
)

// MessageRepository reads folders and messages from the mail service
type MessageRepository interface {
	ListFolders(ctx context.Context) ([]mailapi.Folder, error)
	ListMessages(ctx context.Context, folderID int64, opts mailapi.ListOptions) (*mailapi.MessagePage, error)
	ListAllMessages(ctx context.Context, opts mailapi.ListOptions) (*mailapi.MessagePage, error)
	ListSnoozed(ctx context.Context, opts mailapi.ListOptions) (*mailapi.MessagePage, error)
	SearchMessages(ctx context.Context, query string, opts mailapi.ListOptions) (*mailapi.MessagePage, error)
	GetMessage(ctx context.Context, id int64) (*mailapi.MessageDetail, error)
	TriggerSync(ctx context.Context) (*mailapi.SyncResult, error)
}

// MutationRepository applies flag and placement changes on the mail service
type MutationRepository interface {
	SetRead(ctx context.Context, id int64, read bool) error
	SetStarred(ctx context.Context, id int64, starred bool) error
	DeleteMessage(ctx context.Context, id int64) error
	SnoozeMessage(ctx context.Context, id int64, until *time.Time) error
	BulkSetRead(ctx context.Context, ids []int64, read bool) (*mailapi.BulkResult, error)
	BulkSetStarred(ctx context.Context, ids []int64, starred bool) (*mailapi.BulkResult, error)
	BulkMove(ctx context.Context, ids []int64, folderID int64) (*mailapi.BulkResult, error)
	BulkDelete(ctx context.Context, ids []int64) (*mailapi.BulkResult, error)
	BulkArchive(ctx context.Context, ids []int64) (*mailapi.BulkResult, error)
}

// OutboxRepository sends messages and manages drafts
type OutboxRepository interface {
	SendMessage(ctx context.Context, msg mailapi.OutgoingMessage) error
	SaveDraft(ctx context.Context, d mailapi.Draft) (*mailapi.Draft, error)
	DeleteDraft(ctx context.Context, id int64) error
	ResendMessage(ctx context.Context, id int64) error
}

// Repository is everything the engine needs from the mail service; *mailapi.Client implements it
type Repository interface {
	MessageRepository
	MutationRepository
	OutboxRepository
}

// PushDialer opens push connections; *push.Dialer implements it
type PushDialer interface {
	Dial(ctx context.Context, token string) (push.Conn, error)
}

// CredentialSource returns the current session credential, or why there is none
type CredentialSource func() (string, error)

// SnapshotRepository persists warm-start snapshots; *db.SnapshotStore implements it
type SnapshotRepository interface {
	SaveFolders(ctx context.Context, account string, folders []mailapi.Folder) error
	LoadFolders(ctx context.Context, account string) ([]mailapi.Folder, error)
	SaveView(ctx context.Context, account, viewKey string, items []mailapi.MessageSummary, total int) error
	LoadView(ctx context.Context, account, viewKey string) (*db.ViewSnapshot, bool, error)
}

// FolderService keeps the folder registry current
type FolderService interface {
	LoadFolders(ctx context.Context) error
	SelectFolder(folderID int64)
}

// ViewService switches and reloads the message list
type ViewService interface {
	SetView(ctx context.Context, d ViewDescriptor) error
	LoadEmails(ctx context.Context, folderID int64) error
	LoadFilteredEmails(ctx context.Context, pred FilterPredicate, inboxOnly bool) error
	LoadAllEmails(ctx context.Context) error
	LoadSnoozedEmails(ctx context.Context) error
	Search(ctx context.Context, query string) error
	ClearSearch(ctx context.Context) error
	Reload(ctx context.Context) error
	LoadMore(ctx context.Context) error
}

// DetailService opens messages
type DetailService interface {
	LoadEmailDetail(ctx context.Context, id int64) error
	CloseDetail()
	SelectNext(ctx context.Context) error
	SelectPrev(ctx context.Context) error
}

// MutationService applies optimistic changes and reconciles them with the server
type MutationService interface {
	ToggleRead(ctx context.Context, id int64, read bool) error
	ToggleStar(ctx context.Context, id int64, starred bool) error
	Snooze(ctx context.Context, id int64, until *time.Time) error
	RemoveEmail(ctx context.Context, id int64) error
	Archive(ctx context.Context, ids []int64) error
	Move(ctx context.Context, ids []int64, folderID int64) error
	BulkSetRead(ctx context.Context, ids []int64, read bool) error
	BulkSetStarred(ctx context.Context, ids []int64, starred bool) error
	BulkDelete(ctx context.Context, ids []int64) error
	BulkSnooze(ctx context.Context, ids []int64, until *time.Time) error
}

// ComposeService drives the authoring state machine
type ComposeService interface {
	StartCompose()
	StartReply() error
	StartReplyAll() error
	StartForward() error
	EditDraft(ctx context.Context, draftID int64) error
	ResetCompose()
	Draft() mailapi.OutgoingMessage
	Send(ctx context.Context, msg mailapi.OutgoingMessage) error
	SaveDraft(ctx context.Context, d mailapi.Draft) (*mailapi.Draft, error)
	Discard(ctx context.Context) error
	Resend(ctx context.Context, id int64) error
}

// SyncService owns the push channel and the polling fallback
type SyncService interface {
	StartAutoSync(ctx context.Context) error
	StopAutoSync()
	Sync(ctx context.Context) error
	Refresh(ctx context.Context) error
	Syncing() bool
	LastSync() time.Time
}
