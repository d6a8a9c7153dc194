package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/events"
	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/ajramos/mailsync/internal/push"
	"github.com/stretchr/testify/mock"
)

// MockRepository implements Repository for testing
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListFolders(ctx context.Context) ([]mailapi.Folder, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mailapi.Folder), args.Error(1)
}

func (m *MockRepository) page(args mock.Arguments) (*mailapi.MessagePage, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailapi.MessagePage), args.Error(1)
}

func (m *MockRepository) ListMessages(ctx context.Context, folderID int64, opts mailapi.ListOptions) (*mailapi.MessagePage, error) {
	return m.page(m.Called(ctx, folderID, opts))
}

func (m *MockRepository) ListAllMessages(ctx context.Context, opts mailapi.ListOptions) (*mailapi.MessagePage, error) {
	return m.page(m.Called(ctx, opts))
}

func (m *MockRepository) ListSnoozed(ctx context.Context, opts mailapi.ListOptions) (*mailapi.MessagePage, error) {
	return m.page(m.Called(ctx, opts))
}

func (m *MockRepository) SearchMessages(ctx context.Context, query string, opts mailapi.ListOptions) (*mailapi.MessagePage, error) {
	return m.page(m.Called(ctx, query, opts))
}

func (m *MockRepository) GetMessage(ctx context.Context, id int64) (*mailapi.MessageDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailapi.MessageDetail), args.Error(1)
}

func (m *MockRepository) TriggerSync(ctx context.Context) (*mailapi.SyncResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailapi.SyncResult), args.Error(1)
}

func (m *MockRepository) SetRead(ctx context.Context, id int64, read bool) error {
	return m.Called(ctx, id, read).Error(0)
}

func (m *MockRepository) SetStarred(ctx context.Context, id int64, starred bool) error {
	return m.Called(ctx, id, starred).Error(0)
}

func (m *MockRepository) DeleteMessage(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) SnoozeMessage(ctx context.Context, id int64, until *time.Time) error {
	return m.Called(ctx, id, until).Error(0)
}

func (m *MockRepository) bulk(args mock.Arguments) (*mailapi.BulkResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailapi.BulkResult), args.Error(1)
}

func (m *MockRepository) BulkSetRead(ctx context.Context, ids []int64, read bool) (*mailapi.BulkResult, error) {
	return m.bulk(m.Called(ctx, ids, read))
}

func (m *MockRepository) BulkSetStarred(ctx context.Context, ids []int64, starred bool) (*mailapi.BulkResult, error) {
	return m.bulk(m.Called(ctx, ids, starred))
}

func (m *MockRepository) BulkMove(ctx context.Context, ids []int64, folderID int64) (*mailapi.BulkResult, error) {
	return m.bulk(m.Called(ctx, ids, folderID))
}

func (m *MockRepository) BulkDelete(ctx context.Context, ids []int64) (*mailapi.BulkResult, error) {
	return m.bulk(m.Called(ctx, ids))
}

func (m *MockRepository) BulkArchive(ctx context.Context, ids []int64) (*mailapi.BulkResult, error) {
	return m.bulk(m.Called(ctx, ids))
}

func (m *MockRepository) SendMessage(ctx context.Context, msg mailapi.OutgoingMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockRepository) SaveDraft(ctx context.Context, d mailapi.Draft) (*mailapi.Draft, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailapi.Draft), args.Error(1)
}

func (m *MockRepository) DeleteDraft(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) ResendMessage(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

var _ Repository = (*MockRepository)(nil)

// fakeConn is a push connection fed by a channel. Close unblocks Receive.
type fakeConn struct {
	events chan push.Event
	errs   chan error
	once   sync.Once
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan push.Event, 8),
		errs:   make(chan error, 8),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Receive() (push.Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case err := <-c.errs:
		return push.Event{}, err
	case <-c.closed:
		return push.Event{}, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer hands out queued connections, failing when none is queued
type fakeDialer struct {
	mu     sync.Mutex
	conns  []*fakeConn
	dials  int
	tokens []string
}

func (d *fakeDialer) queue(c *fakeConn) {
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(_ context.Context, token string) (push.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.tokens = append(d.tokens, token)
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func staticToken(tok string) CredentialSource {
	return func() (string, error) { return tok, nil }
}

func serverFolders() []mailapi.Folder {
	return []mailapi.Folder{
		{ID: 9, DisplayName: "Archive", Role: mailapi.RoleArchive},
		{ID: 7, DisplayName: "Inbox", Role: mailapi.RoleInbox, UnreadCount: 2},
		{ID: 8, DisplayName: "Sent", Role: mailapi.RoleSent},
		{ID: 10, DisplayName: "Drafts", Role: mailapi.RoleDrafts},
		{ID: 11, DisplayName: "Trash", Role: mailapi.RoleTrash},
		{ID: 12, DisplayName: "Spam", Role: mailapi.RoleSpam},
	}
}

func msg(id int64, read bool) mailapi.MessageSummary {
	return mailapi.MessageSummary{
		ID:         id,
		Subject:    "subject",
		Sender:     "Alice <alice@example.com>",
		ReceivedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		IsRead:     read,
	}
}

func pageOf(items ...mailapi.MessageSummary) *mailapi.MessagePage {
	return &mailapi.MessagePage{Items: items, Total: len(items), Page: 1, Limit: defaultPageSize}
}

func firstPage() mailapi.ListOptions {
	return mailapi.ListOptions{Page: 1, PageSize: defaultPageSize}
}

func ids(items []mailapi.MessageSummary) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

// harness wires the services the way Engine does, around a mock repository
type harness struct {
	repo      *MockRepository
	state     *State
	hub       *events.Hub
	folders   *FolderServiceImpl
	views     *ViewServiceImpl
	details   *DetailServiceImpl
	mutations *MutationServiceImpl
	compose   *ComposeServiceImpl
}

func newHarness() *harness {
	repo := new(MockRepository)
	state := NewState()
	hub := events.NewHub()
	h := &harness{
		repo:      repo,
		state:     state,
		hub:       hub,
		folders:   NewFolderService(repo, state, hub),
		views:     NewViewService(repo, state, hub, defaultPageSize),
		details:   NewDetailService(repo, state, hub),
		mutations: NewMutationService(repo, state, hub),
		compose:   NewComposeService(repo, repo, state, hub, "me@example.com"),
	}
	h.details.SetMutationService(h.mutations)
	return h
}

// showInbox loads folders and the inbox list with the given rows
func (h *harness) showInbox(items ...mailapi.MessageSummary) {
	ctx := context.Background()
	h.repo.On("ListFolders", mock.Anything).Return(serverFolders(), nil).Once()
	h.repo.On("ListMessages", mock.Anything, int64(7), firstPage()).Return(pageOf(items...), nil).Once()
	if err := h.folders.LoadFolders(ctx); err != nil {
		panic(err)
	}
	if err := h.views.LoadEmails(ctx, 7); err != nil {
		panic(err)
	}
}

// openDetail installs an open message without a server round trip
func (h *harness) openDetail(d mailapi.MessageDetail) {
	gen := h.state.Detail.begin(d.ID)
	h.state.Detail.commit(gen, d)
	h.state.View.setSelected(d.ID)
}
