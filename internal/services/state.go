package services

import (
	"strings"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/mailapi"
)

// State bundles the owned state objects of one mail session.
// Tests build isolated instances with NewState.
type State struct {
	Folders    *FolderRegistry
	View       *ViewState
	Detail     *DetailCache
	Compose    *ComposeState
	Connection *ConnectionState

	ledger *mutationLedger
}

// NewState creates a state with placeholder folders and no active view
func NewState() *State {
	return &State{
		Folders:    NewFolderRegistry(),
		View:       &ViewState{},
		Detail:     &DetailCache{},
		Compose:    &ComposeState{mode: ModeCompose},
		Connection: &ConnectionState{},
		ledger:     newMutationLedger(),
	}
}

// FolderRegistry holds the six system folders in fixed presentation order
type FolderRegistry struct {
	mu       sync.RWMutex
	folders  []mailapi.Folder
	loaded   bool
	selected int64
}

// NewFolderRegistry creates a registry with one placeholder per role
func NewFolderRegistry() *FolderRegistry {
	r := &FolderRegistry{folders: make([]mailapi.Folder, 0, len(mailapi.FolderRoles))}
	for _, role := range mailapi.FolderRoles {
		r.folders = append(r.folders, mailapi.Folder{Role: role, DisplayName: defaultFolderName(role)})
	}
	return r
}

func defaultFolderName(role mailapi.FolderRole) string {
	s := string(role)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Folders returns a copy of the registry in presentation order
func (r *FolderRegistry) Folders() []mailapi.Folder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mailapi.Folder, len(r.folders))
	copy(out, r.folders)
	return out
}

// ByRole returns the folder of a role
func (r *FolderRegistry) ByRole(role mailapi.FolderRole) (mailapi.Folder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.folders {
		if f.Role == role {
			return f, true
		}
	}
	return mailapi.Folder{}, false
}

// Loaded reports whether a folder load has succeeded
func (r *FolderRegistry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// SelectedFolderID returns the selected folder id, 0 if none
func (r *FolderRegistry) SelectedFolderID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

func (r *FolderRegistry) selectFolder(id int64) {
	r.mu.Lock()
	r.selected = id
	r.mu.Unlock()
}

// merge applies server folders onto the placeholders. Unknown roles are ignored
// and entries are never removed or reordered. It reports whether this call
// selected the inbox.
func (r *FolderRegistry) merge(remote []mailapi.Folder) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeLocked(remote)
	first := !r.loaded
	r.loaded = true
	if first && r.selected == 0 {
		for _, f := range r.folders {
			if f.Role == mailapi.RoleInbox && f.ID != 0 {
				r.selected = f.ID
				return true
			}
		}
	}
	return false
}

// restore applies persisted folders unless a network load already happened
func (r *FolderRegistry) restore(saved []mailapi.Folder) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return false
	}
	r.mergeLocked(saved)
	return true
}

func (r *FolderRegistry) mergeLocked(remote []mailapi.Folder) {
	byRole := make(map[mailapi.FolderRole]mailapi.Folder, len(remote))
	for _, f := range remote {
		if _, dup := byRole[f.Role]; !dup {
			byRole[f.Role] = f
		}
	}
	for i := range r.folders {
		if rf, ok := byRole[r.folders[i].Role]; ok {
			r.folders[i].ID = rf.ID
			r.folders[i].UnreadCount = rf.UnreadCount
		}
	}
}

// ViewSnapshot is a consistent copy of the view state
type ViewSnapshot struct {
	Descriptor ViewDescriptor
	Active     bool
	Items      []mailapi.MessageSummary
	Total      int
	Page       int
	Loading    bool
	Searching  bool
	Query      string
	SelectedID int64
	Generation uint64
}

// ViewState is what the message list currently shows
type ViewState struct {
	mu          sync.RWMutex
	current     ViewDescriptor
	active      bool
	items       []mailapi.MessageSummary
	total       int
	page        int
	loading     bool
	loadingMore bool
	searching   bool
	query       string
	selectedID  int64
	generation  uint64
	// epoch changes only when the shown view is replaced, not on reloads
	epoch uint64
}

// Snapshot returns a copy of the whole view state
func (v *ViewState) Snapshot() ViewSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	items := make([]mailapi.MessageSummary, len(v.items))
	copy(items, v.items)
	return ViewSnapshot{
		Descriptor: v.current,
		Active:     v.active,
		Items:      items,
		Total:      v.total,
		Page:       v.page,
		Loading:    v.loading,
		Searching:  v.searching,
		Query:      v.query,
		SelectedID: v.selectedID,
		Generation: v.generation,
	}
}

// Descriptor returns the current view and whether one is active
func (v *ViewState) Descriptor() (ViewDescriptor, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current, v.active
}

// Items returns a copy of the loaded list
func (v *ViewState) Items() []mailapi.MessageSummary {
	return v.Snapshot().Items
}

// Item returns the loaded summary of id
func (v *ViewState) Item(id int64) (mailapi.MessageSummary, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if i := v.indexLocked(id); i >= 0 {
		return v.items[i], true
	}
	return mailapi.MessageSummary{}, false
}

// Loading reports whether a list fetch is outstanding
func (v *ViewState) Loading() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loading
}

// Searching reports whether the view shows search results, and for which query
func (v *ViewState) Searching() (bool, string) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.searching, v.query
}

// SelectedID returns the selected message id, 0 if none
func (v *ViewState) SelectedID() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.selectedID
}

// HasMore reports whether the server holds more items than are loaded
func (v *ViewState) HasMore() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.active && len(v.items) < v.total
}

func (v *ViewState) indexLocked(id int64) int {
	for i := range v.items {
		if v.items[i].ID == id {
			return i
		}
	}
	return -1
}

// begin switches to d, invalidating the list and selection
func (v *ViewState) begin(d ViewDescriptor) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.generation++
	v.epoch++
	v.current = d
	v.active = true
	v.items = nil
	v.total = 0
	v.page = 1
	v.selectedID = 0
	v.loading = true
	v.loadingMore = false
	v.searching = d.Kind == ViewSearch
	v.query = ""
	if v.searching {
		v.query = d.Query
	}
	return v.generation
}

// beginReload refetches the current view keeping what is shown
func (v *ViewState) beginReload() (uint64, ViewDescriptor, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active {
		return 0, ViewDescriptor{}, false
	}
	v.generation++
	v.loading = true
	v.loadingMore = false
	return v.generation, v.current, true
}

// beginMore reserves the next page of the current view
func (v *ViewState) beginMore() (uint64, ViewDescriptor, int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active || v.loading || v.loadingMore || len(v.items) >= v.total {
		return 0, ViewDescriptor{}, 0, false
	}
	v.loadingMore = true
	return v.generation, v.current, v.page + 1, true
}

// reset drops the active view without fetching
func (v *ViewState) reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.generation++
	v.epoch++
	v.current = ViewDescriptor{}
	v.active = false
	v.items = nil
	v.total = 0
	v.page = 0
	v.selectedID = 0
	v.loading = false
	v.loadingMore = false
	v.searching = false
	v.query = ""
}

// commit replaces the list wholesale if gen is still current
func (v *ViewState) commit(gen uint64, items []mailapi.MessageSummary, total int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return false
	}
	v.items = items
	v.total = total
	v.page = 1
	v.loading = false
	if v.selectedID != 0 && v.indexLocked(v.selectedID) < 0 {
		v.selectedID = 0
	}
	return true
}

// appendPage adds a further page if gen is still current
func (v *ViewState) appendPage(gen uint64, page int, items []mailapi.MessageSummary, total int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation {
		return false
	}
	v.loadingMore = false
	for _, it := range items {
		if v.indexLocked(it.ID) < 0 {
			v.items = append(v.items, it)
		}
	}
	v.total = total
	v.page = page
	return true
}

// fail clears the loading flags of gen, keeping the list
func (v *ViewState) fail(gen uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen == v.generation {
		v.loading = false
		v.loadingMore = false
	}
}

// restore installs a persisted list unless a view is already active
func (v *ViewState) restore(d ViewDescriptor, items []mailapi.MessageSummary, total, page int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active {
		return false
	}
	v.generation++
	v.epoch++
	v.current = d
	v.active = true
	v.items = items
	v.total = total
	v.page = max(page, 1)
	v.searching = d.Kind == ViewSearch
	if v.searching {
		v.query = d.Query
	}
	return true
}

func (v *ViewState) setSelected(id int64) {
	v.mu.Lock()
	v.selectedID = id
	v.mu.Unlock()
}

// updateItem applies fn to the row of id and returns the prior row
func (v *ViewState) updateItem(id int64, fn func(*mailapi.MessageSummary)) (mailapi.MessageSummary, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.indexLocked(id)
	if i < 0 {
		return mailapi.MessageSummary{}, false
	}
	prev := v.items[i]
	fn(&v.items[i])
	return prev, true
}

type removedItem struct {
	index int
	item  mailapi.MessageSummary
}

// viewRemoval is what removeItems took out of one view
type viewRemoval struct {
	epoch   uint64
	items   []removedItem
	cleared int64
}

// removeItems takes ids out of the list, returning what was removed in
// ascending index order and the selection it cleared, if any
func (v *ViewState) removeItems(ids []int64) viewRemoval {
	v.mu.Lock()
	defer v.mu.Unlock()
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var removed []removedItem
	kept := v.items[:0:0]
	for i, it := range v.items {
		if drop[it.ID] {
			removed = append(removed, removedItem{index: i, item: it})
			continue
		}
		kept = append(kept, it)
	}
	v.items = kept
	v.total = max(v.total-len(removed), len(v.items))
	var cleared int64
	if drop[v.selectedID] {
		cleared = v.selectedID
		v.selectedID = 0
	}
	return viewRemoval{epoch: v.epoch, items: removed, cleared: cleared}
}

// restoreItems puts the kept rows of rm back at their original positions.
// Nothing is restored once the view was replaced. Rows that reappeared
// through a reload are skipped.
func (v *ViewState) restoreItems(rm viewRemoval, keep func(int64) bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active || rm.epoch != v.epoch {
		return false
	}
	for _, r := range rm.items {
		if !keep(r.item.ID) {
			continue
		}
		if v.indexLocked(r.item.ID) >= 0 {
			continue
		}
		idx := min(r.index, len(v.items))
		v.items = append(v.items, mailapi.MessageSummary{})
		copy(v.items[idx+1:], v.items[idx:])
		v.items[idx] = r.item
		v.total++
	}
	return true
}

// reselect selects id if the view of epoch is still shown and nothing else is selected
func (v *ViewState) reselect(epoch uint64, id int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active && epoch == v.epoch && v.selectedID == 0 && v.indexLocked(id) >= 0 {
		v.selectedID = id
	}
}

// DetailCache holds the single open message
type DetailCache struct {
	mu        sync.RWMutex
	detail    *mailapi.MessageDetail
	requested int64
	loading   bool
	gen       uint64
}

// Current returns a copy of the open message
func (c *DetailCache) Current() (mailapi.MessageDetail, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.detail == nil {
		return mailapi.MessageDetail{}, false
	}
	return copyDetail(c.detail), true
}

// Loading reports whether a detail fetch is outstanding
func (c *DetailCache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// OpenID returns the id of the open or requested message, 0 if none
func (c *DetailCache) OpenID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.detail != nil {
		return c.detail.ID
	}
	return c.requested
}

func (c *DetailCache) begin(id int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.requested = id
	c.loading = true
	if c.detail != nil && c.detail.ID != id {
		c.detail = nil
	}
	return c.gen
}

func (c *DetailCache) commit(gen uint64, d mailapi.MessageDetail) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	cp := copyDetail(&d)
	c.detail = &cp
	c.loading = false
	return true
}

func (c *DetailCache) fail(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		c.loading = false
	}
}

// clear discards the open message and any fetch in flight
func (c *DetailCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.detail = nil
	c.requested = 0
	c.loading = false
}

// detailRemoval is what take removed from the cache
type detailRemoval struct {
	detail *mailapi.MessageDetail
	gen    uint64
}

// take clears the cache if it holds one of ids, returning what it held.
// The returned generation is set either way.
func (c *DetailCache) take(ids []int64) (detailRemoval, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	open := c.requested
	if c.detail != nil {
		open = c.detail.ID
	}
	for _, id := range ids {
		if id != 0 && id == open {
			prev := c.detail
			c.gen++
			c.detail = nil
			c.requested = 0
			c.loading = false
			return detailRemoval{detail: prev, gen: c.gen}, true
		}
	}
	return detailRemoval{gen: c.gen}, false
}

// unchanged reports whether nothing was opened, closed or cleared since gen
func (c *DetailCache) unchanged(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return gen == c.gen
}

// put reinstalls a detail taken by take if the cache was not opened,
// closed or cleared since
func (c *DetailCache) put(rm detailRemoval) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rm.detail == nil || rm.gen != c.gen {
		return false
	}
	c.gen++
	c.detail = rm.detail
	return true
}

// updateItem applies fn to the open message if it is id
func (c *DetailCache) updateItem(id int64, fn func(*mailapi.MessageSummary)) (mailapi.MessageSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detail == nil || c.detail.ID != id {
		return mailapi.MessageSummary{}, false
	}
	prev := c.detail.MessageSummary
	fn(&c.detail.MessageSummary)
	return prev, true
}

func copyDetail(d *mailapi.MessageDetail) mailapi.MessageDetail {
	cp := *d
	if d.Attachments != nil {
		cp.Attachments = make([]mailapi.Attachment, len(d.Attachments))
		copy(cp.Attachments, d.Attachments)
	}
	return cp
}

// ConnStatus is the state of the push channel
type ConnStatus int

const (
	Disconnected ConnStatus = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ConnectionInfo describes the push channel; Attempt and NextRetryAt are set while Reconnecting
type ConnectionInfo struct {
	Status      ConnStatus
	Attempt     int
	NextRetryAt time.Time
}

// ConnectionState tracks the push channel state machine
type ConnectionState struct {
	mu   sync.RWMutex
	info ConnectionInfo
}

// Get returns the current connection info
func (c *ConnectionState) Get() ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

func (c *ConnectionState) set(info ConnectionInfo) {
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
}
