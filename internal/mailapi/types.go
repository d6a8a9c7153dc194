package mailapi

import "time"

// FolderRole identifies the fixed semantic role of a mailbox folder
type FolderRole string

const (
	RoleInbox   FolderRole = "inbox"
	RoleSent    FolderRole = "sent"
	RoleDrafts  FolderRole = "drafts"
	RoleTrash   FolderRole = "trash"
	RoleSpam    FolderRole = "spam"
	RoleArchive FolderRole = "archive"
)

// FolderRoles is the fixed presentation order of system folders
var FolderRoles = []FolderRole{RoleInbox, RoleSent, RoleDrafts, RoleTrash, RoleSpam, RoleArchive}

// Folder is a mailbox folder as reported by the server
type Folder struct {
	ID          int64      `json:"id"`
	DisplayName string     `json:"name"`
	Role        FolderRole `json:"role"`
	UnreadCount int        `json:"unread_count"`
}

// MessageSummary is a row of a message list
type MessageSummary struct {
	ID             int64     `json:"id"`
	Subject        string    `json:"subject"`
	Sender         string    `json:"sender"`
	Snippet        string    `json:"snippet"`
	ReceivedAt     time.Time `json:"received_at"`
	IsRead         bool      `json:"is_read"`
	IsStarred      bool      `json:"is_starred"`
	HasAttachments bool      `json:"has_attachments"`
	DeliveryStatus string    `json:"delivery_status,omitempty"`
}

// Attachment describes a file attached to a message
type Attachment struct {
	ID        int64  `json:"id"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
}

// MessageDetail is the full content of a single message
type MessageDetail struct {
	MessageSummary
	Recipients    string       `json:"recipients"`
	BodyHTML      string       `json:"body_html"`
	BodyText      string       `json:"body_text"`
	DeliveryError string       `json:"delivery_error,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
}

// Summary returns the list-level view of the detail
func (d *MessageDetail) Summary() MessageSummary {
	return d.MessageSummary
}

// MessagePage is one page of a message collection
type MessagePage struct {
	Items []MessageSummary `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// ListOptions controls paging and flag filtering of list calls
type ListOptions struct {
	Page      int
	PageSize  int
	IsRead    *bool
	IsStarred *bool
	InboxOnly bool
}

// SyncResult is the response of a server-side sync trigger
type SyncResult struct {
	NewMessageCount int `json:"new_emails"`
}

// BulkResult reports the per-id outcome of a bulk action
type BulkResult struct {
	Status       string  `json:"status"`
	SuccessCount int     `json:"success_count"`
	FailedCount  int     `json:"failed_count"`
	FailedIDs    []int64 `json:"failed_ids"`
}

// Recipient is a single address of an outgoing message
type Recipient struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// OutgoingMessage is a message to be sent
type OutgoingMessage struct {
	To            []Recipient `json:"to"`
	Cc            []Recipient `json:"cc"`
	Subject       string      `json:"subject"`
	BodyText      string      `json:"body_text,omitempty"`
	BodyHTML      string      `json:"body_html"`
	ReplyToID     *int64      `json:"reply_to_id,omitempty"`
	IsTracked     bool        `json:"is_tracked"`
	AttachmentIDs []int64     `json:"attachment_ids"`
}

// Draft is an unsent message stored on the server
type Draft struct {
	ID        int64  `json:"id,omitempty"`
	To        string `json:"to"`
	Cc        string `json:"cc"`
	Subject   string `json:"subject"`
	BodyText  string `json:"body_text"`
	BodyHTML  string `json:"body_html"`
	ReplyToID *int64 `json:"reply_to_id,omitempty"`
}
