package mailapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ajramos/mailsync/internal/version"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Client talks to the remote mail service REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// envelope is the {status, data} wrapper most endpoints answer with
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

// NewClient creates a client that authenticates every request with tokens from ts.
// A nil token source produces unauthenticated requests.
func NewClient(ctx context.Context, baseURL string, ts oauth2.TokenSource, timeout time.Duration) *Client {
	var hc *http.Client
	if ts != nil {
		hc = oauth2.NewClient(ctx, ts)
	} else {
		hc = &http.Client{}
	}
	if timeout > 0 {
		hc.Timeout = timeout
	}
	return NewClientWithHTTP(baseURL, hc)
}

// NewClientWithHTTP creates a client on top of an existing http.Client
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		logger:     zerolog.Nop(),
	}
}

// SetLogger sets the logger for request tracing
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// ListFolders returns the folder metadata of the current user
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	var out []Folder
	if err := c.call(ctx, http.MethodGet, "/folders", nil, nil, &out, true); err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return out, nil
}

// ListMessages returns one page of a folder
func (c *Client) ListMessages(ctx context.Context, folderID int64, opts ListOptions) (*MessagePage, error) {
	q := pageQuery(opts)
	q.Set("folder_id", strconv.FormatInt(folderID, 10))
	setFlags(q, opts)
	return c.listPage(ctx, "/emails", q)
}

// ListAllMessages returns one page across folders
func (c *Client) ListAllMessages(ctx context.Context, opts ListOptions) (*MessagePage, error) {
	q := pageQuery(opts)
	setFlags(q, opts)
	if opts.InboxOnly {
		q.Set("inbox_only", "true")
	}
	return c.listPage(ctx, "/emails/all", q)
}

// ListSnoozed returns one page of snoozed messages
func (c *Client) ListSnoozed(ctx context.Context, opts ListOptions) (*MessagePage, error) {
	return c.listPage(ctx, "/emails/snoozed", pageQuery(opts))
}

// SearchMessages returns one page of full-text search results
func (c *Client) SearchMessages(ctx context.Context, query string, opts ListOptions) (*MessagePage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	q := pageQuery(opts)
	q.Set("q", query)
	return c.listPage(ctx, "/emails/search", q)
}

// GetMessage returns the full content of a message
func (c *Client) GetMessage(ctx context.Context, id int64) (*MessageDetail, error) {
	var out MessageDetail
	if err := c.call(ctx, http.MethodGet, messagePath(id, ""), nil, nil, &out, true); err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return &out, nil
}

// TriggerSync asks the server to pull new mail
func (c *Client) TriggerSync(ctx context.Context) (*SyncResult, error) {
	var out SyncResult
	if err := c.call(ctx, http.MethodPost, "/emails/sync", nil, nil, &out, true); err != nil {
		return nil, fmt.Errorf("failed to trigger sync: %w", err)
	}
	return &out, nil
}

// SetRead marks a message read or unread
func (c *Client) SetRead(ctx context.Context, id int64, read bool) error {
	q := url.Values{"is_read": {strconv.FormatBool(read)}}
	if err := c.call(ctx, http.MethodPatch, messagePath(id, "/read"), q, nil, nil, true); err != nil {
		return fmt.Errorf("failed to set read on %d: %w", id, err)
	}
	return nil
}

// SetStarred stars or unstars a message
func (c *Client) SetStarred(ctx context.Context, id int64, starred bool) error {
	q := url.Values{"is_starred": {strconv.FormatBool(starred)}}
	if err := c.call(ctx, http.MethodPatch, messagePath(id, "/star"), q, nil, nil, true); err != nil {
		return fmt.Errorf("failed to set star on %d: %w", id, err)
	}
	return nil
}

// DeleteMessage moves a message to trash (or purges it when already there)
func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	if err := c.call(ctx, http.MethodDelete, messagePath(id, ""), nil, nil, nil, true); err != nil {
		return fmt.Errorf("failed to delete %d: %w", id, err)
	}
	return nil
}

// SnoozeMessage hides a message until the given time; nil clears the snooze
func (c *Client) SnoozeMessage(ctx context.Context, id int64, until *time.Time) error {
	var q url.Values
	if until != nil {
		q = url.Values{"snooze_until": {until.UTC().Format(time.RFC3339)}}
	}
	if err := c.call(ctx, http.MethodPatch, messagePath(id, "/snooze"), q, nil, nil, true); err != nil {
		return fmt.Errorf("failed to snooze %d: %w", id, err)
	}
	return nil
}

// ResendMessage re-queues a failed outgoing message
func (c *Client) ResendMessage(ctx context.Context, id int64) error {
	if err := c.call(ctx, http.MethodPost, messagePath(id, "/resend"), nil, nil, nil, true); err != nil {
		return fmt.Errorf("failed to resend %d: %w", id, err)
	}
	return nil
}

// SendMessage sends a new message
func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage) error {
	if msg.AttachmentIDs == nil {
		msg.AttachmentIDs = []int64{}
	}
	if msg.Cc == nil {
		msg.Cc = []Recipient{}
	}
	if err := c.call(ctx, http.MethodPost, "/emails/send", nil, msg, nil, false); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SaveDraft creates a draft, or updates it when d.ID is set
func (c *Client) SaveDraft(ctx context.Context, d Draft) (*Draft, error) {
	method, path := http.MethodPost, "/emails/drafts"
	if d.ID != 0 {
		method, path = http.MethodPut, "/emails/drafts/"+strconv.FormatInt(d.ID, 10)
	}
	var out Draft
	if err := c.call(ctx, method, path, nil, d, &out, true); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	if out.ID == 0 {
		out.ID = d.ID
	}
	return &out, nil
}

// DeleteDraft removes a draft
func (c *Client) DeleteDraft(ctx context.Context, id int64) error {
	if err := c.call(ctx, http.MethodDelete, "/emails/drafts/"+strconv.FormatInt(id, 10), nil, nil, nil, true); err != nil {
		return fmt.Errorf("failed to delete draft %d: %w", id, err)
	}
	return nil
}

// BulkSetRead marks several messages read or unread
func (c *Client) BulkSetRead(ctx context.Context, ids []int64, read bool) (*BulkResult, error) {
	return c.bulk(ctx, "/emails/bulk/read", url.Values{"is_read": {strconv.FormatBool(read)}}, ids, 0)
}

// BulkSetStarred stars or unstars several messages
func (c *Client) BulkSetStarred(ctx context.Context, ids []int64, starred bool) (*BulkResult, error) {
	return c.bulk(ctx, "/emails/bulk/star", url.Values{"is_starred": {strconv.FormatBool(starred)}}, ids, 0)
}

// BulkMove moves several messages into another folder
func (c *Client) BulkMove(ctx context.Context, ids []int64, folderID int64) (*BulkResult, error) {
	return c.bulk(ctx, "/emails/bulk/move", nil, ids, folderID)
}

// BulkDelete deletes several messages
func (c *Client) BulkDelete(ctx context.Context, ids []int64) (*BulkResult, error) {
	return c.bulk(ctx, "/emails/bulk/delete", nil, ids, 0)
}

// BulkArchive archives several messages
func (c *Client) BulkArchive(ctx context.Context, ids []int64) (*BulkResult, error) {
	return c.bulk(ctx, "/emails/bulk/archive", nil, ids, 0)
}

func (c *Client) bulk(ctx context.Context, path string, q url.Values, ids []int64, folderID int64) (*BulkResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no message IDs provided")
	}
	body := map[string]any{"email_ids": ids}
	if folderID != 0 {
		body["target_folder_id"] = folderID
	}
	var out BulkResult
	if err := c.call(ctx, http.MethodPost, path, q, body, &out, false); err != nil {
		return nil, fmt.Errorf("bulk action %s failed: %w", path, err)
	}
	return &out, nil
}

func (c *Client) listPage(ctx context.Context, path string, q url.Values) (*MessagePage, error) {
	var out MessagePage
	if err := c.call(ctx, http.MethodGet, path, q, nil, &out, true); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	if out.Items == nil {
		out.Items = []MessageSummary{}
	}
	return &out, nil
}

// call performs one request; enveloped responses are unwrapped from {status, data}
func (c *Client) call(ctx context.Context, method, path string, q url.Values, in, out any, enveloped bool) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrNetwork, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request done")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		return errorForStatus(resp.StatusCode, eb.Detail)
	}

	if out == nil {
		return nil
	}
	if enveloped {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("decode envelope: %w: %v", ErrMalformedPayload, err)
		}
		data = env.Data
		if len(data) == 0 || string(data) == "null" {
			return fmt.Errorf("empty data: %w", ErrMalformedPayload)
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func pageQuery(opts ListOptions) url.Values {
	page, size := opts.Page, opts.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	return url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(size)},
	}
}

func setFlags(q url.Values, opts ListOptions) {
	if opts.IsRead != nil {
		q.Set("is_read", strconv.FormatBool(*opts.IsRead))
	}
	if opts.IsStarred != nil {
		q.Set("is_starred", strconv.FormatBool(*opts.IsStarred))
	}
}

func messagePath(id int64, suffix string) string {
	return "/emails/" + strconv.FormatInt(id, 10) + suffix
}
