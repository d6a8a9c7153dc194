package mailapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
	return NewClient(context.Background(), srv.URL+"/api", ts, 5*time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ListFolders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/folders", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, 200, map[string]any{
			"status": "success",
			"data": []map[string]any{
				{"id": 7, "name": "Inbox", "role": "inbox", "unread_count": 2},
				{"id": 8, "name": "Sent", "role": "sent", "unread_count": 0},
			},
		})
	})

	folders, err := c.ListFolders(context.Background())
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, int64(7), folders[0].ID)
	assert.Equal(t, RoleInbox, folders[0].Role)
	assert.Equal(t, 2, folders[0].UnreadCount)
}

func TestClient_ListMessages_Query(t *testing.T) {
	read := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/emails", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "7", q.Get("folder_id"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "25", q.Get("limit"))
		assert.Equal(t, "false", q.Get("is_read"))
		assert.Empty(t, q.Get("is_starred"))
		writeJSON(w, 200, map[string]any{
			"status": "success",
			"data": map[string]any{
				"items": []map[string]any{{"id": 1, "subject": "hi", "sender": "a@b.c", "received_at": "2024-01-02T03:04:05Z"}},
				"total": 30, "page": 2, "limit": 25,
			},
		})
	})

	page, err := c.ListMessages(context.Background(), 7, ListOptions{Page: 2, PageSize: 25, IsRead: &read})
	require.NoError(t, err)
	assert.Equal(t, 30, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "hi", page.Items[0].Subject)
}

func TestClient_ListAllMessages_InboxOnly(t *testing.T) {
	starred := true
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/emails/all", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("inbox_only"))
		assert.Equal(t, "true", r.URL.Query().Get("is_starred"))
		writeJSON(w, 200, map[string]any{"status": "success", "data": map[string]any{"items": nil, "total": 0}})
	})

	page, err := c.ListAllMessages(context.Background(), ListOptions{IsStarred: &starred, InboxOnly: true})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestClient_SearchMessages_EmptyQuery(t *testing.T) {
	c := NewClientWithHTTP("http://unused", http.DefaultClient)
	_, err := c.SearchMessages(context.Background(), "  ", ListOptions{})
	assert.Error(t, err)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"not_found", http.StatusNotFound, ErrNotFound},
		{"server", http.StatusBadGateway, ErrServer},
		{"rejected", http.StatusUnprocessableEntity, ErrRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]any{"detail": "nope"})
			})
			_, err := c.GetMessage(context.Background(), 3)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "nope", apiErr.Detail)
		})
	}
}

func TestClient_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = io.WriteString(w, "<html>")
	})
	_, err := c.ListFolders(context.Background())
	assert.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClientWithHTTP(url, &http.Client{Timeout: time.Second})
	_, err := c.TriggerSync(context.Background())
	assert.True(t, errors.Is(err, ErrNetwork))
}

func TestClient_Mutations(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		writeJSON(w, 200, map[string]any{"status": "success", "data": map[string]any{"id": 5}})
	})
	ctx := context.Background()
	until := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, c.SetRead(ctx, 5, true))
	require.NoError(t, c.SetStarred(ctx, 5, false))
	require.NoError(t, c.SnoozeMessage(ctx, 5, &until))
	require.NoError(t, c.SnoozeMessage(ctx, 5, nil))
	require.NoError(t, c.DeleteMessage(ctx, 5))

	assert.Equal(t, []string{
		"PATCH /api/emails/5/read?is_read=true",
		"PATCH /api/emails/5/star?is_starred=false",
		"PATCH /api/emails/5/snooze?snooze_until=2030-01-01T09%3A00%3A00Z",
		"PATCH /api/emails/5/snooze?",
		"DELETE /api/emails/5?",
	}, calls)
}

func TestClient_BulkMove(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/emails/bulk/move", r.URL.Path)
		var body struct {
			IDs    []int64 `json:"email_ids"`
			Target int64   `json:"target_folder_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []int64{1, 2}, body.IDs)
		assert.Equal(t, int64(9), body.Target)
		writeJSON(w, 200, map[string]any{"status": "success", "success_count": 1, "failed_count": 1, "failed_ids": []int64{2}})
	})

	res, err := c.BulkMove(context.Background(), []int64{1, 2}, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, []int64{2}, res.FailedIDs)
}

func TestClient_BulkEmpty(t *testing.T) {
	c := NewClientWithHTTP("http://unused", http.DefaultClient)
	_, err := c.BulkDelete(context.Background(), nil)
	assert.Error(t, err)
}

func TestClient_SaveDraft(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/api/emails/drafts", r.URL.Path)
			writeJSON(w, 200, map[string]any{"status": "success", "data": map[string]any{"id": 42, "subject": "s"}})
		case http.MethodPut:
			assert.Equal(t, "/api/emails/drafts/42", r.URL.Path)
			writeJSON(w, 200, map[string]any{"status": "success", "data": map[string]any{"subject": "s2"}})
		}
	})
	ctx := context.Background()

	d, err := c.SaveDraft(ctx, Draft{Subject: "s"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), d.ID)

	d, err = c.SaveDraft(ctx, Draft{ID: 42, Subject: "s2"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), d.ID)
	assert.Equal(t, "s2", d.Subject)
}
