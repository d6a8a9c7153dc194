package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/jmoiron/sqlx"
)

// SnapshotStore persists the last known folder registry and message lists
type SnapshotStore struct {
	db *sqlx.DB
}

// ViewSnapshot is a persisted message list
type ViewSnapshot struct {
	Items     []mailapi.MessageSummary
	Total     int
	UpdatedAt time.Time
}

type folderRow struct {
	Account     string `db:"account"`
	Role        string `db:"role"`
	FolderID    int64  `db:"folder_id"`
	Name        string `db:"name"`
	UnreadCount int    `db:"unread_count"`
	Position    int    `db:"position"`
	UpdatedAt   int64  `db:"updated_at"`
}

type viewRow struct {
	Total     int    `db:"total"`
	ItemsJSON string `db:"items_json"`
	UpdatedAt int64  `db:"updated_at"`
}

// NewSnapshotStore creates a new snapshot store from a base store
func NewSnapshotStore(store *Store) *SnapshotStore {
	if store == nil {
		return nil
	}
	return &SnapshotStore{db: store.DB()}
}

// SaveFolders replaces the persisted folder registry of an account
func (ss *SnapshotStore) SaveFolders(ctx context.Context, account string, folders []mailapi.Folder) error {
	if ss == nil || ss.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	if strings.TrimSpace(account) == "" {
		return fmt.Errorf("account cannot be empty")
	}
	now := time.Now().Unix()
	rows := make([]folderRow, 0, len(folders))
	for i, f := range folders {
		rows = append(rows, folderRow{
			Account:     account,
			Role:        string(f.Role),
			FolderID:    f.ID,
			Name:        f.DisplayName,
			UnreadCount: f.UnreadCount,
			Position:    i,
			UpdatedAt:   now,
		})
	}

	tx, err := ss.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM folder_snapshots WHERE account=?`, account); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear folders: %w", err)
	}
	for _, r := range rows {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO folder_snapshots(account, role, folder_id, name, unread_count, position, updated_at)
VALUES(:account, :role, :folder_id, :name, :unread_count, :position, :updated_at)`, r); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert folder %s: %w", r.Role, err)
		}
	}
	return tx.Commit()
}

// LoadFolders returns the persisted folder registry in saved order
func (ss *SnapshotStore) LoadFolders(ctx context.Context, account string) ([]mailapi.Folder, error) {
	if ss == nil || ss.db == nil {
		return nil, fmt.Errorf("snapshot store not initialized")
	}
	var rows []folderRow
	if err := ss.db.SelectContext(ctx, &rows, `SELECT account, role, folder_id, name, unread_count, position, updated_at
FROM folder_snapshots WHERE account=? ORDER BY position`, account); err != nil {
		return nil, err
	}
	out := make([]mailapi.Folder, 0, len(rows))
	for _, r := range rows {
		out = append(out, mailapi.Folder{
			ID:          r.FolderID,
			DisplayName: r.Name,
			Role:        mailapi.FolderRole(r.Role),
			UnreadCount: r.UnreadCount,
		})
	}
	return out, nil
}

// SaveView upserts the list snapshot of a view
func (ss *SnapshotStore) SaveView(ctx context.Context, account, viewKey string, items []mailapi.MessageSummary, total int) error {
	if ss == nil || ss.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	if strings.TrimSpace(account) == "" || strings.TrimSpace(viewKey) == "" {
		return fmt.Errorf("invalid snapshot inputs")
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	_, err = ss.db.ExecContext(ctx, `INSERT INTO view_snapshots(account, view_key, total, items_json, updated_at)
VALUES(?,?,?,?,?)
ON CONFLICT(account, view_key) DO UPDATE SET total=excluded.total, items_json=excluded.items_json, updated_at=excluded.updated_at;
`, account, viewKey, total, string(raw), time.Now().Unix())
	return err
}

// LoadView returns a list snapshot if present
func (ss *SnapshotStore) LoadView(ctx context.Context, account, viewKey string) (*ViewSnapshot, bool, error) {
	if ss == nil || ss.db == nil {
		return nil, false, fmt.Errorf("snapshot store not initialized")
	}
	var r viewRow
	err := ss.db.GetContext(ctx, &r, `SELECT total, items_json, updated_at FROM view_snapshots WHERE account=? AND view_key=?`, account, viewKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var items []mailapi.MessageSummary
	if err := json.Unmarshal([]byte(r.ItemsJSON), &items); err != nil {
		return nil, false, fmt.Errorf("decode items: %w", err)
	}
	return &ViewSnapshot{Items: items, Total: r.Total, UpdatedAt: time.Unix(r.UpdatedAt, 0)}, true, nil
}

// Clear removes every snapshot of an account
func (ss *SnapshotStore) Clear(ctx context.Context, account string) error {
	if ss == nil || ss.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	if _, err := ss.db.ExecContext(ctx, `DELETE FROM folder_snapshots WHERE account=?`, account); err != nil {
		return err
	}
	_, err := ss.db.ExecContext(ctx, `DELETE FROM view_snapshots WHERE account=?`, account)
	return err
}
