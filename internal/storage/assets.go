package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/internal/assets"
)

// AssetStore persists media handles in bot_asset_cache.
type AssetStore struct {
	db *sqlx.DB
}

var _ assets.Store = (*AssetStore)(nil)

// NewAssetStore constructs an AssetStore.
func NewAssetStore(db *sqlx.DB) *AssetStore {
	return &AssetStore{db: db}
}

type assetRow struct {
	Name         string `db:"name"`
	Subfolder    string `db:"subfolder"`
	MessageID    int    `db:"message_id"`
	FileID       string `db:"file_id"`
	FileUniqueID string `db:"file_unique_id"`
}

// Get returns the cached handle for name or assets.ErrNoEntry.
func (s *AssetStore) Get(ctx context.Context, name string) (assets.Entry, error) {
	var row assetRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT name, subfolder, message_id, file_id, file_unique_id FROM bot_asset_cache WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return assets.Entry{}, assets.ErrNoEntry
	}
	if err != nil {
		return assets.Entry{}, fmt.Errorf("storage: get asset: %w", err)
	}
	return assets.Entry{
		Name:      row.Name,
		Subfolder: row.Subfolder,
		Media: chat.Media{
			MessageID: row.MessageID,
			FileID:    row.FileID,
			UniqueID:  row.FileUniqueID,
		},
	}, nil
}

// Put upserts the handle for e.Name.
func (s *AssetStore) Put(ctx context.Context, e assets.Entry) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO bot_asset_cache (name, subfolder, message_id, file_id, file_unique_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			subfolder = EXCLUDED.subfolder,
			message_id = EXCLUDED.message_id,
			file_id = EXCLUDED.file_id,
			file_unique_id = EXCLUDED.file_unique_id,
			created_at = CURRENT_TIMESTAMP`),
		e.Name, e.Subfolder, e.Media.MessageID, e.Media.FileID, e.Media.UniqueID)
	if err != nil {
		return fmt.Errorf("storage: put asset: %w", err)
	}
	return nil
}

// Delete removes the handle for name; a missing row is not an error.
func (s *AssetStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM bot_asset_cache WHERE name = ?`), name); err != nil {
		return fmt.Errorf("storage: delete asset: %w", err)
	}
	return nil
}
