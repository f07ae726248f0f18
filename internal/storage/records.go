package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/intakebot/internal/records"
)

var recordTables = map[records.Kind]string{
	records.KindOrder: "bot_orders",
	records.KindTest:  "bot_test_registrations",
}

var recordColumns = map[records.Field]string{
	records.FieldText:     "text",
	records.FieldContacts: "contacts",
}

const recordSelect = `id, user_id, name, username, text, contacts, created_at`

// RecordStore persists orders and test registrations.
type RecordStore struct {
	db *sqlx.DB
}

var _ records.Store = (*RecordStore)(nil)

// NewRecordStore constructs a RecordStore.
func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db}
}

type recordRow struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Name      string    `db:"name"`
	Username  string    `db:"username"`
	Text      string    `db:"text"`
	Contacts  string    `db:"contacts"`
	CreatedAt time.Time `db:"created_at"`
}

func (r recordRow) record() records.Record {
	return records.Record{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		Username:  r.Username,
		Text:      r.Text,
		Contacts:  r.Contacts,
		CreatedAt: r.CreatedAt,
	}
}

func tableFor(kind records.Kind) (string, error) {
	table, ok := recordTables[kind]
	if !ok {
		return "", fmt.Errorf("storage: unknown record kind %q", kind)
	}
	return table, nil
}

// Create inserts a record and returns its id.
func (s *RecordStore) Create(ctx context.Context, kind records.Kind, rec records.Record) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.GetContext(ctx, &id, s.db.Rebind(
		`INSERT INTO `+table+` (user_id, name, username, text, contacts)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		rec.UserID, rec.Name, rec.Username, rec.Text, rec.Contacts)
	if err != nil {
		return 0, fmt.Errorf("storage: create %s: %w", kind, err)
	}
	return id, nil
}

// Latest returns the user's most recent record of kind.
func (s *RecordStore) Latest(ctx context.Context, kind records.Kind, userID int64) (records.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return records.Record{}, err
	}
	var row recordRow
	err = s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT `+recordSelect+` FROM `+table+`
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return records.Record{}, records.ErrNotFound
	}
	if err != nil {
		return records.Record{}, fmt.Errorf("storage: latest %s: %w", kind, err)
	}
	return row.record(), nil
}

// UpdateLatest applies patch to the user's most recent record of kind. Only
// whitelisted fields are written; an empty patch returns the record unchanged.
func (s *RecordStore) UpdateLatest(ctx context.Context, kind records.Kind, userID int64, patch records.Patch) (records.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return records.Record{}, err
	}
	if err := patch.Validate(); err != nil {
		return records.Record{}, err
	}
	if len(patch) == 0 {
		return s.Latest(ctx, kind, userID)
	}

	sets := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch)+1)
	for _, c := range patch {
		sets = append(sets, recordColumns[c.Field]+" = ?")
		args = append(args, c.Value)
	}
	args = append(args, userID)

	query := `UPDATE ` + table + ` SET ` + strings.Join(sets, ", ") + `
		WHERE id = (
			SELECT id FROM ` + table + `
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
		RETURNING ` + recordSelect

	var row recordRow
	err = s.db.GetContext(ctx, &row, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return records.Record{}, records.ErrNotFound
	}
	if err != nil {
		return records.Record{}, fmt.Errorf("storage: update %s: %w", kind, err)
	}
	return row.record(), nil
}
