package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"enrollment-reconciler/internal/core"
	"enrollment-reconciler/internal/db"
)

// LMS resolves learning platform users through custom profile fields.
type LMS struct {
	conns  db.Provider
	prefix string
}

func NewLMS(conns db.Provider, tablePrefix string) *LMS {
	return &LMS{conns: conns, prefix: tablePrefix}
}

func (l *LMS) FieldID(ctx context.Context, lmsDB, shortname string) (int64, error) {
	conn, err := l.conns.Acquire(ctx, lmsDB)
	if err != nil {
		return 0, err
	}
	fields, err := table(l.prefix, "user_info_field")
	if err != nil {
		return 0, err
	}

	var id int64
	err = conn.QueryRowContext(ctx, "SELECT id FROM "+fields+" WHERE shortname = ? LIMIT 1", shortname).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("profile field %q in %s: %w", shortname, lmsDB, core.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to fetch profile field %q: %w", shortname, err)
	}
	return id, nil
}

// UserByField matches value against the field case-insensitively.
func (l *LMS) UserByField(ctx context.Context, lmsDB string, fieldID int64, value string) (int64, error) {
	conn, err := l.conns.Acquire(ctx, lmsDB)
	if err != nil {
		return 0, err
	}
	data, err := table(l.prefix, "user_info_data")
	if err != nil {
		return 0, err
	}

	var userID int64
	err = conn.QueryRowContext(ctx,
		"SELECT userid FROM "+data+" WHERE fieldid = ? AND UPPER(data) = UPPER(?) LIMIT 1",
		fieldID, value,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("no user for field %d: %w", fieldID, core.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to look up user by field %d: %w", fieldID, err)
	}
	return userID, nil
}
