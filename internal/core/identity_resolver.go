package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultFiscalCodeField is the learning platform profile field short name holding the fiscal code.
const DefaultFiscalCodeField = "CF"

// IdentityResolver maps a fiscal code to a learning platform user id.
type IdentityResolver struct {
	users     UserDirectory
	shortname string
}

func NewIdentityResolver(users UserDirectory, fieldShortname string) *IdentityResolver {
	if fieldShortname == "" {
		fieldShortname = DefaultFiscalCodeField
	}
	return &IdentityResolver{users: users, shortname: fieldShortname}
}

// Resolve trims the fiscal code and looks it up case-insensitively. Both
// lookup steps fail closed with ErrNotFound.
func (r *IdentityResolver) Resolve(ctx context.Context, rc RunContext, fiscalCode, lmsDB string) (int64, error) {
	log := rc.logger().With(zap.String("lms_db", lmsDB))

	code := strings.TrimSpace(fiscalCode)
	if code == "" || lmsDB == "" {
		return 0, fmt.Errorf("fiscal code lookup with empty input: %w", ErrNotFound)
	}

	fieldID, err := r.users.FieldID(ctx, lmsDB, r.shortname)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error("profile field lookup failed", zap.String("field", r.shortname), zap.Error(err))
		}
		return 0, fmt.Errorf("profile field %s in %s: %w", r.shortname, lmsDB, ErrNotFound)
	}

	userID, err := r.users.UserByField(ctx, lmsDB, fieldID, code)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error("user lookup failed", zap.Error(err))
		}
		log.Warn("no learning user for fiscal code", zap.String("fiscal_code", code))
		return 0, fmt.Errorf("user with fiscal code %s in %s: %w", code, lmsDB, ErrNotFound)
	}

	log.Info("learning user resolved", zap.Int64("user_id", userID))
	return userID, nil
}
