package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/policy"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

type profileFinder interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

// loadSubject resolves the caller from the profile store. An unknown profile
// yields the zero subject, which every policy check denies.
func loadSubject(ctx context.Context, profiles profileFinder, userID string) (policy.Subject, error) {
	if userID == "" {
		return policy.Subject{}, nil
	}
	profile, err := profiles.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return policy.Subject{}, nil
		}
		return policy.Subject{}, appErrors.Internal(err, "failed to load profile")
	}
	return policy.SubjectFromProfile(profile), nil
}

func strPtr(v string) *string {
	return &v
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
