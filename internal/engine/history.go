package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"omtobe/internal/domain"
	"omtobe/internal/engine/auth"
	"omtobe/internal/repo"
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}

// DecisionHistory returns the user's decisions, newest first.
func (e Engine) DecisionHistory(ctx context.Context, p auth.Principal, userID string, limit int) ([]domain.DecisionLog, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermHistoryRead); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return e.Repo.ListDecisions(ctx, userID, clampLimit(limit))
}

// ReflectionHistory returns the user's reflections, newest first.
func (e Engine) ReflectionHistory(ctx context.Context, p auth.Principal, userID string, limit int) ([]domain.ReflectionLog, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermHistoryRead); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return e.Repo.ListReflections(ctx, userID, clampLimit(limit))
}

// CreatedAPIKey carries the plaintext key, which is shown only once.
type CreatedAPIKey struct {
	domain.APIKey
	Key string `json:"key"`
}

// CreateAPIKey issues a key for userID. Only admins may grant roles.
func (e Engine) CreateAPIKey(ctx context.Context, p auth.Principal, userID, name string, roles []string) (CreatedAPIKey, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermKeysManage); err != nil {
		return CreatedAPIKey{}, err
	}
	if len(roles) > 0 && !p.HasRole(auth.RoleAdmin) {
		return CreatedAPIKey{}, auth.ForbiddenError{Permission: auth.PermKeysManage}
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return CreatedAPIKey{}, err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return CreatedAPIKey{}, err
	}
	plain := "omt_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		Roles:     roles,
		CreatedAt: e.now().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return CreatedAPIKey{}, err
	}
	e.log().Info("api key created", "user_id", userID, "key_id", key.ID)
	return CreatedAPIKey{APIKey: key, Key: plain}, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, p auth.Principal, userID string) ([]domain.APIKey, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermKeysManage); err != nil {
		return nil, err
	}
	return e.Repo.ListAPIKeys(ctx, userID)
}

// DeleteAPIKey removes a key owned by userID.
func (e Engine) DeleteAPIKey(ctx context.Context, p auth.Principal, userID, keyID string) error {
	if err := e.Auth.Authorize(p, userID, auth.PermKeysManage); err != nil {
		return err
	}
	keys, err := e.Repo.ListAPIKeys(ctx, userID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == keyID {
			return e.Repo.DeleteAPIKey(ctx, keyID)
		}
	}
	return repo.ErrNotFound
}
