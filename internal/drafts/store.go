// Package drafts persists the in-progress assessment so a client can resume it later.
package drafts

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"sympto/internal/models"
	"sympto/internal/validation"
)

// StorageKey is the fixed key the draft blob lives under.
const StorageKey = "sympto-draft-assessment"

// Store saves, loads and clears one client's draft. Failures are logged and swallowed:
// losing a draft must never block the user.
type Store struct {
	kv  KV
	log *zap.Logger
}

func NewStore(kv KV, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{kv: kv, log: log.With(zap.String("component", "drafts"))}
}

// Save writes the valid subset of d. Invalid or unset fields are not persisted.
func (s *Store) Save(ctx context.Context, d models.Draft) {
	body, err := json.Marshal(validation.Valid(d))
	if err != nil {
		s.log.Warn("Failed to encode draft", zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, StorageKey, string(body)); err != nil {
		s.log.Warn("Failed to save draft", zap.Error(err))
	}
}

// Load returns the stored draft after migrations. It reports false when there is no usable draft.
func (s *Store) Load(ctx context.Context) (models.Draft, bool) {
	raw, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, ErrNotFound) {
		return models.Draft{}, false
	}
	if err != nil {
		s.log.Warn("Failed to load draft", zap.Error(err))
		return models.Draft{}, false
	}

	var d models.Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		s.log.Warn("Discarding unreadable draft", zap.Error(err))
		return models.Draft{}, false
	}
	return validation.Valid(migrate(d)), true
}

// Clear removes the stored draft.
func (s *Store) Clear(ctx context.Context) {
	if err := s.kv.Remove(ctx, StorageKey); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Warn("Failed to clear draft", zap.Error(err))
	}
}
