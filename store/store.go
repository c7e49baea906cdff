// Package store provides database access to all raw objects.
package store

import (
	"context"
	"time"

	"github.com/chatrelay/chatrelay/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// UpsertSessionMapping creates or replaces the mapping for a wa_id.
func (s *Store) UpsertSessionMapping(ctx context.Context, upsert *UpsertSessionMapping) (*SessionMapping, error) {
	return s.driver.UpsertSessionMapping(ctx, upsert)
}

// GetSessionMapping looks up the mapping for a wa_id. A mapping whose
// expiry has passed is reported as LookupExpired, not as an error.
func (s *Store) GetSessionMapping(ctx context.Context, waID string) (*SessionLookup, error) {
	mapping, err := s.driver.GetSessionMapping(ctx, waID)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return &SessionLookup{State: LookupNotFound}, nil
	}
	if mapping.Status != SessionActive || mapping.Expired(time.Now()) {
		return &SessionLookup{State: LookupExpired, Mapping: mapping}, nil
	}
	return &SessionLookup{State: LookupFound, Mapping: mapping}, nil
}

func (s *Store) MarkSessionExpired(ctx context.Context, waID string) error {
	return s.driver.MarkSessionExpired(ctx, waID)
}

func (s *Store) TouchSessionLastUsed(ctx context.Context, waID string) error {
	return s.driver.TouchSessionLastUsed(ctx, waID)
}

func (s *Store) CreateLoginToken(ctx context.Context, create *LoginToken) (*LoginToken, error) {
	return s.driver.CreateLoginToken(ctx, create)
}

func (s *Store) GetLoginToken(ctx context.Context, token string) (*LoginToken, error) {
	return s.driver.GetLoginToken(ctx, token)
}

func (s *Store) DeleteLoginToken(ctx context.Context, token string) error {
	return s.driver.DeleteLoginToken(ctx, token)
}

// CreateChatMessage persists a message unless one with the same
// platform message id already exists.
func (s *Store) CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error) {
	if create.MessageID != "" {
		existing, err := s.driver.GetChatMessageByMessageID(ctx, create.MessageID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}
	return s.driver.CreateChatMessage(ctx, create)
}

func (s *Store) ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error) {
	return s.driver.ListChatMessages(ctx, find)
}

func (s *Store) UpdateChatMessageStatus(ctx context.Context, update *UpdateChatMessageStatus) error {
	return s.driver.UpdateChatMessageStatus(ctx, update)
}

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	return s.driver.CreateUser(ctx, create)
}

func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	return s.driver.GetUser(ctx, find)
}
