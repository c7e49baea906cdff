package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that a store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// SessionMapping model related methods.
	UpsertSessionMapping(ctx context.Context, upsert *UpsertSessionMapping) (*SessionMapping, error)
	GetSessionMapping(ctx context.Context, waID string) (*SessionMapping, error)
	MarkSessionExpired(ctx context.Context, waID string) error
	TouchSessionLastUsed(ctx context.Context, waID string) error

	// LoginToken model related methods.
	CreateLoginToken(ctx context.Context, create *LoginToken) (*LoginToken, error)
	GetLoginToken(ctx context.Context, token string) (*LoginToken, error)
	DeleteLoginToken(ctx context.Context, token string) error

	// ChatMessage model related methods.
	CreateChatMessage(ctx context.Context, create *ChatMessage) (*ChatMessage, error)
	GetChatMessageByMessageID(ctx context.Context, messageID string) (*ChatMessage, error)
	ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error)
	UpdateChatMessageStatus(ctx context.Context, update *UpdateChatMessageStatus) error

	// User model related methods.
	CreateUser(ctx context.Context, create *User) (*User, error)
	GetUser(ctx context.Context, find *FindUser) (*User, error)
}
