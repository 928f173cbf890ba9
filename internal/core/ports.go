package core

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by a KeyValueStore when a key has no value
var ErrKeyNotFound = errors.New("key not found")

// MailboxProvider defines the mailbox operations of one connected account
type MailboxProvider interface {
	// ListMessages returns up to max message IDs carrying the label and matching the query
	ListMessages(ctx context.Context, label, query string, max int) ([]string, error)

	// GetMessage fetches message metadata
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListLabels returns every label of the mailbox
	ListLabels(ctx context.Context) ([]Label, error)

	// CreateLabel creates a user label
	CreateLabel(ctx context.Context, name string) (*Label, error)

	// ModifyLabels adds and removes labels on a message
	ModifyLabels(ctx context.Context, id string, add, remove []string) error

	// Profile returns the mailbox profile
	Profile(ctx context.Context) (*Profile, error)
}

// MailboxConnector opens a MailboxProvider for an account
type MailboxConnector interface {
	// Connect returns ErrNotConnected when no credential is stored for the account
	Connect(ctx context.Context, account string) (MailboxProvider, error)
}

// KeyValueStore defines durable per-key storage
type KeyValueStore interface {
	// Get returns ErrKeyNotFound when the key is absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the value of a key
	Put(ctx context.Context, key string, value []byte) error

	// Update atomically replaces the value of a key with the result of fn.
	// current is nil when the key is absent.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error

	// Append adds one line to the log stored under key
	Append(ctx context.Context, key string, line []byte) error

	// ReadLines returns every line of the log stored under key, oldest first
	ReadLines(ctx context.Context, key string) ([][]byte, error)

	// Delete removes a key and any log stored under it
	Delete(ctx context.Context, key string) error
}

// IdentityProvider performs the OAuth authorization-code flow
type IdentityProvider interface {
	// AuthCodeURL returns the consent URL carrying the state value
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for a credential
	Exchange(ctx context.Context, code string) (*TokenRecord, error)

	// LookupEmail resolves the mailbox address the credential belongs to
	LookupEmail(ctx context.Context, token *TokenRecord) (string, error)

	// Revoke invalidates the credential at the provider
	Revoke(ctx context.Context, token *TokenRecord) error
}
