package core

import (
	"context"
	"encoding/json"
	"errors"
)

// TokenStore persists OAuth credentials per account
type TokenStore struct {
	kv KeyValueStore
}

// NewTokenStore creates a new token store
func NewTokenStore(kv KeyValueStore) *TokenStore {
	return &TokenStore{kv: kv}
}

// Load returns ErrNotConnected when the account has no stored credential
func (s *TokenStore) Load(ctx context.Context, account string) (*TokenRecord, error) {
	data, err := s.kv.Get(ctx, AccountKey(NamespaceTokens, account))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrNotConnected
		}
		return nil, StorageError("load token", err)
	}
	var record TokenRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, StorageError("decode token", err)
	}
	if record.AccessToken == "" && record.RefreshToken == "" {
		return nil, ErrNotConnected
	}
	return &record, nil
}

// Save stores the credential, keeping a previously stored refresh token
// when the new record does not carry one
func (s *TokenStore) Save(ctx context.Context, account string, record *TokenRecord) error {
	err := s.kv.Update(ctx, AccountKey(NamespaceTokens, account), func(current []byte) ([]byte, error) {
		merged := *record
		if merged.RefreshToken == "" && current != nil {
			var previous TokenRecord
			if err := json.Unmarshal(current, &previous); err == nil {
				merged.RefreshToken = previous.RefreshToken
			}
		}
		return json.MarshalIndent(merged, "", "  ")
	})
	if err != nil {
		return StorageError("save token", err)
	}
	return nil
}

// Delete removes the stored credential
func (s *TokenStore) Delete(ctx context.Context, account string) error {
	if err := s.kv.Delete(ctx, AccountKey(NamespaceTokens, account)); err != nil {
		return StorageError("delete token", err)
	}
	return nil
}
