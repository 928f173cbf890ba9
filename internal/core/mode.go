package core

import (
	"context"
	"encoding/json"
	"errors"
)

// ModeStore persists the per-account enforcement mode
type ModeStore struct {
	kv    KeyValueStore
	audit *AuditLog
	now   func() int64
}

// NewModeStore creates a new mode store
func NewModeStore(kv KeyValueStore, audit *AuditLog) *ModeStore {
	return &ModeStore{kv: kv, audit: audit, now: unixNow}
}

// Get returns the account's mode; accounts without a stored setting are in shadow mode
func (s *ModeStore) Get(ctx context.Context, account string) (ModeSetting, error) {
	data, err := s.kv.Get(ctx, AccountKey(NamespaceSettings, account))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return ModeSetting{Shadow: true}, nil
		}
		return ModeSetting{}, StorageError("load settings", err)
	}
	return decodeMode(data)
}

// Set persists the mode and records a mode_set audit entry
func (s *ModeStore) Set(ctx context.Context, account string, shadow bool) (ModeSetting, error) {
	setting := ModeSetting{Shadow: shadow}
	err := s.kv.Update(ctx, AccountKey(NamespaceSettings, account), func(current []byte) ([]byte, error) {
		return encodeSettings(current, func(m map[string]interface{}) { m["shadow"] = shadow })
	})
	if err != nil {
		return ModeSetting{}, StorageError("save settings", err)
	}

	s.audit.Append(ctx, account, AuditEntry{
		Timestamp: s.now(),
		Event:     EventModeSet,
		Shadow:    boolPtr(shadow),
	})
	return setting, nil
}

// EnsureDefault stores shadow mode for an account that has no setting yet
func (s *ModeStore) EnsureDefault(ctx context.Context, account string) (ModeSetting, error) {
	var setting ModeSetting
	err := s.kv.Update(ctx, AccountKey(NamespaceSettings, account), func(current []byte) ([]byte, error) {
		return encodeSettings(current, func(m map[string]interface{}) {
			shadow, ok := m["shadow"].(bool)
			if !ok {
				shadow = true
				m["shadow"] = shadow
			}
			setting.Shadow = shadow
		})
	})
	if err != nil {
		return ModeSetting{}, StorageError("save settings", err)
	}
	return setting, nil
}

// Delete removes the account's settings
func (s *ModeStore) Delete(ctx context.Context, account string) error {
	if err := s.kv.Delete(ctx, AccountKey(NamespaceSettings, account)); err != nil {
		return StorageError("delete settings", err)
	}
	return nil
}

// encodeSettings keeps unknown fields of the settings record intact
func encodeSettings(current []byte, mutate func(map[string]interface{})) ([]byte, error) {
	record := make(map[string]interface{})
	if current != nil {
		if err := json.Unmarshal(current, &record); err != nil {
			return nil, err
		}
	}
	mutate(record)
	return json.MarshalIndent(record, "", "  ")
}

func decodeMode(data []byte) (ModeSetting, error) {
	var raw struct {
		Shadow *bool `json:"shadow"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ModeSetting{}, StorageError("decode settings", err)
	}
	if raw.Shadow == nil {
		return ModeSetting{Shadow: true}, nil
	}
	return ModeSetting{Shadow: *raw.Shadow}, nil
}
