// Package models - key.go defines the Key model. A key with neither a
// service nor a user is a root key, a key with only a service is a service
// key, and a key with both is a user key.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KeyType governs which operations a key may back.
type KeyType string

const (
	KeyTypeKey   KeyType = "key"
	KeyTypeToken KeyType = "token"
	KeyTypeTotp  KeyType = "totp"
)

// ParseKeyType converts a string into a KeyType.
func ParseKeyType(s string) (KeyType, error) {
	switch KeyType(s) {
	case KeyTypeKey, KeyTypeToken, KeyTypeTotp:
		return KeyType(s), nil
	}
	return "", fmt.Errorf("unknown key type %q", s)
}

// Key is a stored secret. Value is only returned to callers at creation.
type Key struct {
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	ID        uuid.UUID  `db:"key_id" json:"id"`
	IsEnabled bool       `db:"key_is_enabled" json:"is_enabled"`
	IsRevoked bool       `db:"key_is_revoked" json:"is_revoked"`
	Type      KeyType    `db:"key_type" json:"type"`
	Name      string     `db:"key_name" json:"name"`
	Value     string     `db:"key_value" json:"-"`
	ServiceID *uuid.UUID `db:"service_id" json:"service_id,omitempty"`
	UserID    *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
}

// IsRoot reports whether k is a root key.
func (k *Key) IsRoot() bool {
	return k.ServiceID == nil && k.UserID == nil
}

// Subject identifies the key in audit records.
func (k *Key) Subject() string {
	return k.ID.String()
}

// Diff returns the fields that changed between previous and k.
func (k *Key) Diff(previous *Key) Diff {
	return NewDiffBuilder().
		Compare("is_enabled", k.IsEnabled, previous.IsEnabled).
		Compare("is_revoked", k.IsRevoked, previous.IsRevoked).
		Compare("name", k.Name, previous.Name).
		Build()
}

// KeyWithValue exposes the secret value on creation responses.
type KeyWithValue struct {
	*Key
	Value string `json:"value"`
}

// KeyCreate holds the fields for a new key.
type KeyCreate struct {
	IsEnabled bool
	IsRevoked bool
	Type      KeyType
	Name      string
	Value     string
	ServiceID *uuid.UUID
	UserID    *uuid.UUID
}

// KeyReadKind selects how a key is looked up.
type KeyReadKind int

const (
	KeyReadByID KeyReadKind = iota
	KeyReadByRootValue
	KeyReadByServiceValue
	KeyReadByUserID
	KeyReadByUserValue
)

// KeyRead describes a key lookup. Which fields are used depends on Kind.
type KeyRead struct {
	Kind      KeyReadKind
	ID        uuid.UUID
	Value     string
	ServiceID uuid.UUID
	UserID    uuid.UUID
	IsEnabled bool
	IsRevoked bool
	Type      KeyType
}

// KeyReadID reads a key by id.
func KeyReadID(id uuid.UUID) *KeyRead {
	return &KeyRead{Kind: KeyReadByID, ID: id}
}

// KeyReadRootValue reads a root key by value.
func KeyReadRootValue(value string) *KeyRead {
	return &KeyRead{Kind: KeyReadByRootValue, Value: value}
}

// KeyReadServiceValue reads a service key by value.
func KeyReadServiceValue(value string) *KeyRead {
	return &KeyRead{Kind: KeyReadByServiceValue, Value: value}
}

// KeyReadUserID reads the key of the given type belonging to (service, user).
func KeyReadUserID(serviceID, userID uuid.UUID, isEnabled, isRevoked bool, typ KeyType) *KeyRead {
	return &KeyRead{
		Kind:      KeyReadByUserID,
		ServiceID: serviceID,
		UserID:    userID,
		IsEnabled: isEnabled,
		IsRevoked: isRevoked,
		Type:      typ,
	}
}

// KeyReadUserValue reads a user key of the given type by value within a service.
func KeyReadUserValue(serviceID uuid.UUID, value string, isEnabled, isRevoked bool, typ KeyType) *KeyRead {
	return &KeyRead{
		Kind:      KeyReadByUserValue,
		ServiceID: serviceID,
		Value:     value,
		IsEnabled: isEnabled,
		IsRevoked: isRevoked,
		Type:      typ,
	}
}

// KeyUpdate holds optional field updates.
type KeyUpdate struct {
	ID        uuid.UUID `json:"-"`
	IsEnabled *bool     `json:"is_enabled,omitempty"`
	IsRevoked *bool     `json:"is_revoked,omitempty"`
	Name      *string   `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
}

// KeyListFilter restricts a key list. Results are ordered by id.
type KeyListFilter struct {
	GtID      *uuid.UUID
	IDs       []uuid.UUID
	IsEnabled *bool
	IsRevoked *bool
	Types     []KeyType
	ServiceID *uuid.UUID
	UserID    *uuid.UUID
	Limit     int
}
