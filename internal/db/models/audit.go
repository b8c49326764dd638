// Package models - audit.go defines the Audit model. Audit rows are append
// only; the single permitted update links a row to an entity that did not
// exist when the row was written.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSON is a raw JSON document stored in a jsonb (postgres) or text (sqlite)
// column.
type JSON []byte

// Value implements driver.Valuer. An empty document is stored as {}.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("cannot scan %T into JSON", src)
	}
	return nil
}

// MarshalJSON returns j unchanged, or null when empty.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores a copy of data.
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// Audit is a persisted audit record.
type Audit struct {
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	ID        uuid.UUID  `db:"audit_id" json:"id"`
	UserAgent string     `db:"audit_user_agent" json:"user_agent"`
	Remote    string     `db:"audit_remote" json:"remote"`
	Forwarded *string    `db:"audit_forwarded" json:"forwarded,omitempty"`
	Status    int        `db:"audit_status_code" json:"status_code"`
	Type      string     `db:"audit_type" json:"type"`
	Subject   *string    `db:"audit_subject" json:"subject,omitempty"`
	Data      JSON       `db:"audit_data" json:"data"`
	KeyID     *uuid.UUID `db:"key_id" json:"key_id,omitempty"`
	ServiceID *uuid.UUID `db:"service_id" json:"service_id,omitempty"`
	UserID    *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	UserKeyID *uuid.UUID `db:"user_key_id" json:"user_key_id,omitempty"`
}

// AuditCreate holds the fields for a new audit row. Data must be a JSON
// document; an empty value is stored as {}.
type AuditCreate struct {
	UserAgent string
	Remote    string
	Forwarded *string
	Status    int
	Type      string
	Subject   *string
	Data      JSON
	KeyID     *uuid.UUID
	ServiceID *uuid.UUID
	UserID    *uuid.UUID
	UserKeyID *uuid.UUID
}

// AuditUpdate links an existing audit row to a status, subject and data.
// Fields are only written when the stored value is still empty.
type AuditUpdate struct {
	ID        uuid.UUID  `json:"-"`
	Status    *int       `json:"status_code,omitempty" validate:"omitempty,min=100,max=599"`
	Subject   *string    `json:"subject,omitempty" validate:"omitempty,max=1000"`
	Data      JSON       `json:"data,omitempty"`
	ServiceID *uuid.UUID `json:"-"`
}

// IsEmpty reports whether j holds no document or an empty object.
func (j JSON) IsEmpty() bool {
	return len(j) == 0 || string(j) == "{}" || string(j) == "null"
}

// AuditListFilter restricts an audit list. Rows are ordered by created_at
// descending and bounded by the [Ge, Le] window when set.
type AuditListFilter struct {
	Ge        *time.Time
	Le        *time.Time
	IDs       []uuid.UUID
	Types     []string
	Subjects  []string
	ServiceID *uuid.UUID
	UserID    *uuid.UUID
	Limit     int
}

// AuditMetric is a per-type count of audit rows.
type AuditMetric struct {
	Type   string `db:"audit_type" json:"type"`
	Status int    `db:"audit_status_code" json:"status_code"`
	Count  int64  `db:"count" json:"count"`
}
