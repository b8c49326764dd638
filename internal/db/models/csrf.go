package models

import (
	"time"

	"github.com/google/uuid"
)

// Csrf binds an OAuth2 authorization request to its callback. It is consumed
// by the first successful read.
type Csrf struct {
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Key       string    `db:"csrf_key" json:"key"`
	Value     string    `db:"csrf_value" json:"value"`
	TTL       time.Time `db:"csrf_ttl" json:"ttl"`
	ServiceID uuid.UUID `db:"service_id" json:"service_id"`
}

// CsrfCreate holds the fields for a new CSRF row.
type CsrfCreate struct {
	Key       string
	Value     string
	TTL       time.Time
	ServiceID uuid.UUID
}

// NewCsrfCreate returns a CsrfCreate that expires ttl from now.
func NewCsrfCreate(key, value string, ttl time.Duration, serviceID uuid.UUID) *CsrfCreate {
	return &CsrfCreate{
		Key:       key,
		Value:     value,
		TTL:       time.Now().UTC().Add(ttl),
		ServiceID: serviceID,
	}
}
