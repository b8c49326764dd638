// Package audit records authentication decisions and entity mutations as
// persisted audit rows. A Builder is created per request from the request's
// Meta and collects the entities the request touched as they are resolved;
// the row is written once the outcome is known. Audit rows are separate from
// application logs: they are stored alongside the entities they reference,
// can be queried per service, and may additionally be forwarded to external
// destinations through a Shipper.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/storage"
	"github.com/sso-registry/sso/internal/telemetry"
)

// Meta describes the request an audit row is written for.
type Meta struct {
	UserAgent string
	Remote    string
	Forwarded *string
	// User is the optional end user credential presented alongside the
	// service key, taken from the User-Authorization header.
	User *models.HeaderAuth
}

// Builder accumulates the entities referenced by one audit row. Entity setters
// are monotonic: the first non-nil value is kept and nil never clears it.
type Builder struct {
	meta      Meta
	keyID     *uuid.UUID
	serviceID *uuid.UUID
	userID    *uuid.UUID
	userKeyID *uuid.UUID
	typ       string
	subject   *string
	data      models.JSON
	status    int
}

// NewBuilder returns an empty builder for meta.
func NewBuilder(meta Meta) *Builder {
	return &Builder{meta: meta}
}

// Meta returns the request metadata.
func (b *Builder) Meta() Meta {
	return b.meta
}

// Key records the key that authenticated the request.
func (b *Builder) Key(key *models.Key) *Builder {
	if key != nil && b.keyID == nil {
		id := key.ID
		b.keyID = &id
	}
	return b
}

// Service records the service the request acted within.
func (b *Builder) Service(service *models.Service) *Builder {
	if service != nil && b.serviceID == nil {
		id := service.ID
		b.serviceID = &id
	}
	return b
}

// User records the end user the request acted for.
func (b *Builder) User(user *models.User) *Builder {
	if user != nil && b.userID == nil {
		id := user.ID
		b.userID = &id
	}
	return b
}

// UserKey records the user key involved in the request.
func (b *Builder) UserKey(key *models.Key) *Builder {
	if key != nil && b.userKeyID == nil {
		id := key.ID
		b.userKeyID = &id
	}
	return b
}

// KeyID returns the recorded key id.
func (b *Builder) KeyID() *uuid.UUID { return b.keyID }

// ServiceID returns the recorded service id.
func (b *Builder) ServiceID() *uuid.UUID { return b.serviceID }

// UserID returns the recorded user id.
func (b *Builder) UserID() *uuid.UUID { return b.userID }

// UserKeyID returns the recorded user key id.
func (b *Builder) UserKeyID() *uuid.UUID { return b.userKeyID }

// SetType overrides the audit type of the row.
func (b *Builder) SetType(typ string) *Builder {
	b.typ = typ
	return b
}

// SetSubject sets the subject of the row, usually the id of a created or
// updated entity.
func (b *Builder) SetSubject(subject string) *Builder {
	b.subject = &subject
	return b
}

// SetData sets the JSON payload of the row. Values that cannot be encoded
// are replaced by an error message.
func (b *Builder) SetData(v interface{}) *Builder {
	b.data = encode(v)
	return b
}

// SetStatus sets the status code stored on the row.
func (b *Builder) SetStatus(status int) *Builder {
	b.status = status
	return b
}

// Data returns the JSON payload set so far.
func (b *Builder) Data() models.JSON {
	return b.data
}

// Create writes the audit row. typ and data override the values set on the
// builder when non-empty.
func (b *Builder) Create(ctx context.Context, driver storage.Driver, typ string, data interface{}) (*models.Audit, error) {
	if typ == "" {
		typ = b.typ
	}
	payload := b.data
	if data != nil {
		payload = encode(data)
	}
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}

	audit, err := driver.AuditCreate(ctx, &models.AuditCreate{
		UserAgent: b.meta.UserAgent,
		Remote:    b.meta.Remote,
		Forwarded: b.meta.Forwarded,
		Status:    status,
		Type:      typ,
		Subject:   b.subject,
		Data:      payload,
		KeyID:     b.keyID,
		ServiceID: b.serviceID,
		UserID:    b.userID,
		UserKeyID: b.userKeyID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audit %s: %w", typ, err)
	}
	return audit, nil
}

// CreateWarn writes the audit row, logging and counting any failure instead
// of returning it.
func (b *Builder) CreateWarn(ctx context.Context, driver storage.Driver, typ string, data interface{}) *models.Audit {
	audit, err := b.Create(ctx, driver, typ, data)
	if err != nil {
		telemetry.AuditWriteFailuresTotal.Inc()
		slog.Warn("audit write failed", "type", typ, "error", err)
		return nil
	}
	return audit
}

func encode(v interface{}) models.JSON {
	switch d := v.(type) {
	case nil:
		return nil
	case models.JSON:
		return d
	case json.RawMessage:
		return models.JSON(d)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return models.JSON(raw)
}
