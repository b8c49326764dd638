package audit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sso-registry/sso/internal/storage"
)

// coded is implemented by classified errors that carry a client safe code
// and an HTTP status.
type coded interface {
	ErrorCode() string
	StatusCode() int
}

// Result runs fn with a fresh builder and records its outcome. On success the
// row holds whatever fn set on the builder (an empty object by default). On
// failure the row holds {"error": code} and the error's status. The audit
// write never changes fn's result.
func Result[T any](ctx context.Context, driver storage.Driver, meta Meta, typ string, fn func(b *Builder) (T, error)) (T, error) {
	b := NewBuilder(meta)
	res, err := fn(b)

	if b.typ != "" {
		typ = b.typ
	}
	if err != nil {
		status, code := classify(err)
		b.SetStatus(status)
		b.CreateWarn(ctx, driver, typ, map[string]string{"error": code})
		return res, err
	}

	if b.status == 0 {
		b.SetStatus(http.StatusOK)
	}
	b.CreateWarn(ctx, driver, typ, nil)
	return res, nil
}

func classify(err error) (int, string) {
	var c coded
	if errors.As(err, &c) {
		return c.StatusCode(), c.ErrorCode()
	}
	switch {
	case storage.IsLocked(err):
		return http.StatusLocked, "locked"
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

// DeleteByAge deletes audit rows older than days. Failures are logged and
// reported as zero rows deleted.
func DeleteByAge(ctx context.Context, driver storage.Driver, days int) int64 {
	before := time.Now().UTC().AddDate(0, 0, -days)
	n, err := driver.AuditDeleteByCreatedAt(ctx, before)
	if err != nil {
		slog.Warn("audit retention delete failed", "days", days, "error", err)
		return 0
	}
	return n
}
