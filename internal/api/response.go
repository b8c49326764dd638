package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sso-registry/sso/internal/auth"
	"github.com/sso-registry/sso/internal/middleware"
	"github.com/sso-registry/sso/internal/validation"
)

// maxListLimit caps the limit query parameter of list routes.
const maxListLimit = 1000

// ErrorResponse is the body of every failed request. Fields is set when the
// request failed validation.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// DataResponse wraps the result of CRUD routes.
type DataResponse struct {
	Data interface{} `json:"data"`
}

// writeError maps err onto its HTTP status and stable error code. Internal
// errors are logged and never echoed to the client.
func writeError(c *gin.Context, err error) {
	category := auth.CategoryOf(err)
	status := category.StatusCode()

	resp := ErrorResponse{Error: category.String()}
	var ae *auth.Error
	if errors.As(err, &ae) {
		resp.Error = ae.PublicCode()
	}
	var ve *validation.Error
	if errors.As(err, &ve) {
		resp.Fields = ve.Fields
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"request_id", c.GetString(middleware.RequestIDKey),
			"path", c.FullPath(),
			"error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

// bindJSON decodes the request body into req. A malformed body is a bad
// request; field rules are checked by the service layer.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, auth.BadRequest(fmt.Errorf("decode body: %w", err)))
		return false
	}
	return true
}

// pathID parses the uuid path parameter name.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		writeError(c, auth.BadRequest(fmt.Errorf("%s: %w", name, err)))
		return uuid.Nil, false
	}
	return id, true
}

// query reads optional list parameters. The first parse failure is kept and
// reported by err.
type query struct {
	c   *gin.Context
	err error
}

func newQuery(c *gin.Context) *query {
	return &query{c: c}
}

func (q *query) fail(name string, err error) {
	if q.err == nil {
		q.err = auth.BadRequest(fmt.Errorf("query %s: %w", name, err))
	}
}

// values returns the repeated or comma separated values of name.
func (q *query) values(name string) []string {
	var out []string
	for _, v := range q.c.QueryArray(name) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (q *query) optUUID(name string) *uuid.UUID {
	v := q.c.Query(name)
	if v == "" {
		return nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		q.fail(name, err)
		return nil
	}
	return &id
}

func (q *query) uuidList(name string) []uuid.UUID {
	var out []uuid.UUID
	for _, v := range q.values(name) {
		id, err := uuid.Parse(v)
		if err != nil {
			q.fail(name, err)
			return nil
		}
		out = append(out, id)
	}
	return out
}

func (q *query) optBool(name string) *bool {
	v := q.c.Query(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		q.fail(name, err)
		return nil
	}
	return &b
}

func (q *query) optTime(name string) *time.Time {
	v := q.c.Query(name)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		q.fail(name, err)
		return nil
	}
	return &t
}

// limit returns the limit parameter. Zero means the driver default.
func (q *query) limit() int {
	v := q.c.Query("limit")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > maxListLimit {
		q.fail("limit", fmt.Errorf("must be between 0 and %d", maxListLimit))
		return 0
	}
	return n
}
