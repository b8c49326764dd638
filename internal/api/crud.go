package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sso-registry/sso/internal/db/models"
	"github.com/sso-registry/sso/internal/middleware"
	"github.com/sso-registry/sso/internal/services"
)

// writeData writes v wrapped in DataResponse.
func writeData(c *gin.Context, status int, v interface{}, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, DataResponse{Data: v})
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

// @Summary      List audit rows
// @Tags         Audit
// @Security     Key
// @Produce      json
// @Param        ge          query  string  false  "Created at or after (RFC3339)"
// @Param        le          query  string  false  "Created at or before (RFC3339)"
// @Param        id          query  string  false  "Audit ids, comma separated"
// @Param        type        query  string  false  "Audit types, comma separated"
// @Param        subject     query  string  false  "Subjects, comma separated"
// @Param        service_id  query  string  false  "Service id (root key only)"
// @Param        user_id     query  string  false  "User id"
// @Param        limit       query  int     false  "Maximum rows"
// @Success      200  {object}  DataResponse
// @Router       /v1/audit [get]
func (h *Handlers) auditList(c *gin.Context) {
	q := newQuery(c)
	filter := &models.AuditListFilter{
		Ge:        q.optTime("ge"),
		Le:        q.optTime("le"),
		IDs:       q.uuidList("id"),
		Types:     q.values("type"),
		Subjects:  q.values("subject"),
		ServiceID: q.optUUID("service_id"),
		UserID:    q.optUUID("user_id"),
		Limit:     q.limit(),
	}
	if q.err != nil {
		writeError(c, q.err)
		return
	}
	audits, err := h.identity.AuditList(c.Request.Context(), middleware.CallerFrom(c), filter)
	writeData(c, http.StatusOK, audits, err)
}

func (h *Handlers) auditCreate(c *gin.Context) {
	var req services.AuditCreateRequest
	if !bindJSON(c, &req) {
		return
	}
	row, err := h.identity.AuditCreate(c.Request.Context(), middleware.CallerFrom(c), &req)
	writeData(c, http.StatusCreated, row, err)
}

// auditMetrics counts rows per type and status. from defaults to 24 hours ago.
func (h *Handlers) auditMetrics(c *gin.Context) {
	q := newQuery(c)
	from := q.optTime("from")
	if q.err != nil {
		writeError(c, q.err)
		return
	}
	if from == nil {
		t := time.Now().UTC().Add(-24 * time.Hour)
		from = &t
	}
	metrics, err := h.identity.AuditReadMetrics(c.Request.Context(), middleware.CallerFrom(c), *from)
	writeData(c, http.StatusOK, metrics, err)
}

func (h *Handlers) auditRead(c *gin.Context) {
	id, ok := pathID(c, "audit_id")
	if !ok {
		return
	}
	row, err := h.identity.AuditRead(c.Request.Context(), middleware.CallerFrom(c), id)
	writeData(c, http.StatusOK, row, err)
}

func (h *Handlers) auditUpdate(c *gin.Context) {
	id, ok := pathID(c, "audit_id")
	if !ok {
		return
	}
	var req models.AuditUpdate
	if !bindJSON(c, &req) {
		return
	}
	req.ID = id
	row, err := h.identity.AuditUpdate(c.Request.Context(), middleware.CallerFrom(c), &req)
	writeData(c, http.StatusOK, row, err)
}

// ---------------------------------------------------------------------------
// Key
// ---------------------------------------------------------------------------

func (h *Handlers) keyList(c *gin.Context) {
	q := newQuery(c)
	filter := &models.KeyListFilter{
		GtID:      q.optUUID("gt"),
		IDs:       q.uuidList("id"),
		IsEnabled: q.optBool("is_enabled"),
		IsRevoked: q.optBool("is_revoked"),
		ServiceID: q.optUUID("service_id"),
		UserID:    q.optUUID("user_id"),
		Limit:     q.limit(),
	}
	for _, t := range q.values("type") {
		filter.Types = append(filter.Types, models.KeyType(t))
	}
	if q.err != nil {
		writeError(c, q.err)
		return
	}
	keys, err := h.identity.KeyList(c.Request.Context(), middleware.CallerFrom(c), filter)
	writeData(c, http.StatusOK, keys, err)
}

// @Summary      Create a key
// @Description  The key value is returned once and never again.
// @Tags         Key
// @Security     Key
// @Accept       json
// @Produce      json
// @Param        body  body  services.KeyCreateRequest  true  "Key"
// @Success      201  {object}  DataResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /v1/key [post]
func (h *Handlers) keyCreate(c *gin.Context) {
	var req services.KeyCreateRequest
	if !bindJSON(c, &req) {
		return
	}
	key, err := h.identity.KeyCreate(c.Request.Context(), middleware.CallerFrom(c), &req)
	writeData(c, http.StatusCreated, key, err)
}

func (h *Handlers) keyRead(c *gin.Context) {
	id, ok := pathID(c, "key_id")
	if !ok {
		return
	}
	key, err := h.identity.KeyRead(c.Request.Context(), middleware.CallerFrom(c), id)
	writeData(c, http.StatusOK, key, err)
}

func (h *Handlers) keyUpdate(c *gin.Context) {
	id, ok := pathID(c, "key_id")
	if !ok {
		return
	}
	var req models.KeyUpdate
	if !bindJSON(c, &req) {
		return
	}
	req.ID = id
	key, err := h.identity.KeyUpdate(c.Request.Context(), middleware.CallerFrom(c), &req)
	writeData(c, http.StatusOK, key, err)
}

func (h *Handlers) keyDelete(c *gin.Context) {
	id, ok := pathID(c, "key_id")
	if !ok {
		return
	}
	if err := h.identity.KeyDelete(c.Request.Context(), middleware.CallerFrom(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

func (h *Handlers) serviceList(c *gin.Context) {
	q := newQuery(c)
	filter := &models.ServiceListFilter{
		GtID:      q.optUUID("gt"),
		IDs:       q.uuidList("id"),
		IsEnabled: q.optBool("is_enabled"),
		Limit:     q.limit(),
	}
	if q.err != nil {
		writeError(c, q.err)
		return
	}
	list, err := h.identity.ServiceList(c.Request.Context(), middleware.CallerFrom(c), filter)
	writeData(c, http.StatusOK, list, err)
}

func (h *Handlers) serviceCreate(c *gin.Context) {
	var req models.ServiceCreate
	if !bindJSON(c, &req) {
		return
	}
	service, err := h.identity.ServiceCreate(c.Request.Context(), middleware.CallerFrom(c), &req)
	writeData(c, http.StatusCreated, service, err)
}

func (h *Handlers) serviceRead(c *gin.Context) {
	id, ok := pathID(c, "service_id")
	if !ok {
		return
	}
	service, err := h.identity.ServiceRead(c.Request.Context(), middleware.CallerFrom(c), id)
	writeData(c, http.StatusOK, service, err)
}

func (h *Handlers) serviceUpdate(c *gin.Context) {
	id, ok := pathID(c, "service_id")
	if !ok {
		return
	}
	var req models.ServiceUpdate
	if !bindJSON(c, &req) {
		return
	}
	req.ID = id
	service, err := h.identity.ServiceUpdate(c.Request.Context(), middleware.CallerFrom(c), &req)
	writeData(c, http.StatusOK, service, err)
}

func (h *Handlers) serviceDelete(c *gin.Context) {
	id, ok := pathID(c, "service_id")
	if !ok {
		return
	}
	if err := h.identity.ServiceDelete(c.Request.Context(), middleware.CallerFrom(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// User
// ---------------------------------------------------------------------------

func (h *Handlers) userList(c *gin.Context) {
	q := newQuery(c)
	filter := &models.UserListFilter{
		GtID:   q.optUUID("gt"),
		IDs:    q.uuidList("id"),
		Emails: q.values("email"),
		Limit:  q.limit(),
	}
	if q.err != nil {
		writeError(c, q.err)
		return
	}
	users, err := h.identity.UserList(c.Request.Context(), middleware.CallerFrom(c), filter)
	writeData(c, http.StatusOK, users, err)
}

// userCreate returns the password metadata next to the user, so it is not
// wrapped in DataResponse.
func (h *Handlers) userCreate(c *gin.Context) {
	handleJSON(c, http.StatusCreated, h.identity.UserCreate)
}

func (h *Handlers) userRead(c *gin.Context) {
	id, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	user, err := h.identity.UserRead(c.Request.Context(), middleware.CallerFrom(c), id)
	writeData(c, http.StatusOK, user, err)
}

func (h *Handlers) userUpdate(c *gin.Context) {
	id, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	var req models.UserUpdate
	if !bindJSON(c, &req) {
		return
	}
	req.ID = id
	user, err := h.identity.UserUpdate(c.Request.Context(), middleware.CallerFrom(c), &req)
	writeData(c, http.StatusOK, user, err)
}

func (h *Handlers) userDelete(c *gin.Context) {
	id, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.identity.UserDelete(c.Request.Context(), middleware.CallerFrom(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
