// Package httpapi exposes the CRM services over REST. All business
// endpoints live under /api/v1; scoped routes require a bearer token plus
// the X-Organization-Id header.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"

	app "github.com/ridgeline-labs/minicrm/internal/app"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/activity"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/contact"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/deal"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/org"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/task"
	"github.com/ridgeline-labs/minicrm/internal/app/metrics"
	authsvc "github.com/ridgeline-labs/minicrm/internal/app/services/auth"
	"github.com/ridgeline-labs/minicrm/internal/app/services/contacts"
	dealsvc "github.com/ridgeline-labs/minicrm/internal/app/services/deals"
	tasksvc "github.com/ridgeline-labs/minicrm/internal/app/services/tasks"
	"github.com/ridgeline-labs/minicrm/internal/errors"
	"github.com/ridgeline-labs/minicrm/pkg/logger"
)

// Options tunes the HTTP surface.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	CORSOrigins     []string
	AuditRingSize   int
	AuditFilePath   string
}

// Handler bundles the REST endpoints for the application services.
type Handler struct {
	app             *app.Application
	log             *logger.Logger
	audit           *auditLog
	defaultPageSize int
	maxPageSize     int
}

// NewHandler returns the API router.
func NewHandler(application *app.Application, opts Options, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	var sink auditSink
	if fileSink, err := newFileAuditSink(opts.AuditFilePath); err != nil {
		log.WithError(err).Warn("audit file sink unavailable")
	} else if fileSink != nil {
		sink = fileSink
	}

	h := &Handler{
		app:             application,
		log:             log,
		audit:           newAuditLog(opts.AuditRingSize, sink),
		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", OrganizationHeader, "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)
		r.Post("/auth/refresh", h.refresh)

		r.Group(func(r chi.Router) {
			r.Use(h.requireUser)

			r.Get("/organizations/me", h.myOrganizations)

			r.Group(func(r chi.Router) {
				r.Use(h.requireActor)
				r.Use(h.audit.middleware)

				r.Route("/contacts", func(r chi.Router) {
					r.Get("/", h.listContacts)
					r.Post("/", h.createContact)
					r.Get("/{id}", h.getContact)
					r.Delete("/{id}", h.deleteContact)
				})

				r.Route("/deals", func(r chi.Router) {
					r.Get("/", h.listDeals)
					r.Post("/", h.createDeal)
					r.Get("/{id}", h.getDeal)
					r.Patch("/{id}", h.updateDeal)
					r.Get("/{id}/activities", h.listActivities)
					r.Post("/{id}/activities", h.createComment)
				})

				r.Route("/tasks", func(r chi.Router) {
					r.Get("/", h.listTasks)
					r.Post("/", h.createTask)
					r.Patch("/{id}", h.updateTask)
				})

				r.Get("/analytics/deals/summary", h.dealsSummary)
				r.Get("/analytics/deals/funnel", h.dealsFunnel)

				r.Get("/audit", h.listAudit)
			})
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Auth ------------------------------------------------------------------------

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email            string `json:"email"`
		Password         string `json:"password"`
		Name             string `json:"name"`
		OrganizationName string `json:"organization_name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation(err.Error()))
		return
	}

	result, err := h.app.Auth.Register(r.Context(), authsvc.RegisterInput{
		Email:            payload.Email,
		Password:         payload.Password,
		Name:             payload.Name,
		OrganizationName: payload.OrganizationName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Tokens)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation(err.Error()))
		return
	}

	tokens, err := h.app.Auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation(err.Error()))
		return
	}

	tokens, err := h.app.Auth.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// Organizations ---------------------------------------------------------------

func (h *Handler) myOrganizations(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		h.writeError(w, r, errors.Unauthorized(""))
		return
	}
	memberships, err := h.app.Orgs.ListMine(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memberships)
}

// Contacts --------------------------------------------------------------------

func (h *Handler) listContacts(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	page, pageSize, err := h.pageParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ownerID, err := queryInt64(r, "owner_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	list, err := h.app.Contacts.List(r.Context(), actor, contact.Filter{
		Search:   r.URL.Query().Get("search"),
		OwnerID:  ownerID,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createContact(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	var payload struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		OwnerID int64  `json:"owner_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation(err.Error()))
		return
	}

	created, err := h.app.Contacts.Create(r.Context(), actor, contacts.CreateInput{
		Name:    payload.Name,
		Email:   payload.Email,
		Phone:   payload.Phone,
		OwnerID: payload.OwnerID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getContact(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.app.Contacts.Get(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) deleteContact(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.app.Contacts.Delete(r.Context(), actor, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deals -----------------------------------------------------------------------

func (h *Handler) listDeals(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	page, pageSize, err := h.pageParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filter := deal.Filter{
		Stage:    deal.Stage(r.URL.Query().Get("stage")),
		OrderBy:  r.URL.Query().Get("order_by"),
		Page:     page,
		PageSize: pageSize,
	}
	for _, raw := range r.URL.Query()["status"] {
		filter.Statuses = append(filter.Statuses, deal.Status(raw))
	}
	filter.OwnerID, err = queryInt64(r, "owner_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter.MinAmount, err = queryDecimal(r, "min_amount")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter.MaxAmount, err = queryDecimal(r, "max_amount")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	order := strings.ToLower(r.URL.Query().Get("order"))
	switch order {
	case "", "desc":
		filter.Desc = true
	case "asc":
		filter.Desc = false
	default:
		h.writeError(w, r, errors.Validation("order must be asc or desc"))
		return
	}

	list, err := h.app.Deals.List(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createDeal(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	var payload struct {
		ContactID int64           `json:"contact_id"`
		Title     string          `json:"title"`
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
		OwnerID   int64           `json:"owner_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation(err.Error()))
		return
	}

	created, err := h.app.Deals.Create(r.Context(), actor, dealsvc.CreateInput{
		ContactID: payload.ContactID,
		Title:     payload.Title,
		Amount:    payload.Amount,
		Currency:  payload.Currency,
		OwnerID:   payload.OwnerID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getDeal(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := h.app.Deals.Get(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) updateDeal(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload struct {
		Title    *string          `json:"title"`
		Amount   *decimal.Decimal `json:"amount"`
		Currency *string          `json:"currency"`
		Status   *deal.Status     `json:"status"`
		Stage    *deal.Stage      `json:"stage"`
		OwnerID  *int64           `json:"owner_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation(err.Error()))
		return
	}

	updated, err := h.app.Deals.Update(r.Context(), actor, id, dealsvc.UpdateInput{
		Title:    payload.Title,
		Amount:   payload.Amount,
		Currency: payload.Currency,
		Status:   payload.Status,
		Stage:    payload.Stage,
		OwnerID:  payload.OwnerID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Activities ------------------------------------------------------------------

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	dealID, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.app.Activities.List(r.Context(), actor, dealID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createComment(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	dealID, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload struct {
		Type    activity.Type          `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation(err.Error()))
		return
	}
	if payload.Type != "" && payload.Type != activity.TypeComment {
		h.writeError(w, r, errors.Validation("manual activities must be comments"))
		return
	}

	created, err := h.app.Activities.Comment(r.Context(), actor, dealID, payload.Payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Tasks -----------------------------------------------------------------------

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	filter := task.Filter{
		OnlyOpen: r.URL.Query().Get("only_open") == "true",
	}
	var err error
	filter.DealID, err = queryInt64(r, "deal_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter.DueBefore, err = queryDate(r, "due_before", true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter.DueAfter, err = queryDate(r, "due_after", false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	list, err := h.app.Tasks.List(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	var payload struct {
		DealID      int64  `json:"deal_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		DueDate     string `json:"due_date"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation(err.Error()))
		return
	}
	dueDate, err := parseDate(payload.DueDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.app.Tasks.Create(r.Context(), actor, tasksvc.CreateInput{
		DealID:      payload.DealID,
		Title:       payload.Title,
		Description: payload.Description,
		DueDate:     dueDate,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		DueDate     *string `json:"due_date"`
		IsDone      *bool   `json:"is_done"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation(err.Error()))
		return
	}

	in := tasksvc.UpdateInput{
		Title:       payload.Title,
		Description: payload.Description,
		IsDone:      payload.IsDone,
	}
	if payload.DueDate != nil {
		dueDate, err := parseDate(*payload.DueDate)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		in.DueDate = &dueDate
	}

	updated, err := h.app.Tasks.Update(r.Context(), actor, id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Analytics -------------------------------------------------------------------

func (h *Handler) dealsSummary(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, errors.Validation("days must be an integer"))
			return
		}
		days = parsed
	}

	summary, err := h.app.Analytics.DealsSummary(r.Context(), actor.OrganizationID, days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) dealsFunnel(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	funnel, err := h.app.Analytics.DealsFunnel(r.Context(), actor.OrganizationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, funnel)
}

// Audit -----------------------------------------------------------------------

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	if actor.Role != org.RoleOwner && actor.Role != org.RoleAdmin {
		h.writeError(w, r, errors.Forbidden("audit log requires owner or admin role"))
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	entries := h.audit.listLimit(limit)
	scoped := make([]auditEntry, 0, len(entries))
	for _, e := range entries {
		if e.OrganizationID == actor.OrganizationID {
			scoped = append(scoped, e)
		}
	}
	writeJSON(w, http.StatusOK, scoped)
}

// Helpers ---------------------------------------------------------------------

func (h *Handler) pageParams(r *http.Request) (page, pageSize int, err error) {
	page, err = queryInt(r, "page")
	if err != nil {
		return 0, 0, err
	}
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return 0, 0, errors.Validation("page must be at least 1")
	}

	pageSize, err = queryInt(r, "page_size")
	if err != nil {
		return 0, 0, err
	}
	if pageSize == 0 {
		pageSize = h.defaultPageSize
	}
	if pageSize < 1 || pageSize > h.maxPageSize {
		return 0, 0, errors.Validation("page_size out of bounds")
	}
	return page, pageSize, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validation("invalid id")
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Validation(name + " must be an integer")
	}
	return v, nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Validation(name + " must be an integer")
	}
	return v, nil
}

func queryDecimal(r *http.Request, name string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.Validation(name + " must be a decimal number")
	}
	if v.Sign() < 0 {
		return nil, errors.Validation(name + " cannot be negative")
	}
	return &v, nil
}

// queryDate parses a YYYY-MM-DD query parameter. Upper bounds snap to the
// end of the day, lower bounds to its start.
func queryDate(r *http.Request, name string, endOfDay bool) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, errors.Validation(name + " must be a date in YYYY-MM-DD format")
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.Validation("due_date is required")
	}
	day, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, errors.Validation("due_date must be a date in YYYY-MM-DD format")
	}
	return day, nil
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		h.log.WithError(err).
			WithField("request_id", requestIDFrom(r.Context())).
			WithField("path", r.URL.Path).
			Error("unhandled error")
		svcErr = errors.Internal("", err)
	}

	body := map[string]interface{}{
		"code":    svcErr.Code,
		"message": svcErr.Message,
	}
	if len(svcErr.Details) > 0 {
		body["details"] = svcErr.Details
	}
	writeJSON(w, svcErr.HTTPStatus, map[string]interface{}{"error": body})
}
