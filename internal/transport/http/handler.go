package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"scrivo/internal/completion"
	"scrivo/internal/model"
	"scrivo/internal/repository"
	"scrivo/internal/service"
	"scrivo/internal/tokens"
)

// AuthService is the slice of the auth service the transport needs.
type AuthService interface {
	Register(ctx context.Context, handle, password, sessionID string) (*model.Account, string, error)
	Login(ctx context.Context, handle, password, sessionID string) (*model.Account, string, error)
	ParseToken(tokenString string) (int64, error)
}

type Handler struct {
	auth       AuthService
	resources  service.ResourceService
	payments   service.PaymentService
	accounts   service.AccountService
	dedup      service.DedupService
	usage      service.UsageService
	completion completion.Client
	log        *zap.Logger
}

func NewHandler(
	auth AuthService,
	resources service.ResourceService,
	payments service.PaymentService,
	accounts service.AccountService,
	dedup service.DedupService,
	usage service.UsageService,
	compl completion.Client,
	log *zap.Logger,
) *Handler {
	return &Handler{
		auth:       auth,
		resources:  resources,
		payments:   payments,
		accounts:   accounts,
		dedup:      dedup,
		usage:      usage,
		completion: compl,
		log:        log,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/register", h.SignUp)
	mux.HandleFunc("POST /api/login", h.LogIn)

	mux.HandleFunc("POST /api/resources", h.withTenant(h.CreateResource))
	mux.HandleFunc("GET /api/resources", h.withTenant(h.ListResources))
	mux.HandleFunc("GET /api/resources/{id}", h.withTenant(h.GetResource))
	mux.HandleFunc("PATCH /api/resources/{id}", h.withTenant(h.UpdateResource))
	mux.HandleFunc("DELETE /api/resources/{id}", h.withTenant(h.DeleteResource))
	mux.HandleFunc("DELETE /api/resources", h.withTenant(h.DeleteAllResources))
	mux.HandleFunc("POST /api/resources/{id}/complete", h.withTenant(h.CompleteResource))

	mux.HandleFunc("GET /api/balance", h.withTenant(h.GetBalance))
	mux.HandleFunc("POST /api/checkout", h.withTenant(h.CreateCheckout))
	mux.HandleFunc("POST /api/checkout/confirm", h.withTenant(h.ConfirmCheckout))
	mux.HandleFunc("POST /api/webhooks/payment", h.PaymentWebhook)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ── auth ──────────────────────────────────────────────────────────────────

type credentialsRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string         `json:"token"`
	Account *model.Account `json:"account"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Handle == "" || req.Password == "" {
		h.respondError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	acc, token, err := h.auth.Register(r.Context(), req.Handle, req.Password, sessionID(r))
	if errors.Is(err, repository.ErrHandleTaken) {
		h.respondError(w, http.StatusConflict, "handle_taken")
		return
	}
	if err != nil {
		h.internalError(w, "register failed", err)
		return
	}
	h.respondJSON(w, http.StatusCreated, authResponse{Token: token, Account: acc})
}

func (h *Handler) LogIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	acc, token, err := h.auth.Login(r.Context(), req.Handle, req.Password, sessionID(r))
	if err != nil {
		// Wrong password and unknown handle look the same.
		h.respondError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	h.respondJSON(w, http.StatusOK, authResponse{Token: token, Account: acc})
}

// ── resources ─────────────────────────────────────────────────────────────

type createResourceRequest struct {
	Kind    string          `json:"kind"`
	Title   string          `json:"title"`
	Payload json.RawMessage `json:"payload"`
}

func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var req createResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Kind == "" {
		req.Kind = model.ResourceKindAssignment
	}
	if req.Kind != model.ResourceKindAssignment && req.Kind != model.ResourceKindReference {
		h.respondError(w, http.StatusUnprocessableEntity, "unknown_kind")
		return
	}

	res, err := h.resources.Create(r.Context(), ownerFrom(r), req.Kind, req.Title, req.Payload)
	if errors.Is(err, repository.ErrInvalidOwner) {
		h.respondError(w, http.StatusUnauthorized, "no_identity")
		return
	}
	if err != nil {
		h.internalError(w, "create resource failed", err)
		return
	}
	h.respondJSON(w, http.StatusCreated, res)
}

func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	list, err := h.resources.List(r.Context(), ownerFrom(r))
	if err != nil {
		h.internalError(w, "list resources failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	res, err := h.resources.Get(r.Context(), id, ownerFrom(r))
	if errors.Is(err, repository.ErrResourceNotFound) {
		h.respondError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.internalError(w, "get resource failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	var patch model.ResourcePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	res, err := h.resources.Update(r.Context(), id, ownerFrom(r), patch)
	if errors.Is(err, repository.ErrResourceNotFound) {
		h.respondError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.internalError(w, "update resource failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	if err := h.resources.Delete(r.Context(), id, ownerFrom(r)); err != nil {
		h.internalError(w, "delete resource failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteAllResources(w http.ResponseWriter, r *http.Request) {
	if err := h.resources.DeleteAll(r.Context(), ownerFrom(r)); err != nil {
		h.internalError(w, "delete all resources failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── completion ────────────────────────────────────────────────────────────

type completionResponse struct {
	Text         string `json:"text"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// CompleteResource runs the text-generation backend over an assignment. The
// backend is not retried here. Anonymous sessions are held to the free
// daily token budget; usage recording never touches account balances.
func (h *Handler) CompleteResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	owner := ownerFrom(r)
	res, err := h.resources.Get(r.Context(), id, owner)
	if errors.Is(err, repository.ErrResourceNotFound) {
		h.respondError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.internalError(w, "get resource failed", err)
		return
	}

	prompt := res.Title
	if len(res.Payload) > 0 {
		prompt += "\n" + string(res.Payload)
	}
	inputTokens := tokens.CountTokens(prompt)
	estimated := tokens.EstimateOutputTokens(prompt)

	if sid, anonymous := owner.SessionID(); anonymous {
		if inputTokens > tokens.FreeInputLimit {
			h.respondError(w, http.StatusRequestEntityTooLarge, "input_limit_exceeded")
			return
		}
		if estimated > tokens.FreeOutputLimit {
			estimated = tokens.FreeOutputLimit
		}
		used, err := h.usage.DailyUsage(r.Context(), sid, tokens.TodayDate())
		if err != nil {
			h.internalError(w, "usage lookup failed", err)
			return
		}
		if used+inputTokens+estimated > tokens.FreeDailyLimit {
			h.respondError(w, http.StatusTooManyRequests, "daily_limit_reached")
			return
		}
	}

	text, err := h.completion.Generate(r.Context(), completion.Request{
		Prompt:    prompt,
		MaxTokens: estimated,
	})
	if err != nil {
		h.log.Error("completion backend failed", zap.Int64("resource_id", id), zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "completion_failed")
		return
	}

	outputTokens := tokens.CountTokens(text)
	if sid, anonymous := owner.SessionID(); anonymous {
		if err := h.usage.AddDailyUsage(r.Context(), sid, tokens.TodayDate(), inputTokens+outputTokens); err != nil {
			h.log.Error("usage recording failed", zap.String("session_id", sid), zap.Error(err))
		}
	}

	h.respondJSON(w, http.StatusOK, completionResponse{
		Text:         text,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	})
}

// ── payments ──────────────────────────────────────────────────────────────

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ownerFrom(r).AccountID()
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication_required")
		return
	}

	balance, err := h.accounts.Balance(r.Context(), accountID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		h.respondError(w, http.StatusNotFound, "account_not_found")
		return
	}
	if err != nil {
		h.internalError(w, "balance lookup failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

type createCheckoutRequest struct {
	CheckoutID string `json:"checkout_id"`
	Tier       string `json:"tier"`
}

// CreateCheckout registers a pending payment for a provider checkout the
// client has opened. Tier maps whole dollars to credited tokens.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ownerFrom(r).AccountID()
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication_required")
		return
	}

	var req createCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.CheckoutID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_checkout_id")
		return
	}
	credits, ok := tokens.CreditTiers[req.Tier]
	if !ok {
		h.respondError(w, http.StatusBadRequest, "unknown_tier")
		return
	}
	dollars, _ := strconv.ParseInt(req.Tier, 10, 64)

	p, err := h.payments.CreatePending(r.Context(), req.CheckoutID, accountID, dollars*100, credits)
	if errors.Is(err, repository.ErrDuplicateCheckout) {
		h.respondError(w, http.StatusConflict, "checkout_exists")
		return
	}
	if err != nil {
		h.internalError(w, "create checkout failed", err)
		return
	}
	h.respondJSON(w, http.StatusCreated, p)
}

type confirmCheckoutRequest struct {
	CheckoutID string `json:"checkout_id"`
}

// ConfirmCheckout is the client-side redirect path. It may race the webhook
// for the same checkout; the reconciler guarantees a single credit either
// way.
func (h *Handler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ownerFrom(r).AccountID()
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication_required")
		return
	}

	var req confirmCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	p, err := h.payments.GetByCheckoutID(r.Context(), req.CheckoutID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		h.respondError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		h.internalError(w, "payment lookup failed", err)
		return
	}
	// A checkout belongs to one account; foreign checkouts look absent.
	if p.AccountID != accountID {
		h.respondError(w, http.StatusNotFound, "not_found")
		return
	}

	result, err := h.payments.ReconcileAndCredit(r.Context(), p.CheckoutID, p.AccountID, p.Credits)
	if err != nil {
		h.internalError(w, "reconcile failed", err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// PaymentWebhook is the server-side delivery path: at-least-once, possibly
// duplicated, possibly out of order with the redirect confirmation. The
// event-id guard screens redelivered envelopes; the reconciler handles
// distinct events for the same checkout.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var event model.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if event.EventID == "" || event.CheckoutID == "" || event.AccountID <= 0 || event.Credits <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid_event")
		return
	}

	seen, err := h.dedup.Seen(r.Context(), event.EventID)
	if err != nil {
		h.internalError(w, "dedup check failed", err)
		return
	}
	if seen {
		h.respondJSON(w, http.StatusOK, model.CreditResult{AlreadyCompleted: true})
		return
	}

	result, err := h.payments.ReconcileAndCredit(r.Context(), event.CheckoutID, event.AccountID, event.Credits)
	if err != nil {
		// 5xx so the provider redelivers; the protocol makes the retry safe.
		h.internalError(w, "reconcile failed", err)
		return
	}

	if err := h.dedup.Mark(r.Context(), event.EventID); err != nil &&
		!errors.Is(err, repository.ErrEventAlreadyProcessed) {
		h.log.Error("marking event failed", zap.String("event_id", event.EventID), zap.Error(err))
	}

	h.respondJSON(w, http.StatusOK, result)
}

// ── helpers ───────────────────────────────────────────────────────────────

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.log.Error(msg, zap.Error(err))
	h.respondError(w, http.StatusInternalServerError, "internal_error")
}
