/*
handlers.go - HTTP API handlers for the document issuance engine

PURPOSE:
  Exposes the issuance engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Documents:
    POST   /api/documents              Issue a document (hot path)
    GET    /api/documents              List documents
    GET    /api/documents/{id}         Get a document with lines

  Numbering admin (cold path):
    GET    /api/numbering              List numbering policies
    GET    /api/numbering/{module}     Get one policy
    PUT    /api/numbering/{module}     Update a policy (versioned)
    POST   /api/numbering/{module}/reset   Audited counter reset
    GET    /api/numbering/{module}/resets  Reset audit trail

  Reference data:
    GET/POST /api/parties              Counterparties
    GET      /api/parties/{id}
    GET/POST /api/items                Catalog items
    GET      /api/items/{id}

ERROR HANDLING:
  Every failure returns a stable error kind plus a human-readable
  message:
  - 400: Validation errors (inactive party, empty document, clamp-proof
         input the engine still rejects)
  - 404: Missing references (party, item, parent, policy, document)
  - 409: Allocation contention after retries were exhausted
  - 500: Infrastructure failures, with a can_retry hint

  A document number only ever appears in a response after the issuing
  transaction committed.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - document/issuer.go: The engine behind POST /api/documents
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/document-engine/document"
	"github.com/warp/document-engine/factory"
	"github.com/warp/document-engine/numbering"
	"github.com/warp/document-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Issuer *document.Issuer
	Log    zerolog.Logger
}

// NewHandler creates a handler wired to the given store.
func NewHandler(store *sqlite.Store, log zerolog.Logger) *Handler {
	return &Handler{
		Store:  store,
		Issuer: document.NewIssuer(store, log),
		Log:    log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// DOCUMENT HANDLERS
// =============================================================================

// IssueDocument issues a new numbered document atomically.
// POST /api/documents
func (h *Handler) IssueDocument(w http.ResponseWriter, r *http.Request) {
	var req IssueDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "bad_request", err)
		return
	}

	lines := make([]document.RawLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = document.RawLine{
			ItemID:      document.ItemID(l.ItemID),
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			DiscountPct: l.DiscountPct,
			TaxPct:      l.TaxPct,
		}
	}

	receipt, err := h.Issuer.Issue(r.Context(), document.IssueRequest{
		Module:   document.Module(req.Module),
		PartyID:  document.PartyID(req.PartyID),
		ParentID: document.DocumentID(req.ParentID),
		Lines:    lines,
	})
	if err != nil {
		h.writeIssueError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ReceiptDTO{
		DocumentID: string(receipt.DocumentID),
		Number:     receipt.Number,
		Total:      receipt.Total,
	})
}

// writeIssueError maps engine errors onto HTTP statuses per the
// taxonomy: validation terminal, contention 409, infrastructure 500.
func (h *Handler) writeIssueError(w http.ResponseWriter, err error) {
	kind := errorKind(err)

	switch {
	case document.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Referenced record not found", kind, err)
	case document.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Document request is invalid", kind, err)
	case errors.Is(err, document.ErrAllocationContended):
		writeError(w, http.StatusConflict, "Number allocation contended, try again", kind, err)
	default:
		var infra *document.InfrastructureError
		resp := ErrorResponse{Error: "Failed to issue document", Kind: kind, Details: err.Error()}
		if errors.As(err, &infra) {
			resp.CanRetry = infra.CanRetry
		}
		h.Log.Error().Err(err).Msg("issue failed")
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

// ListDocuments returns document headers, newest first.
// GET /api/documents?module=SalesOrder&limit=50
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	module := document.Module(r.URL.Query().Get("module"))
	if module != "" && !module.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown module", "unknown_module", nil)
		return
	}

	docs, err := h.Store.ListDocuments(r.Context(), module, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list documents", "internal", err)
		return
	}

	dtos := make([]DocumentDTO, len(docs))
	for i, d := range docs {
		dtos[i] = toDocumentDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDocument returns a document with its lines.
// GET /api/documents/{id}
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := document.DocumentID(chi.URLParam(r, "id"))

	doc, err := h.Store.GetDocumentWithLines(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get document", "internal", err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found", "document_not_found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toDocumentDTO(*doc))
}

func toDocumentDTO(d document.Document) DocumentDTO {
	dto := DocumentDTO{
		ID:             string(d.ID),
		Module:         string(d.Module),
		Number:         d.Number,
		Status:         string(d.Status),
		PartyID:        string(d.PartyID),
		ParentID:       string(d.ParentID),
		Subtotal:       d.Subtotal,
		DiscountAmount: d.DiscountAmount,
		TaxAmount:      d.TaxAmount,
		Total:          d.Total,
		IssuedAt:       d.IssuedAt.Format(time.RFC3339),
	}
	for _, l := range d.Lines {
		dto.Lines = append(dto.Lines, LineDTO{
			ID:             l.ID,
			Position:       l.Position,
			ItemID:         string(l.ItemID),
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			DiscountPct:    l.DiscountPct,
			TaxPct:         l.TaxPct,
			Subtotal:       l.Subtotal,
			DiscountAmount: l.DiscountAmount,
			TaxAmount:      l.TaxAmount,
			Total:          l.Total,
		})
	}
	return dto
}

// =============================================================================
// NUMBERING ADMIN HANDLERS
// =============================================================================

// ListNumberingPolicies returns all numbering policies.
// GET /api/numbering
func (h *Handler) ListNumberingPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Store.ListPolicies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", "internal", err)
		return
	}

	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = PolicyDTO{PolicyJSON: factory.ToJSON(p), Version: p.Version, LastIssued: p.LastIssued}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetNumberingPolicy returns one module's policy.
// GET /api/numbering/{module}
func (h *Handler) GetNumberingPolicy(w http.ResponseWriter, r *http.Request) {
	module := document.Module(chi.URLParam(r, "module"))

	policy, err := h.Store.GetPolicy(r.Context(), module)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get policy", "internal", err)
		return
	}
	if policy == nil {
		writeError(w, http.StatusNotFound, "Numbering policy not found", "policy_not_found", nil)
		return
	}

	writeJSON(w, http.StatusOK, PolicyDTO{PolicyJSON: factory.ToJSON(*policy), Version: policy.Version, LastIssued: policy.LastIssued})
}

// UpdateNumberingPolicy updates a module's numbering configuration.
// Already-issued numbers and counters are untouched; the stored record's
// version bumps so concurrent readers can detect the change.
// PUT /api/numbering/{module}
func (h *Handler) UpdateNumberingPolicy(w http.ResponseWriter, r *http.Request) {
	module := document.Module(chi.URLParam(r, "module"))
	if !module.Valid() {
		writeError(w, http.StatusNotFound, "Unknown module", "unknown_module", nil)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "bad_request", err)
		return
	}

	policy, err := factory.ParsePolicy(string(module), body)
	if err != nil {
		if errors.Is(err, numbering.ErrInvalidPolicy) {
			writeError(w, http.StatusBadRequest, "Invalid numbering policy", "invalid_policy", err)
		} else {
			writeError(w, http.StatusBadRequest, "Invalid request body", "bad_request", err)
		}
		return
	}

	if err := h.Store.SavePolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", "internal", err)
		return
	}

	saved, err := h.Store.GetPolicy(r.Context(), module)
	if err != nil || saved == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload policy", "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyDTO{PolicyJSON: factory.ToJSON(*saved), Version: saved.Version, LastIssued: saved.LastIssued})
}

// ResetNumberingCounter performs an explicit, audited counter reset.
// POST /api/numbering/{module}/reset
func (h *Handler) ResetNumberingCounter(w http.ResponseWriter, r *http.Request) {
	module := document.Module(chi.URLParam(r, "module"))

	var req ResetCounterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "bad_request", err)
		return
	}
	if req.Actor == "" || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "Counter reset requires actor and reason", "bad_request", nil)
		return
	}

	policy, err := h.Store.GetPolicy(r.Context(), module)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get policy", "internal", err)
		return
	}
	if policy == nil {
		writeError(w, http.StatusNotFound, "Numbering policy not found", "policy_not_found", nil)
		return
	}

	bucket := req.Bucket
	if bucket == "" {
		bucket = policy.RenderBucket(time.Now().UTC())
	}

	if err := h.Store.ResetCounter(r.Context(), module, bucket, req.Actor, req.Reason); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset counter", "internal", err)
		return
	}

	h.Log.Info().
		Str("module", string(module)).
		Str("bucket", bucket).
		Str("actor", req.Actor).
		Msg("counter reset")

	writeJSON(w, http.StatusOK, map[string]any{
		"module": string(module),
		"bucket": bucket,
		"status": "reset",
	})
}

// ListCounterResets returns the reset audit trail for a module.
// GET /api/numbering/{module}/resets
func (h *Handler) ListCounterResets(w http.ResponseWriter, r *http.Request) {
	module := document.Module(chi.URLParam(r, "module"))

	resets, err := h.Store.ListCounterResets(r.Context(), module)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list resets", "internal", err)
		return
	}

	dtos := make([]CounterResetDTO, len(resets))
	for i, res := range resets {
		dtos[i] = CounterResetDTO{
			ID:            res.ID,
			Module:        string(res.Module),
			Bucket:        res.Bucket,
			PreviousValue: res.PreviousValue,
			NewValue:      res.NewValue,
			Actor:         res.Actor,
			Reason:        res.Reason,
			CreatedAt:     res.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resets": dtos})
}

// =============================================================================
// PARTY HANDLERS
// =============================================================================

// ListParties returns all counterparties.
// GET /api/parties
func (h *Handler) ListParties(w http.ResponseWriter, r *http.Request) {
	parties, err := h.Store.ListParties(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list parties", "internal", err)
		return
	}

	dtos := make([]PartyDTO, len(parties))
	for i, p := range parties {
		dtos[i] = PartyDTO{
			ID:        string(p.ID),
			Name:      p.Name,
			Kind:      p.Kind,
			Active:    p.Active,
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateParty creates or updates a counterparty.
// POST /api/parties
func (h *Handler) CreateParty(w http.ResponseWriter, r *http.Request) {
	var req CreatePartyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "bad_request", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Party id and name are required", "bad_request", nil)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	kind := req.Kind
	if kind == "" {
		kind = "customer"
	}

	party := document.Party{
		ID:     document.PartyID(req.ID),
		Name:   req.Name,
		Kind:   kind,
		Active: active,
	}
	if err := h.Store.SaveParty(r.Context(), party); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create party", "internal", err)
		return
	}

	writeJSON(w, http.StatusCreated, PartyDTO{
		ID:     req.ID,
		Name:   req.Name,
		Kind:   kind,
		Active: active,
	})
}

// GetParty returns a single counterparty.
// GET /api/parties/{id}
func (h *Handler) GetParty(w http.ResponseWriter, r *http.Request) {
	id := document.PartyID(chi.URLParam(r, "id"))

	party, err := h.Store.GetParty(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get party", "internal", err)
		return
	}
	if party == nil {
		writeError(w, http.StatusNotFound, "Party not found", "party_not_found", nil)
		return
	}

	writeJSON(w, http.StatusOK, PartyDTO{
		ID:        string(party.ID),
		Name:      party.Name,
		Kind:      party.Kind,
		Active:    party.Active,
		CreatedAt: party.CreatedAt.Format(time.RFC3339),
	})
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListItems returns all catalog items.
// GET /api/items
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", "internal", err)
		return
	}

	dtos := make([]ItemDTO, len(items))
	for i, it := range items {
		dtos[i] = ItemDTO{
			ID:            string(it.ID),
			Name:          it.Name,
			StandardPrice: it.StandardPrice,
			Active:        it.Active,
			CreatedAt:     it.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateItem creates or updates a catalog item.
// POST /api/items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "bad_request", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Item id and name are required", "bad_request", nil)
		return
	}
	if req.StandardPrice.IsNegative() {
		writeError(w, http.StatusBadRequest, "Standard price cannot be negative", "bad_request", nil)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	item := document.CatalogItem{
		ID:            document.ItemID(req.ID),
		Name:          req.Name,
		StandardPrice: req.StandardPrice,
		Active:        active,
	}
	if err := h.Store.SaveItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create item", "internal", err)
		return
	}

	writeJSON(w, http.StatusCreated, ItemDTO{
		ID:            req.ID,
		Name:          req.Name,
		StandardPrice: req.StandardPrice,
		Active:        active,
	})
}

// GetItem returns a single catalog item.
// GET /api/items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := document.ItemID(chi.URLParam(r, "id"))

	item, err := h.Store.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get item", "internal", err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "Item not found", "item_not_found", nil)
		return
	}

	writeJSON(w, http.StatusOK, ItemDTO{
		ID:            string(item.ID),
		Name:          item.Name,
		StandardPrice: item.StandardPrice,
		Active:        item.Active,
		CreatedAt:     item.CreatedAt.Format(time.RFC3339),
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, kind string, err error) {
	resp := ErrorResponse{Error: message, Kind: kind}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// errorKind maps engine errors onto stable machine-readable kinds.
func errorKind(err error) string {
	switch {
	case errors.Is(err, document.ErrUnknownModule):
		return "unknown_module"
	case errors.Is(err, document.ErrPartyNotFound):
		return "party_not_found"
	case errors.Is(err, document.ErrPartyInactive):
		return "party_invalid"
	case errors.Is(err, document.ErrEmptyDocument):
		return "empty_document"
	case errors.Is(err, document.ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, document.ErrParentNotFound):
		return "parent_not_found"
	case errors.Is(err, document.ErrParentNotConvertible):
		return "parent_not_convertible"
	case errors.Is(err, document.ErrPartyMismatch):
		return "party_mismatch"
	case errors.Is(err, document.ErrPolicyNotFound):
		return "policy_not_found"
	case errors.Is(err, document.ErrAllocationContended):
		return "allocation_contended"
	default:
		return "internal"
	}
}
