// Package http is the chi transport: thin handlers that decode, delegate to
// services, and translate domain errors into the shared envelope.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attest/internal/aivalidation"
	"attest/internal/escalation"
	"attest/internal/export"
	"attest/internal/requirement"
	"attest/internal/verification"
	"attest/internal/workflow"
	id "attest/pkg/domain"
	"attest/pkg/platform/httputil"
	"attest/pkg/requestcontext"
)

// Handlers bundles the services behind the API surface.
type Handlers struct {
	requirements *requirement.Service
	machine      *workflow.Machine
	dispatcher   *aivalidation.Dispatcher
	escalations  *escalation.Engine
	exports      *export.Service
	logger       *slog.Logger
}

func NewHandlers(
	requirements *requirement.Service,
	machine *workflow.Machine,
	dispatcher *aivalidation.Dispatcher,
	escalations *escalation.Engine,
	exports *export.Service,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		requirements: requirements,
		machine:      machine,
		dispatcher:   dispatcher,
		escalations:  escalations,
		exports:      exports,
		logger:       logger,
	}
}

type createRequirementRequest struct {
	CaseID        string     `json:"case_id"`
	Category      string     `json:"category"`
	Mandatory     bool       `json:"mandatory"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	AutoEscalate  bool       `json:"auto_escalate"`
	Priority      int        `json:"priority"`
	ComplianceTag string     `json:"compliance_tag,omitempty"`
}

func (h *Handlers) createRequirement(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.Decode[createRequirementRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	caseID, err := id.ParseCaseID(body.CaseID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.requirements.Create(r.Context(), requirement.CreateInput{
		CaseID:        caseID,
		Category:      body.Category,
		Mandatory:     body.Mandatory,
		Deadline:      body.Deadline,
		AutoEscalate:  body.AutoEscalate,
		Priority:      body.Priority,
		ComplianceTag: body.ComplianceTag,
		CreatedBy:     requestcontext.ActorID(r.Context()),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRequirementResponse(req))
}

func (h *Handlers) getRequirement(w http.ResponseWriter, r *http.Request) {
	reqID, err := id.ParseRequirementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.requirements.Get(r.Context(), reqID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequirementResponse(req))
}

type createSubmissionRequest struct {
	RequirementID string `json:"requirement_id"`
	DocumentID    string `json:"document_id"`
}

func (h *Handlers) createSubmission(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.Decode[createSubmissionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqID, err := id.ParseRequirementID(body.RequirementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docID, err := id.ParseDocumentID(body.DocumentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sub, err := h.machine.Intake(r.Context(), workflow.IntakeInput{
		RequirementID: reqID,
		DocumentID:    docID,
		SubmittedBy:   requestcontext.ActorID(r.Context()),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.dispatchValidation(r, sub)
	httputil.WriteJSON(w, http.StatusAccepted, toSubmissionResponse(sub))
}

func (h *Handlers) getSubmission(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubmissionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sub, err := h.machine.Get(r.Context(), subID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

func (h *Handlers) listSubmissionEvents(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubmissionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.machine.Events(r.Context(), subID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventResponses(events))
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

func (h *Handlers) reviewSubmission(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubmissionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, err := httputil.Decode[reviewRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	decision, err := verification.ParseDecision(body.Decision)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sub, err := h.machine.Review(r.Context(), workflow.ReviewInput{
		SubmissionID: subID,
		ReviewerID:   requestcontext.ActorID(r.Context()),
		Decision:     decision,
		Notes:        body.Notes,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

type resubmitRequest struct {
	DocumentID string `json:"document_id"`
}

func (h *Handlers) resubmit(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubmissionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, err := httputil.Decode[resubmitRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docID, err := id.ParseDocumentID(body.DocumentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sub, err := h.machine.Resubmit(r.Context(), workflow.ResubmitInput{
		SubmissionID: subID,
		DocumentID:   docID,
		SubmittedBy:  requestcontext.ActorID(r.Context()),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.dispatchValidation(r, sub)
	httputil.WriteJSON(w, http.StatusAccepted, toSubmissionResponse(sub))
}

func (h *Handlers) exportSubmission(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubmissionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	bundle, err := h.exports.Build(r.Context(), subID, requestcontext.ActorID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bundle)
}

func (h *Handlers) listEscalations(w http.ResponseWriter, r *http.Request) {
	escs, err := h.escalations.ListOpen(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]escalationResponse, 0, len(escs))
	for _, esc := range escs {
		out = append(out, toEscalationResponse(esc))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type resolveEscalationRequest struct {
	Note string `json:"note,omitempty"`
}

func (h *Handlers) resolveEscalation(w http.ResponseWriter, r *http.Request) {
	escID, err := id.ParseEscalationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, err := httputil.Decode[resolveEscalationRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	esc, err := h.escalations.Resolve(r.Context(), escID, requestcontext.ActorID(r.Context()), body.Note)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEscalationResponse(esc))
}

// dispatchValidation hands a freshly (re)submitted revision to the validator.
// The requirement lookup failing here is logged, not surfaced; the verdict
// applier's fail-open path covers a validation that never arrives via the
// escalation sweep once the submission goes stale.
func (h *Handlers) dispatchValidation(r *http.Request, sub *workflow.Submission) {
	ctx := r.Context()
	req, err := h.requirements.Get(ctx, sub.RequirementID)
	if err != nil {
		h.logger.Error("building validation context failed",
			"submission_id", sub.ID.String(),
			"error", err,
		)
		return
	}
	h.dispatcher.Dispatch(ctx, sub.ID, sub.Round, aivalidation.Request{
		DocumentRef: sub.DocumentID.String(),
		RequirementContext: aivalidation.RequirementContext{
			Category:      req.Category,
			Mandatory:     req.Mandatory,
			ComplianceTag: req.ComplianceTag,
			Round:         sub.Round,
		},
	})
}
