package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/swebuk/portal-api/internal/dto"
	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/service"
	"github.com/swebuk/portal-api/pkg/response"
)

type fypService interface {
	SubmitProposal(ctx context.Context, actorID string, req service.ProposalRequest) (*models.FinalYearProject, error)
	Mine(ctx context.Context, actorID string) (*models.FinalYearProject, error)
	Get(ctx context.Context, actorID, id string) (*models.FinalYearProject, error)
	List(ctx context.Context, actorID string, filter models.FYPFilter) ([]models.FinalYearProject, *models.Pagination, error)
	UpdateProgress(ctx context.Context, actorID, id string, req service.ProgressRequest) (*models.FinalYearProject, error)
	SetStatus(ctx context.Context, actorID, id, status string) (*models.FinalYearProject, error)
	AssignSupervisor(ctx context.Context, actorID, id, supervisorID string) (*models.FinalYearProject, error)
	Export(ctx context.Context, actorID string, filter models.FYPFilter, rawFormat string) (*service.ExportFile, error)
	SubmitDocument(ctx context.Context, actorID string, req service.SubmissionRequest) (*models.Submission, error)
	History(ctx context.Context, actorID, fypID, rawType string) ([]models.Submission, error)
	Review(ctx context.Context, actorID, submissionID string, req service.ReviewRequest) (*models.Submission, error)
	DownloadURL(ctx context.Context, actorID, submissionID string) (*models.SubmissionDownload, error)
}

// FYPHandler exposes the final year project workflow.
type FYPHandler struct {
	service fypService
}

// NewFYPHandler constructs the handler.
func NewFYPHandler(svc fypService) *FYPHandler {
	return &FYPHandler{service: svc}
}

// SubmitProposal godoc
// @Summary Submit a final year project proposal
// @Description Level 400 students only. Accepts JSON or multipart with an optional document in "file".
// @Tags FYP
// @Accept json,mpfd
// @Produce json
// @Param payload body service.ProposalRequest false "Proposal (JSON form)"
// @Param file formData file false "Proposal document (PDF, DOC, DOCX)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fyp/proposal [post]
func (h *FYPHandler) SubmitProposal(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.ProposalRequest
	if isMultipart(c) {
		req.Title = c.PostForm("title")
		req.Description = c.PostForm("description")
		upload, closeFn, err := formUpload(c, "file")
		if err != nil {
			response.Error(c, err)
			return
		}
		defer closeFn()
		req.Document = upload
	} else if !bindJSON(c, &req, "invalid proposal payload") {
		return
	}

	fyp, err := h.service.SubmitProposal(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, fyp)
}

// Mine godoc
// @Summary Get the caller's final year project
// @Tags FYP
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fyp/me [get]
func (h *FYPHandler) Mine(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	fyp, err := h.service.Mine(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, fyp)
}

// List godoc
// @Summary List final year projects
// @Tags FYP
// @Produce json
// @Param status query string false "Status filter"
// @Param supervisor_id query string false "Supervisor filter"
// @Param unassigned query bool false "Only projects without a supervisor"
// @Param search query string false "Search title or student"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /fyp [get]
func (h *FYPHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	filter := fypFilter(c)
	filter.Page, filter.PageSize = pageQuery(c)
	items, pagination, err := h.service.List(c.Request.Context(), userID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a final year project
// @Tags FYP
// @Produce json
// @Param id path string true "FYP ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fyp/{id} [get]
func (h *FYPHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	fyp, err := h.service.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, fyp)
}

// UpdateProgress godoc
// @Summary Update project progress
// @Tags FYP
// @Accept json
// @Produce json
// @Param id path string true "FYP ID"
// @Param payload body service.ProgressRequest true "Progress"
// @Success 200 {object} response.Envelope
// @Router /fyp/{id}/progress [patch]
func (h *FYPHandler) UpdateProgress(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.ProgressRequest
	if !bindJSON(c, &req, "invalid progress payload") {
		return
	}
	fyp, err := h.service.UpdateProgress(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, fyp)
}

// SetStatus godoc
// @Summary Move a project through its lifecycle
// @Tags FYP
// @Accept json
// @Produce json
// @Param id path string true "FYP ID"
// @Param payload body dto.StatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fyp/{id}/status [patch]
func (h *FYPHandler) SetStatus(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.StatusRequest
	if !bindJSON(c, &req, "status is required") {
		return
	}
	fyp, err := h.service.SetStatus(c.Request.Context(), userID, c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, fyp)
}

// AssignSupervisor godoc
// @Summary Assign a supervisor
// @Tags FYP
// @Accept json
// @Produce json
// @Param id path string true "FYP ID"
// @Param payload body dto.SupervisorRequest true "Supervisor"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /fyp/{id}/supervisor [put]
func (h *FYPHandler) AssignSupervisor(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.SupervisorRequest
	if !bindJSON(c, &req, "supervisor_id is required") {
		return
	}
	fyp, err := h.service.AssignSupervisor(c.Request.Context(), userID, c.Param("id"), req.SupervisorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, fyp)
}

// Export godoc
// @Summary Export the project roster
// @Tags FYP
// @Produce text/csv,application/pdf
// @Param format query string false "csv or pdf"
// @Param status query string false "Status filter"
// @Success 200 {file} binary
// @Router /fyp/export [get]
func (h *FYPHandler) Export(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	file, err := h.service.Export(c.Request.Context(), userID, fypFilter(c), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeExport(c, file)
}

// SubmitDocument godoc
// @Summary Submit a new document version
// @Tags FYP
// @Accept mpfd
// @Produce json
// @Param fyp_id formData string true "FYP ID"
// @Param submission_type formData string true "proposal, chapter_1..chapter_5, final_thesis"
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Param file formData file false "Document"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /fyp/submissions [post]
func (h *FYPHandler) SubmitDocument(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.SubmissionRequest
	if isMultipart(c) {
		req.FYPID = c.PostForm("fyp_id")
		req.SubmissionType = c.PostForm("submission_type")
		req.Title = c.PostForm("title")
		req.Description = optionalForm(c, "description")
		upload, closeFn, err := formUpload(c, "file")
		if err != nil {
			response.Error(c, err)
			return
		}
		defer closeFn()
		req.File = upload
	} else if !bindJSON(c, &req, "invalid submission payload") {
		return
	}

	sub, err := h.service.SubmitDocument(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sub)
}

// History godoc
// @Summary List submission versions
// @Tags FYP
// @Produce json
// @Param id path string true "FYP ID"
// @Param type query string false "Submission type"
// @Success 200 {object} response.Envelope
// @Router /fyp/{id}/submissions [get]
func (h *FYPHandler) History(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	items, err := h.service.History(c.Request.Context(), userID, c.Param("id"), c.Query("type"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Review godoc
// @Summary Review a pending submission
// @Tags FYP
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body service.ReviewRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fyp/submissions/{id}/review [post]
func (h *FYPHandler) Review(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.ReviewRequest
	if !bindJSON(c, &req, "invalid review payload") {
		return
	}
	sub, err := h.service.Review(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sub)
}

// DownloadURL godoc
// @Summary Get a download link for a submission document
// @Tags FYP
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fyp/submissions/{id}/download-url [get]
func (h *FYPHandler) DownloadURL(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	link, err := h.service.DownloadURL(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, link)
}

func fypFilter(c *gin.Context) models.FYPFilter {
	var filter models.FYPFilter
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		s := models.FYPStatus(strings.ToLower(status))
		filter.Status = &s
	}
	filter.SupervisorID = strings.TrimSpace(c.Query("supervisor_id"))
	filter.Unassigned, _ = strconv.ParseBool(c.Query("unassigned"))
	filter.Search = strings.TrimSpace(c.Query("search"))
	return filter
}
