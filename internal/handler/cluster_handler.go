package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/swebuk/portal-api/internal/dto"
	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/service"
	"github.com/swebuk/portal-api/pkg/response"
)

type clusterService interface {
	CreateCluster(ctx context.Context, actorID string, req service.ClusterRequest) (*models.Cluster, error)
	ListClusters(ctx context.Context) ([]models.Cluster, error)
	GetCluster(ctx context.Context, id string) (*models.Cluster, error)
	UpdateLeadership(ctx context.Context, actorID, id string, req service.LeadershipRequest) (*models.Cluster, error)
	CreateProject(ctx context.Context, actorID string, req service.ProjectRequest) (*models.Project, error)
	ListProjects(ctx context.Context, clusterID string) ([]models.Project, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	Join(ctx context.Context, actorID string, kind models.GroupKind, groupID string, note *string) (*models.Membership, error)
	Members(ctx context.Context, actorID string, kind models.GroupKind, groupID string, rawStatus string) ([]models.Membership, error)
	ReviewMember(ctx context.Context, actorID string, kind models.GroupKind, groupID, membershipID string, req service.MembershipReviewRequest) (*models.Membership, error)
	MyMemberships(ctx context.Context, actorID string, kind models.GroupKind) ([]models.Membership, error)
}

// ClusterHandler exposes clusters, projects and their memberships.
type ClusterHandler struct {
	service clusterService
}

// NewClusterHandler constructs the handler.
func NewClusterHandler(svc clusterService) *ClusterHandler {
	return &ClusterHandler{service: svc}
}

// CreateCluster godoc
// @Summary Create a cluster
// @Tags Clusters
// @Accept json
// @Produce json
// @Param payload body service.ClusterRequest true "Cluster"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /clusters [post]
func (h *ClusterHandler) CreateCluster(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.ClusterRequest
	if !bindJSON(c, &req, "invalid cluster payload") {
		return
	}
	cluster, err := h.service.CreateCluster(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cluster)
}

// ListClusters godoc
// @Summary List clusters
// @Tags Clusters
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /clusters [get]
func (h *ClusterHandler) ListClusters(c *gin.Context) {
	items, err := h.service.ListClusters(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// GetCluster godoc
// @Summary Get a cluster
// @Tags Clusters
// @Produce json
// @Param id path string true "Cluster ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clusters/{id} [get]
func (h *ClusterHandler) GetCluster(c *gin.Context) {
	cluster, err := h.service.GetCluster(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cluster)
}

// UpdateLeadership godoc
// @Summary Set a cluster's lead, deputy and staff manager
// @Tags Clusters
// @Accept json
// @Produce json
// @Param id path string true "Cluster ID"
// @Param payload body service.LeadershipRequest true "Leadership"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /clusters/{id}/leadership [put]
func (h *ClusterHandler) UpdateLeadership(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.LeadershipRequest
	if !bindJSON(c, &req, "invalid leadership payload") {
		return
	}
	cluster, err := h.service.UpdateLeadership(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cluster)
}

// CreateProject godoc
// @Summary Create a project owned by the caller
// @Tags Projects
// @Accept json
// @Produce json
// @Param payload body service.ProjectRequest true "Project"
// @Success 201 {object} response.Envelope
// @Router /projects [post]
func (h *ClusterHandler) CreateProject(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.ProjectRequest
	if !bindJSON(c, &req, "invalid project payload") {
		return
	}
	project, err := h.service.CreateProject(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, project)
}

// ListProjects godoc
// @Summary List projects
// @Tags Projects
// @Produce json
// @Param cluster_id query string false "Cluster filter"
// @Success 200 {object} response.Envelope
// @Router /projects [get]
func (h *ClusterHandler) ListProjects(c *gin.Context) {
	items, err := h.service.ListProjects(c.Request.Context(), strings.TrimSpace(c.Query("cluster_id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// GetProject godoc
// @Summary Get a project
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id} [get]
func (h *ClusterHandler) GetProject(c *gin.Context) {
	project, err := h.service.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, project)
}

// Join godoc
// @Summary Request to join a cluster or project
// @Tags Memberships
// @Accept json
// @Produce json
// @Param id path string true "Cluster or project ID"
// @Param payload body dto.JoinRequest false "Optional note"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /clusters/{id}/join [post]
// @Router /projects/{id}/join [post]
func (h *ClusterHandler) Join(kind models.GroupKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		var req dto.JoinRequest
		if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid join payload") {
			return
		}
		membership, err := h.service.Join(c.Request.Context(), userID, kind, c.Param("id"), req.Note)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, membership)
	}
}

// Members godoc
// @Summary List members of a cluster or project
// @Description Managers may filter by status; everyone else sees approved members.
// @Tags Memberships
// @Produce json
// @Param id path string true "Cluster or project ID"
// @Param status query string false "pending, approved or rejected"
// @Success 200 {object} response.Envelope
// @Router /clusters/{id}/members [get]
// @Router /projects/{id}/members [get]
func (h *ClusterHandler) Members(kind models.GroupKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		items, err := h.service.Members(c.Request.Context(), userID, kind, c.Param("id"), c.Query("status"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, items)
	}
}

// ReviewMember godoc
// @Summary Approve or reject a join request
// @Tags Memberships
// @Accept json
// @Produce json
// @Param id path string true "Cluster or project ID"
// @Param memberId path string true "Membership ID"
// @Param payload body service.MembershipReviewRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /clusters/{id}/members/{memberId}/review [post]
// @Router /projects/{id}/members/{memberId}/review [post]
func (h *ClusterHandler) ReviewMember(kind models.GroupKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		var req service.MembershipReviewRequest
		if !bindJSON(c, &req, "invalid review payload") {
			return
		}
		membership, err := h.service.ReviewMember(c.Request.Context(), userID, kind, c.Param("id"), c.Param("memberId"), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, membership)
	}
}

// MyMemberships godoc
// @Summary List the caller's memberships
// @Tags Memberships
// @Produce json
// @Param kind query string false "cluster (default) or project"
// @Success 200 {object} response.Envelope
// @Router /memberships/me [get]
func (h *ClusterHandler) MyMemberships(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	kind := models.GroupCluster
	if strings.EqualFold(c.Query("kind"), string(models.GroupProject)) {
		kind = models.GroupProject
	}
	items, err := h.service.MyMemberships(c.Request.Context(), userID, kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}
