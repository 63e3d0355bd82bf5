package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/swebuk/portal-api/internal/models"
)

const (
	clusterColumns = `id, name, description, lead_id, deputy_id, staff_manager_id, created_at, updated_at`
	projectColumns = `id, cluster_id, owner_id, name, description, created_at, updated_at`
)

// ClusterRepository persists clusters and projects.
type ClusterRepository struct {
	db *sqlx.DB
}

// NewClusterRepository creates a new ClusterRepository.
func NewClusterRepository(db *sqlx.DB) *ClusterRepository {
	return &ClusterRepository{db: db}
}

// CreateCluster inserts a cluster.
func (r *ClusterRepository) CreateCluster(ctx context.Context, cluster *models.Cluster) error {
	if cluster.ID == "" {
		cluster.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cluster.CreatedAt, cluster.UpdatedAt = now, now
	const query = `INSERT INTO clusters (id, name, description, lead_id, deputy_id, staff_manager_id, created_at, updated_at) VALUES (:id, :name, :description, :lead_id, :deputy_id, :staff_manager_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cluster); err != nil {
		return fmt.Errorf("create cluster: %w", err)
	}
	return nil
}

// FindCluster returns a cluster by identifier.
func (r *ClusterRepository) FindCluster(ctx context.Context, id string) (*models.Cluster, error) {
	var cluster models.Cluster
	if err := r.db.GetContext(ctx, &cluster, `SELECT `+clusterColumns+` FROM clusters WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find cluster: %w", err)
	}
	return &cluster, nil
}

// ListClusters returns all clusters by name.
func (r *ClusterRepository) ListClusters(ctx context.Context) ([]models.Cluster, error) {
	var clusters []models.Cluster
	if err := r.db.SelectContext(ctx, &clusters, `SELECT `+clusterColumns+` FROM clusters ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	return clusters, nil
}

// UpdateLeadership replaces the lead, deputy and staff manager.
func (r *ClusterRepository) UpdateLeadership(ctx context.Context, cluster *models.Cluster) error {
	cluster.UpdatedAt = time.Now().UTC()
	const query = `UPDATE clusters SET lead_id = :lead_id, deputy_id = :deputy_id, staff_manager_id = :staff_manager_id, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, cluster)
	if err != nil {
		return fmt.Errorf("update cluster leadership: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClustersManagedBy lists clusters where the profile is lead, deputy or staff manager.
func (r *ClusterRepository) ClustersManagedBy(ctx context.Context, profileID string) ([]models.Cluster, error) {
	var clusters []models.Cluster
	query := `SELECT ` + clusterColumns + ` FROM clusters WHERE lead_id = $1 OR deputy_id = $1 OR staff_manager_id = $1 ORDER BY name ASC`
	if err := r.db.SelectContext(ctx, &clusters, query, profileID); err != nil {
		return nil, fmt.Errorf("list managed clusters: %w", err)
	}
	return clusters, nil
}

// CreateProject inserts a project.
func (r *ClusterRepository) CreateProject(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	project.CreatedAt, project.UpdatedAt = now, now
	const query = `INSERT INTO projects (id, cluster_id, owner_id, name, description, created_at, updated_at) VALUES (:id, :cluster_id, :owner_id, :name, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// FindProject returns a project by identifier.
func (r *ClusterRepository) FindProject(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	if err := r.db.GetContext(ctx, &project, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find project: %w", err)
	}
	return &project, nil
}

// ListProjects returns projects, optionally within one cluster.
func (r *ClusterRepository) ListProjects(ctx context.Context, clusterID string) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []interface{}
	if clusterID != "" {
		query += ` WHERE cluster_id = $1`
		args = append(args, clusterID)
	}
	query += ` ORDER BY name ASC`
	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, args...); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}
