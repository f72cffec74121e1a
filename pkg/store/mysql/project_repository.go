package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ProjectRepository handles project identity and mapping persistence.
type ProjectRepository struct {
	ds *Datastore
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(ds *Datastore) *ProjectRepository {
	return &ProjectRepository{ds: ds}
}

// FindMapping looks up a mapping matching the normalized name OR the
// normalized url. Empty terms are excluded from the match so that a
// mapping recorded without a url can never shadow unrelated projects.
// Returns nil when no mapping matches.
func (r *ProjectRepository) FindMapping(ctx context.Context, normalizedName, normalizedURL string) (*ProjectMapping, error) {
	query := r.ds.DB(ctx).Model(&ProjectMapping{})
	switch {
	case normalizedName != "" && normalizedURL != "":
		query = query.Where("project_name = ? OR project_url = ?", normalizedName, normalizedURL)
	case normalizedName != "":
		query = query.Where("project_name = ?", normalizedName)
	case normalizedURL != "":
		query = query.Where("project_url = ?", normalizedURL)
	default:
		return nil, fmt.Errorf("mapping lookup requires a name or a url")
	}

	var mapping ProjectMapping
	err := query.First(&mapping).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project mapping: %w", err)
	}
	return &mapping, nil
}

// GetProject returns the identity for a project id, or nil.
func (r *ProjectRepository) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var project Project
	err := r.ds.DB(ctx).Where("project_id = ?", projectID).First(&project).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", projectID, err)
	}
	return &project, nil
}

// CreateProjectWithMapping inserts a new identity and its mapping in
// one transaction. No identity without a mapping.
func (r *ProjectRepository) CreateProjectWithMapping(ctx context.Context, project *Project, mapping *ProjectMapping) error {
	return r.ds.ExecTx(ctx, func(txCtx context.Context) error {
		if err := r.ds.DB(txCtx).Create(project).Error; err != nil {
			return fmt.Errorf("failed to create project %s: %w", project.ProjectID, err)
		}
		if err := r.ds.DB(txCtx).Create(mapping).Error; err != nil {
			return fmt.Errorf("failed to create project mapping for %s: %w", project.ProjectID, err)
		}
		return nil
	})
}
