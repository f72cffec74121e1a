package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"boincwatch/pkg/logger"
	"boincwatch/pkg/store/mysql"
)

// projectStore is the slice of the project repository the resolver
// depends on.
type projectStore interface {
	FindMapping(ctx context.Context, normalizedName, normalizedURL string) (*mysql.ProjectMapping, error)
	CreateProjectWithMapping(ctx context.Context, project *mysql.Project, mapping *mysql.ProjectMapping) error
}

// ProjectService resolves a project's observed (name, url) pair to a
// stable project id. A project keeps its id when either its display
// name or its master url changes, as long as the other side still
// matches a recorded mapping.
type ProjectService struct {
	repo projectStore

	// mu serializes identity creation per normalized key so two hosts
	// reporting a new project in the same cycle cannot mint two ids.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProjectService creates a new project service
func NewProjectService(repo projectStore) *ProjectService {
	return &ProjectService{
		repo:  repo,
		locks: make(map[string]*sync.Mutex),
	}
}

// NormalizeProjectKey lowercases and trims a name or url for matching.
func NormalizeProjectKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ResolveProjectID returns the stable id for the observed pair,
// creating a new identity (and its mapping) on first sight.
func (s *ProjectService) ResolveProjectID(ctx context.Context, name, url string) (string, error) {
	normName := NormalizeProjectKey(name)
	normURL := NormalizeProjectKey(url)
	if normName == "" && normURL == "" {
		return "", fmt.Errorf("project has neither a name nor a url")
	}

	mapping, err := s.repo.FindMapping(ctx, normName, normURL)
	if err != nil {
		return "", err
	}
	if mapping != nil {
		return mapping.ProjectID, nil
	}

	lock := s.keyLock(normName + "|" + normURL)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock; another goroutine may have created the
	// identity while this one waited.
	mapping, err = s.repo.FindMapping(ctx, normName, normURL)
	if err != nil {
		return "", err
	}
	if mapping != nil {
		return mapping.ProjectID, nil
	}

	displayName := strings.TrimSpace(name)
	if displayName == "" {
		displayName = normURL
	}
	project := &mysql.Project{
		ProjectID:   uuid.NewString(),
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	err = s.repo.CreateProjectWithMapping(ctx, project, &mysql.ProjectMapping{
		ProjectName: normName,
		ProjectURL:  normURL,
		ProjectID:   project.ProjectID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create identity for project %q: %w", displayName, err)
	}
	logger.InfoCtx(ctx, "created identity %s for new project %q (%s)", project.ProjectID, displayName, normURL)
	return project.ProjectID, nil
}

func (s *ProjectService) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
