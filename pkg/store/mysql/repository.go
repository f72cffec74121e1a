package mysql

// Repository aggregates all MySQL repositories
type Repository struct {
	ds *Datastore

	Stats   *StatsRepository
	Task    *TaskRepository
	Project *ProjectRepository
}

// NewRepository creates a new MySQL repository with all sub-repositories
func NewRepository(dsn string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}
	return NewRepositoryWithDatastore(ds), nil
}

// NewRepositoryWithDatastore builds the repository set over an
// existing datastore (used by tests).
func NewRepositoryWithDatastore(ds *Datastore) *Repository {
	return &Repository{
		ds:      ds,
		Stats:   NewStatsRepository(ds),
		Task:    NewTaskRepository(ds),
		Project: NewProjectRepository(ds),
	}
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
