package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boincwatch/pkg/store/mysql"
)

type fakeBootstrapStore struct {
	hasStats bool
	rows     []mysql.ProjectStats
}

func (f *fakeBootstrapStore) HasProjectStats(ctx context.Context) (bool, error) {
	return f.hasStats, nil
}

func (f *fakeBootstrapStore) UpsertProjectStats(ctx context.Context, stats *mysql.ProjectStats) error {
	f.rows = append(f.rows, *stats)
	return nil
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSeedFromCSVImportsHistoricalCredit(t *testing.T) {
	csv := `Project,URL,Credit
Einstein@Home,https://einstein.phys.uwm.edu/,"1,234,567.89"
Rosetta@home,https://boinc.bakerlab.org/rosetta/,98765.4
`
	store := &fakeBootstrapStore{}
	svc := NewBootstrapService(store, &fakeResolver{}, writeCSV(t, csv))

	require.NoError(t, svc.SeedFromCSV(context.Background()))
	require.Len(t, store.rows, 2)

	first := store.rows[0]
	assert.Equal(t, "19990101", first.YYYYMMDD)
	assert.Equal(t, "Einstein@Home", first.ProjectName)
	assert.Equal(t, 1234567.89, first.TotalCredit)
	assert.Equal(t, "id-einstein@home", first.ProjectID)
}

func TestSeedFromCSVImportsTwoColumnExport(t *testing.T) {
	// The plain export format carries only (name, credit).
	csv := "Project,Points\nSETI@Home,\"1,234,567.89\"\n"
	store := &fakeBootstrapStore{}
	svc := NewBootstrapService(store, &fakeResolver{}, writeCSV(t, csv))

	require.NoError(t, svc.SeedFromCSV(context.Background()))
	require.Len(t, store.rows, 1)

	row := store.rows[0]
	assert.Equal(t, "19990101", row.YYYYMMDD)
	assert.Equal(t, "SETI@Home", row.ProjectName)
	assert.Equal(t, "", row.MasterURL)
	assert.Equal(t, 1234567.89, row.TotalCredit)
	assert.Equal(t, "id-seti@home", row.ProjectID)
}

func TestSeedFromCSVSkipsWhenDataExists(t *testing.T) {
	store := &fakeBootstrapStore{hasStats: true}
	svc := NewBootstrapService(store, &fakeResolver{}, writeCSV(t, "A,https://a.example/,10\n"))

	require.NoError(t, svc.SeedFromCSV(context.Background()))
	assert.Empty(t, store.rows)
}

func TestSeedFromCSVNoPathConfigured(t *testing.T) {
	store := &fakeBootstrapStore{}
	svc := NewBootstrapService(store, &fakeResolver{}, "")

	require.NoError(t, svc.SeedFromCSV(context.Background()))
	assert.Empty(t, store.rows)
}

func TestSeedFromCSVSkipsMalformedRows(t *testing.T) {
	csv := `A,https://a.example/,10
,,"5"
B,https://b.example/,not-a-number
C,https://c.example/,20
`
	store := &fakeBootstrapStore{}
	svc := NewBootstrapService(store, &fakeResolver{}, writeCSV(t, csv))

	require.NoError(t, svc.SeedFromCSV(context.Background()))
	require.Len(t, store.rows, 2)
	assert.Equal(t, "A", store.rows[0].ProjectName)
	assert.Equal(t, "C", store.rows[1].ProjectName)
}
