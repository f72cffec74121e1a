package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boincwatch/internal/model"
	"boincwatch/pkg/store/mysql"
)

type fakeSnapshotStore struct {
	hostRows        []mysql.HostStats
	projectRows     []mysql.ProjectStats
	hostProjectRows []mysql.HostProjectStats
	failHost        string
}

func (f *fakeSnapshotStore) UpsertHostStats(ctx context.Context, stats *mysql.HostStats) error {
	if stats.HostName == f.failHost {
		return errors.New("deadlock")
	}
	f.hostRows = append(f.hostRows, *stats)
	return nil
}

func (f *fakeSnapshotStore) UpsertProjectStats(ctx context.Context, stats *mysql.ProjectStats) error {
	f.projectRows = append(f.projectRows, *stats)
	return nil
}

func (f *fakeSnapshotStore) UpsertHostProjectStats(ctx context.Context, stats *mysql.HostProjectStats) error {
	f.hostProjectRows = append(f.hostProjectRows, *stats)
	return nil
}

type fakeResolver struct {
	ids map[string]string
}

func (f *fakeResolver) ResolveProjectID(ctx context.Context, name, url string) (string, error) {
	key := NormalizeProjectKey(name)
	if key == "" {
		key = NormalizeProjectKey(url)
	}
	if id, ok := f.ids[key]; ok {
		return id, nil
	}
	return "id-" + key, nil
}

func pollResultOK(host string, credits ...float64) model.HostPollResult {
	r := model.HostPollResult{
		HostName:                            host,
		State:                               model.HostStateOK,
		LatestTaskDownloadTimePerProjectURL: map[string]time.Time{},
	}
	for i, c := range credits {
		r.Projects = append(r.Projects, model.ProjectSnapshot{
			Name:            "Example",
			MasterURL:       "https://example.org/",
			HostTotalCredit: c,
			UserTotalCredit: 500 + float64(i),
		})
	}
	return r
}

func TestRecordSnapshotsWritesAllThreeScopes(t *testing.T) {
	store := &fakeSnapshotStore{}
	svc := NewStatsService(store, &fakeResolver{})
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	err := svc.RecordSnapshots(context.Background(), now, []model.HostPollResult{
		pollResultOK("h1", 100),
	})
	require.NoError(t, err)

	require.Len(t, store.hostRows, 1)
	assert.Equal(t, "20260831", store.hostRows[0].YYYYMMDD)
	assert.Equal(t, "h1", store.hostRows[0].HostName)
	assert.Equal(t, 100.0, store.hostRows[0].TotalCredit)

	require.Len(t, store.hostProjectRows, 1)
	assert.Equal(t, "Example", store.hostProjectRows[0].ProjectName)

	require.Len(t, store.projectRows, 1)
	assert.Equal(t, "id-example", store.projectRows[0].ProjectID)
	assert.Equal(t, 500.0, store.projectRows[0].TotalCredit)
}

func TestRecordSnapshotsDownHostWritesZeroCredit(t *testing.T) {
	store := &fakeSnapshotStore{}
	svc := NewStatsService(store, &fakeResolver{})
	now := time.Now().UTC()

	down := model.HostPollResult{HostName: "gonehost", State: model.HostStateDown, ErrorMsg: "connection refused"}
	err := svc.RecordSnapshots(context.Background(), now, []model.HostPollResult{
		down,
		pollResultOK("h1", 100),
	})
	require.NoError(t, err)

	require.Len(t, store.hostRows, 2)
	assert.Equal(t, "gonehost", store.hostRows[0].HostName)
	assert.Equal(t, 0.0, store.hostRows[0].TotalCredit)

	// The down host contributes nothing at project scope.
	require.Len(t, store.projectRows, 1)
}

func TestRecordSnapshotsSkipsNamelessDownHost(t *testing.T) {
	store := &fakeSnapshotStore{}
	svc := NewStatsService(store, &fakeResolver{})

	err := svc.RecordSnapshots(context.Background(), time.Now(), []model.HostPollResult{
		{IP: "10.0.0.9", State: model.HostStateDown},
	})
	require.NoError(t, err)
	assert.Empty(t, store.hostRows)
}

func TestRecordSnapshotsMergesProjectAcrossHosts(t *testing.T) {
	store := &fakeSnapshotStore{}
	svc := NewStatsService(store, &fakeResolver{})

	r1 := pollResultOK("h1", 100)
	r1.Projects[0].UserTotalCredit = 900
	r2 := pollResultOK("h2", 50)
	r2.Projects[0].UserTotalCredit = 910 // fresher account reading

	err := svc.RecordSnapshots(context.Background(), time.Now(), []model.HostPollResult{r1, r2})
	require.NoError(t, err)

	require.Len(t, store.projectRows, 1)
	assert.Equal(t, 910.0, store.projectRows[0].TotalCredit)
	require.Len(t, store.hostProjectRows, 2)
}

func TestRecordSnapshotsIsolatesFailures(t *testing.T) {
	store := &fakeSnapshotStore{failHost: "h1"}
	svc := NewStatsService(store, &fakeResolver{})

	err := svc.RecordSnapshots(context.Background(), time.Now(), []model.HostPollResult{
		pollResultOK("h1", 100),
		pollResultOK("h2", 50),
	})
	require.Error(t, err)

	// h2 still landed, and so did the merged project row.
	require.Len(t, store.hostRows, 1)
	assert.Equal(t, "h2", store.hostRows[0].HostName)
	assert.Len(t, store.projectRows, 1)
}
