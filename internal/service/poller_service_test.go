package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boincwatch/internal/model"
	"boincwatch/pkg/boincrpc"
	"boincwatch/pkg/config"
)

type fakeStateClient struct {
	state    *boincrpc.ClientState
	authErr  error
	stateErr error
	closed   bool
}

func (c *fakeStateClient) Authorize(ctx context.Context, password string) error { return c.authErr }

func (c *fakeStateClient) GetState(ctx context.Context) (*boincrpc.ClientState, error) {
	if c.stateErr != nil {
		return nil, c.stateErr
	}
	return c.state, nil
}

func (c *fakeStateClient) Close() error {
	c.closed = true
	return nil
}

func newTestPoller(dial DialFunc) *PollerService {
	p := NewPollerService(config.PollingConfig{TimeoutSeconds: 5, Concurrency: 2})
	p.dial = dial
	return p
}

func stateWithTasks(cpuTimes ...float64) *boincrpc.ClientState {
	state := &boincrpc.ClientState{
		HostInfo: boincrpc.HostInfo{DomainName: "crunchbox"},
		Projects: []boincrpc.Project{
			{MasterURL: "https://example.org/", ProjectName: "Example", HostTotalCredit: 100, UserTotalCredit: 500},
		},
	}
	for i, cpu := range cpuTimes {
		state.Results = append(state.Results, boincrpc.Result{
			ProjectURL:     "https://example.org/",
			Name:           "task",
			CurrentCPUTime: cpu,
			ReceivedTime:   time.Date(2026, 8, 30, 12, i, 0, 0, time.UTC),
		})
	}
	return state
}

func TestPollAllClassifiesHostStates(t *testing.T) {
	states := map[string]*boincrpc.ClientState{
		"10.0.0.1:31416": stateWithTasks(3600, 0.01),
		"10.0.0.2:31416": stateWithTasks(0.2),
		"10.0.0.3:31416": stateWithTasks(),
	}
	poller := newTestPoller(func(ctx context.Context, addr string) (StateClient, error) {
		st, ok := states[addr]
		if !ok {
			return nil, errors.New("connection refused")
		}
		return &fakeStateClient{state: st}, nil
	})

	results := poller.PollAll(context.Background(), []config.HostConfig{
		{IP: "10.0.0.1"},
		{IP: "10.0.0.2"},
		{IP: "10.0.0.3"},
		{Name: "darkhost", IP: "10.0.0.4"},
	})

	require.Len(t, results, 4)
	assert.Equal(t, model.HostStateOK, results[0].State)
	assert.Equal(t, 1, results[0].TasksRunning)
	assert.Equal(t, model.HostStateNoRunningTasks, results[1].State)
	assert.Equal(t, model.HostStateNoTasks, results[2].State)
	assert.Equal(t, model.HostStateDown, results[3].State)
	assert.Equal(t, "darkhost", results[3].HostName)
	assert.NotEmpty(t, results[3].ErrorMsg)
}

func TestPollAllOneBadHostDoesNotAffectOthers(t *testing.T) {
	poller := newTestPoller(func(ctx context.Context, addr string) (StateClient, error) {
		if addr == "10.0.0.2:31416" {
			return &fakeStateClient{authErr: boincrpc.ErrUnauthorized}, nil
		}
		return &fakeStateClient{state: stateWithTasks(100)}, nil
	})

	results := poller.PollAll(context.Background(), []config.HostConfig{
		{IP: "10.0.0.1"},
		{Name: "badpass", IP: "10.0.0.2"},
	})

	require.Len(t, results, 2)
	assert.Equal(t, model.HostStateOK, results[0].State)
	assert.Equal(t, model.HostStateDown, results[1].State)
}

func TestPollHostClosesConnectionOnFailure(t *testing.T) {
	client := &fakeStateClient{stateErr: errors.New("protocol error")}
	poller := newTestPoller(func(ctx context.Context, addr string) (StateClient, error) {
		return client, nil
	})

	results := poller.PollAll(context.Background(), []config.HostConfig{{Name: "h1", IP: "10.0.0.1"}})

	require.Len(t, results, 1)
	assert.Equal(t, model.HostStateDown, results[0].State)
	assert.True(t, client.closed)
}

func TestBuildPollResultLatestDownloadPerProject(t *testing.T) {
	state := stateWithTasks(10, 20, 30)
	result := buildPollResult(config.HostConfig{IP: "10.0.0.1"}, state)

	assert.Equal(t, "crunchbox", result.HostName)
	latest, ok := result.LatestTaskDownloadTimePerProjectURL["https://example.org/"]
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 2, 0, 0, time.UTC), latest)

	overall := result.LatestTaskDownloadTime()
	require.NotNil(t, overall)
	assert.Equal(t, latest, *overall)
}

func TestBuildPollResultResolvesAppThroughWorkunit(t *testing.T) {
	state := stateWithTasks(10)
	state.Results[0].WorkunitName = "wu_1"
	state.Workunits = []boincrpc.Workunit{
		{ProjectURL: "https://example.org/", Name: "wu_1", AppName: "milkyway_nbody"},
	}

	result := buildPollResult(config.HostConfig{IP: "10.0.0.1"}, state)
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, "milkyway_nbody", result.Tasks[0].AppName)
}
