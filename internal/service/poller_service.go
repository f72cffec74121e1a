package service

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"boincwatch/internal/model"
	"boincwatch/pkg/boincrpc"
	"boincwatch/pkg/config"
	"boincwatch/pkg/logger"
	"boincwatch/pkg/metrics"
)

// runningCPUThreshold separates tasks that are actually consuming CPU
// from tasks that are merely scheduled. Freshly started tasks report a
// few milliseconds of CPU before doing real work.
const runningCPUThreshold = 1.0

// StateClient is the subset of the GUI RPC client the poller needs.
type StateClient interface {
	Authorize(ctx context.Context, password string) error
	GetState(ctx context.Context) (*boincrpc.ClientState, error)
	Close() error
}

// DialFunc opens a GUI RPC connection to addr.
type DialFunc func(ctx context.Context, addr string) (StateClient, error)

func defaultDial(ctx context.Context, addr string) (StateClient, error) {
	return boincrpc.Dial(ctx, addr)
}

// PollerService polls the configured fleet of BOINC clients and turns
// each reply into an immutable per-host result. One bad host never
// affects the others.
type PollerService struct {
	dial        DialFunc
	timeout     time.Duration
	concurrency int
}

// NewPollerService creates a new poller service
func NewPollerService(cfg config.PollingConfig) *PollerService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &PollerService{
		dial:        defaultDial,
		timeout:     timeout,
		concurrency: concurrency,
	}
}

// PollAll polls every host concurrently and returns one result per
// host, in configuration order. Failures are captured on the result,
// never returned as an error.
func (s *PollerService) PollAll(ctx context.Context, hosts []config.HostConfig) []model.HostPollResult {
	results := make([]model.HostPollResult, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			results[i] = s.pollHost(gctx, host)
			return nil
		})
	}
	// Workers never return errors; Wait only orders the writes.
	_ = g.Wait()

	states := []model.HostState{
		model.HostStateDown, model.HostStateOK,
		model.HostStateNoRunningTasks, model.HostStateNoTasks,
	}
	for _, r := range results {
		if r.HostName == "" {
			continue
		}
		for _, st := range states {
			v := 0.0
			if st == r.State {
				v = 1.0
			}
			metrics.HostState.WithLabelValues(r.HostName, string(st)).Set(v)
		}
	}
	return results
}

func (s *PollerService) pollHost(ctx context.Context, host config.HostConfig) model.HostPollResult {
	port := host.Port
	if port <= 0 {
		port = boincrpc.DefaultPort
	}
	addr := net.JoinHostPort(host.IP, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state, err := s.fetchState(ctx, addr, host.Password)
	if err != nil {
		logger.WarnCtx(ctx, "host %s (%s) is unreachable: %v", host.Name, addr, err)
		return model.HostPollResult{
			HostName: host.Name,
			IP:       host.IP,
			State:    model.HostStateDown,
			ErrorMsg: err.Error(),
		}
	}

	return buildPollResult(host, state)
}

// fetchState owns the connection lifecycle: the client is closed on
// every path, including auth and protocol failures.
func (s *PollerService) fetchState(ctx context.Context, addr, password string) (*boincrpc.ClientState, error) {
	client, err := s.dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	if err := client.Authorize(ctx, password); err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	state, err := client.GetState(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_state: %w", err)
	}
	return state, nil
}

func buildPollResult(host config.HostConfig, state *boincrpc.ClientState) model.HostPollResult {
	hostName := state.HostInfo.DomainName
	if hostName == "" {
		hostName = host.Name
	}

	result := model.HostPollResult{
		HostName:                            hostName,
		IP:                                  host.IP,
		Projects:                            make([]model.ProjectSnapshot, 0, len(state.Projects)),
		Tasks:                               make([]model.TaskSnapshot, 0, len(state.Results)),
		Apps:                                make([]model.AppSnapshot, 0, len(state.Apps)),
		LatestTaskDownloadTimePerProjectURL: make(map[string]time.Time),
	}

	for _, p := range state.Projects {
		result.Projects = append(result.Projects, model.ProjectSnapshot{
			Name:            p.ProjectName,
			MasterURL:       p.MasterURL,
			HostTotalCredit: p.HostTotalCredit,
			UserTotalCredit: p.UserTotalCredit,
		})
	}

	for _, a := range state.Apps {
		result.Apps = append(result.Apps, model.AppSnapshot{
			ProjectURL:       a.ProjectURL,
			Name:             a.Name,
			UserFriendlyName: a.UserFriendlyName,
		})
	}

	// Tasks reference their app through the workunit.
	appByWorkunit := make(map[string]string, len(state.Workunits))
	for _, wu := range state.Workunits {
		appByWorkunit[wu.ProjectURL+"|"+wu.Name] = wu.AppName
	}

	running := 0
	for _, r := range state.Results {
		if r.CurrentCPUTime > runningCPUThreshold {
			running++
		}
		result.Tasks = append(result.Tasks, model.TaskSnapshot{
			ProjectURL:                r.ProjectURL,
			TaskName:                  r.Name,
			AppName:                   appByWorkunit[r.ProjectURL+"|"+r.WorkunitName],
			CurrentCPUTime:            r.CurrentCPUTime,
			ElapsedTime:               r.ElapsedTime,
			EstimatedCPUTimeRemaining: r.EstimatedCPUTimeRemaining,
			FractionDone:              r.FractionDone,
			ReceivedTime:              r.ReceivedTime,
		})
		if !r.ReceivedTime.IsZero() {
			if cur, ok := result.LatestTaskDownloadTimePerProjectURL[r.ProjectURL]; !ok || r.ReceivedTime.After(cur) {
				result.LatestTaskDownloadTimePerProjectURL[r.ProjectURL] = r.ReceivedTime
			}
		}
	}
	result.TasksRunning = running

	switch {
	case len(state.Results) == 0:
		result.State = model.HostStateNoTasks
	case running == 0:
		result.State = model.HostStateNoRunningTasks
	default:
		result.State = model.HostStateOK
	}
	return result
}
