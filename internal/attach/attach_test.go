package attach

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"

	emraws "github.com/beamline/emrattach/internal/aws"
	"github.com/beamline/emrattach/internal/state"
)

type mockLauncher struct {
	id    string
	err   error
	calls int
}

func (m *mockLauncher) Launch(_ context.Context, _, _, _ string) (string, error) {
	m.calls++
	return m.id, m.err
}

type mockWriter struct {
	path  string
	err   error
	addrs []string
}

func (m *mockWriter) Generate(_ context.Context, addr string) (string, error) {
	m.addrs = append(m.addrs, addr)
	if m.err != nil {
		return "", m.err
	}
	return m.path, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPoller(cluster emraws.ClusterAPI) *Poller {
	return &Poller{
		Cluster:         cluster,
		Interval:        time.Millisecond,
		Timeout:         time.Second,
		RetryInitial:    time.Millisecond,
		RetryMaxElapsed: 50 * time.Millisecond,
		Logger:          testLogger(),
	}
}

func statuses(states ...types.ClusterState) []emraws.ClusterStatus {
	out := make([]emraws.ClusterStatus, 0, len(states))
	for _, s := range states {
		out = append(out, emraws.ClusterStatus{State: s})
	}
	return out
}

func master(ip string) [][]emraws.Instance {
	return [][]emraws.Instance{{{ID: "ci-1", PrivateIP: ip}}}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"neither", Options{}, true},
		{"both", Options{ClusterID: "j-1", Size: "small"}, true},
		{"cluster id", Options{ClusterID: "j-1"}, false},
		{"size", Options{Size: "small", ParamSet: "default"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			var usage *UsageError
			if tt.wantErr && !errors.As(err, &usage) {
				t.Errorf("expected UsageError, got %T", err)
			}
		})
	}
}

func TestRunUsageErrorMakesNoCalls(t *testing.T) {
	cluster := &emraws.MockCluster{}
	launcher := &mockLauncher{}
	writer := &mockWriter{}
	flow := &Flow{Launcher: launcher, Writer: writer, Poller: fastPoller(cluster), Logger: testLogger()}

	res, err := flow.Run(context.Background(), Options{})
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("expected UsageError, got %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if launcher.calls != 0 || cluster.StateCalls != 0 || cluster.ListCalls != 0 || len(writer.addrs) != 0 {
		t.Error("no provider or filesystem calls expected")
	}
}

func TestRunProvisionPath(t *testing.T) {
	cluster := &emraws.MockCluster{
		States:    statuses(types.ClusterStateStarting, types.ClusterStateBootstrapping, types.ClusterStateWaiting),
		Instances: master("10.0.0.5"),
	}
	launcher := &mockLauncher{id: "j-NEW"}
	writer := &mockWriter{path: "/tmp/config.json"}
	statePath := filepath.Join(t.TempDir(), "state.yaml")
	flow := &Flow{Launcher: launcher, Writer: writer, Poller: fastPoller(cluster), Logger: testLogger(), StatePath: statePath}

	res, err := flow.Run(context.Background(), Options{Size: "small", ParamSet: "default", ConfigPath: "emr.yaml"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Phase != PhaseReady {
		t.Errorf("Phase = %s", res.Phase)
	}
	if res.ClusterID != "j-NEW" || !res.Created {
		t.Errorf("result = %+v", res)
	}
	if res.Attempts != 3 || cluster.StateCalls != 3 {
		t.Errorf("attempts = %d, state calls = %d, want 3", res.Attempts, cluster.StateCalls)
	}
	if cluster.ListCalls != 1 {
		t.Errorf("expected 1 list call, got %d", cluster.ListCalls)
	}
	if len(cluster.ListedGroups) != 1 || cluster.ListedGroups[0] != types.InstanceGroupTypeMaster {
		t.Errorf("listed groups = %v", cluster.ListedGroups)
	}
	if len(writer.addrs) != 1 || writer.addrs[0] != "10.0.0.5" {
		t.Errorf("writer got %v", writer.addrs)
	}
	if res.MasterAddress != "10.0.0.5" || res.ConfigPath != "/tmp/config.json" {
		t.Errorf("result = %+v", res)
	}

	st, err := state.Load(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if st.ClusterID != "j-NEW" || st.Size != "small" || st.ClusterName != "Spark-default-Size-small" || !st.Created {
		t.Errorf("state = %+v", st)
	}
}

func TestRunAttachPath(t *testing.T) {
	cluster := &emraws.MockCluster{
		States:    statuses(types.ClusterStateWaiting),
		Instances: master("10.1.2.3"),
	}
	launcher := &mockLauncher{}
	writer := &mockWriter{path: "/tmp/config.json"}
	flow := &Flow{Launcher: launcher, Writer: writer, Poller: fastPoller(cluster), Logger: testLogger()}

	res, err := flow.Run(context.Background(), Options{ClusterID: "j-EXISTING", Size: ""})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Phase != PhaseAttached || res.Created {
		t.Errorf("result = %+v", res)
	}
	if launcher.calls != 0 {
		t.Error("attach path must not launch a cluster")
	}
	if len(writer.addrs) != 1 || writer.addrs[0] != "10.1.2.3" {
		t.Errorf("writer got %v", writer.addrs)
	}
}

func TestRunAttachTerminatedCluster(t *testing.T) {
	cluster := &emraws.MockCluster{
		States: []emraws.ClusterStatus{{State: types.ClusterStateTerminated, Code: "USER_REQUEST", Reason: "Terminated by user request"}},
	}
	writer := &mockWriter{}
	flow := &Flow{Launcher: &mockLauncher{}, Writer: writer, Poller: fastPoller(cluster), Logger: testLogger()}

	res, err := flow.Run(context.Background(), Options{ClusterID: "j-OLD"})
	var failedErr *ClusterFailedError
	if !errors.As(err, &failedErr) {
		t.Fatalf("expected ClusterFailedError, got %v", err)
	}
	if failedErr.State != "TERMINATED" || failedErr.Reason != "Terminated by user request" {
		t.Errorf("error = %+v", failedErr)
	}
	if res.Phase != PhaseFailed {
		t.Errorf("Phase = %s", res.Phase)
	}
	if cluster.ListCalls != 0 || len(writer.addrs) != 0 {
		t.Error("no listing or writing expected for a terminated cluster")
	}
}

func TestRunLaunchError(t *testing.T) {
	cluster := &emraws.MockCluster{}
	launchErr := errors.New("config emr.yaml: cluster size not found")
	flow := &Flow{Launcher: &mockLauncher{err: launchErr}, Writer: &mockWriter{}, Poller: fastPoller(cluster), Logger: testLogger()}

	res, err := flow.Run(context.Background(), Options{Size: "huge"})
	if !errors.Is(err, launchErr) {
		t.Fatalf("expected launch error, got %v", err)
	}
	if res.Phase != PhaseFailed || cluster.StateCalls != 0 {
		t.Errorf("phase = %s, state calls = %d", res.Phase, cluster.StateCalls)
	}
}

func TestRunWriteError(t *testing.T) {
	cluster := &emraws.MockCluster{Instances: master("10.0.0.5")}
	writeErr := errors.New("permission denied")
	statePath := filepath.Join(t.TempDir(), "state.yaml")
	flow := &Flow{Launcher: &mockLauncher{}, Writer: &mockWriter{err: writeErr}, Poller: fastPoller(cluster), Logger: testLogger(), StatePath: statePath}

	res, err := flow.Run(context.Background(), Options{ClusterID: "j-1"})
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	if res.Phase != PhaseFailed || res.MasterAddress != "10.0.0.5" {
		t.Errorf("result = %+v", res)
	}
	st, _ := state.Load(statePath)
	if st.HasCluster() {
		t.Error("failed runs must not be recorded")
	}
}

func TestWaitReadyTerminalStates(t *testing.T) {
	for _, s := range []types.ClusterState{types.ClusterStateTerminating, types.ClusterStateTerminated, types.ClusterStateTerminatedWithErrors} {
		t.Run(string(s), func(t *testing.T) {
			cluster := &emraws.MockCluster{States: []emraws.ClusterStatus{
				{State: types.ClusterStateStarting},
				{State: s, Code: "BOOTSTRAP_FAILURE", Reason: "bootstrap action 1 failed"},
			}}
			attempts, err := fastPoller(cluster).WaitReady(context.Background(), "j-1")
			var failedErr *ClusterFailedError
			if !errors.As(err, &failedErr) {
				t.Fatalf("expected ClusterFailedError, got %v", err)
			}
			if attempts != 2 {
				t.Errorf("attempts = %d, want 2", attempts)
			}
			if failedErr.Code != "BOOTSTRAP_FAILURE" {
				t.Errorf("Code = %q", failedErr.Code)
			}
		})
	}
}

func TestWaitReadyRunningIsNotReady(t *testing.T) {
	cluster := &emraws.MockCluster{States: statuses(types.ClusterStateRunning, types.ClusterStateRunning, types.ClusterStateWaiting)}
	attempts, err := fastPoller(cluster).WaitReady(context.Background(), "j-1")
	if err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWaitReadyMaxAttempts(t *testing.T) {
	cluster := &emraws.MockCluster{States: statuses(types.ClusterStateStarting)}
	p := fastPoller(cluster)
	p.MaxAttempts = 4

	attempts, err := p.WaitReady(context.Background(), "j-1")
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	if attempts != 4 || cluster.StateCalls != 4 {
		t.Errorf("attempts = %d, state calls = %d", attempts, cluster.StateCalls)
	}
}

func TestWaitReadyDeadline(t *testing.T) {
	cluster := &emraws.MockCluster{States: statuses(types.ClusterStateBootstrapping)}
	p := fastPoller(cluster)
	p.Interval = 5 * time.Millisecond
	p.Timeout = 30 * time.Millisecond

	_, err := p.WaitReady(context.Background(), "j-1")
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
}

func TestWaitReadyCancelled(t *testing.T) {
	cluster := &emraws.MockCluster{States: statuses(types.ClusterStateStarting)}
	p := fastPoller(cluster)
	p.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := p.WaitReady(ctx, "j-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation should interrupt the poll sleep")
	}
}

func TestWaitReadyRetriesTransientErrors(t *testing.T) {
	cluster := &emraws.MockCluster{
		States:    statuses(types.ClusterStateWaiting),
		StateErrs: []error{errors.New("throttled"), errors.New("throttled")},
	}

	attempts, err := fastPoller(cluster).WaitReady(context.Background(), "j-1")
	if err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if cluster.StateCalls != 3 {
		t.Errorf("state calls = %d, want 3", cluster.StateCalls)
	}
}

func TestWaitReadyPermanentError(t *testing.T) {
	invalid := &types.InvalidRequestException{Message: aws.String("Cluster id 'j-missing' is not valid.")}
	cluster := &emraws.MockCluster{StateErrs: []error{invalid, invalid, invalid}}

	_, err := fastPoller(cluster).WaitReady(context.Background(), "j-missing")
	var perr *emraws.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if cluster.StateCalls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", cluster.StateCalls)
	}
}

func TestMasterAddressRetriesUntilListed(t *testing.T) {
	cluster := &emraws.MockCluster{Instances: [][]emraws.Instance{
		{},
		{{ID: "ci-1"}},
		{{ID: "ci-1", PrivateIP: "10.0.0.9"}},
	}}

	addr, err := fastPoller(cluster).MasterAddress(context.Background(), "j-1")
	if err != nil {
		t.Fatalf("MasterAddress: %v", err)
	}
	if addr != "10.0.0.9" {
		t.Errorf("addr = %q", addr)
	}
	if cluster.ListCalls != 3 {
		t.Errorf("list calls = %d, want 3", cluster.ListCalls)
	}
}

func TestMasterAddressExhausted(t *testing.T) {
	cluster := &emraws.MockCluster{}

	_, err := fastPoller(cluster).MasterAddress(context.Background(), "j-1")
	if !errors.Is(err, ErrNoMasterInstance) {
		t.Fatalf("expected ErrNoMasterInstance, got %v", err)
	}
	if cluster.ListCalls < 2 {
		t.Errorf("expected retries, got %d list calls", cluster.ListCalls)
	}
}

func TestClusterFailedErrorMessage(t *testing.T) {
	err := &ClusterFailedError{ClusterID: "j-1", State: "TERMINATED_WITH_ERRORS", Code: "VALIDATION_ERROR", Reason: "subnet not found"}
	want := "cluster j-1 is TERMINATED_WITH_ERRORS (VALIDATION_ERROR): subnet not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRunReportsProgress(t *testing.T) {
	cluster := &emraws.MockCluster{
		States:    statuses(types.ClusterStateStarting, types.ClusterStateWaiting),
		Instances: master("10.0.0.5"),
	}
	poller := fastPoller(cluster)
	var seen []types.ClusterState
	poller.OnState = func(attempt int, status emraws.ClusterStatus) {
		if attempt != len(seen)+1 {
			t.Errorf("attempt = %d, want %d", attempt, len(seen)+1)
		}
		seen = append(seen, status.State)
	}
	var phases []Phase
	flow := &Flow{
		Launcher: &mockLauncher{id: "j-NEW"},
		Writer:   &mockWriter{path: "/tmp/config.json"},
		Poller:   poller,
		Logger:   testLogger(),
		OnPhase:  func(p Phase, _ string) { phases = append(phases, p) },
	}

	if _, err := flow.Run(context.Background(), Options{Size: "small"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 2 || seen[1] != types.ClusterStateWaiting {
		t.Errorf("states = %v", seen)
	}
	if len(phases) != 2 || phases[0] != PhaseProvisioning || phases[1] != PhaseReady {
		t.Errorf("phases = %v", phases)
	}
}
