package wizard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/emr/types"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/beamline/emrattach/internal/attach"
	"github.com/beamline/emrattach/internal/aws"
)

type stubLauncher struct{ id string }

func (s stubLauncher) Launch(context.Context, string, string, string) (string, error) {
	return s.id, nil
}

type stubWriter struct{ path string }

func (s stubWriter) Generate(context.Context, string) (string, error) {
	return s.path, nil
}

func update(t *testing.T, m ProgressModel, msg tea.Msg) (ProgressModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(ProgressModel), cmd
}

func TestProgressModelFollowsFlow(t *testing.T) {
	m := NewProgressModel(attach.Options{Size: "small"})
	if !strings.Contains(m.View(), "new small cluster") {
		t.Error("view should name the requested size")
	}

	m, _ = update(t, m, phaseMsg{phase: attach.PhaseProvisioning, clusterID: "j-NEW"})
	m, _ = update(t, m, stateMsg{attempt: 2, status: aws.ClusterStatus{State: types.ClusterStateBootstrapping}})
	v := m.View()
	for _, want := range []string{"j-NEW", "BOOTSTRAPPING", "check 2", "Waiting for the cluster"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}

	m, cmd := update(t, m, doneMsg{result: &attach.Result{ClusterID: "j-NEW"}})
	if !m.Done() || cmd == nil {
		t.Error("done message should finish and quit")
	}
	if !strings.Contains(m.View(), "configuration written") {
		t.Error("view should report success")
	}
}

func TestProgressModelFailure(t *testing.T) {
	m := NewProgressModel(attach.Options{ClusterID: "j-OLD"})
	m, _ = update(t, m, stateMsg{attempt: 1, status: aws.ClusterStatus{State: types.ClusterStateTerminated, Reason: "Terminated by user request"}})
	m, _ = update(t, m, doneMsg{err: errors.New("cluster j-OLD is TERMINATED")})
	v := m.View()
	if !strings.Contains(v, "Terminated by user request") || !strings.Contains(v, "is TERMINATED") {
		t.Errorf("view = %s", v)
	}
}

func TestProgressModelCancel(t *testing.T) {
	m := NewProgressModel(attach.Options{Size: "small"})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if !m.Cancelled() || cmd == nil {
		t.Error("q should cancel and quit")
	}
	if m.Done() {
		t.Error("cancelling is not finishing")
	}
}

func TestRunWithProgress(t *testing.T) {
	cluster := &aws.MockCluster{
		States: []aws.ClusterStatus{
			{State: types.ClusterStateStarting},
			{State: types.ClusterStateWaiting},
		},
		Instances: [][]aws.Instance{{{ID: "ci-1", PrivateIP: "10.0.0.9"}}},
	}
	var phases []attach.Phase
	flow := &attach.Flow{
		Launcher: stubLauncher{id: "j-NEW"},
		Writer:   stubWriter{path: "/tmp/config.json"},
		Poller: &attach.Poller{
			Cluster:         cluster,
			Interval:        time.Millisecond,
			Timeout:         5 * time.Second,
			RetryInitial:    time.Millisecond,
			RetryMaxElapsed: 50 * time.Millisecond,
			Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnPhase: func(p attach.Phase, _ string) { phases = append(phases, p) },
	}

	res, err := RunWithProgress(context.Background(), flow, attach.Options{Size: "small"},
		tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutSignalHandler())
	if err != nil {
		t.Fatalf("RunWithProgress: %v", err)
	}
	if res.MasterAddress != "10.0.0.9" || res.Phase != attach.PhaseReady {
		t.Errorf("result = %+v", res)
	}
	if len(phases) != 2 {
		t.Errorf("caller's OnPhase should still be called, got %v", phases)
	}
	if flow.Poller.OnState != nil {
		t.Error("caller's poller must not be modified")
	}
}
