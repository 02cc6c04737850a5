package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/emr/types"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/beamline/emrattach/internal/attach"
	"github.com/beamline/emrattach/internal/aws"
)

type phaseMsg struct {
	phase     attach.Phase
	clusterID string
}

type stateMsg struct {
	attempt int
	status  aws.ClusterStatus
}

type doneMsg struct {
	result *attach.Result
	err    error
}

// ProgressModel is the bubbletea model that follows an attachment flow.
type ProgressModel struct {
	spinner spinner.Model
	target  string
	started time.Time

	phase     attach.Phase
	clusterID string
	state     types.ClusterState
	reason    string
	attempts  int

	result    *attach.Result
	err       error
	done      bool
	cancelled bool
	width     int
}

// NewProgressModel creates a progress view for the given flow options.
func NewProgressModel(opts attach.Options) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	target := "cluster " + opts.ClusterID
	if opts.ClusterID == "" {
		target = fmt.Sprintf("new %s cluster", opts.Size)
	}
	return ProgressModel{
		spinner:   s,
		target:    target,
		started:   time.Now(),
		phase:     attach.PhaseInitial,
		clusterID: opts.ClusterID,
		width:     80,
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.done {
				return m, tea.Quit
			}
			m.cancelled = true
			return m, tea.Quit
		}
		return m, nil

	case phaseMsg:
		m.phase = msg.phase
		if msg.clusterID != "" {
			m.clusterID = msg.clusterID
		}
		return m, nil

	case stateMsg:
		m.attempts = msg.attempt
		m.state = msg.status.State
		m.reason = msg.status.Reason
		return m, nil

	case doneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Attaching " + m.target))
	b.WriteString("\n\n")

	if m.clusterID != "" {
		b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("Cluster:"), m.clusterID))
	}
	if m.state != "" {
		state := string(m.state)
		if attach.IsTerminal(m.state) {
			state = errStyle.Render(state)
		} else if attach.IsReady(m.state) {
			state = successStyle.Render(state)
		}
		b.WriteString(fmt.Sprintf("  %s %s (check %d)\n", dimStyle.Render("State:"), state, m.attempts))
		if m.reason != "" {
			b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("Reason:"), m.reason))
		}
	}
	b.WriteString("\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString(errStyle.Render("  ✗ "+m.err.Error()) + "\n")
	case m.done:
		b.WriteString(successStyle.Render("  ✓ Notebook configuration written") + "\n")
	case m.cancelled:
		b.WriteString(warnStyle.Render("  Cancelling...") + "\n")
	default:
		elapsed := time.Since(m.started).Truncate(time.Second)
		b.WriteString(fmt.Sprintf("  %s %s %s\n", m.spinner.View(), phaseLabel(m.phase), dimStyle.Render(elapsed.String())))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  q cancel") + "\n")
	}
	return b.String()
}

// Done returns true once the flow has finished.
func (m ProgressModel) Done() bool {
	return m.done
}

// Cancelled returns true if the user quit before the flow finished.
func (m ProgressModel) Cancelled() bool {
	return m.cancelled
}

func phaseLabel(p attach.Phase) string {
	switch p {
	case attach.PhaseInitial:
		return "Starting..."
	case attach.PhaseProvisioning:
		return "Waiting for the cluster to become ready..."
	case attach.PhaseAttached, attach.PhaseReady:
		return "Locating the master node and writing the configuration..."
	case attach.PhaseFailed:
		return "Failed"
	}
	return string(p)
}

// RunWithProgress runs the flow while showing its progress. Quitting the
// view cancels the flow. The caller's flow and poller are not modified.
func RunWithProgress(ctx context.Context, flow *attach.Flow, opts attach.Options, teaOpts ...tea.ProgramOption) (*attach.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgressModel(opts), teaOpts...)

	f := *flow
	f.OnPhase = func(phase attach.Phase, clusterID string) {
		if flow.OnPhase != nil {
			flow.OnPhase(phase, clusterID)
		}
		p.Send(phaseMsg{phase: phase, clusterID: clusterID})
	}
	if flow.Poller != nil {
		poller := *flow.Poller
		poller.OnState = func(attempt int, status aws.ClusterStatus) {
			if flow.Poller.OnState != nil {
				flow.Poller.OnState(attempt, status)
			}
			p.Send(stateMsg{attempt: attempt, status: status})
		}
		f.Poller = &poller
	}

	results := make(chan doneMsg, 1)
	go func() {
		res, err := f.Run(ctx, opts)
		msg := doneMsg{result: res, err: err}
		results <- msg
		p.Send(msg)
	}()

	_, err := p.Run()
	if err != nil {
		cancel()
		<-results
		return nil, fmt.Errorf("running progress view: %w", err)
	}

	// A view that quit before the flow finished cancels it.
	cancel()
	out := <-results
	return out.result, out.err
}
