package wizard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/beamline/emrattach/internal/attach"
	"github.com/beamline/emrattach/internal/compute"
	"github.com/beamline/emrattach/internal/config"
)

// Choice is what the user picked: a size to provision or an existing
// cluster id. Exactly one is set unless Cancelled.
type Choice struct {
	ClusterID string
	Size      string
	Cancelled bool
}

// Options converts the choice into flow options.
func (c Choice) Options(paramSet, configPath string) attach.Options {
	return attach.Options{
		ClusterID:  c.ClusterID,
		Size:       c.Size,
		ParamSet:   paramSet,
		ConfigPath: configPath,
	}
}

type sizeEntry struct {
	name    string
	profile config.SizeProfile
}

// PickerModel is the bubbletea model for choosing a cluster size or
// entering an existing cluster id.
type PickerModel struct {
	paramSet string
	entries  []sizeEntry
	cursor   int

	input    textinput.Model
	entering bool

	choice    Choice
	done      bool
	cancelled bool
	width     int
	height    int
}

// NewPickerModel creates a picker over the size profiles of a param set.
// lastCluster prefills the cluster id input.
func NewPickerModel(paramSet string, profiles map[string]config.SizeProfile, lastCluster string) PickerModel {
	entries := make([]sizeEntry, 0, len(profiles))
	for name, p := range profiles {
		entries = append(entries, sizeEntry{name: name, profile: p})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	input := textinput.New()
	input.Placeholder = "j-XXXXXXXXXXXXX"
	input.CharLimit = 64
	input.SetValue(lastCluster)

	return PickerModel{
		paramSet: paramSet,
		entries:  entries,
		input:    input,
		width:    100,
		height:   24,
	}
}

func (m PickerModel) Init() tea.Cmd {
	return nil
}

func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.entering {
			return m.updateInput(msg)
		}
		return m.updateNormal(msg)
	}

	if m.entering {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m PickerModel) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.cancelled = true
		m.done = true
		return m, tea.Quit

	case "up", "k":
		m.moveCursor(-1)

	case "down", "j":
		m.moveCursor(1)

	case "home":
		m.cursor = 0

	case "end":
		if len(m.entries) > 0 {
			m.cursor = len(m.entries) - 1
		}

	case "e":
		m.entering = true
		m.input.CursorEnd()
		return m, m.input.Focus()

	case "enter":
		if len(m.entries) == 0 {
			return m, nil
		}
		m.choice = Choice{Size: m.entries[m.cursor].name}
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m PickerModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.cancelled = true
		m.done = true
		return m, tea.Quit

	case "esc":
		m.entering = false
		m.input.Blur()
		return m, nil

	case "enter":
		id := strings.TrimSpace(m.input.Value())
		if id == "" {
			return m, nil
		}
		m.choice = Choice{ClusterID: id}
		m.done = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m PickerModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Attach a Spark cluster"))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("  Param set: %s", m.paramSet)) + "\n\n")

	if m.entering {
		b.WriteString(highlightStyle.Render("  Existing cluster id: "))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("  enter attach • esc back • ctrl+c quit") + "\n")
		return b.String()
	}

	if len(m.entries) == 0 {
		b.WriteString(warnStyle.Render("  No cluster sizes configured for this param set") + "\n\n")
		b.WriteString(dimStyle.Render("  e existing cluster • q quit") + "\n")
		return b.String()
	}

	header := fmt.Sprintf("  %-2s %-12s %-22s %-26s %-26s", "", "Size", "Master", "Core", "Task")
	b.WriteString(dimStyle.Render(header) + "\n")
	b.WriteString(dimStyle.Render("  "+strings.Repeat("─", min(m.width-4, 90))) + "\n")

	for i, e := range m.entries {
		cursor := "  "
		nameStyle := lipgloss.NewStyle()
		if i == m.cursor {
			cursor = highlightStyle.Render("> ")
			nameStyle = nameStyle.Bold(true)
		}
		p := e.profile
		line := fmt.Sprintf("%s %-12s %-22s %-26s %-26s",
			cursor,
			nameStyle.Render(truncate(e.name, 12)),
			demand(p.InstanceTypeMaster, p.InstanceNumOnDemandMaster, p.InstanceNumSpotMaster),
			demand(p.InstanceTypeCore, p.InstanceNumOnDemandCore, p.InstanceNumSpotCore),
			demand(p.InstanceTypeTask, p.InstanceNumOnDemandTask, p.InstanceNumSpotTask))
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	selected := m.entries[m.cursor]
	b.WriteString(summaryStyle.Render(fmt.Sprintf("  Provisions %s", compute.ClusterName(m.paramSet, selected.name))) + "\n\n")
	b.WriteString(dimStyle.Render("  j/k move • enter provision • e existing cluster • q quit") + "\n")
	return b.String()
}

// Result returns the user's choice. Cancelled is set when the user quit.
func (m PickerModel) Result() Choice {
	if m.cancelled {
		return Choice{Cancelled: true}
	}
	return m.choice
}

// Done returns true if the model finished.
func (m PickerModel) Done() bool {
	return m.done
}

// RunPicker shows the picker and returns the choice.
func RunPicker(paramSet string, profiles map[string]config.SizeProfile, lastCluster string, opts ...tea.ProgramOption) (Choice, error) {
	final, err := tea.NewProgram(NewPickerModel(paramSet, profiles, lastCluster), opts...).Run()
	if err != nil {
		return Choice{}, fmt.Errorf("running picker: %w", err)
	}
	m, ok := final.(PickerModel)
	if !ok {
		return Choice{Cancelled: true}, nil
	}
	return m.Result(), nil
}

func (m *PickerModel) moveCursor(delta int) {
	if len(m.entries) == 0 {
		return
	}
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.entries) {
		m.cursor = len(m.entries) - 1
	}
}

// demand formats an instance group as "2 x r5.2xlarge +1 spot".
func demand(instanceType string, onDemand, spot *int32) string {
	if instanceType == "" {
		return "-"
	}
	var n, s int32
	if onDemand != nil {
		n = *onDemand
	}
	if spot != nil {
		s = *spot
	}
	out := fmt.Sprintf("%d x %s", n, instanceType)
	if s > 0 {
		out += fmt.Sprintf(" +%d spot", s)
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	summaryStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)
