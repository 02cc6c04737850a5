package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/beamline/emrattach/internal/attach"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(16)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func printField(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value)))
}

func printSummary(w io.Writer, res *attach.Result) {
	fmt.Fprintln(w, titleStyle.Render("Attached to EMR"))
	printField(w, "Cluster", res.ClusterID)
	printField(w, "Phase", string(res.Phase))
	if res.Created {
		printField(w, "Created", "yes")
		printField(w, "State checks", fmt.Sprint(res.Attempts))
	}
	printField(w, "Master", res.MasterAddress)
	printField(w, "Config", res.ConfigPath)
	fmt.Fprintln(w, successStyle.Render("Restart your notebook kernels to pick up the new endpoint."))
}
