package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/peoplehub/ecsync/pkg/client"
)

const (
	defaultDaemonURL = "http://127.0.0.1:8090"
	pollRate         = 2 * time.Second
	maxRuns          = 10
	detailHeight     = 20
	fallbackWidth    = 96
)

var (
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	cycleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))

	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1)

	timeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Width(10)
	runIDStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
)

type pollMsg time.Time

type refreshMsg struct {
	runs   []client.Run
	detail *client.RunDetail
	err    error
}

type model struct {
	api     *client.Client
	spinner spinner.Model
	pager   viewport.Model
	width   int
	runs    []client.Run
	latest  *client.RunDetail
	err     error
	ready   bool
}

func initialModel(apiURL string) model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("135"))

	pg := viewport.New(fallbackWidth, detailHeight)
	pg.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("60")).
		PaddingRight(2)

	return model{
		api:     client.NewClient(apiURL),
		spinner: sp,
		pager:   pg,
		width:   fallbackWidth,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, fetchRuns(m.api), schedulePoll())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.pager, cmd = m.pager.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollMsg:
		return m, tea.Batch(fetchRuns(m.api), schedulePoll())

	case refreshMsg:
		m.ready = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.runs = msg.runs
		m.latest = msg.detail
		m.pager.SetContent(m.batchLines())
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.pager.Width = msg.Width
		m.pager.Height = detailHeight
		return m, nil
	}

	return m, nil
}

// batchLines renders the latest run's batches for the scrollable pane.
func (m model) batchLines() string {
	if m.latest == nil || m.latest.Run == nil {
		return subtleStyle.Render("No runs recorded yet.")
	}

	var sb strings.Builder
	for _, b := range m.latest.Batches {
		label := fmt.Sprintf("batch %-2d", b.BatchIndex)
		if b.Cycle {
			label += " " + cycleStyle.Render("(cycle)")
		}

		members := strings.Join(b.Members, ", ")
		if len(members) > 70 {
			members = members[:67] + "..."
		}

		fmt.Fprintf(&sb, "%s %s %s\n", label, statusBadge(b.Status), subtleStyle.Render(members))
	}

	if counts := m.latest.OutcomeCounts; len(counts) > 0 {
		fmt.Fprintf(&sb, "\ncreated=%d warning=%d failed=%d skipped=%d\n",
			counts["created"], counts["warning"], counts["failed"], counts["skipped"])
	}
	if m.latest.Run.Error != "" {
		sb.WriteString(errorStyle.Render("error: "+m.latest.Run.Error) + "\n")
	}
	return sb.String()
}

func statusBadge(status string) string {
	switch status {
	case "succeeded", "created":
		return okStyle.Render(status)
	case "failed":
		return errorStyle.Render(status)
	case "running":
		return runningStyle.Render(status)
	default:
		return subtleStyle.Render(status)
	}
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n %s waiting for daemon...\n", m.spinner.View())
	}

	var history strings.Builder
	history.WriteString(titleStyle.Render("Recent Runs") + "\n\n")
	if len(m.runs) == 0 {
		history.WriteString(subtleStyle.Render("No runs recorded."))
	}
	for _, r := range m.runs {
		mode := ""
		if r.DryRun {
			mode = subtleStyle.Render(" dry")
		}
		fmt.Fprintf(&history, "%s %s %s%s  new=%d existing=%d batches=%d\n",
			timeStyle.Render(r.StartedAt.Local().Format("15:04:05")),
			runIDStyle.Render(r.RunID),
			statusBadge(r.Status),
			mode,
			r.TotalNew, r.TotalExisting, r.BatchCount,
		)
	}

	title := "Latest Run"
	if m.latest != nil && m.latest.Run != nil {
		title += ": " + m.latest.Run.RunID
	}

	status := okStyle.Render(fmt.Sprintf("connected, %d runs", len(m.runs)))
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("daemon unreachable: %v", m.err))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		paneStyle.Width(m.width-2).Render(history.String()),
		headerStyle.Width(m.width-2).Render(m.spinner.View()+" "+title),
		m.pager.View(),
		"\n"+status+"\n"+subtleStyle.Render("q quits"),
	)
}

func fetchRuns(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		runs, err := c.ListRuns(ctx, maxRuns)
		if err != nil {
			return refreshMsg{err: err}
		}

		var detail *client.RunDetail
		if len(runs) > 0 {
			if detail, err = c.GetRun(ctx, runs[0].RunID); err != nil {
				return refreshMsg{err: err}
			}
		}
		return refreshMsg{runs: runs, detail: detail}
	}
}

func schedulePoll() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg { return pollMsg(t) })
}

func main() {
	url := os.Getenv("ECSYNC_API_URL")
	if url == "" {
		url = defaultDaemonURL
	}

	if _, err := tea.NewProgram(initialModel(url), tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "ecsync-tui:", err)
		os.Exit(1)
	}
}
