package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// RunDashboard launches the interactive dashboard. Quitting before the
// tasks finish cancels them. It returns the tasks, the first failure's
// exit code and any TUI error.
func RunDashboard(ctx context.Context, title string, specs []TaskSpec) ([]*Task, int, error) {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newModel(taskCtx, cancel, title, specs)
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}

	// The runner goroutine blocks on sends until the channel is drained.
	cancel()
	for range m.updates {
	}
	return m.tasks, FirstFailure(m.tasks), err
}

type model struct {
	cancel      context.CancelFunc
	title       string
	tasks       []*Task
	updates     <-chan TaskUpdate
	theme       *CompiledTheme
	selected    int
	follow      bool
	viewport    viewport.Model
	ready       bool
	done        bool
	width       int
	height      int
	listWidth   int
	detailWidth int
}

func newModel(ctx context.Context, cancel context.CancelFunc, title string, specs []TaskSpec) model {
	vp := viewport.New(0, 0)
	tasks, updates := StartTasks(ctx, specs)
	return model{
		cancel:   cancel,
		title:    title,
		tasks:    tasks,
		updates:  updates,
		theme:    currentTheme(),
		follow:   true,
		viewport: vp,
	}
}

type tickMsg struct{}
type taskUpdateMsg TaskUpdate
type doneMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(time.Second/8, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.listenUpdates(), tick())
}

func (m model) listenUpdates() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.updates
		if !ok {
			return doneMsg{}
		}
		return taskUpdateMsg(update)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.follow = false
				m.refreshViewport()
			}
		case "down", "j":
			if m.selected < len(m.tasks)-1 {
				m.selected++
				m.follow = false
				m.refreshViewport()
			}
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refreshViewport()
	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tick()
	case taskUpdateMsg:
		up := TaskUpdate(msg)
		if m.follow && up.Status == TaskRunning && up.Line == "" {
			m.selected = up.Index
		}
		if up.Index == m.selected {
			m.refreshViewport()
		}
		return m, m.listenUpdates()
	case doneMsg:
		m.done = true
		if m.follow {
			if i := firstFailedIndex(m.tasks); i >= 0 {
				m.selected = i
			}
		}
		m.refreshViewport()
		return m, nil
	}
	return m, nil
}

func firstFailedIndex(tasks []*Task) int {
	for i, task := range tasks {
		if task.Status() == TaskFailed {
			return i
		}
	}
	return -1
}

func (m *model) resize(width, height int) {
	m.width = width
	m.height = height
	m.listWidth = m.calculateListWidth()
	if m.listWidth > m.width/2 {
		m.listWidth = m.width / 2
	}
	m.detailWidth = m.width - m.listWidth - 4
	if m.detailWidth < 10 {
		m.detailWidth = 10
	}
	m.viewport.Width = m.detailWidth - 2
	m.viewport.Height = max(m.height-9, 3)
	m.ready = true
}

func (m *model) calculateListWidth() int {
	widest := 20
	for _, task := range m.tasks {
		widest = max(widest, runewidth.StringWidth(task.Spec.Group)+4)
		widest = max(widest, runewidth.StringWidth(task.Spec.Name)+14)
	}
	return widest + 2
}

func (m *model) refreshViewport() {
	if m.selected < 0 || m.selected >= len(m.tasks) {
		return
	}
	task := m.tasks[m.selected]
	m.viewport.SetContent(FormatOutput(task.Spec.Command(), task.GetOutput(), m.viewport.Width))
	if task.Status() == TaskRunning {
		m.viewport.GotoBottom()
	}
}

func (m model) View() string {
	if !m.ready {
		return "Starting..."
	}
	th := m.theme

	titleText := strings.TrimSpace(th.TitleIcon + " " + th.TitleText)
	if m.title != "" {
		titleText += " · " + m.title
	}
	title := th.TitleStyle.Width(m.width).Render(titleText)

	contentHeight := max(m.height-5, 5)

	listPanel := th.TaskListStyle.
		Width(m.listWidth).
		Render(fitLines(m.renderList(), contentHeight))

	var detail string
	if m.selected >= 0 && m.selected < len(m.tasks) {
		task := m.tasks[m.selected]
		header := th.DetailHeaderStyle.Render(fmt.Sprintf("%s/%s", task.Spec.Group, task.Spec.Name))
		command := th.CommandStyle.Render(runewidth.Truncate("$ "+task.Spec.Command(), m.viewport.Width, "…"))
		detail = header + "\n" + command + "\n\n" + m.viewport.View()
	}
	detailPanel := th.DetailBoxStyle.
		Width(m.detailWidth).
		Render(fitLines(detail, contentHeight))

	panels := lipgloss.JoinHorizontal(lipgloss.Top, listPanel, detailPanel)

	help := "↑/↓ select • pgup/pgdn scroll • q quit"
	if !m.done {
		help = "↑/↓ select • pgup/pgdn scroll • q cancel"
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, panels, th.StatusBarStyle.Render(help))
}

// fitLines pads or truncates s to exactly n lines.
func fitLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	for len(lines) < n {
		lines = append(lines, "")
	}
	return strings.Join(lines[:n], "\n")
}

func (m model) renderList() string {
	th := m.theme
	var lines []string
	var groupOrder []string
	grouped := make(map[string][]int)
	for i, task := range m.tasks {
		if _, ok := grouped[task.Spec.Group]; !ok {
			groupOrder = append(groupOrder, task.Spec.Group)
		}
		grouped[task.Spec.Group] = append(grouped[task.Spec.Group], i)
	}

	nameWidth := m.listWidth - 12
	for _, g := range groupOrder {
		lines = append(lines, th.GroupHeaderStyle.Render(th.Icons.Group+" "+titleCaser.String(g)))
		for _, idx := range grouped[g] {
			task := m.tasks[idx]
			name := runewidth.Truncate(task.Spec.Name, nameWidth, "…")
			duration := ""
			if s := task.Status(); s == TaskRunning || s == TaskSuccess || s == TaskFailed {
				duration = " " + formatDuration(task.Duration())
			}
			if idx == m.selected {
				content := fmt.Sprintf("%s %s %s%s", th.Icons.Select, m.rawStatusIcon(task), name, duration)
				lines = append(lines, th.SelectedStyle.Width(m.listWidth-2).Render(content))
				continue
			}
			content := fmt.Sprintf("  %s %s%s", m.statusIcon(task), name, th.DurationStyle.Render(duration))
			lines = append(lines, th.UnselectedStyle.Render(content))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m model) spinnerFrame(task *Task) string {
	frames := m.theme.SpinnerFrames
	interval := time.Duration(m.theme.SpinnerInterval) * time.Millisecond
	idx := int(time.Since(task.StartedAt())/interval) % len(frames)
	return frames[idx]
}

func (m model) statusIcon(task *Task) string {
	th := m.theme
	switch task.Status() {
	case TaskPending:
		return th.PendingIconStyle.Render(th.Icons.Pending)
	case TaskRunning:
		return th.RunningIconStyle.Render(m.spinnerFrame(task))
	case TaskSuccess:
		if Summarize(task.Spec.Command(), task.GetOutput()).Warning {
			return th.WarningIconStyle.Render(th.Icons.Warning)
		}
		return th.SuccessIconStyle.Render(th.Icons.Success)
	case TaskFailed:
		return th.ErrorIconStyle.Render(th.Icons.Error)
	case TaskSkipped:
		return th.PendingIconStyle.Render(th.Icons.Skipped)
	default:
		return "?"
	}
}

// rawStatusIcon returns the icon without styling for the selected row.
func (m model) rawStatusIcon(task *Task) string {
	th := m.theme
	switch task.Status() {
	case TaskPending:
		return th.Icons.Pending
	case TaskRunning:
		return m.spinnerFrame(task)
	case TaskSuccess:
		if Summarize(task.Spec.Command(), task.GetOutput()).Warning {
			return th.Icons.Warning
		}
		return th.Icons.Success
	case TaskFailed:
		return th.Icons.Error
	case TaskSkipped:
		return th.Icons.Skipped
	default:
		return "?"
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Round(100*time.Millisecond).Seconds())
}
