package dashboard

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// DashboardTheme holds the visual settings loaded from the `dashboard:`
// block of the config file. Empty fields fall back to the defaults.
type DashboardTheme struct {
	Colors  DashboardColors        `yaml:"colors"`
	Icons   DashboardIcons         `yaml:"icons"`
	Title   DashboardTitleStyle    `yaml:"title"`
	Spinner DashboardSpinnerConfig `yaml:"spinner"`
}

// DashboardColors defines the color palette.
type DashboardColors struct {
	Primary string `yaml:"primary"`
	Success string `yaml:"success"`
	Error   string `yaml:"error"`
	Warning string `yaml:"warning"`
	Muted   string `yaml:"muted"`
	Text    string `yaml:"text"`
	Border  string `yaml:"border"`
}

// DashboardIcons defines the status icons.
type DashboardIcons struct {
	Pending string `yaml:"pending"`
	Success string `yaml:"success"`
	Warning string `yaml:"warning"`
	Error   string `yaml:"error"`
	Skipped string `yaml:"skipped"`
	Group   string `yaml:"group"`
	Select  string `yaml:"select"`
}

// DashboardTitleStyle defines the title bar.
type DashboardTitleStyle struct {
	Text       string `yaml:"text"`
	Icon       string `yaml:"icon"`
	Background string `yaml:"background"` // Primary if empty
}

// DashboardSpinnerConfig defines spinner animation settings.
type DashboardSpinnerConfig struct {
	Frames   string `yaml:"frames"`   // space-separated
	Interval int    `yaml:"interval"` // milliseconds
}

var defaultSpinnerFrames = []string{"⠋", "⠙", "⠸", "⠴", "⠦", "⠇"}

// DefaultDashboardTheme returns the built-in theme.
func DefaultDashboardTheme() *DashboardTheme {
	return &DashboardTheme{
		Colors: DashboardColors{
			Primary: "#7D56F4",
			Success: "#04B575",
			Error:   "#FF5F56",
			Warning: "#FFBD2E",
			Muted:   "#626262",
			Text:    "#CCCCCC",
			Border:  "#444444",
		},
		Icons: DashboardIcons{
			Pending: "○", // ○
			Success: "✓", // ✓
			Warning: "⚠", // ⚠
			Error:   "✗", // ✗
			Skipped: "-",
			Group:   "▸", // ▸
			Select:  "▶", // ▶
		},
		Title: DashboardTitleStyle{
			Text: "amalgam",
			Icon: "⚒", // ⚒
		},
		Spinner: DashboardSpinnerConfig{
			Frames:   strings.Join(defaultSpinnerFrames, " "),
			Interval: 120,
		},
	}
}

// MergeWithDefaults returns a copy of t where every empty field is taken
// from the default theme. A nil theme yields the defaults.
func (t *DashboardTheme) MergeWithDefaults() *DashboardTheme {
	def := DefaultDashboardTheme()
	if t == nil {
		return def
	}
	out := *t
	pick := func(dst *string, fallback string) {
		if *dst == "" {
			*dst = fallback
		}
	}
	pick(&out.Colors.Primary, def.Colors.Primary)
	pick(&out.Colors.Success, def.Colors.Success)
	pick(&out.Colors.Error, def.Colors.Error)
	pick(&out.Colors.Warning, def.Colors.Warning)
	pick(&out.Colors.Muted, def.Colors.Muted)
	pick(&out.Colors.Text, def.Colors.Text)
	pick(&out.Colors.Border, def.Colors.Border)
	pick(&out.Icons.Pending, def.Icons.Pending)
	pick(&out.Icons.Success, def.Icons.Success)
	pick(&out.Icons.Warning, def.Icons.Warning)
	pick(&out.Icons.Error, def.Icons.Error)
	pick(&out.Icons.Skipped, def.Icons.Skipped)
	pick(&out.Icons.Group, def.Icons.Group)
	pick(&out.Icons.Select, def.Icons.Select)
	pick(&out.Title.Text, def.Title.Text)
	pick(&out.Title.Icon, def.Title.Icon)
	pick(&out.Spinner.Frames, def.Spinner.Frames)
	if out.Spinner.Interval <= 0 {
		out.Spinner.Interval = def.Spinner.Interval
	}
	return &out
}

// CompiledTheme holds pre-built lipgloss styles from a DashboardTheme.
type CompiledTheme struct {
	TitleStyle        lipgloss.Style
	GroupHeaderStyle  lipgloss.Style
	TaskListStyle     lipgloss.Style
	SelectedStyle     lipgloss.Style
	UnselectedStyle   lipgloss.Style
	DetailBoxStyle    lipgloss.Style
	DetailHeaderStyle lipgloss.Style
	CommandStyle      lipgloss.Style
	StatusBarStyle    lipgloss.Style
	SuccessIconStyle  lipgloss.Style
	WarningIconStyle  lipgloss.Style
	ErrorIconStyle    lipgloss.Style
	RunningIconStyle  lipgloss.Style
	PendingIconStyle  lipgloss.Style
	DurationStyle     lipgloss.Style

	Icons DashboardIcons

	TitleText string
	TitleIcon string

	SpinnerFrames   []string
	SpinnerInterval int
}

// Compile builds lipgloss styles from the theme.
func (t *DashboardTheme) Compile() *CompiledTheme {
	th := t.MergeWithDefaults()
	primary := lipgloss.Color(th.Colors.Primary)
	titleBg := primary
	if th.Title.Background != "" {
		titleBg = lipgloss.Color(th.Title.Background)
	}
	muted := lipgloss.Color(th.Colors.Muted)
	border := lipgloss.Color(th.Colors.Border)
	bright := lipgloss.Color("#FAFAFA")

	return &CompiledTheme{
		TitleStyle: lipgloss.NewStyle().Bold(true).Foreground(bright).Background(titleBg).Padding(0, 1),
		GroupHeaderStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(primary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(border),
		TaskListStyle:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border).Padding(0, 1),
		SelectedStyle:     lipgloss.NewStyle().Bold(true).Foreground(bright).Background(primary).Padding(0, 1),
		UnselectedStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color(th.Colors.Text)).Padding(0, 1),
		DetailBoxStyle:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primary).Padding(0, 1),
		DetailHeaderStyle: lipgloss.NewStyle().Bold(true).Foreground(bright).Background(primary).Padding(0, 1),
		CommandStyle:      lipgloss.NewStyle().Foreground(muted),
		StatusBarStyle:    lipgloss.NewStyle().Foreground(muted),
		SuccessIconStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color(th.Colors.Success)).Bold(true),
		WarningIconStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color(th.Colors.Warning)).Bold(true),
		ErrorIconStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color(th.Colors.Error)).Bold(true),
		RunningIconStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color(th.Colors.Warning)),
		PendingIconStyle:  lipgloss.NewStyle().Foreground(muted),
		DurationStyle:     lipgloss.NewStyle().Foreground(muted).Italic(true),
		Icons:             th.Icons,
		TitleText:         th.Title.Text,
		TitleIcon:         th.Title.Icon,
		SpinnerFrames:     parseSpinnerFrames(th.Spinner.Frames),
		SpinnerInterval:   th.Spinner.Interval,
	}
}

func parseSpinnerFrames(s string) []string {
	frames := strings.Fields(s)
	if len(frames) == 0 {
		return defaultSpinnerFrames
	}
	return frames
}

var (
	themeMu     sync.RWMutex
	activeTheme = DefaultDashboardTheme().Compile()
)

// SetTheme sets the theme used by the TUI and the summary icons.
// A nil theme restores the defaults.
func SetTheme(theme *DashboardTheme) {
	compiled := theme.Compile()
	themeMu.Lock()
	activeTheme = compiled
	themeMu.Unlock()
}

func currentTheme() *CompiledTheme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return activeTheme
}
