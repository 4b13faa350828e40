// Package tui provides a Bubble Tea terminal user interface for refreshing feeds.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-logr/logr"

	"github.com/VonLuderitz/NetNewsWire/internal/config"
	"github.com/VonLuderitz/NetNewsWire/internal/httpcache"
	"github.com/VonLuderitz/NetNewsWire/internal/icon"
	"github.com/VonLuderitz/NetNewsWire/internal/model"
	"github.com/VonLuderitz/NetNewsWire/internal/progress"
	"github.com/VonLuderitz/NetNewsWire/internal/refresh"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	listStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))
)

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateLoading
	StateRefreshing
	StateComplete
	StateError
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   progress.Level
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progressbar.Model
	settings  *config.Settings
	logs      []LogEntry
	err       error

	// Refresh context
	ctx    context.Context
	cancel context.CancelFunc

	// Refresh pipeline
	listPath  string
	feeds     []*model.Feed
	store     *httpcache.Store
	refresher *refresh.Refresher
	events    chan progress.Event

	// Refresh progress
	stats     refresh.Stats
	iconStats icon.Stats

	// Options
	icons   bool
	verbose bool

	width  int
	height int
}

// NewModel creates a new TUI model using the given settings.
func NewModel(settings *config.Settings) Model {
	ti := textinput.New()
	ti.Placeholder = "/path/to/feeds.txt"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progressbar.New(progressbar.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		logs:      make([]LogEntry, 0),
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan progress.Event, 64),
		icons:     settings.DownloadIcons,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForEvent())
}

// Message types
type (
	// ProgressMsg is sent when a refresh progress event arrives.
	ProgressMsg struct {
		Event progress.Event
	}

	// LoadDoneMsg is sent when the feed list has been loaded.
	LoadDoneMsg struct {
		Feeds     []*model.Feed
		Store     *httpcache.Store
		Refresher *refresh.Refresher
		Err       error
	}

	// RefreshDoneMsg is sent when the whole refresh pass completes.
	RefreshDoneMsg struct {
		Stats refresh.Stats
		Icons icon.Stats
		Err   error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateRefreshing || m.state == StateLoading {
				m.cancel()
				m.state = StateError
				m.err = fmt.Errorf("cancelled by user")
			}

		case "enter":
			if m.state == StateInput && m.textInput.Value() != "" {
				m.state = StateLoading
				m.listPath = m.textInput.Value()
				return m, tea.Batch(m.loadFeeds(), m.spinner.Tick)
			}

		// Toggles use ctrl chords so they never collide with path input.
		case "ctrl+o":
			if m.state == StateInput {
				m.icons = !m.icons
			}

		case "ctrl+g":
			if m.state == StateInput {
				m.verbose = !m.verbose
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				// Reset for a new refresh
				m.cleanup()
				m.state = StateInput
				m.logs = nil
				m.feeds = nil
				m.err = nil
				m.listPath = ""
				m.store = nil
				m.refresher = nil
				m.stats = refresh.Stats{}
				m.iconStats = icon.Stats{}
				m.ctx, m.cancel = context.WithCancel(context.Background())
				m.textInput.SetValue("")
				m.textInput.Focus()
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case ProgressMsg:
		// Filter verbose messages if not in verbose mode
		if msg.Event.Level == progress.LevelVerbose && !m.verbose {
			return m, m.waitForEvent()
		}
		m.logs = append(m.logs, LogEntry{
			Message: msg.Event.Message,
			Level:   msg.Event.Level,
		})
		// Keep only last 10 logs
		if len(m.logs) > 10 {
			m.logs = m.logs[len(m.logs)-10:]
		}
		cmds = append(cmds, m.waitForEvent())

	case LoadDoneMsg:
		if msg.Err != nil {
			m.state = StateError
			m.err = msg.Err
		} else {
			m.feeds = msg.Feeds
			m.store = msg.Store
			m.refresher = msg.Refresher
			m.state = StateRefreshing
			// Start the actual refresh and tick for progress updates
			cmds = append(cmds, m.startRefresh(), m.tickProgress())
		}

	case RefreshDoneMsg:
		m.stats = msg.Stats
		m.iconStats = msg.Icons
		if msg.Err != nil && m.ctx.Err() == nil {
			m.state = StateError
			m.err = msg.Err
		} else if m.ctx.Err() != nil {
			m.state = StateError
			m.err = fmt.Errorf("cancelled by user")
		} else {
			m.state = StateComplete
		}

	case TickMsg:
		// Update progress from the refresher
		if m.refresher != nil && m.state == StateRefreshing {
			m.stats = m.refresher.Progress()

			// Calculate percentage and animate progress bar
			progressCmd := m.progress.SetPercent(m.percentDone())
			cmds = append(cmds, progressCmd, m.tickProgress())
		}

	case progressbar.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progressbar.Model)
		cmds = append(cmds, cmd)
	}

	// Update text input
	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// percentDone reports the completed fraction of the running pass.
func (m Model) percentDone() float64 {
	if m.stats.Submitted == 0 {
		return 0
	}
	processed := m.stats.Refreshed + m.stats.Unchanged + m.stats.Failed
	return float64(processed) / float64(m.stats.Submitted)
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// waitForEvent returns a command that delivers the next progress event.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return ProgressMsg{Event: <-m.events}
	}
}

// onEvent forwards a progress event into the UI without ever blocking
// the refresh goroutines.
func (m Model) onEvent(event progress.Event) {
	select {
	case m.events <- event:
	default:
	}
}

// cleanup releases the refresher and cache store, if they were opened.
func (m Model) cleanup() {
	if m.refresher != nil {
		m.refresher.Close()
	}
	if m.store != nil {
		m.store.Close()
	}
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("📰 NetNewsWire"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Refresh your feeds"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateLoading:
		b.WriteString(m.viewLoading())
	case StateRefreshing:
		b.WriteString(m.viewRefreshing())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Enter feed list path:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	// Options
	iconsCheck := "[ ]"
	if m.icons {
		iconsCheck = "[×]"
	}
	verboseCheck := "[ ]"
	if m.verbose {
		verboseCheck = "[×]"
	}

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s Fetch feed icons (ctrl+o)\n", iconsCheck))
	b.WriteString(fmt.Sprintf("  %s Verbose/debug output (ctrl+g)\n", verboseCheck))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Archive path: %s", m.settings.ArchiveDir)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewLoading() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render("Loading feed list..."))
	b.WriteString("\n\n")

	// Show logs
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewRefreshing() string {
	var b strings.Builder

	if len(m.feeds) > 0 {
		b.WriteString(successStyle.Render(fmt.Sprintf("Refreshing %d feed(s) from:", len(m.feeds))))
		b.WriteString("\n")
		b.WriteString(listStyle.Render(fmt.Sprintf("  ♪ %s", m.listPath)))
		b.WriteString("\n\n")
	}

	// Progress bar
	b.WriteString(m.progress.ViewAs(m.percentDone()))
	b.WriteString("\n")

	processed := m.stats.Refreshed + m.stats.Unchanged + m.stats.Failed
	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Feeds: %d/%d | Archived: %.2f MB",
		processed,
		m.stats.Submitted,
		float64(m.stats.Bytes)/1024/1024,
	)))
	b.WriteString("\n\n")

	// Logs
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	var b strings.Builder

	summary := fmt.Sprintf(
		"✨ Refresh Complete!\n\n"+
			"Refreshed: %d\n"+
			"Unchanged: %d\n"+
			"Failed: %d\n"+
			"Archived: %.2f MB",
		m.stats.Refreshed,
		m.stats.Unchanged,
		m.stats.Failed,
		float64(m.stats.Bytes)/1024/1024,
	)
	if m.icons {
		summary += fmt.Sprintf("\nIcons: %d saved", m.iconStats.Saved)
	}
	b.WriteString(boxStyle.Render(summary))

	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("❌ Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch log.Level {
		case progress.LevelError:
			style = errorStyle
			prefix = "✗"
		case progress.LevelWarning:
			style = warningStyle
			prefix = "!"
		case progress.LevelSuccess:
			style = successStyle
			prefix = "✓"
		case progress.LevelInfo:
			style = infoStyle
			prefix = "›"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		return "enter: refresh • ctrl+o: icons • ctrl+g: verbose • esc: quit"
	case StateLoading, StateRefreshing:
		return "esc: cancel"
	case StateComplete, StateError:
		return "r: new refresh • q: quit"
	}
	return ""
}

// loadFeeds reads the feed list and opens the cache store.
func (m *Model) loadFeeds() tea.Cmd {
	return func() tea.Msg {
		feeds, err := refresh.LoadFeedList(m.listPath, m.settings.ToArchiveConfig())
		if err != nil {
			return LoadDoneMsg{Err: err}
		}
		if len(feeds) == 0 {
			return LoadDoneMsg{Err: fmt.Errorf("no feed URLs in %s", m.listPath)}
		}

		store, err := httpcache.Open(m.settings.CacheDBPath)
		if err != nil {
			return LoadDoneMsg{Err: fmt.Errorf("opening cache: %w", err)}
		}

		refresher := refresh.NewRefresher(m.settings, store, logr.Discard(), m.onEvent)

		return LoadDoneMsg{
			Feeds:     feeds,
			Store:     store,
			Refresher: refresher,
			Err:       nil,
		}
	}
}

// startRefresh runs the refresh pass, then the icon pass if enabled.
func (m *Model) startRefresh() tea.Cmd {
	return func() tea.Msg {
		stats, err := m.refresher.Refresh(m.ctx, m.feeds)

		var iconStats icon.Stats
		if err == nil && m.icons {
			fetcher := icon.NewFetcher(m.settings, logr.Discard(), m.onEvent)
			defer fetcher.Close()
			iconStats, err = fetcher.Fetch(m.ctx, m.feeds)
		}

		return RefreshDoneMsg{
			Stats: stats,
			Icons: iconStats,
			Err:   err,
		}
	}
}

// Run starts the TUI application.
func Run(settings *config.Settings) error {
	p := tea.NewProgram(NewModel(settings), tea.WithAltScreen())
	final, err := p.Run()
	if m, ok := final.(Model); ok {
		m.cleanup()
	}
	return err
}
