package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/h0rv/finsight/internal/domain"
	"github.com/h0rv/finsight/internal/insight"
	"github.com/h0rv/finsight/internal/store"
)

// Layout constants
const (
	insightHeaderHeight = 4 // title, tabs, blank line
	insightFooterHeight = 2
	insightBorderSize   = 2
)

// insightRun is one generation. Messages carry their run so the model can
// drop those from a superseded or canceled one.
type insightRun struct {
	kind    domain.InsightKind
	cancel  context.CancelFunc
	updates chan insight.State
	done    chan insightResult
}

type insightResult struct {
	state insight.State
	err   error
}

// offer replaces any undelivered update with s. The UI only needs the
// latest snapshot; the consumer must never block on a slow renderer.
func (r *insightRun) offer(s insight.State) {
	for {
		select {
		case r.updates <- s:
			return
		default:
		}
		select {
		case <-r.updates:
		default:
		}
	}
}

// InsightModel shows the three analysis tabs and streams the selected one.
type InsightModel struct {
	consumer *insight.Consumer
	store    *store.Store
	ctx      context.Context
	logger   *slog.Logger
	now      func() time.Time

	kind    domain.InsightKind
	run     *insightRun
	state   insight.State // latest state of run
	session *domain.Session

	spinner  spinner.Model
	viewport viewport.Model
	keys     KeyMap
	showHelp bool
	history  *HistoryModel
	notice   string

	width  int
	height int
}

// NewInsightModel creates the insight viewer.
func NewInsightModel(consumer *insight.Consumer, s *store.Store, ctx context.Context, logger *slog.Logger) InsightModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	vp := viewport.New(80, 20) // Resized on WindowSizeMsg
	vp.MouseWheelEnabled = true
	vp.MouseWheelDelta = 3

	if logger == nil {
		logger = slog.Default()
	}

	m := InsightModel{
		consumer: consumer,
		store:    s,
		ctx:      ctx,
		logger:   logger,
		now:      time.Now,
		kind:     domain.InsightOverview,
		spinner:  sp,
		viewport: vp,
		keys:     DefaultKeyMap(),
	}
	if session, err := s.GetSession(); err == nil {
		m.session = session
	}
	m.refreshViewport(false)
	return m
}

// Init initializes the model.
func (m InsightModel) Init() tea.Cmd {
	return tea.WindowSize()
}

// Update handles messages.
func (m InsightModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		if m.history != nil {
			history, _ := m.history.Update(m.historySize())
			m.history = &history
		}
		return m, nil

	case historySelectedMsg:
		m.history = nil
		return m.selectTab(msg.kind), nil

	case historyClosedMsg:
		m.history = nil
		return m, nil

	case spinner.TickMsg:
		if !m.loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case insightUpdateMsg:
		if msg.run != m.run {
			return m, nil
		}
		m.state = msg.state
		m.refreshViewport(true)
		return m, waitForInsight(msg.run)

	case insightFinishedMsg:
		if msg.run != m.run {
			return m, nil
		}
		return m.finish(msg)

	case tea.KeyMsg:
		if m.history != nil {
			history, cmd := m.history.Update(msg)
			m.history = &history
			return m, cmd
		}
		return m.handleKeyPress(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m InsightModel) finish(msg insightFinishedMsg) (tea.Model, tea.Cmd) {
	m.state = msg.state
	m.run.cancel()
	m.run = nil

	switch {
	case msg.err == nil:
		err := m.store.SaveInsight(&domain.Insight{
			Kind:        msg.state.Kind,
			Content:     msg.state.Content,
			RequestID:   msg.state.RequestID.String(),
			CompletedAt: m.now(),
		})
		if err != nil {
			m.logger.Warn("failed to cache insight", "kind", msg.state.Kind, "error", err)
		}
		m.notice = "✓ Analysis complete."
	case insight.IsKind(msg.err, insight.ErrKindCanceled):
		m.logger.Info("insight generation canceled", "kind", msg.state.Kind)
	default:
		m.logger.Warn("insight generation failed", "kind", msg.state.Kind, "error", msg.err)
	}

	m.refreshViewport(true)
	return m, nil
}

func (m InsightModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		if key.Matches(msg, m.keys.Help) || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, func() tea.Msg { return QuitMsg{} }
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.Logout):
		m.cancelRun()
		return m, func() tea.Msg { return LogoutMsg{} }
	case key.Matches(msg, m.keys.Overview):
		return m.selectTab(domain.InsightOverview), nil
	case key.Matches(msg, m.keys.Pipeline):
		return m.selectTab(domain.InsightPipeline), nil
	case key.Matches(msg, m.keys.Projects):
		return m.selectTab(domain.InsightProjects), nil
	case key.Matches(msg, m.keys.NextTab):
		return m.selectTab(m.tabOffset(1)), nil
	case key.Matches(msg, m.keys.PrevTab):
		return m.selectTab(m.tabOffset(-1)), nil
	case key.Matches(msg, m.keys.Generate):
		return m.generate()
	case key.Matches(msg, m.keys.Cancel):
		if m.run != nil {
			m.run.cancel()
		}
		return m, nil
	case key.Matches(msg, m.keys.Recent):
		insights := m.store.Insights()
		if len(insights) == 0 {
			m.notice = "No completed analyses yet."
			return m, nil
		}
		size := m.historySize()
		history := NewHistoryModel(insights, m.now(), size.Width, size.Height)
		m.history = &history
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m InsightModel) tabOffset(delta int) domain.InsightKind {
	n := len(domain.InsightKinds)
	for i, kind := range domain.InsightKinds {
		if kind == m.kind {
			return domain.InsightKinds[(i+delta+n)%n]
		}
	}
	return domain.InsightOverview
}

func (m InsightModel) selectTab(kind domain.InsightKind) InsightModel {
	if kind == m.kind {
		return m
	}
	m.kind = kind
	m.notice = ""
	m.refreshViewport(false)
	m.viewport.GotoTop()
	return m
}

// generate starts a new run for the selected tab. The consumer supersedes
// any run still in flight.
func (m InsightModel) generate() (tea.Model, tea.Cmd) {
	m.cancelRun()

	ctx, cancel := context.WithCancel(m.ctx)
	run := &insightRun{
		kind:    m.kind,
		cancel:  cancel,
		updates: make(chan insight.State, 1),
		done:    make(chan insightResult, 1),
	}
	m.run = run
	m.notice = ""
	m.state = insight.State{Kind: m.kind, Loading: true}
	m.refreshViewport(false)

	consumer := m.consumer
	go func() {
		state, err := consumer.Generate(ctx, run.kind, run.offer)
		run.done <- insightResult{state: state, err: err}
	}()

	m.logger.Info("generating insight", "kind", m.kind)
	return m, tea.Batch(m.spinner.Tick, waitForInsight(run))
}

// cancelRun abandons the current run; its late messages are ignored.
func (m *InsightModel) cancelRun() {
	if m.run != nil {
		m.run.cancel()
		m.run = nil
	}
}

func (m InsightModel) loading() bool {
	return m.run != nil && m.state.Loading
}

// visible returns the state shown for the selected tab: the live run when
// it belongs to this tab, otherwise the cached document.
func (m InsightModel) visible() insight.State {
	if m.state.Kind == m.kind && (m.run != nil || m.state.Content != "" || m.state.ErrorMessage != "") {
		return m.state
	}
	if cached, err := m.store.GetInsight(m.kind); err == nil {
		return insight.State{Kind: cached.Kind, Content: cached.Content}
	}
	return insight.State{Kind: m.kind}
}

// historySize is the area below the title and tabs.
func (m InsightModel) historySize() tea.WindowSizeMsg {
	return tea.WindowSizeMsg{Width: m.width, Height: m.height - insightHeaderHeight}
}

func (m *InsightModel) resize() {
	width := m.width - insightBorderSize - 2
	if width < 20 {
		width = 20
	}
	height := m.height - insightHeaderHeight - insightFooterHeight - insightBorderSize
	if height < 5 {
		height = 5
	}
	m.viewport.Width = width
	m.viewport.Height = height
	m.refreshViewport(false)
}

// refreshViewport re-renders the document. With follow set, the view stays
// pinned to the bottom while content streams in if it already was there.
func (m *InsightModel) refreshViewport(follow bool) {
	atBottom := m.viewport.AtBottom()
	state := m.visible()

	content := RenderMarkdown(state.Content, m.viewport.Width)
	if content == "" {
		switch {
		case state.Loading:
			content = dimStyle.Render("Waiting for the first insight...")
		case state.ErrorMessage == "":
			content = dimStyle.Render(fmt.Sprintf("No %s yet. Press g to generate.", strings.ToLower(m.kind.Title())))
		}
	}
	m.viewport.SetContent(content)
	if follow && atBottom {
		m.viewport.GotoBottom()
	}
}

// View renders the model.
func (m InsightModel) View() string {
	var b strings.Builder

	title := "finsight · insights"
	if m.session != nil && m.session.User.Username != "" {
		title += dimStyle.Render("  signed in as " + m.session.User.Username)
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	if m.showHelp {
		b.WriteString(m.keys.HelpView(m.width))
		return b.String()
	}
	if m.history != nil {
		b.WriteString(m.history.View())
		return b.String()
	}

	b.WriteString(documentStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m InsightModel) renderTabs() string {
	tabs := make([]string, 0, len(domain.InsightKinds))
	for i, kind := range domain.InsightKinds {
		label := fmt.Sprintf("%d %s", i+1, kind.Title())
		if kind == m.kind {
			tabs = append(tabs, tabActiveStyle.Render(label))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m InsightModel) renderFooter() string {
	state := m.visible()
	var left string
	switch {
	case m.loading() && state.Kind == m.kind:
		left = m.spinner.View() + " Generating " + strings.ToLower(m.kind.Title()) + "... (x to cancel)"
	case state.ErrorMessage != "":
		left = ErrorStyle.Render("✗ " + state.ErrorMessage)
	case m.notice != "":
		left = successStyle.Render(m.notice)
	default:
		left = renderHelp(m.keys, m.width, false)
	}

	right := ""
	if m.viewport.TotalLineCount() > m.viewport.Height {
		right = fmt.Sprintf("%d%%", int(m.viewport.ScrollPercent()*100))
	}
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + dimStyle.Render(right)
}

// waitForInsight blocks for the next update or the final result of run.
func waitForInsight(run *insightRun) tea.Cmd {
	return func() tea.Msg {
		select {
		case state := <-run.updates:
			return insightUpdateMsg{run: run, state: state}
		case result := <-run.done:
			return insightFinishedMsg{run: run, state: result.state, err: result.err}
		}
	}
}

type (
	insightUpdateMsg struct {
		run   *insightRun
		state insight.State
	}

	insightFinishedMsg struct {
		run   *insightRun
		state insight.State
		err   error
	}
)
