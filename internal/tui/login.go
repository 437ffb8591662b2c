package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/h0rv/finsight/internal/api"
	"github.com/h0rv/finsight/internal/bootstrap"
	"github.com/h0rv/finsight/internal/domain"
)

// LoginClient is the part of the API the login screen needs.
type LoginClient interface {
	SSOLoginURL(ctx context.Context) (string, error)
	Login(ctx context.Context, username, password string) (*domain.Session, error)
}

const (
	fieldUsername = iota
	fieldPassword
)

// LoginModel races single sign-on against the fallback timer and shows the
// manual form when the automatic path loses.
type LoginModel struct {
	client   LoginClient
	ctx      context.Context
	logger   *slog.Logger
	arbiter  *bootstrap.Arbiter
	nav      bootstrap.NavigationContext
	fallback time.Duration
	openURL  func(string) error

	spinner spinner.Model
	inputs  []textinput.Model
	focus   int
	keys    LoginKeyMap

	submitting  bool
	formErr     string
	redirectURL string
	width       int
}

// LoginOptions configures a LoginModel.
type LoginOptions struct {
	Navigation bootstrap.NavigationContext
	Fallback   time.Duration
	OpenURL    func(string) error
	Logger     *slog.Logger
}

// NewLoginModel creates the login screen for one mount.
func NewLoginModel(client LoginClient, ctx context.Context, opts LoginOptions) LoginModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	username := textinput.New()
	username.Placeholder = "username"
	username.Prompt = "Username: "
	username.CharLimit = 128

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 256

	fallback := opts.Fallback
	if fallback <= 0 {
		fallback = bootstrap.DefaultFallback
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return LoginModel{
		client:   client,
		ctx:      ctx,
		logger:   logger,
		arbiter:  bootstrap.NewArbiter(),
		nav:      opts.Navigation,
		fallback: fallback,
		openURL:  opts.OpenURL,
		spinner:  sp,
		inputs:   []textinput.Model{username, password},
		keys:     DefaultLoginKeyMap(),
	}
}

// Arbiter exposes the bootstrap state machine.
func (m LoginModel) Arbiter() *bootstrap.Arbiter {
	return m.arbiter
}

// Init mounts the arbiter and, when the automatic path starts, arms the
// fallback timer and issues the authorization-URL call together.
func (m LoginModel) Init() tea.Cmd {
	out := m.arbiter.Mount(m.nav)
	if out.Toast != "" {
		m.logger.Info("single sign-on failed", "message", out.Toast)
	}
	if out.StartAuto {
		return tea.Batch(m.spinner.Tick, m.fallbackTimer(), m.fetchAuthURL())
	}
	return tea.Batch(textinput.Blink, func() tea.Msg { return focusFormMsg{} })
}

// Update handles messages.
func (m LoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if !m.arbiter.State().Loading && !m.submitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ssoFallbackMsg:
		// Timers and URL calls from an earlier login screen belong to its
		// arbiter, not this one.
		if msg.arbiter != m.arbiter {
			return m, nil
		}
		// A stale timer after the race was decided is a no-op.
		if m.arbiter.Expire().Changed {
			m.logger.Debug("sso fallback timer fired", "after", m.fallback)
			cmd := m.focusForm()
			return m, cmd
		}
		return m, nil

	case ssoResolvedMsg:
		if msg.arbiter != m.arbiter {
			return m, nil
		}
		out := m.arbiter.Resolve(msg.url, msg.err)
		if !out.Changed {
			return m, nil
		}
		if msg.err != nil {
			m.logger.Debug("sso unavailable, falling back to manual login", "error", msg.err)
		}
		if out.RedirectURL != "" {
			m.redirectURL = out.RedirectURL
			return m, m.redirect(out.RedirectURL)
		}
		cmd := m.focusForm()
		return m, cmd

	case focusFormMsg:
		cmd := m.focusForm()
		return m, cmd

	case loginResultMsg:
		m.submitting = false
		if msg.err != nil {
			m.formErr = loginErrorText(msg.err)
			m.inputs[fieldPassword].SetValue("")
			m.focus = fieldPassword
			cmd := m.focusForm()
			return m, cmd
		}
		return m, func() tea.Msg { return LoggedInMsg{Session: msg.session} }

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}

	return m.updateInputs(msg)
}

func (m LoginModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.arbiter.Phase() {
	case bootstrap.PhaseAutoAttempting:
		if key.Matches(msg, m.keys.Manual) && m.arbiter.ChooseManual().Changed {
			cmd := m.focusForm()
			return m, cmd
		}
		return m, nil

	case bootstrap.PhaseManualVisible:
		if m.submitting {
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Submit):
			if m.focus == fieldUsername && m.inputs[fieldPassword].Value() == "" {
				m.focus = fieldPassword
				cmd := m.focusForm()
				return m, cmd
			}
			return m.submit()
		case key.Matches(msg, m.keys.NextItem):
			m.focus = (m.focus + 1) % len(m.inputs)
			cmd := m.focusForm()
			return m, cmd
		case key.Matches(msg, m.keys.PrevItem):
			m.focus = (m.focus + len(m.inputs) - 1) % len(m.inputs)
			cmd := m.focusForm()
			return m, cmd
		}
		return m.updateInputs(msg)
	}
	return m, nil
}

func (m LoginModel) submit() (tea.Model, tea.Cmd) {
	username := strings.TrimSpace(m.inputs[fieldUsername].Value())
	password := m.inputs[fieldPassword].Value()
	if username == "" || password == "" {
		m.formErr = "Username and password are required."
		return m, nil
	}
	m.formErr = ""
	m.submitting = true
	return m, tea.Batch(m.spinner.Tick, m.login(username, password))
}

func (m LoginModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.arbiter.Phase() != bootstrap.PhaseManualVisible {
		return m, nil
	}
	cmds := make([]tea.Cmd, len(m.inputs))
	for i := range m.inputs {
		m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

// focusForm focuses the active input and blurs the rest. It mutates the
// inputs in place; callers return m afterwards.
func (m *LoginModel) focusForm() tea.Cmd {
	var cmd tea.Cmd
	for i := range m.inputs {
		if i == m.focus {
			cmd = m.inputs[i].Focus()
			m.inputs[i].PromptStyle = SelectedItemStyle
			continue
		}
		m.inputs[i].Blur()
		m.inputs[i].PromptStyle = NormalItemStyle
	}
	return cmd
}

// View renders the model.
func (m LoginModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("finsight · sign in"))
	b.WriteString("\n")

	state := m.arbiter.State()
	if state.ErrorMessage != "" {
		b.WriteString(ToastStyle.Render(state.ErrorMessage))
		b.WriteString("\n")
	}

	switch m.arbiter.Phase() {
	case bootstrap.PhaseIdle, bootstrap.PhaseAutoAttempting:
		b.WriteString(m.spinner.View() + " Checking single sign-on...\n")
		b.WriteString(HelpStyle.Render("m sign in manually instead • ctrl+c quit"))

	case bootstrap.PhaseRedirecting:
		b.WriteString(PromptStyle.Render("Continuing with your identity provider in the browser..."))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(m.redirectURL))

	case bootstrap.PhaseManualVisible:
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		switch {
		case m.submitting:
			b.WriteString("\n" + m.spinner.View() + " Signing in...")
		case m.formErr != "":
			b.WriteString("\n" + ErrorStyle.Render(m.formErr))
		}
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render(renderHelp(m.keys, m.width, false)))
	}

	return b.String()
}

// fallbackTimer fires once after the fallback window. Bubble Tea timers
// cannot be canceled; the arbiter ignores the message if the race is over.
func (m LoginModel) fallbackTimer() tea.Cmd {
	arbiter := m.arbiter
	return tea.Tick(m.fallback, func(time.Time) tea.Msg {
		return ssoFallbackMsg{arbiter: arbiter}
	})
}

func (m LoginModel) fetchAuthURL() tea.Cmd {
	return func() tea.Msg {
		url, err := m.client.SSOLoginURL(m.ctx)
		return ssoResolvedMsg{arbiter: m.arbiter, url: url, err: err}
	}
}

func (m LoginModel) redirect(url string) tea.Cmd {
	return func() tea.Msg {
		if m.openURL == nil {
			return RedirectedMsg{URL: url}
		}
		if err := m.openURL(url); err != nil {
			return RedirectedMsg{URL: url, Err: fmt.Errorf("failed to open browser: %w", err)}
		}
		return RedirectedMsg{URL: url}
	}
}

func (m LoginModel) login(username, password string) tea.Cmd {
	return func() tea.Msg {
		session, err := m.client.Login(m.ctx, username, password)
		return loginResultMsg{session: session, err: err}
	}
}

func loginErrorText(err error) string {
	if msg, ok := api.StatusMessage(err); ok {
		return msg
	}
	return "Sign in failed. Please try again."
}

type (
	// Both race messages carry the arbiter of the mount that started them.
	ssoFallbackMsg struct {
		arbiter *bootstrap.Arbiter
	}

	ssoResolvedMsg struct {
		arbiter *bootstrap.Arbiter
		url     string
		err     error
	}

	focusFormMsg struct{}

	loginResultMsg struct {
		session *domain.Session
		err     error
	}
)
