package tui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/h0rv/finsight/internal/bootstrap"
	"github.com/h0rv/finsight/internal/domain"
	"github.com/h0rv/finsight/internal/insight"
	"github.com/h0rv/finsight/internal/store"
)

// AppScreen represents the different screens in the application flow.
type AppScreen int

const (
	ScreenLogin AppScreen = iota
	ScreenInsights
)

// AppClient is the part of the API client the root model drives.
type AppClient interface {
	LoginClient
	SetToken(token string)
	SetBaseURL(raw string) error
	SetTimeout(d time.Duration)
}

// AppOptions carries the root model's collaborators.
type AppOptions struct {
	Client   AppClient
	Store    *store.Store
	Consumer *insight.Consumer

	// Navigation is the link the client was opened with, if any. It is only
	// consulted by the first login screen.
	Navigation bootstrap.NavigationContext
	Fallback   time.Duration
	OpenURL    func(string) error

	// SaveToken persists a session token; an empty token forgets it.
	SaveToken func(token string) error

	// ExitAfterLogin quits once a session is established instead of
	// opening the insight viewer.
	ExitAfterLogin bool

	Logger *slog.Logger
	Now    func() time.Time
}

// AppModel is the root Bubble Tea model that manages screen transitions.
// It orchestrates the flow from sign-in to the insight viewer and back on
// logout.
type AppModel struct {
	opts AppOptions
	ctx  context.Context

	currentScreen AppScreen
	currentModel  tea.Model
	err           error

	redirectURL string
	session     *domain.Session // set when ExitAfterLogin ended the program
	width       int
	height      int
}

// NewAppModel creates the root model. A still-valid stored session skips the
// login screen.
func NewAppModel(ctx context.Context, opts AppOptions) AppModel {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := AppModel{opts: opts, ctx: ctx}
	if _, err := opts.Store.ValidSession(opts.Now()); err == nil {
		m.currentScreen = ScreenInsights
		m.currentModel = m.newInsightModel()
		return m
	}

	m.currentScreen = ScreenLogin
	m.currentModel = m.newLoginModel(opts.Navigation)
	return m
}

// Screen returns the active screen.
func (m AppModel) Screen() AppScreen {
	return m.currentScreen
}

// RedirectURL returns the identity-provider URL the program handed off to,
// or "" if the session did not end in a redirect.
func (m AppModel) RedirectURL() string {
	return m.redirectURL
}

// Session returns the session established by an ExitAfterLogin run.
func (m AppModel) Session() *domain.Session {
	return m.session
}

// Init initializes the app model.
func (m AppModel) Init() tea.Cmd {
	return m.currentModel.Init()
}

// Update handles messages and transitions between screens.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Global quit handler
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.err != nil {
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case ErrorMsg:
		m.err = msg.Err
		return m, nil

	case QuitMsg:
		return m, tea.Quit

	case LoggedInMsg:
		m.opts.Store.SetSession(msg.Session)
		m.opts.Client.SetToken(msg.Session.Token)
		if m.opts.SaveToken != nil {
			if err := m.opts.SaveToken(msg.Session.Token); err != nil {
				m.opts.Logger.Warn("failed to persist session token", "error", err)
			}
		}
		m.opts.Logger.Info("signed in", "user", msg.Session.User.Username)
		if m.opts.ExitAfterLogin {
			m.session = msg.Session
			return m, tea.Quit
		}
		return m.show(ScreenInsights, m.newInsightModel())

	case RedirectedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		// The identity provider returns through the browser; this process is done.
		m.redirectURL = msg.URL
		return m, tea.Quit

	case LogoutMsg:
		m.opts.Store.ClearSession()
		m.opts.Client.SetToken("")
		if m.opts.SaveToken != nil {
			if err := m.opts.SaveToken(""); err != nil {
				m.opts.Logger.Warn("failed to forget session token", "error", err)
			}
		}
		m.opts.Logger.Info("signed out")
		return m.show(ScreenLogin, m.newLoginModel(nil))

	case ConfigChangedMsg:
		if err := m.opts.Client.SetBaseURL(msg.Config.Server.URL); err != nil {
			m.opts.Logger.Warn("ignoring server url from reloaded config", "error", err)
		}
		m.opts.Client.SetTimeout(msg.Config.Server.Timeout)
		// Applies to the next login screen; a running race keeps its window.
		m.opts.Fallback = msg.Config.Auth.SSOFallback
		return m, nil
	}

	// Delegate to current screen's model
	var cmd tea.Cmd
	m.currentModel, cmd = m.currentModel.Update(msg)
	return m, cmd
}

func (m AppModel) show(screen AppScreen, model tea.Model) (tea.Model, tea.Cmd) {
	m.currentScreen = screen
	m.currentModel = model
	cmds := []tea.Cmd{model.Init()}
	if m.width > 0 {
		size := tea.WindowSizeMsg{Width: m.width, Height: m.height}
		cmds = append(cmds, func() tea.Msg { return size })
	}
	return m, tea.Batch(cmds...)
}

func (m AppModel) newLoginModel(nav bootstrap.NavigationContext) LoginModel {
	return NewLoginModel(m.opts.Client, m.ctx, LoginOptions{
		Navigation: nav,
		Fallback:   m.opts.Fallback,
		OpenURL:    m.opts.OpenURL,
		Logger:     m.opts.Logger,
	})
}

func (m AppModel) newInsightModel() InsightModel {
	return NewInsightModel(m.opts.Consumer, m.opts.Store, m.ctx, m.opts.Logger)
}

// View renders the current screen.
func (m AppModel) View() string {
	if m.err != nil {
		return ErrorStyle.Render(fmt.Sprintf("Error: %v\n\nPress Ctrl+C to quit", m.err))
	}
	if m.redirectURL != "" {
		return PromptStyle.Render("Continue signing in with your identity provider in the browser.") + "\n"
	}
	if m.session != nil {
		return successStyle.Render("Signed in as "+m.session.User.Username) + "\n"
	}
	return m.currentModel.View()
}
