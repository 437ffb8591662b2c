package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/h0rv/finsight/internal/api"
	"github.com/h0rv/finsight/internal/auth"
	"github.com/h0rv/finsight/internal/bootstrap"
	"github.com/h0rv/finsight/internal/config"
	"github.com/h0rv/finsight/internal/domain"
	"github.com/h0rv/finsight/internal/insight"
	"github.com/h0rv/finsight/internal/logging"
	"github.com/h0rv/finsight/internal/store"
	"github.com/h0rv/finsight/internal/tui"
)

var (
	// CLI flags
	configFlag     string
	serverFlag     string
	urlFlag        string
	logFileFlag    string
	logLevelFlag   string
	plainFlag      bool
	stopOnDoneFlag bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "finsight",
		Short: "Terminal client for the project finance dashboard",
		Long: `finsight is a terminal client for the project finance dashboard.

Sign in with single sign-on or a username and password, then generate
AI analyses of the portfolio, the sales pipeline and project health.

Authentication:
  1. Single sign-on: opens your identity provider in the browser
  2. Manual: username and password (press m while single sign-on is checked)
  3. Environment variable: set FINSIGHT_TOKEN

Configuration is read from ./.finsight.yaml and ~/.config/finsight/config.yaml,
with FINSIGHT_* environment variables taking precedence.`,
		SilenceUsage: true,
		RunE:         runApp,
	}

	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a config file. Replaces the default search paths.")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Dashboard server URL. Overrides the config file.")
	rootCmd.PersistentFlags().StringVar(&urlFlag, "url", "", "Navigation URL the client was opened with, e.g. finsight://login?sso_error=auth_failed")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "Log file path. Overrides the config file.")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn or error.")

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Args:  cobra.NoArgs,
		RunE:  runLogin,
	}
	loginCmd.Flags().BoolVar(&plainFlag, "plain", false, "Sign in without the full-screen interface.")

	insightCmd := &cobra.Command{
		Use:       "insight <overview|pipeline|projects>",
		Short:     "Generate one insight and print it",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(domain.InsightOverview), string(domain.InsightPipeline), string(domain.InsightProjects)},
		RunE:      runInsight,
	}
	insightCmd.Flags().BoolVar(&plainFlag, "plain", false, "Write raw markdown to stdout as it arrives.")
	insightCmd.Flags().BoolVar(&stopOnDoneFlag, "stop-on-done", false, "Stop reading as soon as the server signals completion.")

	rootCmd.AddCommand(loginCmd, insightCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs.
type app struct {
	loader  *config.Loader
	cfg     *config.Config
	logger  *slog.Logger
	logFile *os.File
	client  *api.Client
	tokens  auth.TokenProvider
	nav     *bootstrap.QueryNavigation
}

// setup loads configuration, applies flags and builds the API client.
// Full-screen commands log to a file so the terminal stays clean.
func setup(fullScreen bool) (*app, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}
	if serverFlag != "" {
		cfg.Server.URL = serverFlag
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if logFileFlag != "" {
		cfg.Logging.File = logFileFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	a := &app{loader: loader, cfg: cfg}
	if fullScreen {
		f, err := logging.OpenFile(cfg.Logging.File)
		if err != nil {
			return nil, err
		}
		a.logFile = f
		a.logger = logging.New(f, logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, NoColor: true})
	} else {
		a.logger = logging.New(os.Stderr, logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	}
	slog.SetDefault(a.logger)

	a.tokens = auth.Chain{&auth.EnvProvider{}, &auth.FileProvider{Path: cfg.Auth.TokenPath}}
	a.client, err = api.New(cfg.Server.URL, a.tokens,
		api.WithLogger(a.logger),
		api.WithTimeout(cfg.Server.Timeout),
	)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	if urlFlag != "" {
		a.nav, err = bootstrap.ParseNavigation(urlFlag)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	// The browser launcher writes to stdout, which belongs to the TUI.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard

	return a, nil
}

// Close releases the log file.
func (a *app) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}

// navigation avoids handing a typed nil to the NavigationContext interface.
func (a *app) navigation() bootstrap.NavigationContext {
	if a.nav == nil {
		return nil
	}
	return a.nav
}

// restoreSession loads a still-valid stored token into a new store.
func (a *app) restoreSession() *store.Store {
	s := store.New()
	token, err := a.tokens.GetToken()
	if err != nil {
		a.logger.Debug("no stored session", "error", err)
		return s
	}
	session, err := api.SessionFromToken(token, time.Now())
	if err != nil {
		a.logger.Info("stored session is not usable, signing in again", "error", err)
		a.client.SetToken("")
		return s
	}
	s.SetSession(session)
	return s
}

func (a *app) saveToken(token string) error {
	if token == "" {
		return auth.ClearToken(a.cfg.Auth.TokenPath)
	}
	return auth.SaveToken(a.cfg.Auth.TokenPath, token)
}

func (a *app) newConsumer() (*insight.Consumer, error) {
	mode, err := insight.ParseDoneMode(a.cfg.Insight.DoneMode)
	if err != nil {
		return nil, err
	}
	if stopOnDoneFlag {
		mode = insight.DoneStop
	}
	return insight.NewConsumer(a.client,
		insight.WithLogger(a.logger),
		insight.WithDoneMode(mode),
		insight.WithReadSize(a.cfg.Insight.ReadBufferSize),
	), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runApp(cmd *cobra.Command, args []string) error {
	a, err := setup(true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	consumer, err := a.newConsumer()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	model := tui.NewAppModel(ctx, tui.AppOptions{
		Client:     a.client,
		Store:      a.restoreSession(),
		Consumer:   consumer,
		Navigation: a.navigation(),
		Fallback:   a.cfg.Auth.SSOFallback,
		OpenURL:    browser.OpenURL,
		SaveToken:  a.saveToken,
		Logger:     a.logger,
	})
	return runProgram(ctx, a, model)
}

// runProgram runs the Bubble Tea program and follows config file changes
// while it is up.
func runProgram(ctx context.Context, a *app, model tui.AppModel) error {
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	if path, ok := a.loader.FindConfigFile(configFlag); ok {
		go func() {
			err := a.loader.Watch(ctx, path, func(cfg *config.Config) {
				p.Send(tui.ConfigChangedMsg{Config: cfg})
			}, a.logger)
			if err != nil {
				a.logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("program error: %w", err)
	}

	if m, ok := final.(tui.AppModel); ok {
		if url := m.RedirectURL(); url != "" {
			fmt.Printf("Continue signing in with your identity provider:\n  %s\n", url)
		}
		if session := m.Session(); session != nil {
			fmt.Printf("Signed in as %s\n", session.User.Username)
		}
	}
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := setup(!plainFlag)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	if plainFlag {
		return loginPlain(ctx, a, cmd.ErrOrStderr())
	}

	consumer, err := a.newConsumer()
	if err != nil {
		return err
	}
	model := tui.NewAppModel(ctx, tui.AppOptions{
		Client:         a.client,
		Store:          store.New(),
		Consumer:       consumer,
		Navigation:     a.navigation(),
		Fallback:       a.cfg.Auth.SSOFallback,
		OpenURL:        browser.OpenURL,
		SaveToken:      a.saveToken,
		ExitAfterLogin: true,
		Logger:         a.logger,
	})
	return runProgram(ctx, a, model)
}

// loginPlain runs the bootstrap race on the terminal: the identity provider
// opens in the browser if it answers within the fallback window, otherwise
// the user is prompted for credentials.
func loginPlain(ctx context.Context, a *app, out io.Writer) error {
	driver := &bootstrap.Driver{
		Source: a.client,
		Redirector: bootstrap.RedirectFunc(func(url string) error {
			fmt.Fprintf(out, "Continue signing in with your identity provider:\n  %s\n", url)
			return browser.OpenURL(url)
		}),
		Notifier: bootstrap.NotifyFunc(func(message string) {
			fmt.Fprintf(out, "! %s\n", message)
		}),
		Fallback: a.cfg.Auth.SSOFallback,
		Logger:   a.logger,
	}

	fmt.Fprintln(out, "Checking single sign-on...")
	phase, err := driver.Run(ctx, bootstrap.NewArbiter(), a.navigation())
	if err != nil {
		return err
	}
	if phase == bootstrap.PhaseRedirecting {
		return nil
	}

	username, password, err := promptCredentials(out)
	if err != nil {
		return err
	}
	session, err := a.client.Login(ctx, username, password)
	if err != nil {
		if msg, ok := api.StatusMessage(err); ok {
			return errors.New(msg)
		}
		return err
	}
	if err := a.saveToken(session.Token); err != nil {
		return err
	}
	fmt.Fprintf(out, "Signed in as %s\n", session.User.Username)
	fmt.Fprintf(out, "Session saved to %s\n", a.cfg.Auth.TokenPath)
	return nil
}

// promptCredentials reads a username from stdin and a password with echo
// disabled.
func promptCredentials(out io.Writer) (string, string, error) {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return "", "", errors.New("no terminal available for the password prompt (set FINSIGHT_TOKEN instead)")
	}

	fmt.Fprint(out, "Username: ")
	username, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", "", fmt.Errorf("failed to read username: %w", err)
	}

	fmt.Fprint(out, "Password: ")
	password, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(out)
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}

	username = strings.TrimSpace(username)
	if username == "" || len(password) == 0 {
		return "", "", errors.New("username and password are required")
	}
	return username, string(password), nil
}

func runInsight(cmd *cobra.Command, args []string) error {
	kind, err := domain.ParseInsightKind(args[0])
	if err != nil {
		return err
	}

	a, err := setup(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !a.client.HasToken() {
		return errors.New("not signed in: run 'finsight login' or set FINSIGHT_TOKEN")
	}

	consumer, err := a.newConsumer()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	out := cmd.OutOrStdout()
	printed := 0
	var onUpdate insight.UpdateFunc
	if plainFlag {
		onUpdate = func(s insight.State) {
			if len(s.Content) > printed {
				_, _ = io.WriteString(out, s.Content[printed:])
				printed = len(s.Content)
			}
		}
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "Generating %s...\n", strings.ToLower(kind.Title()))
	}

	state, genErr := consumer.Generate(ctx, kind, onUpdate)

	if plainFlag {
		if printed > 0 {
			fmt.Fprintln(out)
		}
	} else if state.Content != "" {
		fmt.Fprintln(out, tui.RenderMarkdown(state.Content, terminalWidth()))
	}

	if genErr != nil {
		return errors.New(state.ErrorMessage)
	}
	return nil
}

func terminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}
