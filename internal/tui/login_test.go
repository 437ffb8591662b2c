package tui

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/finsight/internal/api"
	"github.com/h0rv/finsight/internal/bootstrap"
	"github.com/h0rv/finsight/internal/domain"
)

// mockLoginClient implements LoginClient and AppClient for testing
type mockLoginClient struct {
	authURL  string
	urlErr   error
	session  *domain.Session
	loginErr error

	token   string
	baseURL string
	timeout time.Duration
}

func (c *mockLoginClient) SSOLoginURL(ctx context.Context) (string, error) {
	return c.authURL, c.urlErr
}

func (c *mockLoginClient) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	if c.loginErr != nil {
		return nil, c.loginErr
	}
	return c.session, nil
}

func (c *mockLoginClient) SetToken(token string) { c.token = token }

func (c *mockLoginClient) SetTimeout(d time.Duration) { c.timeout = d }

func (c *mockLoginClient) SetBaseURL(raw string) error {
	if raw == "" {
		return errors.New("empty url")
	}
	c.baseURL = raw
	return nil
}

func newTestLogin(t *testing.T, client *mockLoginClient, nav string) (LoginModel, *[]string) {
	t.Helper()
	opened := &[]string{}
	opts := LoginOptions{
		OpenURL: func(url string) error {
			*opened = append(*opened, url)
			return nil
		},
	}
	if nav != "" {
		n, err := bootstrap.ParseNavigation(nav)
		require.NoError(t, err)
		opts.Navigation = n
	}
	return NewLoginModel(client, context.Background(), opts), opened
}

func update(t *testing.T, m tea.Model, msg tea.Msg) (LoginModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	lm, ok := next.(LoginModel)
	require.True(t, ok, "expected LoginModel, got %T", next)
	return lm, cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestLoginModel_SSOErrorShowsToastAndForm(t *testing.T) {
	m, opened := newTestLogin(t, &mockLoginClient{authURL: "https://idp.example.com"}, "finsight://login?sso_error=no_email")

	m.Init()

	assert.Equal(t, bootstrap.PhaseManualVisible, m.Arbiter().Phase())
	assert.False(t, m.Arbiter().State().Attempted)
	assert.Contains(t, m.View(), bootstrap.SSOErrorMessage(bootstrap.CodeNoEmail))
	assert.Contains(t, m.View(), "Username:")
	assert.Empty(t, *opened)
}

func TestLoginModel_LoadingView(t *testing.T) {
	m, _ := newTestLogin(t, &mockLoginClient{}, "")

	cmd := m.Init()

	assert.NotNil(t, cmd)
	assert.Equal(t, bootstrap.PhaseAutoAttempting, m.Arbiter().Phase())
	view := m.View()
	assert.Contains(t, view, "Checking single sign-on")
	assert.NotContains(t, view, "Username:", "form hidden while loading")
}

func TestLoginModel_ResolvedURLRedirects(t *testing.T) {
	m, opened := newTestLogin(t, &mockLoginClient{}, "")
	m.Init()

	m, cmd := update(t, m, ssoResolvedMsg{arbiter: m.Arbiter(), url: "https://idp.example.com/authorize"})
	require.NotNil(t, cmd)
	msg := cmd()

	redirected, ok := msg.(RedirectedMsg)
	require.True(t, ok)
	assert.Equal(t, "https://idp.example.com/authorize", redirected.URL)
	assert.NoError(t, redirected.Err)
	assert.Equal(t, []string{"https://idp.example.com/authorize"}, *opened)
	assert.Contains(t, m.View(), "identity provider")

	// The fallback timer still fires later; it must not show the form.
	m, cmd = update(t, m, ssoFallbackMsg{arbiter: m.Arbiter()})
	assert.Nil(t, cmd)
	assert.Equal(t, bootstrap.PhaseRedirecting, m.Arbiter().Phase())
	assert.False(t, m.Arbiter().State().ManualVisible)
}

func TestLoginModel_FallbackWinsThenLateURLIgnored(t *testing.T) {
	m, opened := newTestLogin(t, &mockLoginClient{}, "")
	m.Init()

	m, _ = update(t, m, ssoFallbackMsg{arbiter: m.Arbiter()})
	assert.Equal(t, bootstrap.PhaseManualVisible, m.Arbiter().Phase())

	m, cmd := update(t, m, ssoResolvedMsg{arbiter: m.Arbiter(), url: "https://idp.example.com"})
	assert.Nil(t, cmd)
	assert.Empty(t, *opened, "late URL must not redirect")
	assert.Contains(t, m.View(), "Username:")
}

func TestLoginModel_SSOFailureFallsBackSilently(t *testing.T) {
	m, _ := newTestLogin(t, &mockLoginClient{}, "")
	m.Init()

	m, _ = update(t, m, ssoResolvedMsg{arbiter: m.Arbiter(), err: &api.StatusError{StatusCode: http.StatusBadGateway}})

	assert.Equal(t, bootstrap.PhaseManualVisible, m.Arbiter().Phase())
	assert.Empty(t, m.Arbiter().State().ErrorMessage)
}

func TestLoginModel_ChooseManualWhileLoading(t *testing.T) {
	m, _ := newTestLogin(t, &mockLoginClient{}, "")
	m.Init()

	m, _ = update(t, m, keyRunes("m"))

	assert.Equal(t, bootstrap.PhaseManualVisible, m.Arbiter().Phase())
	assert.True(t, m.inputs[fieldUsername].Focused())
}

func TestLoginModel_SubmitRequiresBothFields(t *testing.T) {
	m, _ := newTestLogin(t, &mockLoginClient{}, "finsight://login?sso_error=auth_failed")
	m.Init()
	m.inputs[fieldUsername].SetValue("admin")
	m.focus = fieldPassword

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.False(t, m.submitting)
	assert.Contains(t, m.View(), "Username and password are required.")
}

func TestLoginModel_EnterOnUsernameMovesToPassword(t *testing.T) {
	m, _ := newTestLogin(t, &mockLoginClient{}, "finsight://login?sso_error=auth_failed")
	m.Init()
	m.inputs[fieldUsername].SetValue("admin")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, fieldPassword, m.focus)
	assert.False(t, m.submitting)
}

func TestLoginModel_SubmitAndSucceed(t *testing.T) {
	session := &domain.Session{User: domain.User{Username: "admin"}, Token: "tok"}
	m, _ := newTestLogin(t, &mockLoginClient{session: session}, "finsight://login?sso_error=auth_failed")
	m.Init()
	m.inputs[fieldUsername].SetValue("admin")
	m.inputs[fieldPassword].SetValue("admin")
	m.focus = fieldPassword

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.submitting)
	assert.Contains(t, m.View(), "Signing in")

	result := m.login("admin", "admin")()
	_, cmd = update(t, m, result)
	require.NotNil(t, cmd)

	loggedIn, ok := cmd().(LoggedInMsg)
	require.True(t, ok)
	assert.Equal(t, session, loggedIn.Session)
}

func TestLoginModel_LoginRejected(t *testing.T) {
	m, _ := newTestLogin(t, &mockLoginClient{}, "finsight://login?sso_error=auth_failed")
	m.Init()
	m.inputs[fieldPassword].SetValue("wrong")
	m.submitting = true

	m, _ = update(t, m, loginResultMsg{err: &api.StatusError{StatusCode: http.StatusUnauthorized, Message: "Invalid username or password"}})

	assert.False(t, m.submitting)
	assert.Equal(t, "Invalid username or password", m.formErr)
	assert.Empty(t, m.inputs[fieldPassword].Value(), "password cleared")
	assert.Equal(t, fieldPassword, m.focus)
}

func TestLoginErrorText_Fallback(t *testing.T) {
	assert.Equal(t, "Sign in failed. Please try again.", loginErrorText(errors.New("dial tcp: refused")))
}

func TestLoginModel_RedirectBrowserFailure(t *testing.T) {
	client := &mockLoginClient{}
	m := NewLoginModel(client, context.Background(), LoginOptions{
		OpenURL: func(string) error { return errors.New("no browser") },
	})
	m.Init()

	_, cmd := update(t, m, ssoResolvedMsg{arbiter: m.Arbiter(), url: "https://idp.example.com"})
	require.NotNil(t, cmd)

	redirected, ok := cmd().(RedirectedMsg)
	require.True(t, ok)
	assert.ErrorContains(t, redirected.Err, "no browser")
}

func TestLoginModel_RaceMessagesCarryTheirArbiter(t *testing.T) {
	m := NewLoginModel(&mockLoginClient{authURL: "https://idp.example.com"}, context.Background(), LoginOptions{Fallback: time.Millisecond})
	other := NewLoginModel(&mockLoginClient{}, context.Background(), LoginOptions{})
	m.Init()
	other.Init()

	tick, ok := m.fallbackTimer()().(ssoFallbackMsg)
	require.True(t, ok)
	assert.Same(t, m.Arbiter(), tick.arbiter)

	resolved, ok := m.fetchAuthURL()().(ssoResolvedMsg)
	require.True(t, ok)
	assert.Same(t, m.Arbiter(), resolved.arbiter)

	// Delivered to a different mount, neither settles its race.
	other, cmd := update(t, other, tick)
	assert.Nil(t, cmd)
	other, cmd = update(t, other, resolved)
	assert.Nil(t, cmd)
	assert.Equal(t, bootstrap.PhaseAutoAttempting, other.Arbiter().Phase())
}
