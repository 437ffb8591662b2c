package bootstrap

// SSOErrorParam is the navigation parameter carrying a failed redirect's error code.
const SSOErrorParam = "sso_error"

// Known sso_error codes.
const (
	CodeNotConfigured = "not_configured"
	CodeNoCode        = "no_code"
	CodeNoEmail       = "no_email"
	CodeAuthFailed    = "auth_failed"
)

// GenericSSOError is shown for codes not in the table.
const GenericSSOError = "Single sign-on failed. Please sign in with your username and password."

var ssoErrorMessages = map[string]string{
	CodeNotConfigured: "Single sign-on is not configured for this dashboard. Please sign in with your username and password.",
	CodeNoCode:        "The identity provider did not return an authorization code. Please try again or sign in manually.",
	CodeNoEmail:       "The identity provider did not share an email address for your account. Please sign in manually.",
	CodeAuthFailed:    "Single sign-on authentication failed. Please try again or sign in manually.",
}

// SSOErrorMessage maps an sso_error code to the sentence shown to the user.
func SSOErrorMessage(code string) string {
	if msg, ok := ssoErrorMessages[code]; ok {
		return msg
	}
	return GenericSSOError
}
