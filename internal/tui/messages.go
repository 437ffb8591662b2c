// Package tui provides Bubble Tea models for the interactive TUI.
package tui

import (
	"github.com/h0rv/finsight/internal/config"
	"github.com/h0rv/finsight/internal/domain"
)

// LoggedInMsg is emitted when password login succeeds.
type LoggedInMsg struct {
	Session *domain.Session
}

// RedirectedMsg is emitted after the browser was asked to open the identity
// provider. Err is set if the browser could not be launched.
type RedirectedMsg struct {
	URL string
	Err error
}

// LogoutMsg is emitted when the user signs out.
type LogoutMsg struct{}

// ConfigChangedMsg delivers a reloaded configuration file.
type ConfigChangedMsg struct {
	Config *config.Config
}

// ErrorMsg is emitted when an error occurs.
type ErrorMsg struct {
	Err error
}

// QuitMsg is emitted when the user requests to quit.
type QuitMsg struct{}
