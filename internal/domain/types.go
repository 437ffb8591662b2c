// Package domain defines the normalized domain types for the finance dashboard client.
// These types are shared by the API client, the controllers and the TUI.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// InsightKind identifies which AI analysis is requested.
type InsightKind string

// InsightKind constants accepted by the insight-generation endpoint.
const (
	InsightOverview InsightKind = "overview"
	InsightPipeline InsightKind = "pipeline"
	InsightProjects InsightKind = "projects"
)

// InsightKinds lists every kind in tab order.
var InsightKinds = []InsightKind{InsightOverview, InsightPipeline, InsightProjects}

// ParseInsightKind converts user input (case-insensitive) into an InsightKind.
func ParseInsightKind(s string) (InsightKind, error) {
	k := InsightKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range InsightKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown insight kind %q (want overview, pipeline or projects)", s)
}

// Title returns the display name used for tabs and headers.
func (k InsightKind) Title() string {
	switch k {
	case InsightOverview:
		return "Portfolio Overview"
	case InsightPipeline:
		return "Pipeline Analysis"
	case InsightProjects:
		return "Project Health"
	default:
		return string(k)
	}
}

// User is the authenticated dashboard user as returned by the login endpoint.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

// Session is an authenticated session.
type Session struct {
	User      User
	Token     string    // Bearer token sent on every API request
	ExpiresAt time.Time // Zero if the token carries no expiry
}

// Insight is a completed analysis document.
type Insight struct {
	Kind        InsightKind
	Content     string
	RequestID   string
	CompletedAt time.Time
}
