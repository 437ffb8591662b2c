package tui

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/h0rv/finsight/internal/domain"
)

// historyItem wraps a completed domain.Insight for use in bubbles/list.
type historyItem struct {
	insight *domain.Insight
	now     time.Time
}

func (i historyItem) FilterValue() string {
	return i.insight.Kind.Title()
}

func (i historyItem) Title() string {
	return i.insight.Kind.Title()
}

func (i historyItem) Description() string {
	words := len(strings.Fields(i.insight.Content))
	desc := fmt.Sprintf("%s · %d words", formatTimeAgo(i.insight.CompletedAt, i.now), words)
	if len(i.insight.RequestID) >= 8 {
		desc += " · " + i.insight.RequestID[:8]
	}
	return desc
}

// historyDelegate is a custom item delegate for history items.
type historyDelegate struct{}

func (d historyDelegate) Height() int                             { return 2 }
func (d historyDelegate) Spacing() int                            { return 1 }
func (d historyDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d historyDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(historyItem)
	if !ok {
		return
	}

	str := fmt.Sprintf("%d. %s", index+1, i.Title())
	desc := i.Description()

	if index == m.Index() {
		fmt.Fprint(w, SelectedItemStyle.Render("> "+str))
		fmt.Fprint(w, "\n  "+NormalItemStyle.Render(desc))
	} else {
		fmt.Fprint(w, NormalItemStyle.Render("  "+str))
		fmt.Fprint(w, "\n  "+lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(desc))
	}
}

// HistoryModel lists the analyses completed this session, most recent
// first, and jumps to the chosen one.
type HistoryModel struct {
	list list.Model
}

// NewHistoryModel creates a new HistoryModel.
func NewHistoryModel(insights []*domain.Insight, now time.Time, width, height int) HistoryModel {
	sorted := slices.Clone(insights)
	// Newest first; ties keep tab order.
	slices.SortStableFunc(sorted, func(a, b *domain.Insight) int {
		return b.CompletedAt.Compare(a.CompletedAt)
	})

	items := make([]list.Item, len(sorted))
	for i, insight := range sorted {
		items[i] = historyItem{insight: insight, now: now}
	}

	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 20
	}
	l := list.New(items, historyDelegate{}, width, height)
	l.Title = "Recent Analyses"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = TitleStyle

	return HistoryModel{list: l}
}

// Update handles messages and updates the model state.
func (m HistoryModel) Update(msg tea.Msg) (HistoryModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width - 2)
		m.list.SetHeight(msg.Height - 2)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc":
			return m, func() tea.Msg { return historyClosedMsg{} }
		case "enter":
			if item, ok := m.list.SelectedItem().(historyItem); ok {
				kind := item.insight.Kind
				return m, func() tea.Msg { return historySelectedMsg{kind: kind} }
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the model.
func (m HistoryModel) View() string {
	return m.list.View()
}

// formatTimeAgo renders t relative to now
func formatTimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	duration := now.Sub(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		mins := int(duration.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	default:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}

type (
	historySelectedMsg struct {
		kind domain.InsightKind
	}

	historyClosedMsg struct{}
)
