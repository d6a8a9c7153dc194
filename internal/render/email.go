package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/mattn/go-runewidth"
)

// EmailRenderer formats engine state as fixed-width text lines
type EmailRenderer struct {
	now func() time.Time
}

// NewEmailRenderer creates a renderer using the wall clock
func NewEmailRenderer() *EmailRenderer {
	return &EmailRenderer{now: time.Now}
}

// FormatSummaryLine formats a list row: markers | sender | subject | date
func (er *EmailRenderer) FormatSummaryLine(m mailapi.MessageSummary, maxWidth int, selected bool) string {
	senderName := er.extractSenderName(m.Sender)
	if senderName == "" {
		senderName = "(No sender)"
	}
	subject := m.Subject
	if subject == "" {
		subject = "(No subject)"
	}
	date := er.formatRelativeTime(m.ReceivedAt)

	// Keep a minimum width for usability
	if maxWidth < 40 {
		maxWidth = 40
	}
	senderWidth := 22
	dateWidth := 8
	markers := er.markers(m, selected)
	// markers + separators (" | " twice)
	subjectWidth := maxWidth - runewidth.StringWidth(markers) - senderWidth - dateWidth - 6
	if subjectWidth < 10 {
		subjectWidth = 10
	}

	return fmt.Sprintf("%s%s | %s | %s",
		markers,
		er.fitWidth(senderName, senderWidth),
		er.fitWidth(subject, subjectWidth),
		er.fitWidth(date, dateWidth))
}

// FormatFolderLine formats a folder registry entry
func (er *EmailRenderer) FormatFolderLine(f mailapi.Folder, selected bool) string {
	cursor := " "
	if selected {
		cursor = ">"
	}
	name := f.DisplayName
	if name == "" {
		name = toTitleCase(string(f.Role))
	}
	if f.UnreadCount > 0 {
		return fmt.Sprintf("%s %s (%d)", cursor, name, f.UnreadCount)
	}
	return fmt.Sprintf("%s %s", cursor, name)
}

func (er *EmailRenderer) markers(m mailapi.MessageSummary, selected bool) string {
	var b strings.Builder
	if selected {
		b.WriteByte('>')
	} else {
		b.WriteByte(' ')
	}
	if !m.IsRead {
		b.WriteByte('*')
	} else {
		b.WriteByte(' ')
	}
	if m.IsStarred {
		b.WriteString("★")
	} else {
		b.WriteByte(' ')
	}
	if m.HasAttachments {
		b.WriteByte('@')
	} else {
		b.WriteByte(' ')
	}
	b.WriteByte(' ')
	return b.String()
}

func (er *EmailRenderer) extractSenderName(from string) string {
	if from == "" {
		return ""
	}

	// Handle "Name <email@domain.com>" format
	if i := strings.Index(from, "<"); i > 0 && strings.Contains(from, ">") {
		name := strings.Trim(strings.TrimSpace(from[:i]), `"`)
		if name != "" {
			return name
		}
	}

	return strings.Trim(from, "<> ")
}

// fitWidth truncates and pads on the right to fit a fixed width
func (er *EmailRenderer) fitWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = runewidth.Truncate(s, width, "...")
	pad := width - runewidth.StringWidth(s)
	if pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

func (er *EmailRenderer) formatRelativeTime(date time.Time) string {
	if date.IsZero() {
		return ""
	}
	diff := er.now().Sub(date)

	switch {
	case diff < time.Minute:
		return "now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(diff.Hours()/24))
	default:
		return date.Format("Jan 2")
	}
}

func toTitleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
