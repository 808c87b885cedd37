package report

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/TAPPaaS/TAPPaaS/internal/reconcile"
)

// Palette
var (
	ColorAccent = lipgloss.Color("#A8D8EA")
	ColorMuted  = lipgloss.Color("#6c757d")
	ColorGood   = lipgloss.Color("#4ECDC4")
	ColorWarn   = lipgloss.Color("#FFE66D")
	ColorAlert  = lipgloss.Color("#FF6B6B")
)

// styles are bound to one renderer so color output follows the writer,
// not the process's stdout.
type styles struct {
	title    lipgloss.Style
	subtitle lipgloss.Style
	header   lipgloss.Style
	cell     lipgloss.Style
	good     lipgloss.Style
	warn     lipgloss.Style
	bad      lipgloss.Style
	muted    lipgloss.Style
	border   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:    r.NewStyle().Foreground(ColorAccent).Bold(true),
		subtitle: r.NewStyle().Foreground(ColorMuted).Italic(true),
		header:   r.NewStyle().Foreground(ColorMuted).Bold(true).Padding(0, 1),
		cell:     r.NewStyle().Padding(0, 1),
		good:     r.NewStyle().Foreground(ColorGood).Padding(0, 1),
		warn:     r.NewStyle().Foreground(ColorWarn).Padding(0, 1),
		bad:      r.NewStyle().Foreground(ColorAlert).Bold(true).Padding(0, 1),
		muted:    r.NewStyle().Foreground(ColorMuted).Padding(0, 1),
		border:   r.NewStyle().Foreground(ColorMuted),
	}
}

// outcome picks the cell style for an outcome.
func (s styles) outcome(o reconcile.Outcome) lipgloss.Style {
	switch o {
	case reconcile.OutcomeError:
		return s.bad
	case reconcile.OutcomeCreated, reconcile.OutcomeDeleted, reconcile.OutcomeUpdated:
		return s.good
	case reconcile.OutcomeWouldCreate, reconcile.OutcomeWouldDelete, reconcile.OutcomeWouldUpdate:
		return s.warn
	case reconcile.OutcomeSkippedManual, reconcile.OutcomeSkippedUntagged, reconcile.OutcomeIsolated:
		return s.muted
	default:
		return s.cell
	}
}
