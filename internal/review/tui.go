package review

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/joss/bidsmap/internal/mapping"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(2)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	confirmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	excludedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Strikethrough(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)
)

// View represents the current view mode
type View int

const (
	ViewList View = iota
	ViewDetail
	ViewEdit
	ViewHelp
)

type errMsg error

// Model is the review TUI model
type Model struct {
	session *Session

	view        View
	selectedIdx int
	err         error
	saved       bool
	quitting    bool

	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
	ready    bool
}

// NewModel builds the model over an open session.
func NewModel(session *Session) Model {
	ti := textinput.New()
	ti.Placeholder = "datatype/suffix key=value ..."
	ti.CharLimit = 200
	ti.Width = 70

	return Model{
		session: session,
		view:    ViewList,
		input:   ti,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) current() *mapping.Record {
	records := m.session.Records()
	if len(records) == 0 || m.selectedIdx >= len(records) {
		return nil
	}
	return records[m.selectedIdx]
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.view == ViewEdit {
			return m.updateEdit(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			if m.view != ViewList {
				m.view = ViewList
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		case "?":
			if m.view == ViewHelp {
				m.view = ViewList
			} else {
				m.view = ViewHelp
			}
			return m, nil
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "down", "j":
			if m.selectedIdx < len(m.session.Records())-1 {
				m.selectedIdx++
			}
		case "enter":
			if m.view == ViewList && m.current() != nil {
				m.view = ViewDetail
				m.viewport.SetContent(m.detailContent())
			}
		case "esc":
			m.view = ViewList
		case "c":
			if rec := m.current(); rec != nil {
				if err := m.session.Confirm(rec.Series.ID); err != nil {
					m.err = err
				}
			}
		case "x":
			if rec := m.current(); rec != nil {
				if err := m.session.ToggleExclude(rec.Series.ID); err != nil {
					m.err = err
				}
				if m.view == ViewDetail {
					m.viewport.SetContent(m.detailContent())
				}
			}
		case "e":
			if rec := m.current(); rec != nil {
				m.view = ViewEdit
				m.input.SetValue(FormatAssignment(rec.Assignment))
				m.input.Focus()
				return m, textinput.Blink
			}
		case "s":
			if err := m.session.Save(); err != nil {
				m.err = err
			} else {
				m.saved = true
				m.err = nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		headerHeight := 5
		footerHeight := 3
		m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight)

	case errMsg:
		m.err = msg
	}

	if m.view == ViewDetail {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.view = ViewList
		m.input.Blur()
		return m, nil
	case "enter":
		rec := m.current()
		if rec != nil {
			if err := m.session.SetAssignment(rec.Series.ID, m.input.Value()); err != nil {
				m.err = err
				return m, nil
			}
			m.err = nil
		}
		m.view = ViewList
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	switch m.view {
	case ViewDetail:
		return m.viewDetail()
	case ViewEdit:
		return m.viewEdit()
	case ViewHelp:
		return m.viewHelp()
	default:
		return m.viewList()
	}
}

func (m Model) viewList() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("bidsmap review") + "\n\n")
	b.WriteString(m.statusLine() + "\n\n")

	for i, rec := range m.session.Records() {
		cursor := "  "
		if i == m.selectedIdx {
			cursor = "> "
		}
		b.WriteString(cursor + m.recordLine(rec) + "\n")
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  "+m.err.Error()) + "\n")
	} else if m.saved && !m.session.Dirty() {
		b.WriteString("\n" + confirmedStyle.Render("  saved") + "\n")
	}

	b.WriteString(helpStyle.Render("  enter: detail │ c: confirm │ x: exclude │ e: edit │ s: save │ ?: help │ q: quit"))
	return b.String()
}

func (m Model) recordLine(rec *mapping.Record) string {
	marker := "·"
	style := infoStyle
	switch {
	case rec.Status == mapping.StatusExcluded:
		marker = "✗"
		style = excludedStyle
	case rec.HasErrors():
		marker = "!"
		style = errorStyle
	case rec.Status == mapping.StatusUnmatched:
		marker = "?"
		style = warnStyle
	case rec.Confirmed:
		marker = "✓"
		style = confirmedStyle
	}

	target := "(unmapped)"
	if rec.Assignment != nil {
		target = FormatAssignment(rec.Assignment)
	}
	line := fmt.Sprintf("%s %-10s %-32s %s",
		marker, rec.Series.ID, truncate(rec.Series.SeriesDescription, 32), target)
	return style.Render(line)
}

func (m Model) viewDetail() string {
	var b strings.Builder
	rec := m.current()
	if rec == nil {
		return "no record selected"
	}
	b.WriteString(titleStyle.Render("series "+rec.Series.ID) + "\n\n")
	b.WriteString(m.viewport.View() + "\n")
	b.WriteString(helpStyle.Render("  c: confirm │ x: exclude │ e: edit │ esc: back"))
	return b.String()
}

func (m Model) detailContent() string {
	rec := m.current()
	if rec == nil {
		return ""
	}
	var b strings.Builder
	d := rec.Series

	fmt.Fprintf(&b, "  description  %s\n", d.SeriesDescription)
	fmt.Fprintf(&b, "  protocol     %s\n", d.ProtocolName)
	fmt.Fprintf(&b, "  subject      %s  session %s\n", orNA(d.Subject), orNA(d.Session))
	fmt.Fprintf(&b, "  dims         %dD, %d volumes\n", d.NDim, d.NumVolumes)
	fmt.Fprintf(&b, "  TR/TE        %g s / %g s\n", d.RepetitionTime, d.EchoTime)
	fmt.Fprintf(&b, "  direction    %s\n", orNA(d.Direction))
	fmt.Fprintf(&b, "  files        %s\n", strings.Join(d.Files, ", "))
	fmt.Fprintf(&b, "\n  status       %s", rec.Status)
	if rec.RuleName != "" {
		fmt.Fprintf(&b, " (rule %s)", rec.RuleName)
	}
	b.WriteString("\n")
	if rec.Assignment != nil {
		fmt.Fprintf(&b, "  mapping      %s\n", FormatAssignment(rec.Assignment))
	}
	fmt.Fprintf(&b, "  target       %s\n", m.session.PreviewPath(rec))

	if len(rec.Findings) > 0 {
		b.WriteString("\n")
		for _, f := range rec.Findings {
			style := warnStyle
			if f.Severity == mapping.SeverityError {
				style = errorStyle
			}
			b.WriteString("  " + style.Render(fmt.Sprintf("[%s] %s: %s", f.Severity, f.Code, f.Message)) + "\n")
		}
	}
	return b.String()
}

func (m Model) viewEdit() string {
	var b strings.Builder
	rec := m.current()
	if rec == nil {
		return "no record selected"
	}
	b.WriteString(titleStyle.Render("edit "+rec.Series.ID) + "\n\n")
	b.WriteString("  " + m.input.View() + "\n")
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  "+m.err.Error()) + "\n")
	}
	b.WriteString(helpStyle.Render("  enter: apply │ esc: cancel"))
	return b.String()
}

func (m Model) viewHelp() string {
	help := `
  bidsmap review - Help

  NAVIGATION
    j/k       Move selection
    enter     Open series detail
    esc       Back to list
    ?         Toggle help
    q         Quit

  REVIEW
    c         Confirm the selected mapping
    x         Exclude or restore the selected series
    e         Edit the mapping (datatype/suffix key=value ...)
    s         Save the document
`
	return titleStyle.Render("Help") + "\n" + infoStyle.Render(help) + helpStyle.Render("\n  press esc to return")
}

func (m Model) statusLine() string {
	c := m.session.Summary()
	dirty := ""
	if m.session.Dirty() {
		dirty = " │ unsaved edits"
	}
	status := fmt.Sprintf("%d series │ %d confirmed │ %d excluded │ %d unmatched │ %d with errors%s",
		c.Total, c.Confirmed, c.Excluded, c.Unmatched, c.Errors, dirty)
	return statusBarStyle.Render(status)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

// Run starts the interactive review over a session. Without a terminal
// it prints a read-only summary instead.
func Run(session *Session) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print(PlainSummary(session))
		return nil
	}
	p := tea.NewProgram(NewModel(session), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// PlainSummary renders the record list for non-interactive use.
func PlainSummary(session *Session) string {
	var b strings.Builder
	c := session.Summary()
	fmt.Fprintf(&b, "%d series, %d confirmed, %d excluded, %d unmatched, %d with errors\n",
		c.Total, c.Confirmed, c.Excluded, c.Unmatched, c.Errors)
	for _, rec := range session.Records() {
		target := "(unmapped)"
		if rec.Assignment != nil {
			target = FormatAssignment(rec.Assignment)
		}
		if rec.Status == mapping.StatusExcluded {
			target = "(excluded)"
		}
		fmt.Fprintf(&b, "%-10s %-32s %s -> %s\n",
			rec.Series.ID, truncate(rec.Series.SeriesDescription, 32), rec.Status, target)
		for _, f := range rec.Findings {
			fmt.Fprintf(&b, "    [%s] %s: %s\n", f.Severity, f.Code, f.Message)
		}
	}
	return b.String()
}
