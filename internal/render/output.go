package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/bidsmap/internal/bidspath"
	"github.com/joss/bidsmap/internal/mapping"
	"github.com/joss/bidsmap/internal/runs"
)

// Renderer handles terminal output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer. Pretty mode adds color and rules.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Summary formats a mapping document overview.
func (r *Renderer) Summary(repo *mapping.Repository) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("%s (%s)\n", repo.Dataset.Name, repo.State))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	} else {
		fmt.Fprintf(&sb, "%s state=%s\n", repo.Dataset.Name, repo.State)
	}

	for _, rec := range repo.Records {
		r.formatRecord(&sb, rec)
	}

	errs := len(repo.BlockingErrors())
	warns := len(repo.Warnings())
	if r.pretty {
		sb.WriteString(strings.Repeat("─", 60) + "\n")
		if errs > 0 {
			sb.WriteString(color.RedString("%d errors", errs))
		} else {
			sb.WriteString(color.GreenString("0 errors"))
		}
		fmt.Fprintf(&sb, ", %d warnings, %d series\n", warns, len(repo.Records))
	} else {
		fmt.Fprintf(&sb, "errors=%d warnings=%d series=%d\n", errs, warns, len(repo.Records))
	}

	return sb.String()
}

func (r *Renderer) formatRecord(sb *strings.Builder, rec *mapping.Record) {
	icon := StatusIcon(rec.Status, rec.Confirmed)
	if r.pretty {
		switch {
		case rec.HasErrors():
			icon = color.RedString("✗")
		case rec.Status == mapping.StatusUnmatched:
			icon = color.YellowString("?")
		case rec.Confirmed:
			icon = color.GreenString("✓")
		}
	}

	target := "(unmapped)"
	if rec.Assignment != nil {
		target = rec.Assignment.Datatype + "/" + rec.Assignment.Suffix
	}
	if rec.Status == mapping.StatusExcluded {
		target = "(excluded)"
	}

	fmt.Fprintf(sb, "%s %-10s %-36s %s\n",
		icon, rec.Series.ID, Truncate(rec.Series.SeriesDescription, 36), target)

	for _, f := range rec.Findings {
		msg := fmt.Sprintf("    %s %s: %s", SeverityIcon(f.Severity), f.Code, f.Message)
		if r.pretty && f.Severity == mapping.SeverityError {
			msg = color.RedString(msg)
		}
		sb.WriteString(msg + "\n")
	}
}

// Problems formats dataset check results.
func (r *Renderer) Problems(problems []bidspath.Problem, root string) string {
	if len(problems) == 0 {
		if r.pretty {
			return color.GreenString("✓ %s passes all checks\n", root)
		}
		return fmt.Sprintf("%s: ok\n", root)
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Checked %s\n", root))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	errs := 0
	for _, p := range problems {
		if p.Severity == mapping.SeverityError {
			errs++
		}
		line := fmt.Sprintf("%s %s", SeverityIcon(p.Severity), p.Message)
		if p.Path != "" {
			line += " (" + p.Path + ")"
		}
		if r.pretty && p.Severity == mapping.SeverityError {
			line = color.RedString(line)
		}
		sb.WriteString(line + "\n")
	}

	fmt.Fprintf(&sb, "%d problems, %d errors\n", len(problems), errs)
	return sb.String()
}

// Runs formats run history rows.
func (r *Renderer) Runs(history []*runs.Run) string {
	if len(history) == 0 {
		return "No runs recorded\n"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Run history\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, run := range history {
		status := "✓"
		if run.Outcome != "ok" {
			status = "✗"
			if r.pretty {
				status = color.RedString("✗")
			}
		} else if r.pretty {
			status = color.GreenString("✓")
		}

		fmt.Fprintf(&sb, "%s %s %-8s %-16s %3d series %s\n",
			status,
			run.CreatedAt.Format("Jan 02 15:04"),
			run.Phase,
			Truncate(run.Dataset, 16),
			run.Series,
			FormatDuration(time.Duration(run.DurationMS)*time.Millisecond),
		)
		if run.Outcome != "ok" {
			fmt.Fprintf(&sb, "    %s\n", Truncate(run.Outcome, 70))
		}
	}
	return sb.String()
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
