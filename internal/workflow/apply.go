package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joss/bidsmap/internal/bidspath"
	"github.com/joss/bidsmap/internal/logging"
	"github.com/joss/bidsmap/internal/mapping"
	"github.com/joss/bidsmap/internal/rules"
)

// ToolVersion is stamped into dataset_description.json GeneratedBy.
var ToolVersion = "0.1.0"

// ApplyOptions tune the materialization of a reviewed repository.
type ApplyOptions struct {
	// LinkMode is one of rules.LinkHardlink, LinkSymlink, LinkCopy.
	// Empty means hardlink.
	LinkMode string
}

// ApplyResult summarizes what a run wrote.
type ApplyResult struct {
	Written []string
	Skipped []string
}

// Apply materializes every confirmed record into outputDir. Nothing is
// written while error-severity findings remain on non-excluded
// records. Re-running against the same output replaces prior files, so
// apply is idempotent.
func (o *Orchestrator) Apply(ctx context.Context, repo *mapping.Repository, outputDir string, opts ApplyOptions) (*ApplyResult, error) {
	start := time.Now()
	log := o.log.WithDataset(repo.Dataset.Name)

	if repo.HasBlockingErrors() {
		return nil, fmt.Errorf("%w: %d error findings", ErrUnresolvedFindings, len(repo.BlockingErrors()))
	}
	if !mapping.CanTransition(repo.State, mapping.StateApplied) {
		return nil, fmt.Errorf("apply: cannot apply a %s repository", repo.State)
	}
	mode := opts.LinkMode
	if mode == "" {
		mode = rules.LinkHardlink
	}
	switch mode {
	case rules.LinkHardlink, rules.LinkSymlink, rules.LinkCopy:
	default:
		return nil, fmt.Errorf("apply: unknown link mode %q", mode)
	}

	layouts, skipped, err := o.planLayouts(repo)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{Skipped: skipped}
	for _, p := range layouts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		written, err := o.writeRecord(repo.SourceDir, outputDir, p, mode)
		if err != nil {
			logging.PhaseEvent("apply", repo.Dataset.Name, time.Since(start), err)
			return nil, err
		}
		result.Written = append(result.Written, written...)
		log.SeriesEvent("series_applied", p.record.Series.ID, map[string]interface{}{
			"path":  p.layout.Path(p.record.Series.ImagePath),
			"files": len(written),
		})
	}

	if err := writeDatasetFiles(outputDir, repo, layouts); err != nil {
		return nil, err
	}
	if err := repo.Transition(mapping.StateApplied); err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}
	logging.PhaseEvent("apply", repo.Dataset.Name, time.Since(start), nil)
	return result, nil
}

type plannedRecord struct {
	record *mapping.Record
	layout *bidspath.Layout
}

// planLayouts synthesizes output paths for every applicable record and
// resolves filename collisions by assigning run indices before
// re-synthesis. Assignments are cloned so planning never edits the
// document.
func (o *Orchestrator) planLayouts(repo *mapping.Repository) ([]plannedRecord, []string, error) {
	synth := bidspath.NewSynthesizer(o.schema)

	var applicable []*mapping.Record
	var skipped []string
	for _, rec := range repo.Records {
		if rec.Status == mapping.StatusAssigned && rec.Confirmed {
			applicable = append(applicable, rec)
			continue
		}
		skipped = append(skipped, rec.Series.ID)
	}

	planned := make([]plannedRecord, 0, len(applicable))
	byName := make(map[string][]int)
	for _, rec := range applicable {
		layout, err := synth.Synthesize(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("apply: %w", err)
		}
		key := layout.Dir + "/" + layout.Base
		byName[key] = append(byName[key], len(planned))
		planned = append(planned, plannedRecord{record: rec, layout: layout})
	}

	for _, idxs := range byName {
		if len(idxs) < 2 {
			continue
		}
		for n, i := range idxs {
			rec := planned[i].record
			bumped := *rec
			bumped.Assignment = rec.Assignment.Clone()
			if bumped.Assignment.Entities == nil {
				bumped.Assignment.Entities = make(map[string]string, 1)
			}
			bumped.Assignment.Entities["run"] = fmt.Sprintf("%02d", n+1)
			layout, err := synth.Synthesize(&bumped)
			if err != nil {
				return nil, nil, fmt.Errorf("apply: %w", err)
			}
			planned[i].layout = layout
		}
	}
	return planned, skipped, nil
}

func (o *Orchestrator) writeRecord(sourceDir, outputDir string, p plannedRecord, mode string) ([]string, error) {
	rec := p.record
	destDir := filepath.Join(outputDir, filepath.FromSlash(p.layout.Dir))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}

	var written []string
	for _, rel := range rec.Series.Files {
		dest := filepath.Join(destDir, p.layout.FileName(rel))
		if bidspath.Extension(rel) == ".json" {
			if err := writeSidecar(dest, rec.Series.Sidecar); err != nil {
				return nil, err
			}
			written = append(written, dest)
			continue
		}
		src := filepath.Join(sourceDir, filepath.FromSlash(rel))
		if err := placeFile(src, dest, mode); err != nil {
			return nil, fmt.Errorf("apply series %s: %w", rec.Series.ID, err)
		}
		written = append(written, dest)
	}

	// A record without a sidecar on disk still gets one when extraction
	// recovered acquisition parameters.
	if rec.Series.SidecarPath == "" && len(rec.Series.Sidecar) > 0 {
		dest := filepath.Join(destDir, p.layout.Base+".json")
		if err := writeSidecar(dest, rec.Series.Sidecar); err != nil {
			return nil, err
		}
		written = append(written, dest)
	}
	return written, nil
}

// placeFile replaces dest with src using the configured link mode.
// Hardlinks fall back to a copy when the filesystem refuses the link.
func placeFile(src, dest, mode string) error {
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return err
	}
	switch mode {
	case rules.LinkSymlink:
		abs, err := filepath.Abs(src)
		if err != nil {
			return err
		}
		return os.Symlink(abs, dest)
	case rules.LinkCopy:
		return copyFile(src, dest)
	default:
		if err := os.Link(src, dest); err != nil {
			return copyFile(src, dest)
		}
		return nil
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeSidecar(dest string, sidecar map[string]interface{}) error {
	if sidecar == nil {
		sidecar = map[string]interface{}{}
	}
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	return os.WriteFile(dest, append(data, '\n'), 0o644)
}

func writeDatasetFiles(outputDir string, repo *mapping.Repository, planned []plannedRecord) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	desc := map[string]interface{}{
		"Name":        repo.Dataset.Name,
		"BIDSVersion": repo.Dataset.BIDSVersion,
		"GeneratedBy": []map[string]string{
			{"Name": "bidsmap", "Version": ToolVersion},
		},
	}
	if len(repo.Dataset.Authors) > 0 {
		desc["Authors"] = repo.Dataset.Authors
	}
	if repo.Dataset.License != "" {
		desc["License"] = repo.Dataset.License
	}
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "dataset_description.json"), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	readme := repo.Dataset.Readme
	if readme == "" {
		readme = "# " + repo.Dataset.Name + "\n\nGenerated by bidsmap.\n"
	}
	if err := os.WriteFile(filepath.Join(outputDir, "README"), []byte(readme), 0o644); err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	ignore := "code/\nextra_data/\nsourcedata/\n"
	if err := os.WriteFile(filepath.Join(outputDir, ".bidsignore"), []byte(ignore), 0o644); err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	return writeParticipants(outputDir, planned)
}

func writeParticipants(outputDir string, planned []plannedRecord) error {
	seen := make(map[string]bool)
	var subjects []string
	for _, p := range planned {
		// The layout's first path element is sub-<label>.
		sub, _, _ := strings.Cut(p.layout.Dir, "/")
		if sub == "" || seen[sub] {
			continue
		}
		seen[sub] = true
		subjects = append(subjects, sub)
	}
	sort.Strings(subjects)

	var b strings.Builder
	b.WriteString("participant_id\n")
	for _, s := range subjects {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(filepath.Join(outputDir, "participants.tsv"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	sidecar := map[string]interface{}{
		"participant_id": map[string]string{
			"Description": "Unique participant identifier",
		},
	}
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "participants.json"), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	return nil
}
