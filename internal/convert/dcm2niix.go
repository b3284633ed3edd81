// Package convert shells out to dcm2niix to turn raw DICOM trees into
// NIfTI plus JSON sidecars ahead of extraction.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"

	"github.com/joss/bidsmap/internal/logging"
)

// ErrConverterNotFound means no dcm2niix binary could be located.
var ErrConverterNotFound = errors.New("dcm2niix not found; install it or pass --dcm2niix")

// Runner executes external commands. Inject a mock in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type osRunner struct{}

func (osRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return osexec.CommandContext(ctx, name, args...).CombinedOutput()
}

// extraPaths are checked after PATH. Neuroimaging toolkits often land
// outside the default PATH on shared systems.
var extraPaths = []string{
	"/usr/local/bin",
	"/opt/dcm2niix/bin",
	"/opt/homebrew/bin",
}

// Converter wraps one dcm2niix binary.
type Converter struct {
	Path   string
	Runner Runner

	log *logging.Logger
}

func (c *Converter) logger() *logging.Logger {
	if c.log == nil {
		c.log = logging.New("convert")
	}
	return c.log
}

// Find locates dcm2niix. An explicit path wins; otherwise PATH and the
// usual install locations are searched.
func Find(explicit string) (*Converter, error) {
	c := &Converter{Runner: osRunner{}, log: logging.New("convert")}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrConverterNotFound, explicit)
		}
		c.Path = explicit
		return c, nil
	}
	if path, err := osexec.LookPath("dcm2niix"); err == nil {
		c.Path = path
		return c, nil
	}
	for _, dir := range extraPaths {
		candidate := filepath.Join(dir, "dcm2niix")
		if _, err := os.Stat(candidate); err == nil {
			c.Path = candidate
			return c, nil
		}
	}
	return nil, ErrConverterNotFound
}

// Version reports the converter's version line.
func (c *Converter) Version(ctx context.Context) (string, error) {
	out, _ := c.Runner.Run(ctx, c.Path, "--version")
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "v") {
			return strings.TrimSpace(line), nil
		}
	}
	return "", fmt.Errorf("dcm2niix produced no version output")
}

// Convert runs dcm2niix over sourceDir, writing gzipped NIfTI files
// and sidecars into workDir. The filename pattern keeps series number
// and description so extraction can recover them.
func (c *Converter) Convert(ctx context.Context, sourceDir, workDir string) error {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	args := []string{
		"-z", "y",
		"-b", "y",
		"-ba", "y",
		"-f", "%3s_%d",
		"-o", workDir,
		sourceDir,
	}
	out, err := c.Runner.Run(ctx, c.Path, args...)
	if err != nil {
		c.logger().Error("dcm2niix_failed", map[string]interface{}{
			"output": tail(string(out), 2000),
		}, err)
		return fmt.Errorf("dcm2niix: %w", err)
	}
	c.logger().Info("dcm2niix_done", map[string]interface{}{
		"source": sourceDir,
		"work":   workDir,
	})
	return nil
}

// NeedsConversion reports whether a source tree still requires
// dcm2niix. A tree already holding NIfTI files is used as-is.
func NeedsConversion(sourceDir string) bool {
	found := false
	filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".nii") || strings.HasSuffix(path, ".nii.gz") {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return !found
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
