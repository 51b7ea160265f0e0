// Package locator finds trained weights artifacts below training-output roots.
package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"damagedetect/internal/models"
)

// WeightsDir is the directory inside a run that holds checkpoints.
const WeightsDir = "weights"

// Run is a candidate run directory.
type Run struct {
	Dir     string    `json:"dir"`
	ModTime time.Time `json:"mod_time"`
}

type Locator struct {
	roots       []string
	pattern     string
	weightsFile string
}

// New creates a Locator searching roots in order for run directories matching
// pattern that contain weights/<weightsFile>.
func New(roots []string, pattern, weightsFile string) *Locator {
	return &Locator{
		roots:       roots,
		pattern:     pattern,
		weightsFile: weightsFile,
	}
}

// Locate returns the weights artifact of the most recent run. Roots are tried in
// order; a later root is only consulted when the earlier ones have no usable run.
func (l *Locator) Locate() (models.WeightsArtifact, error) {
	for _, root := range l.roots {
		runs, err := l.runsIn(root)
		if err != nil {
			return models.WeightsArtifact{}, models.NewError(models.ModelUnavailable, err)
		}

		for _, run := range runs {
			path := filepath.Join(run.Dir, WeightsDir, l.weightsFile)
			if !isFile(path) {
				continue
			}
			return models.WeightsArtifact{
				Path:    path,
				RunDir:  run.Dir,
				Exists:  true,
				ModTime: run.ModTime,
			}, nil
		}
	}

	return models.WeightsArtifact{}, models.Errorf(models.ModelUnavailable,
		"no %s found for %q under %v", l.weightsFile, l.pattern, l.roots)
}

// Runs lists candidate run directories of every root, newest first within each root.
func (l *Locator) Runs() ([]Run, error) {
	var all []Run
	for _, root := range l.roots {
		runs, err := l.runsIn(root)
		if err != nil {
			return nil, err
		}
		all = append(all, runs...)
	}
	return all, nil
}

// runsIn globs root for run directories ordered by modification time, newest
// first. Equal times fall back to reverse lexicographic path order.
func (l *Locator) runsIn(root string) ([]Run, error) {
	matches, err := filepath.Glob(filepath.Join(root, l.pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid run pattern %q: %w", l.pattern, err)
	}

	runs := make([]Run, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || !info.IsDir() {
			continue
		}
		runs = append(runs, Run{Dir: match, ModTime: info.ModTime()})
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].ModTime.Equal(runs[j].ModTime) {
			return runs[i].ModTime.After(runs[j].ModTime)
		}
		return runs[i].Dir > runs[j].Dir
	})

	return runs, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// WeightsFile is the checkpoint file name looked up inside each run.
func (l *Locator) WeightsFile() string {
	return l.weightsFile
}
