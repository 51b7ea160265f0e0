// Package training drives the external YOLO trainer through a fine-tuning
// job and exports the best checkpoint for serving.
package training

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"damagedetect/internal/config"
	"damagedetect/internal/dataset"
	"damagedetect/internal/locator"
	"damagedetect/internal/logger"

	"golang.org/x/sync/errgroup"
)

// CheckpointFile is the best checkpoint the trainer writes into a run's weights directory.
const CheckpointFile = "best.pt"

// Driver runs one training job followed by an export of its best checkpoint.
type Driver struct {
	cfg    config.TrainingConfig
	runner CommandRunner
	binary string
	out    io.Writer
	outMu  sync.Mutex
	logger *logger.Logger
}

func NewDriver(cfg config.TrainingConfig, runner CommandRunner, binary string, out io.Writer, logger *logger.Logger) *Driver {
	return &Driver{
		cfg:    cfg,
		runner: runner,
		binary: binary,
		out:    out,
		logger: logger,
	}
}

// Result describes the artifacts of a finished job.
type Result struct {
	RunDir     string
	Checkpoint string
	Exported   string
}

// Run trains, locates the new checkpoint and exports it. Any failure aborts the job.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	descriptor, err := dataset.Load(d.cfg.DatasetDescriptor)
	if err != nil {
		return nil, fmt.Errorf("invalid dataset descriptor: %w", err)
	}
	d.logger.Info("Dataset %s: %d classes (%s)", d.cfg.DatasetDescriptor, len(descriptor.Names), strings.Join(descriptor.Names, ", "))

	d.printf("Starting model training...\n")
	if err := d.exec(ctx, d.TrainArgs()); err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	artifact, err := locator.New([]string{d.cfg.Project}, d.cfg.RunName+"*", CheckpointFile).Locate()
	if err != nil {
		return nil, fmt.Errorf("trainer produced no checkpoint: %w", err)
	}
	d.logger.Info("Best checkpoint: %s", artifact.Path)

	if err := d.exec(ctx, d.ExportArgs(artifact.Path)); err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}

	exported := ExportedPath(artifact.Path, d.cfg.ExportFormat)
	if info, err := os.Stat(exported); err != nil || info.Size() == 0 {
		return nil, fmt.Errorf("export did not produce %s", exported)
	}

	d.printf("\nTraining complete.\n")
	d.printf("Best model weights saved to '%s'\n", artifact.Path)
	d.printf("Exported for serving to '%s'\n", exported)

	return &Result{
		RunDir:     artifact.RunDir,
		Checkpoint: artifact.Path,
		Exported:   exported,
	}, nil
}

// TrainArgs are the trainer arguments for the configured job.
func (d *Driver) TrainArgs() []string {
	return []string{
		"detect", "train",
		"model=" + d.cfg.BaseModel,
		"data=" + d.cfg.DatasetDescriptor,
		"epochs=" + strconv.Itoa(d.cfg.Epochs),
		"imgsz=" + strconv.Itoa(d.cfg.ImageSize),
		"batch=" + strconv.Itoa(d.cfg.BatchSize),
		"name=" + d.cfg.RunName,
		"project=" + d.cfg.Project,
	}
}

// ExportArgs are the exporter arguments for checkpoint.
func (d *Driver) ExportArgs(checkpoint string) []string {
	return []string{
		"export",
		"model=" + checkpoint,
		"format=" + d.cfg.ExportFormat,
		"imgsz=" + strconv.Itoa(d.cfg.ImageSize),
	}
}

// ExportedPath is where the exporter writes checkpoint converted to format.
func ExportedPath(checkpoint, format string) string {
	return strings.TrimSuffix(checkpoint, filepath.Ext(checkpoint)) + "." + format
}

// exec runs the trainer binary and streams both output pipes line by line.
func (d *Driver) exec(ctx context.Context, args []string) error {
	d.logger.Info("Running %s %s", d.binary, strings.Join(args, " "))

	stdout, stderr, wait, err := d.runner.Start(ctx, d.binary, args)
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", d.binary, err)
	}

	var g errgroup.Group
	g.Go(func() error { return d.pump(stdout) })
	g.Go(func() error { return d.pump(stderr) })

	streamErr := g.Wait()
	if err := wait(); err != nil {
		return err
	}
	return streamErr
}

// maxOutputLine bounds a single trainer output line held in memory.
const maxOutputLine = 1024 * 1024

func (d *Driver) pump(r io.ReadCloser) error {
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxOutputLine)
	scanner.Split(scanOutputLines)
	for scanner.Scan() {
		d.write(scanner.Bytes())
	}

	err := scanner.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		// Pass the rest through unsplit; the trainer must never see a closed pipe.
		d.printf("\n")
		_, err = io.Copy(writerFunc(func(p []byte) (int, error) {
			d.outMu.Lock()
			defer d.outMu.Unlock()
			return d.out.Write(p)
		}), r)
	}
	return err
}

// scanOutputLines splits on '\n', '\r' and "\r\n", keeping the terminator so
// progress bars redrawn with '\r' still render as such.
func scanOutputLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 == len(data) && !atEOF {
				return 0, nil, nil
			}
			if i+1 < len(data) && data[i+1] == '\n' {
				return i + 2, data[:i+2], nil
			}
		}
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}

func (d *Driver) write(p []byte) {
	d.outMu.Lock()
	defer d.outMu.Unlock()
	d.out.Write(p)
	if n := len(p); n > 0 && p[n-1] != '\n' && p[n-1] != '\r' {
		d.out.Write([]byte("\n"))
	}
}

func (d *Driver) printf(format string, args ...any) {
	d.outMu.Lock()
	defer d.outMu.Unlock()
	fmt.Fprintf(d.out, format, args...)
}
