package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"damagedetect/internal/config"
	"damagedetect/internal/logger"
	"damagedetect/internal/training"
)

const trainerBinary = "yolo"

func main() {
	os.Exit(run(config.DefaultTraining(), config.Default().LogDirectory))
}

// run returns the process exit code so deferred cleanup always happens.
func run(cfg config.TrainingConfig, logDir string) int {
	l, err := logger.NewLogger(logDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer l.Close()

	binary, err := exec.LookPath(trainerBinary)
	if err != nil {
		l.Error("Trainer %q not found in PATH: %v", trainerBinary, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver := training.NewDriver(cfg, training.ExecCommandRunner{}, binary, os.Stdout, l)
	if _, err := driver.Run(ctx); err != nil {
		l.Error("Training aborted: %v", err)
		return 1
	}
	return 0
}
