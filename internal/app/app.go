package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"damagedetect/internal/config"
	"damagedetect/internal/dataset"
	"damagedetect/internal/locator"
	"damagedetect/internal/logger"
	"damagedetect/internal/metrics"
	"damagedetect/internal/repository/sqlite"
	"damagedetect/internal/routes"
	"damagedetect/internal/services"
	"damagedetect/internal/services/ai"
	"damagedetect/internal/services/storage"
	"damagedetect/internal/services/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	metrics    *metrics.Metrics
	db         *sqlite.DB
	hubService *websocket.HubService
	manager    *services.Manager
}

func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.NewLogger(cfg.LogDirectory)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	hub := websocket.NewHubService(l)
	loc := locator.New(cfg.SearchRoots, cfg.RunPattern, cfg.WeightsFile)

	opts := []services.ManagerOption{services.WithHub(hub)}

	var db *sqlite.DB
	if cfg.HistoryEnabled() {
		db, err = sqlite.New(cfg.HistoryDatabase)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		store := storage.NewImageStore(cfg.ImageDirectory)
		opts = append(opts, services.WithHistory(sqlite.NewInferenceRepository(db), store))
	}

	mng := services.NewManager(loc, DetectorLoader(cfg, l), l, m, opts...)

	return &App{
		config:     cfg,
		logger:     l,
		metrics:    m,
		db:         db,
		hubService: hub,
		manager:    mng,
	}, nil
}

// DetectorLoader builds OpenCV detectors using the class names from the dataset
// descriptor. Without a readable descriptor classes are reported by id.
func DetectorLoader(cfg *config.Config, l *logger.Logger) services.ModelLoader {
	return func(path string) (services.Model, error) {
		var names dataset.ClassNames
		descriptor, err := dataset.Load(cfg.DatasetDescriptor)
		if err != nil {
			l.Warning("Class names unavailable, falling back to class ids: %v", err)
		} else {
			names = descriptor.Names
		}

		detector, err := ai.NewDetectorService(path, names, ai.Options{
			InputSize:           cfg.InputSize,
			ConfidenceThreshold: float32(cfg.ConfidenceThreshold),
			IoUThreshold:        float32(cfg.IoUThreshold),
		}, l)
		if err != nil {
			return nil, err
		}
		return detector, nil
	}
}

func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.close()

	go a.hubService.Run(ctx)

	// A missing or broken model is reported on the page; the server still starts.
	if err := a.manager.Start(); err != nil {
		a.logger.Warning("Serving without a model: %v", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           routes.SetupRoutes(a.manager, a.config, a.logger, a.metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚗 Car Damage Detection\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🤖 Model: %s\n", a.manager.Artifact().Path)
	if a.config.HistoryEnabled() {
		fmt.Printf("📁 History: %s (images in %s)\n", a.config.HistoryDatabase, a.config.ImageDirectory)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (a *App) close() {
	a.manager.Close()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close history database: %v", err)
		}
	}
	a.logger.Close()
}
