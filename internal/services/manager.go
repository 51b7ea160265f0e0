package services

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"damagedetect/internal/locator"
	"damagedetect/internal/logger"
	"damagedetect/internal/metrics"
	"damagedetect/internal/models"
	"damagedetect/internal/repository"
	"damagedetect/internal/services/storage"
	"damagedetect/internal/services/websocket"

	"github.com/google/uuid"
)

// Outcome is one served inference, ready for display.
type Outcome struct {
	ID        string
	Filename  string
	Format    string
	Result    *models.DetectionResult
	Original  []byte
	Annotated []byte // JPEG
	Elapsed   time.Duration
}

// LiveEvent is what live viewers receive after every inference.
type LiveEvent struct {
	ID         string             `json:"id"`
	Filename   string             `json:"filename"`
	Detections []models.Detection `json:"detections"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Status describes the serving state established at startup.
type Status struct {
	Ready     bool                   `json:"ready"`
	Artifact  models.WeightsArtifact `json:"artifact"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Names     []string               `json:"names,omitempty"`
	Runs      []locator.Run          `json:"runs"`
}

// Manager owns the serving session: the model is located and loaded once in
// Start and every request afterwards goes through the same orchestrator.
type Manager struct {
	locator  *locator.Locator
	loader   ModelLoader
	logger   *logger.Logger
	metrics  *metrics.Metrics
	history  repository.InferenceRepository
	store    *storage.ImageStore
	hub      *websocket.HubService
	now      func() time.Time
	newID    func() string
	artifact models.WeightsArtifact

	orchestrator *Orchestrator
	startErr     error
	startOnce    sync.Once
}

// ManagerOption customizes optional collaborators.
type ManagerOption func(*Manager)

// WithHistory records every inference in repo and keeps annotated images in store.
func WithHistory(repo repository.InferenceRepository, store *storage.ImageStore) ManagerOption {
	return func(m *Manager) {
		m.history = repo
		m.store = store
	}
}

// WithHub publishes inference summaries to live viewers.
func WithHub(hub *websocket.HubService) ManagerOption {
	return func(m *Manager) {
		m.hub = hub
	}
}

// WithClock overrides time and id generation, for tests.
func WithClock(now func() time.Time, newID func() string) ManagerOption {
	return func(m *Manager) {
		m.now = now
		m.newID = newID
	}
}

func NewManager(loc *locator.Locator, loader ModelLoader, logger *logger.Logger, metrics *metrics.Metrics, opts ...ManagerOption) *Manager {
	m := &Manager{
		locator: loc,
		loader:  loader,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start locates and loads the model. It runs once; later calls return the
// first result. The error is either ModelUnavailable or ModelLoadFailure.
func (m *Manager) Start() error {
	m.startOnce.Do(func() {
		m.startErr = m.start()
		if m.metrics != nil {
			if m.startErr == nil {
				m.metrics.ModelLoaded.Set(1)
			} else {
				m.metrics.ModelLoaded.Set(0)
			}
		}
	})
	return m.startErr
}

func (m *Manager) start() error {
	artifact, err := m.locator.Locate()
	if err != nil {
		m.logger.Warning("No trained model available: %v", err)
		return err
	}
	m.artifact = artifact

	model, err := m.loader(artifact.Path)
	if err != nil {
		if models.KindOf(err) != models.ModelLoadFailure {
			err = models.NewError(models.ModelLoadFailure, err)
		}
		m.logger.Error("Failed to load model %s: %v", artifact.Path, err)
		return err
	}

	m.orchestrator = NewOrchestrator(model, m.logger, m.metrics)
	m.logger.Info("Successfully loaded model: %s", artifact.Path)
	return nil
}

// Ready returns nil when the model is serving, otherwise the startup error.
func (m *Manager) Ready() error {
	return m.Start()
}

// Status reports the startup outcome and the known training runs.
func (m *Manager) Status() Status {
	err := m.Start()

	status := Status{Ready: err == nil, Artifact: m.artifact, Runs: []locator.Run{}}
	if err != nil {
		status.ErrorKind = models.KindOf(err).String()
		status.Error = models.Cause(err)
	} else {
		status.Names = m.orchestrator.Names()
	}

	if runs, runsErr := m.locator.Runs(); runsErr == nil && runs != nil {
		status.Runs = runs
	}
	return status
}

// Artifact returns the located weights artifact.
func (m *Manager) Artifact() models.WeightsArtifact {
	return m.artifact
}

// Detect decodes data and runs inference. Failures are ProcessingFailure
// unless the model itself is not serving.
func (m *Manager) Detect(data []byte, filename string) (*Outcome, error) {
	if err := m.Ready(); err != nil {
		return nil, err
	}

	start := m.now()

	img, format, err := DecodeImage(data)
	if err != nil {
		m.logger.Warning("Rejected upload %q: %v", filename, err)
		if m.metrics != nil {
			m.metrics.Inferences.WithLabelValues(metrics.OutcomeFailure).Inc()
		}
		return nil, err
	}

	result, err := m.orchestrator.Infer(img)
	if err != nil {
		m.logger.Error("Processing %q failed: %v", filename, err)
		return nil, err
	}

	annotated, err := EncodeJPEG(result.Annotated)
	if err != nil {
		m.logger.Error("Encoding result for %q failed: %v", filename, err)
		return nil, models.NewError(models.ProcessingFailure, err)
	}

	outcome := &Outcome{
		ID:        m.newID(),
		Filename:  filepath.Base(filename),
		Format:    format,
		Result:    result,
		Original:  data,
		Annotated: annotated,
		Elapsed:   m.now().Sub(start),
	}

	m.record(outcome)
	m.publish(outcome)
	return outcome, nil
}

// record stores the outcome when history is enabled. Failures only log.
func (m *Manager) record(outcome *Outcome) {
	if m.history == nil {
		return
	}

	if m.store != nil {
		if _, err := m.store.Save(ImageName(outcome.ID), outcome.Annotated); err != nil {
			m.logger.Warning("Could not store annotated image %s: %v", outcome.ID, err)
		}
	}

	inference := &models.Inference{
		ID:             outcome.ID,
		Filename:       outcome.Filename,
		ModelPath:      m.artifact.Path,
		DetectionCount: len(outcome.Result.Detections),
		CreatedAt:      m.now(),
		Detections:     outcome.Result.Detections,
	}
	if err := m.history.Insert(inference); err != nil {
		m.logger.Warning("Could not record inference %s: %v", outcome.ID, err)
	}
}

func (m *Manager) publish(outcome *Outcome) {
	if m.hub == nil {
		return
	}

	msg, err := json.Marshal(LiveEvent{
		ID:         outcome.ID,
		Filename:   outcome.Filename,
		Detections: outcome.Result.Detections,
		CreatedAt:  m.now(),
	})
	if err != nil {
		m.logger.Error("Could not encode live event: %v", err)
		return
	}
	m.hub.Broadcast(msg)
}

// History returns the inference repository, or nil when history is disabled.
func (m *Manager) History() repository.InferenceRepository {
	return m.history
}

// Store returns the annotated image store, or nil when history is disabled.
func (m *Manager) Store() *storage.ImageStore {
	return m.store
}

// Hub returns the live feed hub, or nil when it is not wired.
func (m *Manager) Hub() *websocket.HubService {
	return m.hub
}

// DeleteInference removes a history record and its stored image.
func (m *Manager) DeleteInference(id string) error {
	if m.history == nil {
		return errors.New("history is disabled")
	}
	if err := m.history.Delete(id); err != nil {
		return err
	}
	if m.store != nil {
		return m.store.Delete(ImageName(id))
	}
	return nil
}

// Close releases the loaded model.
func (m *Manager) Close() {
	if m.orchestrator != nil {
		m.orchestrator.Close()
	}
}

// ImageName is the stored file name of an inference's annotated image.
func ImageName(id string) string {
	return id + ".jpg"
}
