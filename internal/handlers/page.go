package handlers

import (
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"damagedetect/internal/config"
	"damagedetect/internal/logger"
	"damagedetect/internal/models"
	"damagedetect/internal/services"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// AllowedExtensions are the upload file extensions offered by the upload form.
var AllowedExtensions = []string{".jpg", ".jpeg", ".png"}

type label struct {
	Name       string
	Confidence string
}

type resultView struct {
	Filename  string
	Original  template.URL
	Annotated template.URL
	Labels    []label
}

type pageView struct {
	ModelPath   string
	Halt        string
	HaltInfo    string
	Error       string
	Result      *resultView
	MaxUploadMB int64
	AuthEnabled bool
}

// IndexHandler renders the upload page, or the halt message when no model is serving.
func IndexHandler(manager *services.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := newPageView(manager, cfg)
		status := http.StatusOK
		if view.Halt != "" {
			status = http.StatusServiceUnavailable
		}
		renderPage(w, status, view, logger)
	}
}

// DetectPageHandler runs inference on the uploaded "image" field and renders the results.
func DetectPageHandler(manager *services.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := newPageView(manager, cfg)
		if view.Halt != "" {
			renderPage(w, http.StatusServiceUnavailable, view, logger)
			return
		}

		data, filename, err := readUpload(w, r, cfg.MaxUploadSize)
		if err == nil {
			var outcome *services.Outcome
			outcome, err = manager.Detect(data, filename)
			if err == nil {
				view.Result = newResultView(outcome)
			}
		}
		if err != nil {
			view.Error = models.Cause(err)
			renderPage(w, statusFor(err), view, logger)
			return
		}

		renderPage(w, http.StatusOK, view, logger)
	}
}

func newPageView(manager *services.Manager, cfg *config.Config) pageView {
	view := pageView{
		MaxUploadMB: cfg.MaxUploadSize,
		AuthEnabled: cfg.Password != "",
	}

	err := manager.Ready()
	switch models.KindOf(err) {
	case models.ModelUnavailable:
		view.Halt = fmt.Sprintf("Error: Could not find a trained model ('%s').", cfg.WeightsFile)
		view.HaltInfo = fmt.Sprintf("Please ensure a training run matching '%s' with weights/%s exists under %s. Run the training driver to create one.",
			cfg.RunPattern, cfg.WeightsFile, strings.Join(cfg.SearchRoots, " or "))
	case models.ModelLoadFailure:
		view.Halt = "Error loading model: " + models.Cause(err)
	default:
		if err != nil {
			view.Halt = "Error loading model: " + err.Error()
		}
	}
	view.ModelPath = manager.Artifact().Path
	return view
}

// titleLabel capitalizes every run of letters, so "dent_scratch" reads
// "Dent_Scratch".
func titleLabel(name string) string {
	title := cases.Title(language.English)

	var b strings.Builder
	start := -1
	for i, r := range name {
		if unicode.IsLetter(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			b.WriteString(title.String(name[start:i]))
			start = -1
		}
		b.WriteRune(r)
	}
	if start >= 0 {
		b.WriteString(title.String(name[start:]))
	}
	return b.String()
}

func newResultView(outcome *services.Outcome) *resultView {
	labels := make([]label, 0, len(outcome.Result.Detections))
	for _, d := range outcome.Result.Detections {
		labels = append(labels, label{
			Name:       titleLabel(d.ClassName),
			Confidence: fmt.Sprintf("%.2f", d.Confidence),
		})
	}

	return &resultView{
		Filename:  outcome.Filename,
		Original:  dataURI("image/"+outcome.Format, outcome.Original),
		Annotated: dataURI("image/jpeg", outcome.Annotated),
		Labels:    labels,
	}
}

func renderPage(w http.ResponseWriter, status int, view pageView, logger *logger.Logger) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, "index.html", view); err != nil {
		logger.Error("Error rendering page: %v", err)
	}
}

// readUpload reads the "image" multipart field, limited to maxMB megabytes.
func readUpload(w http.ResponseWriter, r *http.Request, maxMB int64) ([]byte, string, error) {
	limit := maxMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))

	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, "", models.Errorf(models.ProcessingFailure, "could not read upload (limit %dMB): %v", maxMB, err)
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, "", models.Errorf(models.ProcessingFailure, "no image uploaded")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(AllowedExtensions, ext) {
		return nil, "", models.Errorf(models.ProcessingFailure, "unsupported file type %q, expected one of %s", ext, strings.Join(AllowedExtensions, ", "))
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", models.Errorf(models.ProcessingFailure, "could not read upload: %v", err)
	}
	return data, header.Filename, nil
}

func statusFor(err error) int {
	switch models.KindOf(err) {
	case models.ModelUnavailable, models.ModelLoadFailure:
		return http.StatusServiceUnavailable
	case models.ProcessingFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func dataURI(mime string, data []byte) template.URL {
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}
