// Package ui serves the browser form in front of the prediction service.
package ui

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"productivity/client"
)

const (
	minIncentive     = 0.0
	maxIncentive     = 150.0
	defaultIncentive = 50.0
)

//go:embed templates/form.html
var templates embed.FS

// Predictor is the part of client.Client the form needs.
type Predictor interface {
	Predict(ctx context.Context, incentive float64) (float64, error)
}

// view is what the template renders.
type view struct {
	Min         float64
	Max         float64
	Incentive   string
	InputError  string
	Prediction  string
	APIError    string
	Unavailable bool
}

// Handler renders the prediction form and forwards submissions to the API.
type Handler struct {
	predictor Predictor
	tmpl      *template.Template
	logger    *zap.Logger
}

// NewHandler parses the embedded template. A nil logger discards output.
func NewHandler(predictor Predictor, logger *zap.Logger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl, err := template.ParseFS(templates, "templates/form.html")
	if err != nil {
		return nil, err
	}
	return &Handler{predictor: predictor, tmpl: tmpl, logger: logger}, nil
}

// Register mounts the form at /.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleForm)
	mux.HandleFunc("POST /{$}", h.handleSubmit)
}

func (h *Handler) handleForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, newView(formatNumber(defaultIncentive)))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		v := newView(formatNumber(defaultIncentive))
		v.InputError = "Could not read the submitted form."
		h.render(w, http.StatusBadRequest, v)
		return
	}

	raw := strings.TrimSpace(r.PostForm.Get("incentive"))
	v := newView(raw)
	incentive, problem := parseIncentive(raw)
	if problem != "" {
		v.InputError = problem
		h.render(w, http.StatusBadRequest, v)
		return
	}

	prediction, err := h.predictor.Predict(r.Context(), incentive)
	var apiErr *client.APIError
	switch {
	case err == nil:
		v.Prediction = formatNumber(prediction)
	case errors.As(err, &apiErr):
		h.logger.Warn("prediction service rejected request",
			zap.Int("status", apiErr.StatusCode), zap.Float64("incentive", incentive))
		v.APIError = apiErr.PrettyBody()
	case errors.Is(err, client.ErrUnavailable):
		h.logger.Warn("prediction service unavailable", zap.Error(err))
		v.Unavailable = true
	default:
		h.logger.Error("prediction failed", zap.Error(err))
		v.APIError = err.Error()
	}
	h.render(w, http.StatusOK, v)
}

func (h *Handler) render(w http.ResponseWriter, status int, v view) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.tmpl.Execute(w, v); err != nil {
		h.logger.Error("render form", zap.Error(err))
	}
}

func newView(incentive string) view {
	return view{Min: minIncentive, Max: maxIncentive, Incentive: incentive}
}

// parseIncentive returns the value or a message to show next to the form.
func parseIncentive(raw string) (float64, string) {
	if raw == "" {
		return 0, "Incentive is required."
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, "Incentive must be a number."
	}
	if v < minIncentive || v > maxIncentive {
		return 0, "Incentive must be between 0 and 150."
	}
	return v, ""
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
