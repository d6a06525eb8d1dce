package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"productivity/ml"
)

const (
	// MinIncentive and MaxIncentive bound the accepted incentive.
	MinIncentive = 0.0
	MaxIncentive = 150.0

	healthMessage = "Productivity Predictor API is running."
	fieldName     = "incentive"
)

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Incentive float64 `json:"incentive"`
}

// PredictResponse is the body of a successful prediction.
type PredictResponse struct {
	PredictedProductivity float64 `json:"predicted_productivity"`
}

// HealthResponse is the body of GET /.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ValidationIssue describes one rejected input field.
type ValidationIssue struct {
	Type  string         `json:"type"`
	Loc   []any          `json:"loc"`
	Msg   string         `json:"msg"`
	Input any            `json:"input"`
	Ctx   map[string]any `json:"ctx,omitempty"`
}

// ValidationError is the 422 response body.
type ValidationError struct {
	Detail []ValidationIssue `json:"detail"`
}

// Error summarizes the first issue.
func (e *ValidationError) Error() string {
	if len(e.Detail) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("%s: %s", e.Detail[0].Type, e.Detail[0].Msg)
}

type errorBody struct {
	Detail string `json:"detail"`
}

func invalid(typ, msg string, input any, loc []any, ctx map[string]any) *ValidationError {
	return &ValidationError{Detail: []ValidationIssue{{
		Type: typ, Loc: loc, Msg: msg, Input: echo(input), Ctx: ctx,
	}}}
}

// echo returns input with every number that overflows float64 replaced by
// its literal text, so the error body stays readable by any JSON decoder.
func echo(input any) any {
	switch v := input.(type) {
	case json.Number:
		if f, err := v.Float64(); err != nil || math.IsInf(f, 0) {
			return v.String()
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = echo(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = echo(item)
		}
		return out
	default:
		return input
	}
}

// ParsePredictRequest decodes and validates a prediction body.
func ParsePredictRequest(body []byte) (PredictRequest, *ValidationError) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil || dec.More() {
		msg := "JSON decode error"
		if err != nil {
			msg = err.Error()
		}
		return PredictRequest{}, invalid("json_invalid", "JSON decode error", map[string]any{},
			[]any{"body"}, map[string]any{"error": msg})
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return PredictRequest{}, invalid("model_attributes_type",
			"Input should be a valid dictionary or object to extract fields from",
			raw, []any{"body"}, nil)
	}

	loc := []any{"body", fieldName}
	value, ok := obj[fieldName]
	if !ok {
		return PredictRequest{}, invalid("missing", "Field required", obj, loc, nil)
	}
	num, ok := value.(json.Number)
	if !ok {
		return PredictRequest{}, invalid("float_type", "Input should be a valid number", value, loc, nil)
	}
	incentive, err := num.Float64()
	if err != nil || math.IsInf(incentive, 0) {
		return PredictRequest{}, invalid("finite_number", "Input should be a finite number", value, loc, nil)
	}

	switch {
	case incentive < MinIncentive:
		return PredictRequest{}, invalid("greater_than_equal",
			"Input should be greater than or equal to 0", incentive, loc, map[string]any{"ge": MinIncentive})
	case incentive > MaxIncentive:
		return PredictRequest{}, invalid("less_than_equal",
			"Input should be less than or equal to 150", incentive, loc, map[string]any{"le": MaxIncentive})
	}
	return PredictRequest{Incentive: incentive}, nil
}

// RoundPrediction rounds to three decimals from the exact binary value, so
// 1.0005 (stored just below the tie) becomes 1.0.
func RoundPrediction(v float64) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 3, 64), 64)
	if err != nil {
		return v
	}
	return rounded
}

// Handlers serves the prediction API on top of a loaded model.
type Handlers struct {
	predictor ml.Predictor
	logger    *zap.Logger
}

// NewHandlers creates the API handlers. A nil logger discards output.
func NewHandlers(predictor ml.Predictor, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{predictor: predictor, logger: logger}
}

// Register mounts every route on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleHealth)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /ws/predict", h.handleWebSocket)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Message: healthMessage})
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: "request body too large"})
			return
		}
		respondJSON(w, http.StatusBadRequest, errorBody{Detail: "could not read request body"})
		return
	}

	status, payload := h.predict(r, body)
	respondJSON(w, status, payload)
}

// predict runs one request body through validation and the model and
// returns the status and body to send back.
func (h *Handlers) predict(r *http.Request, body []byte) (int, any) {
	req, verr := ParsePredictRequest(body)
	if verr != nil {
		return http.StatusUnprocessableEntity, verr
	}

	out, err := h.predictor.Predict([]ml.Row{{fieldName: req.Incentive}})
	if err == nil && len(out) != 1 {
		err = fmt.Errorf("model returned %d predictions for one row", len(out))
	}
	if err != nil {
		h.logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Float64("incentive", req.Incentive),
			zap.Error(err))
		return http.StatusInternalServerError, errorBody{Detail: "prediction failed"}
	}
	return http.StatusOK, PredictResponse{PredictedProductivity: RoundPrediction(out[0])}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
