package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"productivity/ml"
)

// linearModel predicts 0.3 + incentive/300 and records what it saw.
type linearModel struct {
	mu    sync.Mutex
	calls int
	rows  []ml.Row
	err   error
}

func (m *linearModel) Predict(rows []ml.Row) ([]float64, error) {
	m.mu.Lock()
	m.calls++
	m.rows = rows
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = 0.3 + row["incentive"]/300
	}
	return out, nil
}

func newTestServer(model ml.Predictor) *httptest.Server {
	return httptest.NewServer(NewServer(DefaultServerConfig(), model, nil).Handler())
}

func postPredict(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/predict", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return resp, payload
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(&linearModel{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Message != "Productivity Predictor API is running." {
		t.Fatalf("unexpected body: %+v", body)
	}

	resp2, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", resp2.StatusCode)
	}
}

func TestHandlePredict(t *testing.T) {
	model := &linearModel{}
	srv := newTestServer(model)
	defer srv.Close()

	resp, payload := postPredict(t, srv.URL, `{"incentive": 60}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := payload["predicted_productivity"].(float64); got != 0.5 {
		t.Fatalf("unexpected prediction: %v", got)
	}
	if len(model.rows) != 1 || model.rows[0]["incentive"] != 60 {
		t.Fatalf("model got %v, want one row with incentive 60", model.rows)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatal("missing request id header")
	}
}

func TestHandlePredictAcceptsWholeRange(t *testing.T) {
	srv := newTestServer(&linearModel{})
	defer srv.Close()

	for v := 0; v <= 150; v++ {
		resp, payload := postPredict(t, srv.URL, fmt.Sprintf(`{"incentive": %d}`, v))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("incentive %d: expected 200, got %d", v, resp.StatusCode)
		}
		got := payload["predicted_productivity"].(float64)
		if got != RoundPrediction(got) {
			t.Fatalf("incentive %d: %v has more than three decimals", v, got)
		}
	}
}

func TestHandlePredictValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		errType string
		loc     []any
	}{
		{"below range", `{"incentive": -1}`, "greater_than_equal", []any{"body", "incentive"}},
		{"just below range", `{"incentive": -0.0001}`, "greater_than_equal", []any{"body", "incentive"}},
		{"above range", `{"incentive": 151}`, "less_than_equal", []any{"body", "incentive"}},
		{"just above range", `{"incentive": 150.01}`, "less_than_equal", []any{"body", "incentive"}},
		{"missing field", `{}`, "missing", []any{"body", "incentive"}},
		{"other field only", `{"incentiv": 5}`, "missing", []any{"body", "incentive"}},
		{"string", `{"incentive": "abc"}`, "float_type", []any{"body", "incentive"}},
		{"null", `{"incentive": null}`, "float_type", []any{"body", "incentive"}},
		{"bool", `{"incentive": true}`, "float_type", []any{"body", "incentive"}},
		{"overflow", `{"incentive": 1e400}`, "finite_number", []any{"body", "incentive"}},
		{"overflow in other field", `{"incentiv": -1e400}`, "missing", []any{"body", "incentive"}},
		{"overflow in array", `[1e400]`, "model_attributes_type", []any{"body"}},
		{"malformed", `{"incentive": `, "json_invalid", []any{"body"}},
		{"trailing data", `{"incentive": 5} {}`, "json_invalid", []any{"body"}},
		{"not an object", `[50]`, "model_attributes_type", []any{"body"}},
	}

	model := &linearModel{}
	srv := newTestServer(model)
	defer srv.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, payload := postPredict(t, srv.URL, tt.body)
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", resp.StatusCode)
			}
			detail, ok := payload["detail"].([]any)
			if !ok || len(detail) != 1 {
				t.Fatalf("unexpected detail: %v", payload["detail"])
			}
			issue := detail[0].(map[string]any)
			if issue["type"] != tt.errType {
				t.Fatalf("expected type %s, got %v", tt.errType, issue["type"])
			}
			if fmt.Sprint(issue["loc"]) != fmt.Sprint(tt.loc) {
				t.Fatalf("expected loc %v, got %v", tt.loc, issue["loc"])
			}
			if issue["msg"] == "" {
				t.Fatal("empty msg")
			}
		})
	}
	if model.calls != 0 {
		t.Fatalf("model called %d times for invalid input", model.calls)
	}
}

func TestHandlePredictModelError(t *testing.T) {
	srv := newTestServer(&linearModel{err: errors.New("boom")})
	defer srv.Close()

	resp, payload := postPredict(t, srv.URL, `{"incentive": 10}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if payload["detail"] != "prediction failed" {
		t.Fatalf("unexpected body: %v", payload)
	}
}

func TestHandlePredictMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&linearModel{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/predict")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHandlePredictBodyTooLarge(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 16
	srv := httptest.NewServer(NewServer(cfg, &linearModel{}, nil).Handler())
	defer srv.Close()

	body := `{"incentive": 10, "padding": "` + strings.Repeat("x", 64) + `"}`
	resp, err := http.Post(srv.URL+"/predict", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestHandlePredictWithTrainedPipeline(t *testing.T) {
	rows := make([]ml.Row, 0, 60)
	targets := make([]float64, 0, 60)
	for i := 0; i < 60; i++ {
		rows = append(rows, ml.Row{"incentive": float64(i)})
		targets = append(targets, 0.4+float64(i)/200)
	}
	pipeline := ml.NewDefaultPipeline("incentive", ml.DefaultBoosterConfig())
	if err := pipeline.Fit(rows, targets); err != nil {
		t.Fatal(err)
	}

	srv := newTestServer(pipeline)
	defer srv.Close()

	_, first := postPredict(t, srv.URL, `{"incentive": 50.0}`)
	_, second := postPredict(t, srv.URL, `{"incentive": 50}`)
	if first["predicted_productivity"] != second["predicted_productivity"] {
		t.Fatalf("prediction not deterministic: %v vs %v", first, second)
	}
	want, err := pipeline.Predict([]ml.Row{{"incentive": 50}})
	if err != nil {
		t.Fatal(err)
	}
	if first["predicted_productivity"].(float64) != RoundPrediction(want[0]) {
		t.Fatalf("expected %v, got %v", RoundPrediction(want[0]), first["predicted_productivity"])
	}
}

func TestHandlePredictOverflowEchoesLiteral(t *testing.T) {
	srv := newTestServer(&linearModel{})
	defer srv.Close()

	_, payload := postPredict(t, srv.URL, `{"incentive": 1e400}`)
	issue := payload["detail"].([]any)[0].(map[string]any)
	if issue["input"] != "1e400" {
		t.Fatalf("expected input %q, got %#v", "1e400", issue["input"])
	}
}

func TestRoundPrediction(t *testing.T) {
	tests := map[float64]float64{
		0.8005001: 0.801,
		0.12345:   0.123,
		0.7:       0.7,
		-0.0004:   0,
		1.0005:    1.0,
		0.0015:    0.002,
		0.6665:    0.666,
	}
	for in, want := range tests {
		if got := RoundPrediction(in); got != want {
			t.Errorf("RoundPrediction(%v) = %v, want %v", in, got, want)
		}
	}
}
