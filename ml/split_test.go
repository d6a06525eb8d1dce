package ml

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTrainTestSplit(t *testing.T) {
	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}
	train, test, err := TrainTestSplit(items, 0.2, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(train) != 8 || len(test) != 2 {
		t.Fatalf("expected 8/2 split, got %d/%d", len(train), len(test))
	}

	all := append(append([]int{}, train...), test...)
	sort.Ints(all)
	if diff := cmp.Diff(items, all); diff != "" {
		t.Fatalf("split lost or duplicated items (-want +got):\n%s", diff)
	}

	train2, test2, _ := TrainTestSplit(items, 0.2, 42)
	if !cmp.Equal(train, train2) || !cmp.Equal(test, test2) {
		t.Fatal("same seed produced a different split")
	}
}

func TestTrainTestSplitRoundsTestUp(t *testing.T) {
	items := make([]string, 11)
	train, test, err := TrainTestSplit(items, 0.2, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(test) != 3 || len(train) != 8 {
		t.Fatalf("expected 8/3 split, got %d/%d", len(train), len(test))
	}
}

func TestTrainTestSplitErrors(t *testing.T) {
	if _, _, err := TrainTestSplit([]int{1}, 0.2, 42); !errors.Is(err, ErrSplitTooSmall) {
		t.Fatalf("expected ErrSplitTooSmall, got %v", err)
	}
	if _, _, err := TrainTestSplit([]int{1, 2, 3}, 0, 42); err == nil {
		t.Fatal("expected error for zero ratio")
	}
	if _, _, err := TrainTestSplit([]int{1, 2, 3}, 1, 42); err == nil {
		t.Fatal("expected error for ratio 1")
	}
}

func TestEvaluate(t *testing.T) {
	m, err := Evaluate([]float64{1, 2, 3}, []float64{1, 2, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(m.MAE-1.0/3) > 1e-12 {
		t.Fatalf("unexpected MAE %v", m.MAE)
	}
	if math.Abs(m.RMSE-math.Sqrt(1.0/3)) > 1e-12 {
		t.Fatalf("unexpected RMSE %v", m.RMSE)
	}
	if math.Abs(m.R2-33.0/42) > 1e-12 {
		t.Fatalf("unexpected R2 %v", m.R2)
	}

	perfect, _ := Evaluate([]float64{1, 2}, []float64{1, 2})
	if perfect.R2 != 1 || perfect.MAE != 0 {
		t.Fatalf("unexpected perfect metrics %+v", perfect)
	}

	if _, err := Evaluate(nil, nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
