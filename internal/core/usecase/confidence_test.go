package usecase

import (
	"testing"

	"github.com/kirillkom/second-brain/internal/core/domain"
)

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil, 0.6)
	if summary.TopConfidence != 0.0 {
		t.Fatalf("top confidence = %v, want 0", summary.TopConfidence)
	}
	if summary.CandidateCount != 0 {
		t.Fatalf("count = %d, want 0", summary.CandidateCount)
	}
	if summary.ThresholdMet {
		t.Fatalf("threshold met for empty input")
	}
}

func TestSummarizeThreshold(t *testing.T) {
	tests := []struct {
		name      string
		top       float64
		threshold float64
		wantMet   bool
	}{
		{"above", 0.9, 0.6, true},
		{"exact", 0.6, 0.6, true},
		{"below", 0.4, 0.6, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := []domain.Candidate{
				{ID: "c1", Confidence: tt.top},
				{ID: "c2", Confidence: 0.1},
			}
			summary := Summarize(candidates, tt.threshold)
			if summary.TopConfidence != tt.top {
				t.Fatalf("top confidence = %v, want %v", summary.TopConfidence, tt.top)
			}
			if summary.CandidateCount != 2 {
				t.Fatalf("count = %d, want 2", summary.CandidateCount)
			}
			if summary.ThresholdMet != tt.wantMet {
				t.Fatalf("threshold met = %v, want %v", summary.ThresholdMet, tt.wantMet)
			}
		})
	}
}
