package usecase

import "github.com/kirillkom/second-brain/internal/core/domain"

// Summarize reduces a ranked candidate list to a confidence summary. It is a
// pure function and reads only the head element and the length; the branch
// field is assigned later by classification.
func Summarize(candidates []domain.Candidate, threshold float64) domain.ConfidenceSummary {
	if len(candidates) == 0 {
		return domain.ConfidenceSummary{
			TopConfidence:  0.0,
			CandidateCount: 0,
			ThresholdMet:   false,
		}
	}
	top := candidates[0].Confidence
	return domain.ConfidenceSummary{
		TopConfidence:  top,
		CandidateCount: len(candidates),
		ThresholdMet:   top >= threshold,
	}
}
