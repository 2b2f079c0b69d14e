package usecase

import (
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/second-brain/internal/core/domain"
)

// DefaultRRFK dampens rank-1 dominance. Fixed default for reproducibility;
// configurable per call.
const DefaultRRFK = 60

// DefaultPoolSize caps each input ranking before fusion to bound cost.
const DefaultPoolSize = 50

// RankedID is one entry of an input ranking. Score is the source ranking's
// native measure (vector distance or lexical score) and is informational
// only; fusion works purely on rank positions.
type RankedID struct {
	ID    string
	Score float64
}

// FusedResult is one entry of a fused ranking. VectorRank and TextRank are
// 1-based; zero means the id was absent from that ranking.
type FusedResult struct {
	ID         string
	Score      float64
	VectorRank int
	TextRank   int
}

// FusionOptions tunes reciprocal rank fusion. Zero values fall back to the
// documented defaults.
type FusionOptions struct {
	VectorWeight float64
	TextWeight   float64
	PoolSize     int
	K            int
	Limit        int
}

func (o FusionOptions) normalize() FusionOptions {
	out := o
	if out.VectorWeight == 0 {
		out.VectorWeight = 1.0
	}
	if out.TextWeight == 0 {
		out.TextWeight = 1.0
	}
	if out.PoolSize <= 0 {
		out.PoolSize = DefaultPoolSize
	}
	if out.K <= 0 {
		out.K = DefaultRRFK
	}
	return out
}

// FuseRankings merges a vector ranking and a lexical ranking via weighted
// reciprocal rank fusion: score(id) = vectorWeight/(k+vectorRank) +
// textWeight/(k+textRank), summing only the terms whose ranking included the
// id. The merge is a full outer join on id. Output is ordered by fused score
// descending, ties broken by id ascending. Corrupted input (duplicate ids
// within one ranking, non-finite weights) is rejected rather than silently
// producing a wrong order.
func FuseRankings(vector, lexical []RankedID, opts FusionOptions) ([]FusedResult, error) {
	opts = opts.normalize()
	if opts.VectorWeight < 0 || opts.TextWeight < 0 ||
		math.IsNaN(opts.VectorWeight) || math.IsNaN(opts.TextWeight) {
		return nil, domain.WrapError(domain.ErrFusionInput, "fuse rankings",
			fmt.Errorf("weights must be non-negative finite numbers"))
	}
	if err := checkRanking("vector", vector); err != nil {
		return nil, err
	}
	if err := checkRanking("lexical", lexical); err != nil {
		return nil, err
	}

	vector = capRanking(vector, opts.PoolSize)
	lexical = capRanking(lexical, opts.PoolSize)

	acc := make(map[string]*FusedResult, len(vector)+len(lexical))
	get := func(id string) *FusedResult {
		if r, ok := acc[id]; ok {
			return r
		}
		r := &FusedResult{ID: id}
		acc[id] = r
		return r
	}

	for i, entry := range vector {
		r := get(entry.ID)
		r.VectorRank = i + 1
		r.Score += opts.VectorWeight / float64(opts.K+i+1)
	}
	for i, entry := range lexical {
		r := get(entry.ID)
		r.TextRank = i + 1
		r.Score += opts.TextWeight / float64(opts.K+i+1)
	}

	out := make([]FusedResult, 0, len(acc))
	for _, r := range acc {
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func checkRanking(name string, ranking []RankedID) error {
	seen := make(map[string]struct{}, len(ranking))
	for _, entry := range ranking {
		if entry.ID == "" {
			return domain.WrapError(domain.ErrFusionInput, "fuse rankings",
				fmt.Errorf("%s ranking contains an empty id", name))
		}
		if _, dup := seen[entry.ID]; dup {
			return domain.WrapError(domain.ErrFusionInput, "fuse rankings",
				fmt.Errorf("%s ranking contains duplicate id %q", name, entry.ID))
		}
		seen[entry.ID] = struct{}{}
	}
	return nil
}

func capRanking(ranking []RankedID, pool int) []RankedID {
	if len(ranking) <= pool {
		return ranking
	}
	return ranking[:pool]
}

// fuseCandidateLists pools per-provider candidate rankings for accurate-mode
// merge. Ordering comes from unweighted RRF over each provider's ranking;
// the surviving candidate keeps the highest provider-assigned confidence so
// downstream threshold checks stay in provider confidence space. Provider
// order does not influence the result.
func fuseCandidateLists(lists [][]domain.Candidate, rrfK, limit int) []domain.Candidate {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}

	type fused struct {
		candidate domain.Candidate
		score     float64
	}

	acc := make(map[string]*fused)
	for _, list := range lists {
		for rank, candidate := range list {
			entry, ok := acc[candidate.ID]
			if !ok {
				entry = &fused{candidate: candidate}
				acc[candidate.ID] = entry
			} else if candidate.Confidence > entry.candidate.Confidence {
				preserved := entry.candidate.Metadata
				entry.candidate = candidate
				if candidate.Metadata == nil {
					entry.candidate.Metadata = preserved
				}
			}
			entry.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	out := make([]domain.Candidate, 0, len(acc))
	scores := make(map[string]float64, len(acc))
	for id, entry := range acc {
		scores[id] = entry.score
		out = append(out, entry.candidate)
	}

	sort.Slice(out, func(i, j int) bool {
		if scores[out[i].ID] != scores[out[j].ID] {
			return scores[out[i].ID] > scores[out[j].ID]
		}
		return out[i].ID < out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func trimCandidates(candidates []domain.Candidate, limit int) []domain.Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}
