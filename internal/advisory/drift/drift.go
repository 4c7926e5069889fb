// Package drift computes bucket-level drift of a portfolio against a
// ReferenceModel before and after a proposed set of trades (spec §4.10).
package drift

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
)

// Input bundles the before/after states and the reference model.
type Input struct {
	Before model.SimulatedState
	After  model.SimulatedState
	Shelf  model.Shelf
	Model  model.ReferenceModel
}

// Analyze computes per-bucket and total drift (spec §4.10). Buckets are
// asset classes from the reference model's required weights, plus any
// optional instrument-level weights the model also specifies.
func Analyze(in Input) model.DriftAnalysis {
	modelWeight := map[string]decimal.Decimal{}
	for k, w := range in.Model.AssetClassWeights {
		modelWeight[k] = w
	}
	for k, w := range in.Model.InstrumentWeights {
		modelWeight[k] = w
	}

	beforeWeight := bucketWeights(in.Before, in.Shelf, in.Model)
	afterWeight := bucketWeights(in.After, in.Shelf, in.Model)

	buckets := map[string]struct{}{}
	for k := range modelWeight {
		buckets[k] = struct{}{}
	}
	for k := range beforeWeight {
		buckets[k] = struct{}{}
	}
	for k := range afterWeight {
		buckets[k] = struct{}{}
	}

	ids := make([]string, 0, len(buckets))
	for id := range buckets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := model.DriftAnalysis{}
	totalBefore := decimal.Zero
	totalAfter := decimal.Zero

	out := make([]model.DriftBucket, 0, len(ids))
	for _, id := range ids {
		wModel := modelWeight[id]
		driftBefore := beforeWeight[id].Sub(wModel)
		driftAfter := afterWeight[id].Sub(wModel)
		absBefore := driftBefore.Abs()
		absAfter := driftAfter.Abs()

		out = append(out, model.DriftBucket{
			BucketID:       id,
			WeightModel:    wModel,
			DriftBefore:    driftBefore,
			DriftAfter:     driftAfter,
			AbsDriftBefore: absBefore,
			AbsDriftAfter:  absAfter,
			Improvement:    absBefore.Sub(absAfter),
		})
		totalBefore = totalBefore.Add(absBefore)
		totalAfter = totalAfter.Add(absAfter)
	}

	result.Buckets = out
	result.TotalDriftBefore = totalBefore.Mul(decimal.NewFromFloat(0.5))
	result.TotalDriftAfter = totalAfter.Mul(decimal.NewFromFloat(0.5))
	result.TopContributors = topContributors(out)
	return result
}

// topContributors sorts a copy of buckets by abs_drift_before desc, then
// bucket id asc (spec §4.10).
func topContributors(buckets []model.DriftBucket) []model.DriftBucket {
	sorted := make([]model.DriftBucket, len(buckets))
	copy(sorted, buckets)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].AbsDriftBefore.Equal(sorted[j].AbsDriftBefore) {
			return sorted[i].AbsDriftBefore.GreaterThan(sorted[j].AbsDriftBefore)
		}
		return sorted[i].BucketID < sorted[j].BucketID
	})
	return sorted
}

// bucketWeights aggregates a SimulatedState's position weights into
// asset-class buckets (and, when the reference model names one explicitly,
// into a parallel per-instrument bucket).
func bucketWeights(state model.SimulatedState, shelf model.Shelf, ref model.ReferenceModel) map[string]decimal.Decimal {
	weights := map[string]decimal.Decimal{}
	for _, pos := range state.Positions {
		if _, tracked := ref.InstrumentWeights[pos.InstrumentID]; tracked {
			weights[pos.InstrumentID] = weights[pos.InstrumentID].Add(pos.Weight)
			continue
		}
		assetClass := "UNCLASSIFIED"
		if entry, ok := shelf[pos.InstrumentID]; ok && entry.AssetClass != "" {
			assetClass = entry.AssetClass
		}
		weights[assetClass] = weights[assetClass].Add(pos.Weight)
	}
	return weights
}
