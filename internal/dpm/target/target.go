// Package target generates final target weights for the rebalance
// universe, either by proportional heuristic redistribution or by a
// constrained solver, with optional dual-method comparison (spec §4.4).
package target

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

// reservedCashID is the pseudo-instrument id a model portfolio may use to
// express its intended cash weight. It never appears in the candidate set;
// both generation paths read it separately to size the Σw=1 constraint.
const reservedCashID = "CASH"

// Input bundles the state the target generator needs.
type Input struct {
	Universe      model.Universe
	CurrentWeight map[string]decimal.Decimal
	Options       model.EngineOptions
}

// Generate dispatches to the configured target_method and, when
// compare_target_methods is set, runs the other path too and attaches the
// comparison (spec §4.4). The configured method's result is always the one
// returned; the other is advisory only.
func Generate(in Input) model.TargetResult {
	var primary, other model.TargetResult
	if in.Options.TargetMethod == model.TargetSolver {
		primary = generateSolver(in)
		if in.Options.CompareTargetMethods {
			other = generateHeuristic(in)
			attachComparison(&primary, in, other, false)
		}
	} else {
		primary = generateHeuristic(in)
		if in.Options.CompareTargetMethods {
			other = generateSolver(in)
			attachComparison(&primary, in, other, true)
		}
	}
	return primary
}

// candidate is one non-cash universe entry carrying the fields the target
// generator needs from valuation, universe classification, and the model.
type candidate struct {
	id           string
	modelWeight  decimal.Decimal
	current      decimal.Decimal
	shelf        *model.ShelfEntry
	locked       bool
	lockReason   string
	buyEligible  bool
	sellEligible bool
}

// buckets partitions candidates into the four treatments spec §4.4/§4.3
// imply: frozen (can trade in neither direction), sellDown (must be sold
// to zero), sellOnly (can only shrink toward its current weight), and
// eligible (fully tradeable).
type buckets struct {
	frozen   []candidate
	sellDown []candidate
	sellOnly []candidate
	eligible []candidate
}

func buildCandidates(in Input) ([]candidate, decimal.Decimal) {
	var cands []candidate
	reservedCash := decimal.Zero
	for _, e := range in.Universe.Entries {
		if e.InstrumentID == reservedCashID {
			reservedCash = e.ModelWeight
			continue
		}
		cands = append(cands, candidate{
			id:           e.InstrumentID,
			modelWeight:  e.ModelWeight,
			current:      in.CurrentWeight[e.InstrumentID],
			shelf:        e.Shelf,
			locked:       e.Locked,
			lockReason:   e.LockReason,
			buyEligible:  e.BuyEligible,
			sellEligible: e.SellEligible,
		})
	}
	return cands, reservedCash
}

func partition(cands []candidate) buckets {
	var b buckets
	for _, c := range cands {
		switch {
		case c.locked && !c.sellEligible:
			b.frozen = append(b.frozen, c)
		case c.locked && c.sellEligible:
			b.sellDown = append(b.sellDown, c)
		case !c.buyEligible && c.sellEligible:
			b.sellOnly = append(b.sellOnly, c)
		default:
			b.eligible = append(b.eligible, c)
		}
	}
	return b
}

func splitGroupKey(key string) (string, string) {
	if idx := strings.Index(key, ":"); idx >= 0 {
		return key[:idx], key[idx+1:]
	}
	return key, ""
}

func sortedGroupKeys(gc map[string]model.GroupConstraint) []string {
	keys := make([]string, 0, len(gc))
	for k := range gc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// generateHeuristic implements spec §4.4's heuristic path: SELL_ONLY
// absorption, single-position cap, ascending-key group constraints, then
// cash-buffer scaling, each applied in one pass (see DESIGN.md).
func generateHeuristic(in Input) model.TargetResult {
	cands, reservedCash := buildCandidates(in)
	b := partition(cands)

	targets := map[string]decimal.Decimal{}
	reasons := map[string][]string{}
	modelWeight := map[string]decimal.Decimal{}
	for _, c := range cands {
		modelWeight[c.id] = c.modelWeight
	}

	frozenSum := decimal.Zero
	for _, c := range b.frozen {
		targets[c.id] = c.current
		reasons[c.id] = append(reasons[c.id], "LOCKED_POSITION")
		frozenSum = frozenSum.Add(c.current)
	}

	pool := decimal.Zero
	for _, c := range b.sellDown {
		targets[c.id] = decimal.Zero
		if !c.current.IsZero() {
			reasons[c.id] = append(reasons[c.id], "IMPLICIT_SELL_TO_ZERO")
		}
		pool = pool.Add(c.current)
	}

	for _, c := range b.sellOnly {
		t := c.modelWeight
		if t.GreaterThan(c.current) {
			t = c.current
		}
		if t.IsNegative() {
			t = decimal.Zero
		}
		if displaced := c.modelWeight.Sub(t); displaced.IsPositive() {
			pool = pool.Add(displaced)
		}
		targets[c.id] = t
		if t.IsZero() && !c.current.IsZero() {
			reasons[c.id] = append(reasons[c.id], "IMPLICIT_SELL_TO_ZERO")
		}
	}

	eligibleModelSum := decimal.Zero
	for _, c := range b.eligible {
		eligibleModelSum = eligibleModelSum.Add(c.modelWeight)
	}
	for _, c := range b.eligible {
		t := c.modelWeight
		if pool.IsPositive() {
			var share decimal.Decimal
			if eligibleModelSum.IsPositive() {
				share = pool.Mul(c.modelWeight).Div(eligibleModelSum)
			} else {
				share = pool.Div(decimal.NewFromInt(int64(len(b.eligible))))
			}
			if share.IsPositive() {
				reasons[c.id] = append(reasons[c.id], "REDISTRIBUTED_RECIPIENT")
			}
			t = t.Add(share)
		}
		targets[c.id] = t
	}
	if pool.IsPositive() && len(b.eligible) == 0 {
		return blockedTarget(model.TargetHeuristic, "NO_ELIGIBLE_REDISTRIBUTION_DESTINATION")
	}

	if in.Options.SinglePositionMaxWeight != nil {
		applySinglePositionCap(*in.Options.SinglePositionMaxWeight, b.eligible, targets, reasons)
	}

	for _, key := range sortedGroupKeys(in.Options.GroupConstraints) {
		gc := in.Options.GroupConstraints[key]
		attr, value := splitGroupKey(key)
		var members, outside []candidate
		for _, c := range b.eligible {
			if c.shelf != nil && c.shelf.Attributes[attr] == value {
				members = append(members, c)
			} else {
				outside = append(outside, c)
			}
		}
		if len(members) == 0 {
			continue
		}
		sum := decimal.Zero
		for _, m := range members {
			sum = sum.Add(targets[m.id])
		}
		if !sum.GreaterThan(gc.MaxWeight) {
			continue
		}
		factor := decimal.Zero
		if sum.IsPositive() {
			factor = gc.MaxWeight.Div(sum)
		}
		released := sum.Sub(gc.MaxWeight)
		for _, m := range members {
			targets[m.id] = targets[m.id].Mul(factor)
			reasons[m.id] = append(reasons[m.id], "CAPPED_BY_GROUP_LIMIT")
		}
		if len(outside) == 0 {
			return blockedTarget(model.TargetHeuristic, "NO_ELIGIBLE_REDISTRIBUTION_DESTINATION")
		}
		outsideSum := decimal.Zero
		for _, o := range outside {
			outsideSum = outsideSum.Add(targets[o.id])
		}
		for _, o := range outside {
			var share decimal.Decimal
			if outsideSum.IsPositive() {
				share = released.Mul(targets[o.id]).Div(outsideSum)
			} else {
				share = released.Div(decimal.NewFromInt(int64(len(outside))))
			}
			targets[o.id] = targets[o.id].Add(share)
			reasons[o.id] = append(reasons[o.id], "REDISTRIBUTED_RECIPIENT")
		}
	}

	requiredCash := reservedCash
	if in.Options.MinCashBufferPct.GreaterThan(requiredCash) {
		requiredCash = in.Options.MinCashBufferPct
	}
	eligibleSum := decimal.Zero
	for _, c := range b.eligible {
		eligibleSum = eligibleSum.Add(targets[c.id])
	}
	sellOnlySum := decimal.Zero
	for _, c := range b.sellOnly {
		sellOnlySum = sellOnlySum.Add(targets[c.id])
	}
	tradeableSum := frozenSum.Add(sellOnlySum).Add(eligibleSum)
	maxNonCash := decimal.NewFromInt(1).Sub(requiredCash)
	if tradeableSum.GreaterThan(maxNonCash) && eligibleSum.IsPositive() {
		excess := tradeableSum.Sub(maxNonCash)
		factor := decimal.NewFromInt(1).Sub(excess.Div(eligibleSum))
		if factor.IsNegative() {
			factor = decimal.Zero
		}
		for _, c := range b.eligible {
			targets[c.id] = targets[c.id].Mul(factor)
		}
	}

	return model.TargetResult{Targets: collectTargets(in.Universe, targets, modelWeight, reasons), Method: model.TargetHeuristic}
}

func applySinglePositionCap(cap decimal.Decimal, eligible []candidate, targets map[string]decimal.Decimal, reasons map[string][]string) {
	var uncapped []candidate
	excess := decimal.Zero
	for _, c := range eligible {
		if targets[c.id].GreaterThan(cap) {
			excess = excess.Add(targets[c.id].Sub(cap))
			targets[c.id] = cap
			reasons[c.id] = append(reasons[c.id], "CAPPED_BY_MAX_WEIGHT")
		} else {
			uncapped = append(uncapped, c)
		}
	}
	if excess.IsZero() || len(uncapped) == 0 {
		return
	}
	sum := decimal.Zero
	for _, c := range uncapped {
		sum = sum.Add(targets[c.id])
	}
	for _, c := range uncapped {
		var share decimal.Decimal
		if sum.IsPositive() {
			share = excess.Mul(targets[c.id]).Div(sum)
		} else {
			share = excess.Div(decimal.NewFromInt(int64(len(uncapped))))
		}
		targets[c.id] = targets[c.id].Add(share)
		reasons[c.id] = append(reasons[c.id], "REDISTRIBUTED_RECIPIENT")
	}
}

func collectTargets(universe model.Universe, targets, modelWeight map[string]decimal.Decimal, reasons map[string][]string) []model.Target {
	out := make([]model.Target, 0, len(universe.Entries))
	for _, e := range universe.Entries {
		if e.InstrumentID == reservedCashID {
			continue
		}
		out = append(out, model.Target{
			InstrumentID: e.InstrumentID,
			FinalWeight:  targets[e.InstrumentID],
			ModelWeight:  modelWeight[e.InstrumentID],
			Reasons:      reasons[e.InstrumentID],
		})
	}
	return out
}

func blockedTarget(method model.TargetMethod, reason string) model.TargetResult {
	return model.TargetResult{
		Method:      method,
		Blocked:     true,
		BlockReason: reason,
		Warnings:    []string{reason},
	}
}

// ---- solver path ----

// group is a solver-local view of one group_constraints entry: the free
// (non-frozen, non-sell-down) member ids it covers and its cap.
type group struct {
	key     string
	members []string
	max     float64
}

func buildGroups(gc map[string]model.GroupConstraint, free []candidate) []group {
	var groups []group
	for _, key := range sortedGroupKeys(gc) {
		attr, value := splitGroupKey(key)
		var members []string
		for _, c := range free {
			if c.shelf != nil && c.shelf.Attributes[attr] == value {
				members = append(members, c.id)
			}
		}
		if len(members) == 0 {
			continue
		}
		maxWeight, _ := gc[key].MaxWeight.Float64()
		groups = append(groups, group{key: key, members: members, max: maxWeight})
	}
	return groups
}

// checkInfeasibility enumerates the contradiction classes spec §4.4 names
// before either solver backend runs, each yielding a distinct hint code
// (DESIGN.md: "so generateSolver can short-circuit ... without running the
// projection loop at all").
func checkInfeasibility(b buckets, reservedCash decimal.Decimal, opts model.EngineOptions) []string {
	var hints []string

	frozenSum := decimal.Zero
	for _, c := range b.frozen {
		frozenSum = frozenSum.Add(c.current)
	}
	maxNonCashByBand := decimal.NewFromInt(1).Sub(opts.CashBandMinWeight)
	if frozenSum.GreaterThan(maxNonCashByBand) {
		hints = append(hints, "INFEASIBILITY_HINT_CASH_BAND_CONTRADICTION")
	}

	if opts.SinglePositionMaxWeight != nil {
		cap := *opts.SinglePositionMaxWeight
		capacity := frozenSum
		for _, c := range b.sellOnly {
			m := c.current
			if cap.LessThan(m) {
				m = cap
			}
			capacity = capacity.Add(m)
		}
		capacity = capacity.Add(cap.Mul(decimal.NewFromInt(int64(len(b.eligible)))))
		required := decimal.NewFromInt(1).Sub(reservedCash)
		if capacity.LessThan(required) {
			hints = append(hints, "INFEASIBILITY_HINT_SINGLE_POSITION_CAPACITY")
		}
	}

	for _, key := range sortedGroupKeys(opts.GroupConstraints) {
		gc := opts.GroupConstraints[key]
		attr, value := splitGroupKey(key)
		frozenGroupSum := decimal.Zero
		for _, c := range b.frozen {
			if c.shelf != nil && c.shelf.Attributes[attr] == value {
				frozenGroupSum = frozenGroupSum.Add(c.current)
			}
		}
		if frozenGroupSum.GreaterThan(gc.MaxWeight) {
			hints = append(hints, "INFEASIBILITY_HINT_LOCKED_GROUP_WEIGHT_"+key)
		}
	}
	return hints
}

// solverBackend minimizes Σ(w-model)² over the free variables subject to
// box bounds, the Σw=budget equality, and the group caps, via alternating
// projections (spec §9: "a capability set {minimize(quadratic_form,
// linear_constraints)}"; see DESIGN.md for why this stands in for a real
// OSQP/SCS binding). iterations differs per named backend only so the two
// preference-order entries are distinguishable, not because either is a
// more "correct" solve.
type solverBackend struct {
	name       string
	iterations int
}

func (be solverBackend) solve(free []candidate, budget decimal.Decimal, cap *decimal.Decimal, groups []group) (map[string]float64, bool) {
	n := len(free)
	budgetF, _ := budget.Float64()
	if n == 0 {
		return map[string]float64{}, math.Abs(budgetF) < 1e-6
	}

	ids := make([]string, n)
	idx := make(map[string]int, n)
	modelW := make([]float64, n)
	lb := make([]float64, n)
	ub := make([]float64, n)
	for i, c := range free {
		ids[i] = c.id
		idx[c.id] = i
		m, _ := c.modelWeight.Float64()
		modelW[i] = m
		cur, _ := c.current.Float64()
		switch {
		case !c.buyEligible:
			ub[i] = cur // sell-only: can shrink to zero, never grow past current
		case cap != nil:
			ub[i], _ = cap.Float64()
		default:
			ub[i] = 1
		}
		if ub[i] < lb[i] {
			ub[i] = lb[i]
		}
	}

	w := append([]float64(nil), modelW...)
	clipBox(w, lb, ub)
	for iter := 0; iter < be.iterations; iter++ {
		projectSum(w, budgetF, lb, ub)
		for _, g := range groups {
			projectGroup(w, idx, g, lb, ub)
		}
	}
	projectSum(w, budgetF, lb, ub)

	sum := 0.0
	for _, v := range w {
		sum += v
	}
	const tol = 1e-6
	if math.Abs(sum-budgetF) > tol {
		return nil, false
	}
	for _, g := range groups {
		gs := 0.0
		for _, id := range g.members {
			gs += w[idx[id]]
		}
		if gs > g.max+tol {
			return nil, false
		}
	}

	out := make(map[string]float64, n)
	for i, id := range ids {
		out[id] = w[i]
	}
	return out, true
}

func clipBox(w, lb, ub []float64) {
	for i := range w {
		if w[i] < lb[i] {
			w[i] = lb[i]
		}
		if w[i] > ub[i] {
			w[i] = ub[i]
		}
	}
}

// projectSum projects w onto {Σw=target} by repeatedly distributing the
// residual across variables not already pinned at a bound, then reclipping.
func projectSum(w []float64, target float64, lb, ub []float64) {
	const eps = 1e-12
	for pass := 0; pass < 50; pass++ {
		sum := 0.0
		free := 0
		for i := range w {
			sum += w[i]
			if w[i] > lb[i]+eps && w[i] < ub[i]-eps {
				free++
			}
		}
		diff := target - sum
		if math.Abs(diff) < 1e-9 || free == 0 {
			clipBox(w, lb, ub)
			return
		}
		share := diff / float64(free)
		for i := range w {
			if w[i] > lb[i]+eps && w[i] < ub[i]-eps {
				w[i] += share
			}
		}
		clipBox(w, lb, ub)
	}
}

// projectGroup scales a group's members down to its cap when breached,
// clamping at each member's lower bound.
func projectGroup(w []float64, idx map[string]int, g group, lb, ub []float64) {
	sum := 0.0
	for _, id := range g.members {
		sum += w[idx[id]]
	}
	if sum <= g.max {
		return
	}
	factor := 0.0
	if sum > 0 {
		factor = g.max / sum
	}
	for _, id := range g.members {
		i := idx[id]
		w[i] *= factor
		if w[i] < lb[i] {
			w[i] = lb[i]
		}
	}
}

var solverPreferenceOrder = []solverBackend{
	{name: "OSQP", iterations: 200},
	{name: "SCS", iterations: 600},
}

func generateSolver(in Input) model.TargetResult {
	cands, reservedCash := buildCandidates(in)
	b := partition(cands)

	if hints := checkInfeasibility(b, reservedCash, in.Options); len(hints) > 0 {
		status := "INFEASIBLE_" + strings.TrimPrefix(hints[0], "INFEASIBILITY_HINT_")
		return model.TargetResult{
			Method:       model.TargetSolver,
			SolverStatus: status,
			Hints:        hints,
			Blocked:      true,
			BlockReason:  status,
			Warnings:     append([]string{status}, hints...),
		}
	}

	frozenSum := decimal.Zero
	for _, c := range b.frozen {
		frozenSum = frozenSum.Add(c.current)
	}
	budget := decimal.NewFromInt(1).Sub(reservedCash).Sub(frozenSum)

	free := make([]candidate, 0, len(b.sellOnly)+len(b.eligible))
	free = append(free, b.sellOnly...)
	free = append(free, b.eligible...)
	groups := buildGroups(in.Options.GroupConstraints, free)

	var weights map[string]float64
	status := "SOLVER_ERROR"
	for _, be := range solverPreferenceOrder {
		w, ok := be.solve(free, budget, in.Options.SinglePositionMaxWeight, groups)
		if ok {
			weights = w
			status = "OPTIMAL"
			break
		}
		status = "INFEASIBLE_NOT_CONVERGED"
	}

	if weights == nil {
		return model.TargetResult{
			Method:       model.TargetSolver,
			SolverStatus: status,
			Blocked:      true,
			BlockReason:  status,
			Warnings:     []string{status},
		}
	}

	targets := map[string]decimal.Decimal{}
	modelWeight := map[string]decimal.Decimal{}
	reasons := map[string][]string{}
	for _, c := range cands {
		modelWeight[c.id] = c.modelWeight
	}
	for _, c := range b.frozen {
		targets[c.id] = c.current
		reasons[c.id] = append(reasons[c.id], "LOCKED_POSITION")
	}
	for _, c := range b.sellDown {
		targets[c.id] = decimal.Zero
		if !c.current.IsZero() {
			reasons[c.id] = append(reasons[c.id], "IMPLICIT_SELL_TO_ZERO")
		}
	}
	for id, w := range weights {
		d := decimal.NewFromFloat(w)
		targets[id] = d
		if d.IsZero() && !in.CurrentWeight[id].IsZero() {
			reasons[id] = append(reasons[id], "IMPLICIT_SELL_TO_ZERO")
		}
	}

	return model.TargetResult{
		Targets:      collectTargets(in.Universe, targets, modelWeight, reasons),
		Method:       model.TargetSolver,
		SolverStatus: status,
	}
}

// attachComparison runs the non-selected method's result alongside the
// primary and records divergence (spec §4.4 "dual-method comparison").
// primaryIsHeuristic tells us which comparison field the primary result
// belongs in.
func attachComparison(primary *model.TargetResult, in Input, other model.TargetResult, primaryIsHeuristic bool) {
	heuristicResult, solverResult := other, *primary
	if primaryIsHeuristic {
		heuristicResult, solverResult = *primary, other
	}

	otherByID := make(map[string]model.Target, len(other.Targets))
	for _, t := range other.Targets {
		otherByID[t.InstrumentID] = t
	}
	deltas := make(map[string]decimal.Decimal, len(primary.Targets))
	diverged := primary.Blocked != other.Blocked
	for _, t := range primary.Targets {
		o := otherByID[t.InstrumentID]
		delta := o.FinalWeight.Sub(t.FinalWeight)
		deltas[t.InstrumentID] = delta
		if money.Abs(delta).GreaterThan(in.Options.CompareTargetMethodsTolerance) {
			diverged = true
		}
	}

	primary.Comparison = &model.TargetMethodComparison{
		HeuristicStatus: statusLabel(heuristicResult),
		SolverStatus:    statusLabel(solverResult),
		WeightDeltas:    deltas,
		Diverged:        diverged,
	}
	if diverged {
		if statusLabel(heuristicResult) != statusLabel(solverResult) {
			primary.Warnings = append(primary.Warnings, "TARGET_METHOD_STATUS_DIVERGENCE")
		}
		primary.Warnings = append(primary.Warnings, "TARGET_METHOD_WEIGHT_DIVERGENCE")
	}
}

func statusLabel(r model.TargetResult) string {
	if r.Blocked {
		return "BLOCKED"
	}
	return "OK"
}
