package supportability

import "context"

// Bundle is the denormalized support-bundle read model (a supplemented
// feature beyond spec.md's distillation: original_source/ exposes a single
// "case export" view joining a run with everything an operator needs to
// diagnose it, without separate round trips). It is assembled, never
// persisted, from the Store's individual records.
type Bundle struct {
	Run               Run
	Artifacts         []RunArtifact
	IdempotencyRecord *IdempotencyRecord
	IdempotencyHistory []IdempotencyRecord
	WorkflowDecisions []WorkflowDecision
	LineageEdges      []LineageEdge
}

// BuildBundle assembles a Bundle for runID by joining across the store's
// tables. A missing idempotency record is not an error — most runs are
// never replayed — but a missing Run is.
func BuildBundle(ctx context.Context, store Store, runID string) (Bundle, error) {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return Bundle{}, err
	}

	bundle := Bundle{Run: run}

	for _, name := range []string{"request", "result", "report"} {
		artifact, err := store.GetRunArtifact(ctx, runID, name)
		if err == nil {
			bundle.Artifacts = append(bundle.Artifacts, artifact)
		} else if err != ErrNotFound {
			return Bundle{}, err
		}
	}

	if run.IdempotencyKey != "" {
		if rec, err := store.GetIdempotencyByKey(ctx, run.IdempotencyKey); err == nil {
			bundle.IdempotencyRecord = &rec
		} else if err != ErrNotFound {
			return Bundle{}, err
		}
		history, err := store.ListIdempotencyHistory(ctx, run.IdempotencyKey)
		if err != nil {
			return Bundle{}, err
		}
		bundle.IdempotencyHistory = history
	}

	decisions, err := store.ListWorkflowDecisionsByRun(ctx, runID)
	if err != nil {
		return Bundle{}, err
	}
	bundle.WorkflowDecisions = decisions

	edges, err := store.ListLineageEdges(ctx, runID)
	if err != nil {
		return Bundle{}, err
	}
	bundle.LineageEdges = edges

	return bundle, nil
}
