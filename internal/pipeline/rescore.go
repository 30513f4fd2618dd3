package pipeline

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/model"
)

// OutputsFromRecords rebuilds phase outputs from persisted phase artifacts.
// Skipped and null records leave their phase nil.
func OutputsFromRecords(recs []model.PhaseRecord) (model.PhaseOutputs, error) {
	var out model.PhaseOutputs
	for _, rec := range recs {
		if rec.Skipped || len(rec.Data) == 0 || string(rec.Data) == "null" {
			continue
		}
		var dst any
		switch rec.Phase {
		case model.PhaseIdentity:
			out.Identity = &model.IdentityArtifact{}
			dst = out.Identity
		case model.PhasePresence:
			out.Presence = &model.PresenceArtifact{}
			dst = out.Presence
		case model.PhaseMarketing:
			out.Marketing = &model.MarketingArtifact{}
			dst = out.Marketing
		case model.PhaseCompetitor:
			out.Competitor = &model.CompetitorArtifact{}
			dst = out.Competitor
		default:
			continue
		}
		if err := json.Unmarshal(rec.Data, dst); err != nil {
			return out, eris.Wrapf(err, "pipeline: decode %s artifact", rec.Phase)
		}
	}
	return out, nil
}

// Rescore consolidates the stored phase artifacts of runID again with the
// current scoring weights. The report is returned but not saved.
func (o *Orchestrator) Rescore(ctx context.Context, runID string) (*model.Report, error) {
	if o.store == nil {
		return nil, eris.New("pipeline: rescore requires a store")
	}
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: rescore %s", runID)
	}
	recs, err := o.store.ListPhaseArtifacts(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: rescore %s", runID)
	}
	out, err := OutputsFromRecords(recs)
	if err != nil {
		return nil, err
	}

	rep := o.consolidator.Consolidate(ctx, out)
	rep.RunID = run.ID
	rep.Target = run.Input.Target()
	return rep, nil
}
