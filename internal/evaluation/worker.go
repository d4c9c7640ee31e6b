package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentic-neurodata/nwbconvertd/internal/bus"
	"github.com/agentic-neurodata/nwbconvertd/internal/llm"
	"github.com/agentic-neurodata/nwbconvertd/internal/logging"
	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// WorkerName is the name this worker registers under on the Message Bus.
const WorkerName = "evaluation"

// ActionRunValidation is the only action this worker registers (spec §4.5).
const ActionRunValidation = "run_validation"

// RunValidationRequest is the payload for ActionRunValidation.
type RunValidationRequest struct {
	NWBPath string
	Trace   types.WorkflowTrace
}

// Worker implements the Evaluation Worker (spec §4.5).
type Worker struct {
	validator Validator
	completer llm.Completer
}

// NewWorker builds an Evaluation Worker and registers run_validation on b.
func NewWorker(b *bus.Bus, validator Validator, completer llm.Completer) *Worker {
	w := &Worker{validator: validator, completer: completer}
	b.Register(WorkerName, ActionRunValidation, w.handleRunValidation)
	return w
}

func (w *Worker) handleRunValidation(ctx context.Context, req bus.Request) (bus.Reply, error) {
	payload, ok := req.Payload.(RunValidationRequest)
	if !ok {
		return bus.Reply{}, fmt.Errorf("evaluation.run_validation: unexpected payload type %T", req.Payload)
	}

	issues, err := w.validator.Validate(ctx, payload.NWBPath)
	if err != nil {
		return bus.Reply{Success: false, Error: err.Error()}, nil
	}

	report := &types.ValidationReport{
		Outcome:             types.ClassifyOutcome(issues),
		Issues:              issues,
		IssuesBySeverity:    types.GroupBySeverity(issues),
		DandiReadinessScore: types.DandiReadinessScore(issues),
		WorkflowTrace:       payload.Trace,
	}
	if req.Snapshot != nil {
		report.MetadataWarnings = req.Snapshot.MetadataWarnings
	}

	w.enrichClusters(ctx, report)

	return bus.Reply{Success: true, Data: report}, nil
}

// clusterReply is the JSON shape the clustering prompt asks the model for.
type clusterReply struct {
	Clusters []struct {
		IssueIDs    []string `json:"issue_ids"`
		Explanation string   `json:"explanation"`
	} `json:"clusters"`
}

const clusterSystemPrompt = "You group NWB/DANDI validation issues that share a root cause and explain each " +
	"group in one plain-language sentence. Reply with JSON only: " +
	`{"clusters":[{"issue_ids":["..."],"explanation":"..."}]}. ` +
	"Every issue ID must appear in exactly one cluster."

// enrichClusters is the best-effort clustering/explanation pass of spec
// §4.5 step 5. It mutates report in place and never fails the validation run:
// absent an LLM, or on any parse/call error, report.Clusters stays empty and
// report.Issues keep their un-clustered ClusterID ("").
func (w *Worker) enrichClusters(ctx context.Context, report *types.ValidationReport) {
	if len(report.Issues) == 0 {
		return
	}

	prompt, idx := clusteringPrompt(report.Issues)
	reply, err := w.completer.Complete(ctx, clusterSystemPrompt, prompt)
	if err != nil {
		if !llm.IsUnavailable(err) {
			logging.Warn().Err(err).Msg("LLM issue clustering failed, issues stay unclustered")
		}
		return
	}

	var parsed clusterReply
	if jerr := json.Unmarshal([]byte(llm.ExtractJSONObject(reply)), &parsed); jerr != nil {
		logging.Warn().Err(jerr).Msg("LLM issue clustering reply unparseable, issues stay unclustered")
		return
	}

	clusters := make([]types.IssueCluster, 0, len(parsed.Clusters))
	for i, c := range parsed.Clusters {
		valid := make([]string, 0, len(c.IssueIDs))
		for _, id := range c.IssueIDs {
			if _, ok := idx[id]; ok {
				valid = append(valid, id)
			}
		}
		if len(valid) == 0 {
			continue
		}
		clusterID := fmt.Sprintf("cluster-%d", i+1)
		clusters = append(clusters, types.IssueCluster{ID: clusterID, IssueIDs: valid, Explanation: c.Explanation})
		for _, id := range valid {
			report.Issues[idx[id]].ClusterID = clusterID
		}
	}
	report.Clusters = clusters
}

func clusteringPrompt(issues []types.ValidationIssue) (string, map[string]int) {
	idx := make(map[string]int, len(issues))
	var b strings.Builder
	for i, issue := range issues {
		idx[issue.ID] = i
		fmt.Fprintf(&b, "%s [%s] %s: %s\n", issue.ID, issue.Severity, issue.CheckName, issue.Message)
	}
	return b.String(), idx
}

