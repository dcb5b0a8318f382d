// Package report renders terminal workflow states for human and programmatic
// consumption.
//
// Supported output formats:
//   - Console: human-readable summary for terminal display
//   - JSON: structured format for programmatic consumption
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"invoice-reconciliation-service/internal/workflow"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON:
		return true
	default:
		return false
	}
}

// Reporter renders workflow states to a writer
type Reporter struct {
	out io.Writer
}

// NewReporter creates a reporter writing to the given destination
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Write renders one terminal workflow state in the requested format
func (r *Reporter) Write(state *workflow.WorkflowState, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return r.writeJSON(state)
	case FormatConsole:
		return r.writeConsole(state)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func (r *Reporter) writeJSON(state *workflow.WorkflowState) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}

func (r *Reporter) writeConsole(state *workflow.WorkflowState) error {
	var b strings.Builder

	b.WriteString(separator())
	b.WriteString(fmt.Sprintf("Invoice %s\n", state.InvoiceID))
	b.WriteString(separator())
	b.WriteString(fmt.Sprintf("Status:      %s\n", state.Status))
	b.WriteString(fmt.Sprintf("Decision:    %s\n", state.Decision))
	if state.DecisionReason != "" {
		b.WriteString(fmt.Sprintf("Reason:      %s\n", state.DecisionReason))
	}
	b.WriteString(fmt.Sprintf("Manual review: %v\n", state.RequiresManualReview))

	if m := state.Matching; m != nil {
		b.WriteString("\nMatching\n")
		b.WriteString(fmt.Sprintf("  Matched:     %v (%s)\n", m.Matched, m.MatchType))
		if m.PONumber != "" {
			b.WriteString(fmt.Sprintf("  PO:          %s (vendor %s)\n", m.PONumber, m.VendorName))
		}
		b.WriteString(fmt.Sprintf("  Scores:      overall=%.3f vendor=%.2f amount=%.2f date=%.2f lines=%.2f\n",
			m.Scores.Overall, m.Scores.Vendor, m.Scores.Amount, m.Scores.Date, m.Scores.LineItem))
		if m.ReasonerConsulted {
			b.WriteString(fmt.Sprintf("  Reasoner:    consulted, verdict=%s (algorithmic type %s)\n",
				m.ReasonerVerdict, m.AlgorithmicType))
		}
		for _, d := range m.Discrepancies {
			b.WriteString(fmt.Sprintf("  [%s] %s: %s\n", d.Severity, d.Type, d.Description))
		}
	}

	if rk := state.Risk; rk != nil {
		b.WriteString("\nRisk\n")
		b.WriteString(fmt.Sprintf("  Score:       %.3f (%s), action %s\n", rk.OverallScore, rk.Level, rk.RecommendedAction))
		for _, f := range rk.Flags {
			b.WriteString(fmt.Sprintf("  [%s] %s: %s (confidence %.2f)\n", f.Severity, f.Type, f.Evidence, f.Confidence))
		}
		if len(rk.DegradedDetectors) > 0 {
			b.WriteString(fmt.Sprintf("  Degraded:    %s\n", strings.Join(rk.DegradedDetectors, ", ")))
		}
	}

	if len(state.RecommendedActions) > 0 {
		b.WriteString("\nRecommended actions\n")
		for _, a := range state.RecommendedActions {
			b.WriteString(fmt.Sprintf("  - %s\n", a))
		}
	}

	b.WriteString("\nStages\n")
	for _, stage := range state.Stages {
		status := "ok"
		if !stage.Succeeded {
			status = "FAILED: " + stage.Error
		}
		b.WriteString(fmt.Sprintf("  %-12s %8s  %s\n", stage.Stage, stage.Duration.Round(time.Millisecond).String(), status))
	}
	b.WriteString(separator())

	_, err := io.WriteString(r.out, b.String())
	return err
}

func separator() string {
	return strings.Repeat("=", 64) + "\n"
}
