// Package audit checks that no row or execution crosses tenant boundaries.
// Checks are read-only and advisory: a failing report never mutates data.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/relayforge/relayforge/pkg/persistence"
)

// tenantScopedTables are the tables every row of which must carry a tenant key.
var tenantScopedTables = []string{
	"workflows",
	"workflow_executions",
	"connector_installations",
}

// TableFinding reports rows in one table that are missing a tenant key.
type TableFinding struct {
	Table     string `json:"table"`
	NullCount int64  `json:"null_count"`
}

// Report is the outcome of one audit run.
type Report struct {
	RanAt                time.Time      `json:"ran_at"`
	Passed               bool           `json:"passed"`
	SegmentationFindings []TableFinding `json:"segmentation_findings,omitempty"`
	CrossTenantRuns      []string       `json:"cross_tenant_runs,omitempty"`
	Errors               []string       `json:"errors,omitempty"`
}

type Auditor struct {
	repository persistence.AuditRepository
	logger     *slog.Logger
}

func NewAuditor(repository persistence.AuditRepository, logger *slog.Logger) *Auditor {
	return &Auditor{
		repository: repository,
		logger:     logger.With("module", "audit"),
	}
}

// Run performs the segmentation and cross-tenant checks. A query error marks
// the report failed rather than aborting the remaining checks.
func (a *Auditor) Run(ctx context.Context) Report {
	report := Report{
		RanAt:  time.Now().UTC(),
		Passed: true,
	}

	for _, table := range tenantScopedTables {
		count, err := a.repository.NullTenantCount(ctx, table)
		if err != nil {
			a.logger.ErrorContext(ctx, "Segmentation check failed to run", "table", table, "error", err)
			report.Errors = append(report.Errors, "segmentation check on "+table+": "+err.Error())
			report.Passed = false

			continue
		}

		if count > 0 {
			a.logger.WarnContext(ctx, "Rows without tenant key detected", "table", table, "count", count)
			report.SegmentationFindings = append(report.SegmentationFindings, TableFinding{Table: table, NullCount: count})
			report.Passed = false
		}
	}

	crossTenant, err := a.repository.CrossTenantWorkflowExecutions(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "Cross-tenant check failed to run", "error", err)
		report.Errors = append(report.Errors, "cross-tenant check: "+err.Error())
		report.Passed = false
	} else if len(crossTenant) > 0 {
		a.logger.WarnContext(ctx, "Executions crossing tenant boundaries detected", "count", len(crossTenant))
		report.CrossTenantRuns = crossTenant
		report.Passed = false
	}

	return report
}

// Summary flattens a report into the map shape activity results use.
func (r Report) Summary() map[string]any {
	summary := map[string]any{
		"passed": r.Passed,
		"ran_at": r.RanAt.Format(time.RFC3339),
	}

	if len(r.SegmentationFindings) > 0 {
		findings := make([]any, 0, len(r.SegmentationFindings))
		for _, finding := range r.SegmentationFindings {
			findings = append(findings, map[string]any{
				"table":      finding.Table,
				"null_count": finding.NullCount,
			})
		}

		summary["segmentation_findings"] = findings
	}

	if len(r.CrossTenantRuns) > 0 {
		summary["cross_tenant_runs"] = r.CrossTenantRuns
	}

	if len(r.Errors) > 0 {
		summary["errors"] = r.Errors
	}

	return summary
}
