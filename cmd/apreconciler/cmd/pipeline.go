package cmd

import (
	pkgerrors "invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"

	"invoice-reconciliation-service/cmd/apreconciler/config"
	"invoice-reconciliation-service/internal/matching"
	"invoice-reconciliation-service/internal/risk"
	"invoice-reconciliation-service/internal/store"
	"invoice-reconciliation-service/internal/workflow"
)

// buildPipeline wires the store and the coordinators into a workflow engine.
// The caller owns the returned store and must close it.
func buildPipeline(cfg *config.Config) (*store.Store, *workflow.Engine, error) {
	log := logger.GetGlobalLogger()

	st, err := store.Open(cfg.DatabasePath, log)
	if err != nil {
		return nil, nil, pkgerrors.StorageError(pkgerrors.CodeOpenFailed, cfg.DatabasePath, err)
	}

	// No reasoning collaborator is wired by default; ambiguous matches keep
	// their algorithmic classification.
	matcher := matching.NewCoordinator(st, st, nil, cfg.MatchingConfig(), log)
	risks := risk.NewCoordinator(st, st, cfg.RiskConfig(), log)
	engine := workflow.NewEngine(st, st, matcher, risks, cfg.WorkflowConfig(), log)

	return st, engine, nil
}
