package cmd

import (
	"reconciliation-engine/internal/advisor"
	"reconciliation-engine/internal/history"
	"reconciliation-engine/internal/patterns"
	"reconciliation-engine/internal/reporter"
	"reconciliation-engine/internal/storage/sqlite"
	"reconciliation-engine/pkg/errors"
	"reconciliation-engine/pkg/logger"
)

// app holds the services one command invocation works with
type app struct {
	store    *sqlite.Store
	history  *history.Service
	patterns *patterns.Service
	advisor  *advisor.Advisor
	report   *reporter.SafeReportGenerator
	logger   logger.Logger
}

// openApp opens the database and wires the services on top of it
func openApp() (*app, error) {
	if appConfig == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "config", nil, nil)
	}

	log := logger.GetGlobalLogger().WithComponent("cli")

	report, err := reporter.NewSafeReportGenerator(appConfig.ReportConfig(), log)
	if err != nil {
		return nil, err
	}

	opts, err := appConfig.HistoryOptions()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(appConfig.Database)
	if err != nil {
		return nil, errors.InternalError(errors.CodeStorageFailure, "open database", err).
			WithContext("database", appConfig.Database).
			WithSuggestion("Check that the database directory exists and is writable")
	}

	auditor := appConfig.Auditor(store)

	historyService, err := history.NewService(store, auditor, opts)
	if err != nil {
		store.Close()
		return nil, err
	}

	log.WithFields(logger.Fields{
		"database":  appConfig.Database,
		"company":   appConfig.Company,
		"encrypted": opts.Cipher.Enabled(),
		"audit":     appConfig.Audit,
	}).Debug("Opened reconciler database")

	return &app{
		store:    store,
		history:  historyService,
		patterns: patterns.NewService(store, auditor),
		advisor:  advisor.NewAdvisor(store),
		report:   report,
		logger:   log,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
