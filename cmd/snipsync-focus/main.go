package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/matthock/snipsync/internal/backend"
	"github.com/matthock/snipsync/internal/capture"
	"github.com/matthock/snipsync/internal/config"
	"github.com/matthock/snipsync/internal/jira"
	"github.com/matthock/snipsync/internal/lifecycle"
	"github.com/matthock/snipsync/internal/store"
	"github.com/matthock/snipsync/internal/tui"
)

func main() {
	cfg := config.Load()

	// The terminal belongs to the UI; logs go to a sidecar file.
	zapCfg := zap.NewProductionConfig()
	zapCfg.OutputPaths = []string{cfg.StatePath + ".log"}
	zapCfg.ErrorOutputPaths = zapCfg.OutputPaths
	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	stateStore, err := store.Open(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open state store: %v\n", err)
		os.Exit(1)
	}
	defer stateStore.Close()

	resolve := config.NewBackendResolver(stateStore, cfg.BackendURL)
	backendClient := backend.NewClient(backend.Resolver(resolve), logger)

	jiraClient, err := jira.NewClient(jira.Config{
		BaseURL:    cfg.JiraBaseURL,
		Username:   cfg.JiraUsername,
		Token:      cfg.JiraToken,
		AuthMode:   cfg.JiraAuthMode,
		ProjectKey: cfg.JiraProjectKey,
		IssueType:  cfg.JiraIssueType,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create jira client: %v\n", err)
		os.Exit(1)
	}

	service := lifecycle.NewService(stateStore, backendClient, jiraClient, logger)

	// The focus surface is itself the fallback confirmation surface, so it
	// probes no further surface and keeps drafts local.
	flow := capture.NewFlow(stateStore, backendClient, nil, nil, logger)

	if err := tui.Run(service, flow, logger); err != nil {
		fmt.Fprintf(os.Stderr, "focus surface failed: %v\n", err)
		os.Exit(1)
	}
}
