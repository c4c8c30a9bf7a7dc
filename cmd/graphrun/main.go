// graphrun runs a workflow document from a JSON file and prints the
// run result as JSON on stdout.
//
// Run: go run ./cmd/graphrun -file examples/text-pipeline.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rendis/graphrun/internal/diagram"
	"github.com/rendis/graphrun/internal/logging"
	"github.com/rendis/graphrun/internal/store"
	"github.com/rendis/graphrun/internal/validation"
	"github.com/rendis/graphrun/pkg/engine"
	"github.com/rendis/graphrun/pkg/schema"
	"github.com/rendis/graphrun/pkg/templates"
)

func main() {
	var (
		file         = flag.String("file", "", "path to the workflow document (JSON)")
		varsJSON     = flag.String("vars", "", "run variables as a JSON object")
		dbPath       = flag.String("db", "", "record runs in a libSQL database at this path")
		logLevel     = flag.String("log-level", "info", "log level: debug, info, warn, error")
		validateOnly = flag.Bool("validate", false, "validate the document and graph, then exit")
		mermaid      = flag.Bool("mermaid", false, "print a Mermaid diagram of the run on stderr")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: graphrun -file <workflow.json> [-vars '{...}'] [-db runs.db] [-validate]")
		os.Exit(2)
	}

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	if err := run(context.Background(), logger, *file, *varsJSON, *dbPath, *validateOnly, *mermaid); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, file, varsJSON, dbPath string, validateOnly, mermaid bool) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read workflow file: %w", err)
	}

	var doc schema.WorkflowDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse workflow file: %w", err)
	}

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return fmt.Errorf("init document validator: %w", err)
	}
	if err := validator.ValidateDocument(&doc); err != nil {
		return err
	}

	graph, err := schema.BuildGraph(&doc)
	if err != nil {
		return err
	}

	if validateOnly {
		if err := engine.Validate(graph); err != nil {
			return err
		}
		fmt.Printf("workflow %s is valid (%d nodes, %d edges)\n", doc.ID, len(graph.Nodes), len(graph.Edges))
		return nil
	}

	registry := templates.NewRegistry()
	if err := templates.RegisterBuiltins(registry); err != nil {
		return fmt.Errorf("register templates: %w", err)
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithConfigValidation(validator),
	}

	if varsJSON != "" {
		vars := map[string]any{}
		if err := json.Unmarshal([]byte(varsJSON), &vars); err != nil {
			return fmt.Errorf("parse -vars: %w", err)
		}
		opts = append(opts, engine.WithVariables(vars))
	}

	if dbPath != "" {
		rs, err := store.NewRunStore("file:" + dbPath)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer rs.Close()
		if err := rs.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate run store: %w", err)
		}
		opts = append(opts, engine.WithRecorder(rs))
	}

	exec := engine.NewExecutor(doc.ID, registry, opts...)
	result := exec.ExecuteWorkflow(ctx, graph)

	if mermaid {
		fmt.Fprintln(os.Stderr, diagram.RenderMermaid(graph, result.Results))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("render result: %w", err)
	}
	fmt.Println(string(out))

	if !result.Success {
		return fmt.Errorf("workflow %s failed: %s", result.WorkflowID, result.Error.Error())
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
