// flowgate command line entry point.
//
// Usage:
//
//	flowgate run --flow flow.json --query "hello"     # execute a workflow
//	flowgate run --flow flow.json --resume state.json # resume a paused run
//	flowgate version                                  # show version info
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/flowgate/config"
	"github.com/BaSui01/flowgate/internal/metrics"
	"github.com/BaSui01/flowgate/llm"
	"github.com/BaSui01/flowgate/llm/tokenizer"
	"github.com/BaSui01/flowgate/store"
	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
	"github.com/BaSui01/flowgate/workflow/nodes"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runFlow(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// flowFile is the on-disk workflow format.
type flowFile struct {
	Nodes []workflow.NodeDefinition `json:"nodes"`
	Edges []workflow.EdgeDefinition `json:"edges"`
}

func runFlow(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	flowPath := fs.String("flow", "", "Path to the workflow JSON file")
	query := fs.String("query", "", "User query to dispatch")
	chatID := fs.String("chat", "local", "Chat id")
	variables := fs.String("variables", "", "Global variables as JSON object")
	resumePath := fs.String("resume", "", "Path to a saved interactive state to resume")
	statePath := fs.String("state", "flowgate-state.json", "Where to save interactive state on suspension")
	stream := fs.Bool("stream", true, "Stream assistant output")
	fs.Parse(args)

	if *flowPath == "" {
		fmt.Fprintln(os.Stderr, "run requires --flow")
		os.Exit(1)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.BuildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting flowgate",
		zap.String("version", Version),
		zap.String("flow", *flowPath),
	)

	data, err := os.ReadFile(*flowPath)
	if err != nil {
		logger.Fatal("read flow file", zap.Error(err))
	}
	var flow flowFile
	if err := json.Unmarshal(data, &flow); err != nil {
		logger.Fatal("parse flow file", zap.Error(err))
	}

	registry := nodes.NewRegistry(nodes.Services{
		Chat:                buildChatClient(cfg, logger),
		HTTPClient:          &http.Client{Timeout: cfg.Tool.RequestTimeout},
		ToolRate:            rate.Limit(cfg.Tool.RatePerHost),
		ToolBurst:           cfg.Tool.Burst,
		Tokenizer:           tokenizer.NewTiktoken(cfg.LLM.Model),
		PointsPerKiloTokens: cfg.Engine.PointsPerKiloTokens,
		Logger:              logger,
	})

	graph, err := workflow.Compile(flow.Nodes, flow.Edges, registry)
	if err != nil {
		logger.Fatal("compile workflow", zap.Error(err))
	}

	dispatcher := workflow.NewDispatcher(registry, logger,
		workflow.WithMetrics(metrics.NewCollector("flowgate", nil, logger)),
	)

	req := &workflow.DispatchRequest{
		ChatID:      *chatID,
		AppID:       "cli",
		Timezone:    cfg.Engine.Timezone,
		Query:       *query,
		Stream:      *stream,
		MaxRunTimes: cfg.Engine.MaxRunTimes,
		ChatConfig:  workflow.ChatConfig{NodeTimeout: cfg.Engine.NodeTimeout},
		StreamHandler: func(ev workflow.StreamEvent) {
			if ev.Type == workflow.EventAnswerDelta {
				fmt.Print(ev.Text)
			}
		},
	}
	if *variables != "" {
		if err := json.Unmarshal([]byte(*variables), &req.Variables); err != nil {
			logger.Fatal("parse variables", zap.Error(err))
		}
	}
	if *resumePath != "" {
		st, err := loadState(cfg, *chatID, *resumePath)
		if err != nil {
			logger.Fatal("load interactive state", zap.Error(err))
		}
		req.ResumeState = st
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := dispatcher.Dispatch(ctx, graph, req)
	fmt.Println()
	if err != nil {
		// Failed runs still persist their partial responses and spend.
		persistTurn(cfg, logger, req, result, err)
		logger.Fatal("dispatch failed", zap.Error(err))
	}

	if result.Interactive != nil {
		if err := saveState(cfg, *chatID, *statePath, result.Interactive); err != nil {
			logger.Fatal("save interactive state", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Run suspended waiting for input. Resume with --resume and the missing values in --variables.")
		for _, f := range result.Interactive.Form {
			marker := ""
			if f.Required {
				marker = " (required)"
			}
			fmt.Fprintf(os.Stderr, "  %s: %s%s\n", f.Key, f.Label, marker)
		}
		return
	}

	persistTurn(cfg, logger, req, result, nil)

	logger.Info("dispatch finished",
		zap.Int("responses", len(result.FlowResponses)),
		zap.Float64("duration_seconds", result.DurationSeconds),
	)
}

// buildChatClient selects the configured provider, falling back to the
// offline static client when no endpoint is set.
func buildChatClient(cfg *config.Config, logger *zap.Logger) llm.ChatClient {
	if cfg.LLM.BaseURL == "" {
		logger.Warn("no llm base_url configured, using static responses")
		return &llm.StaticClient{Response: "flowgate is running without an LLM provider."}
	}
	return llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, &http.Client{Timeout: cfg.LLM.Timeout})
}

// loadState reads a suspension from Redis when configured, else from the
// local state file written by the previous invocation.
func loadState(cfg *config.Config, chatID, path string) (*workflow.InteractiveState, error) {
	if suspend, err := store.NewSuspendStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.SuspendTTL); err == nil {
		defer suspend.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if st, err := suspend.Consume(ctx, chatID); err == nil {
			return st, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return workflow.UnmarshalInteractiveState(data)
}

func saveState(cfg *config.Config, chatID, path string, st *workflow.InteractiveState) error {
	if suspend, err := store.NewSuspendStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.SuspendTTL); err == nil {
		defer suspend.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := suspend.Save(ctx, chatID, st); err == nil {
			return nil
		}
	}
	data, err := st.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// persistTurn saves the turn when a database is configured, including
// failed runs so partial responses and spend are not lost. Uses its own
// context so a canceled dispatch still persists. Persistence failures are
// logged, never fatal.
func persistTurn(cfg *config.Config, logger *zap.Logger, req *workflow.DispatchRequest, result *workflow.DispatchResult, dispatchErr error) {
	if result == nil {
		return
	}
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		logger.Warn("database not available, turn not persisted", zap.Error(err))
		return
	}

	var reply strings.Builder
	for _, c := range result.AssistantResponses {
		if c.Type == types.ContentTypeText && c.Text != nil {
			reply.WriteString(c.Text.Content)
		}
	}
	turn := &store.ChatTurn{
		ChatID:        req.ChatID,
		AppID:         req.AppID,
		TeamID:        req.TeamID,
		Query:         req.Query,
		Response:      reply.String(),
		ResponsesJSON: store.EncodeResponses(result.FlowResponses),
	}
	if dispatchErr != nil {
		turn.ErrorMsg = dispatchErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.NewChatStore(db).SaveTurn(ctx, turn, result.FlowUsages); err != nil {
		logger.Warn("persist chat turn", zap.Error(err))
	}
}

func printVersion() {
	fmt.Printf("flowgate %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`flowgate - workflow dispatch engine

Usage:
  flowgate run --flow flow.json --query "hello"   Execute a workflow
  flowgate run --flow flow.json --resume state    Resume a suspended run
  flowgate version                                Show version information
  flowgate help                                   Show this help`)
}
