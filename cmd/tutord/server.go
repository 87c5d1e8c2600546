package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tutorkit/tutord/internal/api"
	"github.com/tutorkit/tutord/internal/config"
	"github.com/tutorkit/tutord/internal/diagnosis"
	"github.com/tutorkit/tutord/internal/llm"
	"github.com/tutorkit/tutord/internal/performance"
	"github.com/tutorkit/tutord/internal/pipeline"
	"github.com/tutorkit/tutord/internal/policy"
	"github.com/tutorkit/tutord/internal/profile"
	"github.com/tutorkit/tutord/internal/quality"
	"github.com/tutorkit/tutord/internal/quiz"
	"github.com/tutorkit/tutord/internal/retrieval"
	"github.com/tutorkit/tutord/internal/session"
	"github.com/tutorkit/tutord/internal/storage"
)

// updaterQueueSize bounds the async performance update queue.
const updaterQueueSize = 256

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tutord server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running tutord server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tutord system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "tutord.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "tutord version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Server.APIToken == "" {
		return fmt.Errorf("server.api_token is required (set TUTORD_SERVER_API_TOKEN)")
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to double-start: probe the health endpoint first.
	pidPath := pidFilePath(cfg.Server.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("tutord is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("tutord is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := llm.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.ChatModel, cfg.LLM.EmbedModel)

	mongoClient, err := storage.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		return fmt.Errorf("connecting to mongo: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: disconnecting mongo: %v\n", err)
		}
	}()
	db := mongoClient.Database(cfg.Mongo.Database)
	students := storage.NewStudents(db)
	summaries := storage.NewSummaries(db)

	// Retrieval and diagnosis.
	embedder := retrieval.NewEmbedder(client)
	index := retrieval.NewMongoIndex(db, cfg.Mongo.VectorIndex)
	retriever := retrieval.NewRetriever(embedder, index, cfg.Retrieval.Threshold)
	diagnoser := diagnosis.NewDiagnoser(client)
	profiles := profile.NewEngine(students)

	// Policy: learned weights live in a local SQLite file.
	weights, err := policy.OpenWeights(cfg.Server.DataDir)
	if err != nil {
		return fmt.Errorf("opening policy weights: %w", err)
	}
	defer func() {
		if err := weights.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing policy weights: %v\n", err)
		}
	}()
	pol := policy.NewEpsilonGreedy(weights, cfg.Policy.Epsilon)
	optimizer := policy.NewOptimizer(client)
	trainer := policy.NewTrainer(weights, cfg.Policy.LearningRate)

	// Performance monitoring: async folds plus a cached overview.
	aggregator := performance.NewAggregator(summaries)
	updater := performance.NewUpdater(aggregator, updaterQueueSize)
	go updater.Run(ctx)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		slog.Info("overview cache enabled", "addr", cfg.Redis.Addr)
	}
	registry := performance.NewRegistry(summaries, redisClient)

	tutor := pipeline.NewTutor(pipeline.Deps{
		Retriever:   retriever,
		Chatter:     client,
		Diagnoser:   diagnoser,
		Scorer:      quality.NewScorer(client),
		Profiles:    profiles,
		Policy:      pol,
		Rewriter:    optimizer,
		Turns:       students,
		Quizzes:     quiz.NewGenerator(client),
		QuizRuns:    quiz.NewSessions(),
		Sessions:    session.NewStore(),
		Performance: updater,
		Recorder:    aggregator,
		Trainer:     trainer,
		TopK:        cfg.Retrieval.TopK,
	})

	apiHandler := api.NewHandler(api.Deps{
		Tutor:     tutor,
		Profiles:  profiles,
		Reports:   aggregator,
		Overviews: registry,
		Token:     cfg.Server.APIToken,
	})

	topRouter := chi.NewRouter()
	topRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	topRouter.Mount("/", apiHandler)

	// MCP server on stdio for agent frontends.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Tutor:     tutor,
		Retriever: retriever,
		Profiles:  profiles,
		Overviews: registry,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: topRouter,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "tutord listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Server.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("tutord is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop tutord (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to tutord (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Chat model", "%s", cfg.LLM.ChatModel)
	printStatus("Embed model", "%s", cfg.LLM.EmbedModel)
	printStatus("Mongo", "%s/%s", cfg.Mongo.URI, cfg.Mongo.Database)
	if cfg.Redis.Addr != "" {
		printStatus("Redis", "%s", cfg.Redis.Addr)
	} else {
		printStatus("Redis", "disabled")
	}
	printStatus("Data dir", "%s", cfg.Server.DataDir)
	return nil
}
