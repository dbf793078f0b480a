// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runtime assembles the agent runtime daemon's components — LLM
// provider, memory, tool registry, sandbox, todo service, priority queue,
// and admission pipeline — and drains inbound turns to completion.
package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shuttleforge/agentrt/pkg/agent"
	agentconfig "github.com/shuttleforge/agentrt/pkg/config"
	"github.com/shuttleforge/agentrt/pkg/llm/anthropic"
	"github.com/shuttleforge/agentrt/pkg/llm/azureopenai"
	"github.com/shuttleforge/agentrt/pkg/llm/bedrock"
	"github.com/shuttleforge/agentrt/pkg/llm/gemini"
	"github.com/shuttleforge/agentrt/pkg/llm/huggingface"
	"github.com/shuttleforge/agentrt/pkg/llm/mistral"
	"github.com/shuttleforge/agentrt/pkg/llm/ollama"
	"github.com/shuttleforge/agentrt/pkg/llm/openai"
	"github.com/shuttleforge/agentrt/pkg/observability"
	"github.com/shuttleforge/agentrt/pkg/pipeline"
	"github.com/shuttleforge/agentrt/pkg/sandbox"
	"github.com/shuttleforge/agentrt/pkg/shuttle"
	"github.com/shuttleforge/agentrt/pkg/shuttle/builtin"
	"github.com/shuttleforge/agentrt/pkg/todo"
)

// Config controls how Runtime assembles its components.
type Config struct {
	DataDir       string
	LLMProvider   string
	Workers       int
	RateLimitRPS  float64
	SandboxImage  string
	EnableSandbox bool
}

// Runtime owns every long-lived component behind the agentrtd daemon.
type Runtime struct {
	cfg      Config
	logger   *zap.Logger
	loop     *agent.AgentLoop
	todos    *todo.Service
	queue    *pipeline.PriorityQueue
	pipe     *pipeline.Pipeline
	sandboxM *sandbox.ContainerManager
}

// New wires up an LLM provider, memory store, tool registry (plus an
// optional sandbox), todo service, AgentLoop, and admission Pipeline.
func New(cfg Config) (*Runtime, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("runtime: create logger: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = agentconfig.GetLoomDataDir()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("runtime: create data dir: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	tracer, err := observability.NewAutoSelectTracerFromEnv(logger)
	if err != nil {
		logger.Warn("runtime: falling back to no-op tracer", zap.Error(err))
		tracer = observability.NewNoOpTracer()
	}

	provider, err := newLLMProvider(cfg.LLMProvider)
	if err != nil {
		return nil, err
	}

	store, err := agent.NewSessionStore(filepath.Join(cfg.DataDir, "sessions.db"), tracer)
	if err != nil {
		return nil, fmt.Errorf("runtime: open session store: %w", err)
	}
	memory := agent.NewMemoryWithStore(store)

	registry := shuttle.NewRegistry()
	builtin.RegisterAll(registry)

	var sandboxMgr *sandbox.ContainerManager
	if cfg.EnableSandbox {
		sbCfg := sandbox.DefaultConfig()
		if cfg.SandboxImage != "" {
			sbCfg.ImageName = cfg.SandboxImage
		}
		sandboxMgr, err = sandbox.NewContainerManager(context.Background(), sbCfg, cfg.Workers, logger)
		if err != nil {
			return nil, fmt.Errorf("runtime: sandbox unavailable: %w", err)
		}
		builtin.RegisterSandbox(registry, sandboxMgr)
	}

	executor := shuttle.NewExecutor(registry)

	todoRepo, err := todo.NewRepository(&todo.RepositoryConfig{DBPath: filepath.Join(cfg.DataDir, "todo.db")})
	if err != nil {
		return nil, fmt.Errorf("runtime: open todo repository: %w", err)
	}
	todoSvc := todo.NewService(todoRepo, nil)

	loop := agent.NewAgentLoop(provider, memory, executor, todoSvc, agent.DefaultMaxTurns, tracer, logger)

	terminal := func(ctx context.Context, req *pipeline.ExecutionRequest) (*pipeline.ExecutionResult, error) {
		result, err := loop.Run(ctx, nil, req.Message.SessionID, req.Message.UserMessage)
		if err != nil {
			return nil, err
		}
		return &pipeline.ExecutionResult{Output: result}, nil
	}

	middlewares := []pipeline.Middleware{
		pipeline.Logging(logger),
		pipeline.Timing(),
		pipeline.Validation(),
		pipeline.Retry(2, 500*time.Millisecond),
	}
	if cfg.RateLimitRPS > 0 {
		middlewares = append(middlewares, pipeline.RateLimit(cfg.RateLimitRPS))
	}

	return &Runtime{
		cfg:      cfg,
		logger:   logger,
		loop:     loop,
		todos:    todoSvc,
		queue:    pipeline.NewPriorityQueue(nil),
		pipe:     pipeline.New(terminal, middlewares...),
		sandboxM: sandboxMgr,
	}, nil
}

// Close releases the runtime's Docker connection, if any.
func (r *Runtime) Close() error {
	if r.sandboxM == nil {
		return nil
	}
	return r.sandboxM.Close()
}

// turnRequest is one line of newline-delimited JSON read from stdin.
type turnRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Priority  int    `json:"priority"`
}

type turnResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Serve reads newline-delimited turn requests from stdin, admits each into
// the priority queue, and runs cfg.Workers goroutines draining it through
// the Pipeline. Results are written as newline-delimited JSON to stdout.
func (r *Runtime) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		outMu  sync.Mutex
		stdout = bufio.NewWriter(os.Stdout)
	)
	defer stdout.Flush()

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, err := r.queue.Dequeue(ctx)
				if err != nil {
					return
				}
				req := &pipeline.ExecutionRequest{Message: msg, Payload: msg}
				resp := turnResponse{SessionID: msg.SessionID}

				result, err := r.pipe.Run(ctx, req)
				if err != nil {
					resp.Status = "error"
					resp.Error = err.Error()
				} else if runResult, ok := result.Output.(*agent.RunResult); ok {
					resp.Status = string(runResult.Status)
					resp.Content = runResult.Content
				}

				encoded, _ := json.Marshal(resp)
				outMu.Lock()
				stdout.Write(encoded)
				stdout.WriteString("\n")
				stdout.Flush()
				outMu.Unlock()
			}
		}()
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req turnRequest
		if err := json.Unmarshal(line, &req); err != nil {
			r.logger.Warn("runtime: discarding malformed turn request", zap.Error(err))
			continue
		}
		r.queue.Enqueue(pipeline.QueuedMessage{
			SessionID:   req.SessionID,
			UserMessage: req.Message,
			Priority:    req.Priority,
		})
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		r.logger.Error("runtime: stdin scan failed", zap.Error(err))
	}

	cancel()
	wg.Wait()
	return nil
}

// newLLMProvider constructs the configured LLMProvider from environment
// credentials, mirroring each client's own env-var fallback conventions.
func newLLMProvider(name string) (agent.LLMProvider, error) {
	switch name {
	case "", "anthropic":
		return anthropic.NewClient(anthropic.Config{APIKey: os.Getenv("ANTHROPIC_API_KEY")}), nil
	case "openai":
		return openai.NewClient(openai.Config{APIKey: os.Getenv("OPENAI_API_KEY")}), nil
	case "gemini":
		return gemini.NewClient(gemini.Config{APIKey: os.Getenv("GEMINI_API_KEY")}), nil
	case "mistral":
		return mistral.NewClient(mistral.Config{APIKey: os.Getenv("MISTRAL_API_KEY")}), nil
	case "huggingface":
		return huggingface.NewClient(huggingface.Config{Token: os.Getenv("HUGGINGFACE_TOKEN")}), nil
	case "ollama":
		return ollama.NewClient(ollama.Config{Model: os.Getenv("OLLAMA_MODEL")}), nil
	case "bedrock":
		return bedrock.NewClient(bedrock.Config{})
	case "azureopenai":
		return azureopenai.NewClient(azureopenai.Config{APIKey: os.Getenv("AZURE_OPENAI_API_KEY")})
	default:
		return nil, fmt.Errorf("runtime: unknown llm provider %q", name)
	}
}
