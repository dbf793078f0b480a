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

// Command agentrtd runs the conversational-agent runtime: a priority queue
// of inbound turns, a Pipeline of admission middleware, and an AgentLoop
// worker pool draining it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shuttleforge/agentrt/internal/runtime"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("AGENTRT")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "agentrtd",
		Short: "agentrtd runs the agent runtime daemon",
	}

	root.AddCommand(newServeCmd(v))
	return root
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	var (
		dataDir       string
		llmProvider   string
		workers       int
		rps           float64
		sandboxImage  string
		enableSandbox bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "drain the priority queue, running each turn through the admission pipeline and AgentLoop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := runtime.Config{
				DataDir:       firstNonEmpty(dataDir, v.GetString("data_dir")),
				LLMProvider:   firstNonEmpty(llmProvider, v.GetString("llm_provider")),
				Workers:       workers,
				RateLimitRPS:  rps,
				SandboxImage:  sandboxImage,
				EnableSandbox: enableSandbox,
			}
			rt, err := runtime.New(cfg)
			if err != nil {
				return fmt.Errorf("agentrtd: initialize runtime: %w", err)
			}
			defer rt.Close()

			return rt.Serve(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dataDir, "data-dir", "", "directory for session/todo databases (default: $AGENTRT_DATA_DIR, then $LOOM_DATA_DIR, then ~/.loom)")
	flags.StringVar(&llmProvider, "llm-provider", "anthropic", "LLM provider backing the agent loop (anthropic, openai, gemini, bedrock, mistral, ollama, azureopenai, huggingface)")
	flags.IntVar(&workers, "workers", 4, "number of concurrent pipeline workers draining the priority queue")
	flags.Float64Var(&rps, "rate-limit-rps", 0, "requests/sec admitted into the pipeline, shared across all workers (0 disables rate limiting)")
	flags.StringVar(&sandboxImage, "sandbox-image", "python:3.11-slim", "container image used by the python_executor sandbox tool")
	flags.BoolVar(&enableSandbox, "enable-sandbox", false, "dial a Docker daemon and register the python_executor tool (requires Docker)")

	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
