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
package agent

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

// LLMCompressor is a concrete implementation of MemoryCompressor that uses
// an LLM to create intelligent summaries of conversation history.
//
// Provides 50-80% token reduction through LLM-powered summarization.
type LLMCompressor struct {
	llmCaller LLMCaller // Interface for calling LLM
	enabled   bool      // Whether LLM compression is enabled
}

// LLMCaller defines the interface for calling an LLM to compress messages.
// Implementations should provide cheap, fast compression calls.
type LLMCaller interface {
	// CompressConversation takes conversation text and returns a concise summary.
	// Should limit output to 512 tokens for cost efficiency.
	CompressConversation(ctx context.Context, conversationText string) (string, error)
}

// NewLLMCompressor creates a new LLM-powered memory compressor.
// If llmCaller is nil, falls back to simple text extraction.
func NewLLMCompressor(llmCaller LLMCaller) *LLMCompressor {
	return &LLMCompressor{
		llmCaller: llmCaller,
		enabled:   llmCaller != nil,
	}
}

// CompressMessages compresses a slice of messages into a concise summary.
// Uses LLM if available, otherwise falls back to simple extraction.
//
// LLM compression typically achieves:
// - 50-80% token reduction
// - 2-3 sentence summaries
// - Preservation of key context (tables, queries, findings)
func (c *LLMCompressor) CompressMessages(ctx context.Context, messages []Message) (string, error) {
	if !c.enabled {
		// Fallback to simple compression
		return c.simpleCompress(messages), nil
	}

	// Build conversation text from messages
	var conversationParts []string
	for _, msg := range messages {
		conversationParts = append(conversationParts, fmt.Sprintf("[%s]: %s", msg.Role, msg.Content))
	}
	conversationText := strings.Join(conversationParts, "\n")

	// Use LLM to create compressed summary
	summary, err := c.llmCaller.CompressConversation(ctx, conversationText)
	if err != nil {
		// Fall back to simple compression on error
		return c.simpleCompress(messages), nil
	}

	if summary == "" {
		// Fallback if LLM returned nothing
		return c.simpleCompress(messages), nil
	}

	return strings.TrimSpace(summary), nil
}

// simpleCompress performs basic keyword extraction without LLM.
// Used as fallback when LLM is unavailable or errors occur.
func (c *LLMCompressor) simpleCompress(messages []Message) string {
	var parts []string

	for _, msg := range messages {
		if msg.Role == "user" {
			// Extract key terms from user queries
			content := msg.Content
			if len(content) > 60 {
				content = content[:60] + "..."
			}
			parts = append(parts, fmt.Sprintf("User: %s", content))
		} else if msg.Role == "assistant" {
			// Assistant responses - extract tool usage or key facts
			if c.containsToolCall(msg) {
				parts = append(parts, "Agent executed tools")
			} else if len(msg.Content) > 50 {
				// Extract first sentence or 50 chars
				content := msg.Content
				if len(content) > 50 {
					content = content[:50] + "..."
				}
				parts = append(parts, fmt.Sprintf("Agent: %s", content))
			}
		} else if msg.Role == "tool" {
			// Tool results - preserve tool execution context
			parts = append(parts, "Tool result received")
		} else if msg.Role == "system" {
			// System messages (defensive handling)
			parts = append(parts, "System instruction")
		}
	}

	if len(parts) == 0 {
		return "Previous exchanges"
	}

	return strings.Join(parts, "; ")
}

// containsToolCall checks if message contains tool execution.
// Adapted for loom's Message type which uses ToolCalls field.
func (c *LLMCompressor) containsToolCall(msg Message) bool {
	return len(msg.ToolCalls) > 0
}

// IsEnabled returns whether LLM-powered compression is enabled.
func (c *LLMCompressor) IsEnabled() bool {
	return c.enabled
}

// SetLLMCaller updates the LLM caller for the compressor.
// Useful for lazy initialization after agent is fully set up.
func (c *LLMCompressor) SetLLMCaller(llmCaller LLMCaller) {
	c.llmCaller = llmCaller
	c.enabled = llmCaller != nil
}

// SimpleCompressor is a basic compressor that doesn't use LLM.
// Useful for testing or when LLM integration isn't available.
type SimpleCompressor struct{}

// NewSimpleCompressor creates a compressor that only does keyword extraction.
func NewSimpleCompressor() *SimpleCompressor {
	return &SimpleCompressor{}
}

// CompressMessages performs simple keyword extraction.
func (c *SimpleCompressor) CompressMessages(ctx context.Context, messages []Message) (string, error) {
	var parts []string

	for _, msg := range messages {
		if msg.Role == "user" {
			content := msg.Content
			if len(content) > 60 {
				content = content[:60] + "..."
			}
			parts = append(parts, fmt.Sprintf("User: %s", content))
		} else if msg.Role == "assistant" {
			if len(msg.ToolCalls) > 0 {
				parts = append(parts, "Agent executed tools")
			} else if len(msg.Content) > 50 {
				content := msg.Content
				if len(content) > 50 {
					content = content[:50] + "..."
				}
				parts = append(parts, fmt.Sprintf("Agent: %s", content))
			}
		} else if msg.Role == "tool" {
			// Tool results - preserve tool execution context
			parts = append(parts, "Tool result received")
		} else if msg.Role == "system" {
			// System messages (defensive handling)
			parts = append(parts, "System instruction")
		}
	}

	if len(parts) == 0 {
		return "Previous exchanges", nil
	}

	return strings.Join(parts, "; "), nil
}

// IsEnabled always returns false for simple compressor.
func (c *SimpleCompressor) IsEnabled() bool {
	return false
}

// compressionSystemPrompt instructs the model to produce a short, dense
// summary rather than a conversational reply. Kept terse on purpose: longer
// instructions eat into the 512-token budget reserved for the summary itself.
const compressionSystemPrompt = "Summarize the following conversation excerpt in 2-3 sentences. " +
	"Preserve specific facts, identifiers, file paths, and tool results. Do not add commentary."

// AnthropicCompressor is an LLMCaller backed by the official Anthropic SDK.
// Used as the llmCaller of an LLMCompressor to produce real summaries instead
// of the keyword-extraction fallback.
type AnthropicCompressor struct {
	client    anthropic.Client
	modelName string
}

// NewAnthropicCompressor creates an Anthropic-based compressor bound to an
// already-configured SDK client (see anthropic.NewClient, which reads
// ANTHROPIC_API_KEY from the environment by default, or accepts
// option.WithAPIKey explicitly).
func NewAnthropicCompressor(client anthropic.Client, modelName string) *AnthropicCompressor {
	return &AnthropicCompressor{
		client:    client,
		modelName: modelName,
	}
}

// CompressConversation implements LLMCaller for Anthropic's Claude.
func (a *AnthropicCompressor) CompressConversation(ctx context.Context, conversationText string) (string, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.modelName),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: compressionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(conversationText)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic compression call failed: %w", err)
	}

	var summary strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			summary.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(summary.String()), nil
}
