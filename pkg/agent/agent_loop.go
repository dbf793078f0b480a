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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shuttleforge/agentrt/pkg/communication/interrupt"
	"github.com/shuttleforge/agentrt/pkg/observability"
	"github.com/shuttleforge/agentrt/pkg/shuttle"
)

// marshalToolInput re-serializes a decoded tool-call input map back into the
// raw JSON argument string ExecuteBatch expects, mirroring how the LLM
// providers hand tool arguments to callers in the first place.
func marshalToolInput(input map[string]interface{}) (string, error) {
	if input == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// ErrSessionBusy is returned by Run/RunStream when another call against the
// same session is already in flight. Concurrent iteration of one session's
// message history is never safe: both callers would append to the same
// Session and race on the trailing assistant/tool message pairing.
var ErrSessionBusy = errors.New("agent loop: session is already running")

// todoToolName is the single tool name AgentLoop routes to the TodoService
// instead of the ToolExecutor, matching the contract the system prompt
// advertises to the LLM.
const todoToolName = "manage_todo_list"

// DefaultMaxTurns is the fallback iteration bound used when a caller
// constructs an AgentLoop without an explicit maxIterations.
const DefaultMaxTurns = 25

// TodoSnapshot is the wholesale-replaced plan state broadcast after a
// manage_todo_list call. It is intentionally opaque to AgentLoop — the todo
// subsystem owns its shape (see pkg/todo) — but every snapshot carries the
// session and revision it belongs to so a stream consumer can order them.
type TodoSnapshot struct {
	SessionID string
	Revision  int
	Items     interface{}
}

// TodoService is the narrow surface AgentLoop needs from the todo subsystem:
// turn one manage_todo_list tool call into a tool-result Result plus the
// resulting plan snapshot, atomically. Replaying the same call leaves the
// same plan content but yields a snapshot with a higher revision: every
// mutation bumps the revision.
type TodoService interface {
	ProcessCall(ctx context.Context, sessionID string, call ToolCall) (*shuttle.Result, *TodoSnapshot, error)
}

// RunStatus is the terminal disposition of one Run/RunStream call.
type RunStatus string

const (
	RunStatusCompleted     RunStatus = "completed"
	RunStatusInterrupted   RunStatus = "interrupted"
	RunStatusMaxIterations RunStatus = "max_iterations"
)

// RunResult is the buffered-mode return value of Run.
type RunResult struct {
	Content        string
	Usage          Usage
	ToolExecutions []ToolExecution
	Status         RunStatus
	Iterations     int
}

// StreamChunkType discriminates the lazy sequence RunStream emits.
type StreamChunkType string

const (
	ChunkSession  StreamChunkType = "session"
	ChunkThinking StreamChunkType = "thinking"
	ChunkContent  StreamChunkType = "content"
	ChunkToolCall StreamChunkType = "tool_call"
	ChunkTodoList StreamChunkType = "todo_list"
	ChunkDone     StreamChunkType = "done"
)

// interruptedDoneDelta is emitted on the terminal chunk when a stream is
// stopped by SessionSignal rather than reaching natural completion.
const interruptedDoneDelta = "[已中断]"

// StreamChunk is one element of the sequence RunStream produces.
type StreamChunk struct {
	Type      StreamChunkType
	SessionID string
	Delta     string
	ToolCall  *ToolCall
	Todo      *TodoSnapshot
	Err       error
}

// AgentLoop drives the iterative LLM-call / tool-dispatch cycle for one
// session at a time. Unlike Agent (which bundles pattern selection, finding
// extraction, HITL, and a dozen other cross-cutting features), AgentLoop is
// the bare state machine described for buffered and streamed execution: call
// the LLM, dispatch tool calls (todo calls routed separately from the rest),
// append results, repeat until the model stops asking for tools or the
// iteration budget runs out.
type AgentLoop struct {
	llm      LLMProvider
	memory   *Memory
	executor *shuttle.Executor
	todos    TodoService
	tracer   observability.Tracer
	logger   *zap.Logger

	maxIterations int

	mu      sync.Mutex
	running map[string]struct{} // session IDs currently inside Run/RunStream
}

// NewAgentLoop constructs an AgentLoop. logger may be nil (defaults to a
// no-op logger); tracer may be nil (defaults to observability.NewNoOpTracer()).
func NewAgentLoop(llm LLMProvider, memory *Memory, executor *shuttle.Executor, todos TodoService, maxIterations int, tracer observability.Tracer, logger *zap.Logger) *AgentLoop {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxTurns
	}
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentLoop{
		llm:           llm,
		memory:        memory,
		executor:      executor,
		todos:         todos,
		tracer:        tracer,
		logger:        logger,
		maxIterations: maxIterations,
		running:       make(map[string]struct{}),
	}
}

// acquire claims exclusive access to sessionID for the duration of one
// run call, or returns ErrSessionBusy if another call already holds it.
func (l *AgentLoop) acquire(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.running[sessionID]; busy {
		return ErrSessionBusy
	}
	l.running[sessionID] = struct{}{}
	return nil
}

func (l *AgentLoop) release(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, sessionID)
}

// partitionToolCalls splits a turn's tool calls into todo calls (routed to
// TodoService, in declared order) and everything else (routed to the bounded
// parallel ToolExecutor). Order within each partition is preserved.
func partitionToolCalls(calls []ToolCall) (todoCalls []ToolCall, otherCalls []ToolCall) {
	for _, c := range calls {
		if c.Name == todoToolName {
			todoCalls = append(todoCalls, c)
		} else {
			otherCalls = append(otherCalls, c)
		}
	}
	return todoCalls, otherCalls
}

// toBatchCalls converts ToolCalls into the Executor's batch-dispatch shape.
func toBatchCalls(calls []ToolCall) []shuttle.BatchCall {
	batch := make([]shuttle.BatchCall, 0, len(calls))
	for _, c := range calls {
		args, err := marshalToolInput(c.Input)
		if err != nil {
			args = "{}"
		}
		batch = append(batch, shuttle.BatchCall{ID: c.ID, Name: c.Name, Arguments: args})
	}
	return batch
}

// Run executes one buffered conversation turn to completion: repeated
// LLM/tool cycles until the model stops requesting tools, the iteration
// budget is exhausted, or signal is triggered.
func (l *AgentLoop) Run(ctx context.Context, signal *interrupt.SessionSignal, sessionID string, userMessage string) (*RunResult, error) {
	if err := l.acquire(sessionID); err != nil {
		return nil, err
	}
	defer l.release(sessionID)

	if signal == nil {
		signal = interrupt.NewSessionSignal()
	}

	ctx, span := l.tracer.StartSpan(ctx, "agent_loop.run")
	defer l.tracer.EndSpan(span)
	span.SetAttribute("session_id", sessionID)

	session := l.memory.GetOrCreateSession(sessionID)
	l.appendUser(ctx, session, userMessage)

	var usage Usage
	var executions []ToolExecution
	iteration := 0

	for {
		if signal.IsSet() {
			l.ensureAssistantMessage(ctx, session)
			return &RunResult{Usage: usage, ToolExecutions: executions, Status: RunStatusInterrupted, Iterations: iteration}, nil
		}

		iteration++
		messages := session.GetMessages()
		llmResp, err := l.llm.Chat(ctx, messages, l.availableTools())
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("agent loop: LLM call failed: %w", err)
		}
		usage = accumulateUsage(usage, llmResp.Usage)

		assistantMsg := Message{
			Role:       "assistant",
			Content:    llmResp.Content,
			ToolCalls:  llmResp.ToolCalls,
			TokenCount: llmResp.Usage.TotalTokens,
			CostUSD:    llmResp.Usage.CostUSD,
			Timestamp:  time.Now(),
		}
		session.AddMessage(assistantMsg)
		_ = l.memory.PersistMessage(ctx, sessionID, assistantMsg)

		if len(llmResp.ToolCalls) == 0 {
			return &RunResult{Content: llmResp.Content, Usage: usage, ToolExecutions: executions, Status: RunStatusCompleted, Iterations: iteration}, nil
		}

		toolExecs := l.dispatchToolCalls(ctx, session, llmResp.ToolCalls, nil)
		executions = append(executions, toolExecs...)

		if iteration >= l.maxIterations {
			return nil, fmt.Errorf("agent loop: reached max tool iterations (%d)", l.maxIterations)
		}
	}
}

// dispatchToolCalls partitions, executes, and appends tool-result messages
// for one LLM turn's tool calls. When onTodo is non-nil it is invoked with
// each todo call's resulting snapshot as soon as it is produced, so RunStream
// can flush it into the outgoing channel before the next LLM call begins.
func (l *AgentLoop) dispatchToolCalls(ctx context.Context, session *Session, calls []ToolCall, onTodo func(*TodoSnapshot)) []ToolExecution {
	todoCalls, otherCalls := partitionToolCalls(calls)
	results := make(map[string]*shuttle.Result, len(calls))

	// Todo calls run first and in declared order: the plan must reflect
	// earlier calls before a later non-todo call in the same turn can
	// meaningfully reference it.
	for _, call := range todoCalls {
		result, snapshot, err := l.todos.ProcessCall(ctx, session.ID, call)
		if err != nil {
			result = &shuttle.Result{Success: false, Error: &shuttle.Error{Code: "todo_error", Message: err.Error()}}
		}
		results[call.ID] = result
		if snapshot != nil && onTodo != nil {
			onTodo(snapshot)
		}
	}

	if len(otherCalls) > 0 {
		batchResults := l.executor.ExecuteBatch(ctx, toBatchCalls(otherCalls))
		for _, br := range batchResults {
			results[br.ToolCallID] = br.Result
		}
	}

	// Appended tool messages mirror the assistant message's tool_calls
	// order regardless of which partition (todo vs. executor) a call
	// landed in.
	executions := make([]ToolExecution, 0, len(calls))
	for _, c := range calls {
		result := results[c.ID]
		toolMsg := Message{
			Role:       "tool",
			Content:    formatResultForLLM(result),
			ToolUseID:  c.ID,
			ToolResult: result,
			Timestamp:  time.Now(),
		}
		session.AddMessage(toolMsg)
		_ = l.memory.PersistMessage(ctx, session.ID, toolMsg)

		executions = append(executions, ToolExecution{ToolName: c.Name, Input: c.Input, Result: result})
	}

	return executions
}

func (l *AgentLoop) appendUser(ctx context.Context, session *Session, userMessage string) {
	msg := Message{Role: "user", Content: userMessage, Timestamp: time.Now()}
	session.AddMessage(msg)
	_ = l.memory.PersistMessage(ctx, session.ID, msg)
}

// ensureAssistantMessage guarantees the session's trailing message is an
// assistant message before returning an interrupted status, fabricating an
// empty one if the interrupt landed between the user message and the first
// LLM call.
func (l *AgentLoop) ensureAssistantMessage(ctx context.Context, session *Session) {
	messages := session.GetMessages()
	if len(messages) > 0 && messages[len(messages)-1].Role == "assistant" {
		return
	}
	msg := Message{Role: "assistant", Content: "", Timestamp: time.Now()}
	session.AddMessage(msg)
	_ = l.memory.PersistMessage(ctx, session.ID, msg)
}

func (l *AgentLoop) availableTools() []shuttle.Tool {
	if l.executor == nil {
		return nil
	}
	return l.executor.ListAvailableTools()
}

func accumulateUsage(total, delta Usage) Usage {
	total.InputTokens += delta.InputTokens
	total.OutputTokens += delta.OutputTokens
	total.TotalTokens += delta.TotalTokens
	total.CostUSD += delta.CostUSD
	return total
}

func formatResultForLLM(result *shuttle.Result) string {
	if result == nil {
		return ""
	}
	if !result.Success && result.Error != nil {
		return fmt.Sprintf("Error: %s", result.Error.Message)
	}
	if s, ok := result.Data.(string); ok {
		return s
	}
	encoded, err := json.Marshal(result.Data)
	if err != nil {
		return fmt.Sprintf("%v", result.Data)
	}
	return string(encoded)
}

// RunStream executes one streamed conversation turn, returning a channel of
// StreamChunks the caller ranges over. The channel is closed once a terminal
// chunk (type="done") has been sent; RunStream never blocks its caller past
// that point. session lock release and session-busy semantics match Run.
func (l *AgentLoop) RunStream(ctx context.Context, signal *interrupt.SessionSignal, sessionID string, userMessage string) (<-chan StreamChunk, error) {
	if err := l.acquire(sessionID); err != nil {
		return nil, err
	}
	if signal == nil {
		signal = interrupt.NewSessionSignal()
	}

	streamingLLM, ok := l.llm.(StreamingLLMProvider)
	if !ok {
		l.release(sessionID)
		return nil, fmt.Errorf("agent loop: provider %s does not support streaming", l.llm.Name())
	}

	out := make(chan StreamChunk, 16)

	go func() {
		defer l.release(sessionID)
		defer close(out)

		ctx, span := l.tracer.StartSpan(ctx, "agent_loop.run_stream")
		defer l.tracer.EndSpan(span)
		span.SetAttribute("session_id", sessionID)

		session := l.memory.GetOrCreateSession(sessionID)
		l.appendUser(ctx, session, userMessage)

		out <- StreamChunk{Type: ChunkSession, SessionID: sessionID}

		iteration := 0
		for {
			if signal.IsSet() {
				l.ensureAssistantMessage(ctx, session)
				out <- StreamChunk{Type: ChunkDone, SessionID: sessionID, Delta: interruptedDoneDelta}
				return
			}

			iteration++
			messages := session.GetMessages()

			interrupted := false
			tokenCallback := func(token string) {
				if signal.IsSet() {
					interrupted = true
					return
				}
				out <- StreamChunk{Type: ChunkContent, SessionID: sessionID, Delta: token}
			}

			llmResp, err := streamingLLM.ChatStream(ctx, messages, l.availableTools(), tokenCallback)
			if err != nil {
				span.RecordError(err)
				out <- StreamChunk{Type: ChunkDone, SessionID: sessionID, Err: err}
				return
			}

			// The streaming provider interface only exposes a flat content
			// token callback; a reasoning trace that arrived out-of-band in
			// llmResp.Thinking (rather than incrementally) is surfaced as a
			// single thinking chunk ahead of the content already sent.
			if llmResp.Thinking != "" {
				out <- StreamChunk{Type: ChunkThinking, SessionID: sessionID, Delta: llmResp.Thinking}
			}

			if interrupted || signal.IsSet() {
				l.ensureAssistantMessage(ctx, session)
				out <- StreamChunk{Type: ChunkDone, SessionID: sessionID, Delta: interruptedDoneDelta}
				return
			}

			assistantMsg := Message{
				Role:       "assistant",
				Content:    llmResp.Content,
				ToolCalls:  llmResp.ToolCalls,
				TokenCount: llmResp.Usage.TotalTokens,
				CostUSD:    llmResp.Usage.CostUSD,
				Timestamp:  time.Now(),
			}
			session.AddMessage(assistantMsg)
			_ = l.memory.PersistMessage(ctx, sessionID, assistantMsg)

			if len(llmResp.ToolCalls) == 0 {
				out <- StreamChunk{Type: ChunkDone, SessionID: sessionID}
				return
			}

			for _, tc := range llmResp.ToolCalls {
				tc := tc
				out <- StreamChunk{Type: ChunkToolCall, SessionID: sessionID, ToolCall: &tc}
			}

			l.dispatchToolCalls(ctx, session, llmResp.ToolCalls, func(snapshot *TodoSnapshot) {
				out <- StreamChunk{Type: ChunkTodoList, SessionID: sessionID, Todo: snapshot}
			})

			if iteration >= l.maxIterations {
				out <- StreamChunk{Type: ChunkDone, SessionID: sessionID, Err: fmt.Errorf("agent loop: reached max tool iterations (%d)", l.maxIterations)}
				return
			}
		}
	}()

	return out, nil
}
