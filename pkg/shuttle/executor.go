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
package shuttle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/shuttleforge/agentrt/pkg/storage"
	"github.com/xeipuuv/gojsonschema"
)

// Executor executes tools with bounded-parallel dispatch, per-call
// timeouts, and error isolation: a failing call is always materialized as a
// Result with Success=false, never returned as a Go error and never allowed
// to abort sibling calls.
type Executor struct {
	registry          *Registry
	sharedMemory      *storage.SharedMemoryStore
	sqlResultStore    *storage.SQLResultStore // SQL result store for queryable large results
	threshold         int64                   // Threshold for using shared memory (bytes)
	permissionChecker *PermissionChecker

	maxParallel    int           // bound on concurrent tool dispatches within one batch
	defaultTimeout time.Duration // per-call timeout applied when the caller doesn't set one on ctx

	// Metrics for large parameter optimization
	largeParamStores      atomic.Int64
	largeParamDerefs      atomic.Int64
	largeParamBytesStored atomic.Int64
	largeParamDerefErrors atomic.Int64
}

// DefaultMaxParallelTools is the default bound on concurrent tool dispatches
// within a single batch (spec: max_parallel_tools).
const DefaultMaxParallelTools = 5

// DefaultToolTimeout is the default per-call timeout applied to a tool
// execution when the call context carries no earlier deadline.
const DefaultToolTimeout = 30 * time.Second

// NewExecutor creates a new tool executor.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry:       registry,
		threshold:      storage.DefaultSharedMemoryThreshold,
		maxParallel:    DefaultMaxParallelTools,
		defaultTimeout: DefaultToolTimeout,
	}
}

// SetSharedMemory configures shared memory for large result handling.
func (e *Executor) SetSharedMemory(sharedMemory *storage.SharedMemoryStore, threshold int64) {
	e.sharedMemory = sharedMemory
	if threshold >= 0 {
		e.threshold = threshold
	}
}

// SetSQLResultStore configures SQL result store for queryable large SQL results.
func (e *Executor) SetSQLResultStore(sqlStore *storage.SQLResultStore) {
	e.sqlResultStore = sqlStore
}

// SetPermissionChecker configures permission checking for tool execution.
func (e *Executor) SetPermissionChecker(checker *PermissionChecker) {
	e.permissionChecker = checker
}

// SetMaxParallel overrides the default bound on concurrent tool dispatches.
func (e *Executor) SetMaxParallel(n int) {
	if n > 0 {
		e.maxParallel = n
	}
}

// SetDefaultTimeout overrides the default per-call timeout.
func (e *Executor) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		e.defaultTimeout = d
	}
}

// BatchCall is one model-issued tool invocation awaiting dispatch.
type BatchCall struct {
	ID        string // tool_call id, echoed back on the result's ToolCallID
	Name      string
	Arguments string // raw JSON arguments string, as emitted by the LLM
}

// BatchResult pairs a dispatched call's id with its materialized Result.
type BatchResult struct {
	ToolCallID string
	Result     *Result
}

// ExecuteBatch dispatches a batch of tool calls with up to maxParallel
// running concurrently. Results are returned in the same order and same
// length as the input batch; a failing call never cancels its siblings.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []BatchCall) []BatchResult {
	results := make([]BatchResult, len(calls))
	sem := make(chan struct{}, e.maxParallel)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call BatchCall) {
			defer wg.Done()
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, e.defaultTimeout)
			defer cancel()

			var params map[string]interface{}
			if call.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Arguments), &params); err != nil {
					results[i] = BatchResult{
						ToolCallID: call.ID,
						Result: &Result{
							Success: false,
							Error:   &Error{Code: "invalid_arguments", Message: "Invalid JSON arguments"},
						},
					}
					return
				}
			}

			result, err := e.Execute(callCtx, call.Name, params)
			if err != nil {
				result = &Result{
					Success: false,
					Error:   &Error{Code: "execution_error", Message: err.Error()},
				}
			}
			results[i] = BatchResult{ToolCallID: call.ID, Result: result}
		}(i, call)
	}

	wg.Wait()
	return results
}

// Execute executes a tool by name with the given parameters.
func (e *Executor) Execute(ctx context.Context, toolName string, params map[string]interface{}) (*Result, error) {
	tool, ok := e.registry.Get(toolName)
	if !ok {
		return &Result{
			Success: false,
			Error:   &Error{Code: "tool_not_found", Message: fmt.Sprintf("Tool '%s' not found", toolName)},
		}, nil
	}

	if e.permissionChecker != nil {
		if err := e.permissionChecker.CheckPermission(ctx, toolName, params); err != nil {
			return &Result{
				Success: false,
				Error:   &Error{Code: "permission_denied", Message: err.Error(), Retryable: false},
			}, nil
		}
	}

	normalizedParams := normalizeParametersToSchema(tool, params)

	if violation := validateAgainstSchema(tool, normalizedParams); violation != "" {
		return &Result{
			Success: false,
			Error:   &Error{Code: "schema_validation_failed", Message: violation},
		}, nil
	}

	referencedParams, err := e.handleLargeParameters(normalizedParams)
	if err != nil {
		return &Result{
			Success: false,
			Error:   &Error{Code: "LARGE_PARAM_ERROR", Message: fmt.Sprintf("Failed to handle large parameters: %v", err)},
		}, nil
	}

	finalParams, err := e.dereferenceLargeParameters(referencedParams)
	if err != nil {
		return &Result{
			Success: false,
			Error:   &Error{Code: "DEREF_ERROR", Message: fmt.Sprintf("Failed to dereference parameters: %v", err)},
		}, nil
	}

	start := time.Now()
	result, err := tool.Execute(ctx, finalParams)
	duration := time.Since(start)

	if err != nil {
		return &Result{
			Success:         false,
			Error:           &Error{Code: "execution_failed", Message: err.Error(), Retryable: false},
			ExecutionTimeMs: duration.Milliseconds(),
		}, nil
	}

	if result != nil {
		result.ExecutionTimeMs = duration.Milliseconds()

		if toolName != "get_tool_result" && toolName != "query_tool_result" {
			if err := e.handleLargeResult(result); err != nil {
				if result.Metadata == nil {
					result.Metadata = make(map[string]interface{})
				}
				result.Metadata["shared_memory_error"] = err.Error()
			}
		}
	} else {
		result = &Result{Success: true, ExecutionTimeMs: duration.Milliseconds()}
	}

	return result, nil
}

// validateAgainstSchema validates params against the tool's declared input
// schema and returns a human-readable violation message, or "" if valid.
func validateAgainstSchema(tool Tool, params map[string]interface{}) string {
	schema := tool.InputSchema()
	if schema == nil {
		return ""
	}
	schemaJSON, err := schema.ToJSON()
	if err != nil {
		return ""
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil || result == nil || result.Valid() {
		return ""
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return strings.Join(errs, "; ")
}

// handleLargeResult checks if result data is large and stores it appropriately.
// SQL results go to SQLResultStore (queryable), other data goes to SharedMemoryStore (blob).
func (e *Executor) handleLargeResult(result *Result) error {
	if result.Data == nil {
		return nil
	}

	data, err := json.Marshal(result.Data)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	if int64(len(data)) <= e.threshold {
		return nil // Small result, keep inline
	}

	isSQLResult := storage.IsSQLResult(result.Data)
	if e.sqlResultStore != nil && isSQLResult {
		id := storage.GenerateID()
		ref, err := e.sqlResultStore.Store(id, result.Data)
		if err != nil {
			return fmt.Errorf("failed to store SQL result: %w", err)
		}

		meta, _ := e.sqlResultStore.GetMetadata(id)

		result.DataReference = ref
		result.Data = fmt.Sprintf(
			"SQL result stored in queryable table: %d rows, %d columns\n\nColumns: %v\n\nTo analyze this data, use: query_tool_result(\"%s\", \"SELECT * FROM results LIMIT 20\")",
			meta.RowCount, meta.ColumnCount, meta.Columns, id)
		return nil
	}

	if e.sharedMemory == nil {
		return nil // No storage configured
	}

	id := storage.GenerateID()
	ref, err := e.sharedMemory.Store(id, data, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to store in shared memory: %w", err)
	}

	meta, err := e.sharedMemory.GetMetadata(ref)
	if err != nil {
		result.DataReference = ref
		result.Data = fmt.Sprintf("[Large data stored in shared memory: %s]", storage.RefToString(ref))
		return nil
	}

	result.DataReference = ref
	result.Data = formatSharedMemoryResultSummary(meta, id)
	return nil
}

// formatSharedMemoryResultSummary creates a rich inline summary with metadata.
func formatSharedMemoryResultSummary(meta *storage.DataMetadata, id string) string {
	var summary strings.Builder

	summary.WriteString(fmt.Sprintf("Large %s stored in memory: %d bytes (~%d tokens)\n\n",
		meta.DataType, meta.SizeBytes, meta.EstimatedTokens))

	if meta.Preview != nil && (len(meta.Preview.First5) > 0 || len(meta.Preview.Last5) > 0) {
		summary.WriteString("Preview:\n")
		if len(meta.Preview.First5) > 0 {
			previewJSON, _ := json.MarshalIndent(meta.Preview.First5, "", "  ")
			summary.WriteString(fmt.Sprintf("First 5 items:\n%s\n", string(previewJSON)))
		}
		if len(meta.Preview.Last5) > 0 && meta.DataType == "json_array" {
			previewJSON, _ := json.MarshalIndent(meta.Preview.Last5, "", "  ")
			summary.WriteString(fmt.Sprintf("\nLast 5 items:\n%s\n", string(previewJSON)))
		}
		summary.WriteString("\n")
	}

	if meta.Schema != nil {
		switch meta.DataType {
		case "json_object":
			if len(meta.Schema.Fields) > 0 {
				fieldNames := make([]string, 0, len(meta.Schema.Fields))
				for _, field := range meta.Schema.Fields {
					fieldNames = append(fieldNames, fmt.Sprintf("%s (%s)", field.Name, field.Type))
				}
				summary.WriteString(fmt.Sprintf("Schema: %d fields\n%s\n\n", len(meta.Schema.Fields), strings.Join(fieldNames, ", ")))
			}
		case "json_array":
			summary.WriteString(fmt.Sprintf("Array: %d items\n", meta.Schema.ItemCount))
			if len(meta.Schema.Fields) > 0 {
				fieldNames := make([]string, 0, len(meta.Schema.Fields))
				for _, field := range meta.Schema.Fields {
					fieldNames = append(fieldNames, fmt.Sprintf("%s (%s)", field.Name, field.Type))
				}
				summary.WriteString(fmt.Sprintf("Item schema: %s\n\n", strings.Join(fieldNames, ", ")))
			}
		case "text":
			summary.WriteString(fmt.Sprintf("Text: %d lines\n\n", meta.Schema.ItemCount))
		}
	}

	summary.WriteString("How to retrieve:\n")
	switch meta.DataType {
	case "json_object":
		summary.WriteString(fmt.Sprintf("This json_object is too large (%d bytes) for direct retrieval; use the preview and schema above\n", meta.SizeBytes))
	case "json_array":
		summary.WriteString(fmt.Sprintf("query_tool_result(reference_id='%s', offset=0, limit=100)\n", id))
	case "text":
		summary.WriteString(fmt.Sprintf("query_tool_result(reference_id='%s', offset=0, limit=100)\n", id))
	case "csv":
		summary.WriteString(fmt.Sprintf("query_tool_result(reference_id='%s', sql='SELECT * FROM results WHERE ...')\n", id))
	}

	return summary.String()
}

// estimateValueSize calculates approximate byte size of a parameter value.
func estimateValueSize(value interface{}) int64 {
	switch v := value.(type) {
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return 0
		}
		return int64(len(data))
	default:
		return 0
	}
}

// handleLargeParameters checks if any parameter values exceed threshold
// and stores them in shared memory, replacing with references.
func (e *Executor) handleLargeParameters(params map[string]interface{}) (map[string]interface{}, error) {
	if e.sharedMemory == nil {
		return params, nil
	}

	result := make(map[string]interface{})
	modified := false

	for key, value := range params {
		size := estimateValueSize(value)

		if size > e.threshold {
			data, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to serialize large parameter %s: %w", key, err)
			}

			id := storage.GenerateID()
			ref, err := e.sharedMemory.Store(id, data, "application/json", map[string]string{
				"parameter_name": key,
				"original_size":  fmt.Sprintf("%d", size),
				"source":         "parameter_optimization",
			})
			if err != nil {
				return nil, fmt.Errorf("failed to store large parameter %s: %w", key, err)
			}

			result[key] = ref
			modified = true

			e.largeParamStores.Add(1)
			e.largeParamBytesStored.Add(size)
		} else {
			result[key] = value
		}
	}

	if !modified {
		return params, nil
	}

	return result, nil
}

// dereferenceLargeParameters replaces shared-memory references with actual
// data, transparently, before tool execution.
func (e *Executor) dereferenceLargeParameters(params map[string]interface{}) (map[string]interface{}, error) {
	if e.sharedMemory == nil {
		return params, nil
	}

	result := make(map[string]interface{})
	hasRefs := false

	for key, value := range params {
		if ref, ok := value.(*storage.DataReference); ok {
			hasRefs = true

			data, err := e.sharedMemory.Get(ref)
			if err != nil {
				e.largeParamDerefErrors.Add(1)
				return nil, fmt.Errorf("failed to dereference parameter %s: %w", key, err)
			}

			var originalValue interface{}
			if err := json.Unmarshal(data, &originalValue); err != nil {
				e.largeParamDerefErrors.Add(1)
				return nil, fmt.Errorf("failed to deserialize parameter %s: %w", key, err)
			}

			result[key] = originalValue
			e.largeParamDerefs.Add(1)
		} else {
			result[key] = value
		}
	}

	if !hasRefs {
		return params, nil
	}

	return result, nil
}

// ListAvailableTools returns all tools available in the executor's registry.
func (e *Executor) ListAvailableTools() []Tool {
	return e.registry.ListTools()
}

// ListToolsByBackend returns all tools for a specific backend.
func (e *Executor) ListToolsByBackend(backend string) []Tool {
	return e.registry.ListByBackend(backend)
}

// ExecutorStats holds metrics about executor operations.
type ExecutorStats struct {
	LargeParamStores      int64
	LargeParamDerefs      int64
	LargeParamBytesStored int64
	LargeParamDerefErrors int64
}

// Stats returns metrics about executor operations.
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		LargeParamStores:      e.largeParamStores.Load(),
		LargeParamDerefs:      e.largeParamDerefs.Load(),
		LargeParamBytesStored: e.largeParamBytesStored.Load(),
		LargeParamDerefErrors: e.largeParamDerefErrors.Load(),
	}
}

// normalizeParametersToSchema normalizes parameter names to match the tool's
// schema, handling the common case where LLMs emit snake_case but a tool's
// schema expects camelCase (or vice versa).
func normalizeParametersToSchema(tool Tool, params map[string]interface{}) map[string]interface{} {
	if len(params) == 0 {
		return params
	}

	schema := tool.InputSchema()
	if schema == nil || schema.Properties == nil {
		return params
	}

	schemaKeys := make(map[string]string)
	for key := range schema.Properties {
		schemaKeys[toLowerUnderscore(key)] = key
	}

	normalized := make(map[string]interface{}, len(params))
	for key, value := range params {
		normalizedKey := toLowerUnderscore(key)
		if schemaKey, exists := schemaKeys[normalizedKey]; exists {
			normalized[schemaKey] = value
		} else {
			normalized[key] = value
		}
	}

	return normalized
}

// toLowerUnderscore converts any naming convention to lowercase with underscores.
func toLowerUnderscore(s string) string {
	if s == "" {
		return ""
	}

	var result []rune
	for i, r := range s {
		lower := unicode.ToLower(r)
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '_')
		}
		result = append(result, lower)
	}

	return string(result)
}

