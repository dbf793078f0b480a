// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/shuttleforge/agentrt/pkg/sandbox"
	"github.com/shuttleforge/agentrt/pkg/shuttle"
)

// PythonExecutorTool runs model-submitted Python in an ephemeral,
// resource-limited container. Every call is pre-checked in-process by a
// SecurityChecker before any container is created.
type PythonExecutorTool struct {
	checker *sandbox.SecurityChecker
	manager *sandbox.ContainerManager
}

// NewPythonExecutorTool wires a SecurityChecker and ContainerManager into
// one tool. manager may be nil only in tests that exercise the security
// pre-check path without a Docker daemon available.
func NewPythonExecutorTool(manager *sandbox.ContainerManager) *PythonExecutorTool {
	return &PythonExecutorTool{
		checker: sandbox.NewSecurityChecker(),
		manager: manager,
	}
}

func (t *PythonExecutorTool) Name() string {
	return "python_executor"
}

func (t *PythonExecutorTool) Description() string {
	return `Executes Python code in an isolated, ephemeral sandbox container.

Use this tool to:
- Run data transformations, calculations, or quick scripts
- Validate an algorithm before describing it
- Process small amounts of data that don't warrant a backend query

The code runs with no network access by default, a memory/CPU/process cap,
and a hard wall-clock timeout. Code that imports ctypes, multiprocessing,
signal, or _thread is rejected before a container is ever created.`
}

func (t *PythonExecutorTool) InputSchema() *shuttle.JSONSchema {
	return shuttle.NewObjectSchema(
		"Parameters for python_executor",
		map[string]*shuttle.JSONSchema{
			"code": shuttle.NewStringSchema("Python source to execute (required)"),
			"timeout_seconds": shuttle.NewNumberSchema(
				"Maximum execution time in seconds (default: 30, max: 120)",
			).WithDefault(30).WithRange(intPtr(1), intPtr(120)),
		},
		[]string{"code"},
	)
}

func (t *PythonExecutorTool) Backend() string {
	return ""
}

func (t *PythonExecutorTool) Execute(ctx context.Context, params map[string]interface{}) (*shuttle.Result, error) {
	start := time.Now()

	code, ok := params["code"].(string)
	if !ok || code == "" {
		return &shuttle.Result{
			Success:         false,
			Error:           &shuttle.Error{Code: "INVALID_PARAMS", Message: "code is required"},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	check, err := t.checker.Check(ctx, code)
	if err != nil {
		return &shuttle.Result{
			Success:         false,
			Error:           &shuttle.Error{Code: "security_check_failed", Message: err.Error()},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}
	if check.Blocked {
		return &shuttle.Result{
			Success: false,
			Data:    map[string]interface{}{"status": string(sandbox.StatusSecurityBlocked)},
			Error:   &shuttle.Error{Code: "security_blocked", Message: check.BlockedReason},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	if t.manager == nil {
		return &shuttle.Result{
			Success:         false,
			Error:           &shuttle.Error{Code: "sandbox_unavailable", Message: "sandbox container manager is not configured"},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	timeout := 30 * time.Second
	if ts, ok := params["timeout_seconds"].(float64); ok && ts > 0 {
		timeout = time.Duration(ts) * time.Second
	}

	result, err := t.manager.RunPython(ctx, code, timeout)
	if err != nil {
		return &shuttle.Result{
			Success:         false,
			Error:           &shuttle.Error{Code: "error", Message: err.Error()},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	success := result.Status == sandbox.StatusOK && result.ExitCode == 0
	out := &shuttle.Result{
		Success: success,
		Data: map[string]interface{}{
			"status":     string(result.Status),
			"stdout":     result.Stdout,
			"stderr":     result.Stderr,
			"exit_code":  result.ExitCode,
			"truncated":  result.Truncated,
			"warnings":   check.Warnings,
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
	if !success {
		out.Error = &shuttle.Error{
			Code:    string(result.Status),
			Message: fmt.Sprintf("python execution ended with status=%s exit_code=%d", result.Status, result.ExitCode),
		}
	}
	return out, nil
}
