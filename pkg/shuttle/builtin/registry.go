// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package builtin

import (
	"github.com/shuttleforge/agentrt/pkg/sandbox"
	"github.com/shuttleforge/agentrt/pkg/shuttle"
	"github.com/shuttleforge/agentrt/pkg/shuttle/metadata"
)

// All creates all builtin tools.
func All() []shuttle.Tool {
	return []shuttle.Tool{
		NewHTTPClientTool(),
		NewWebSearchTool(),
		NewFileWriteTool(""),
		NewFileReadTool(""),
		NewVisionTool(""),
		NewDocumentParseTool(""),
		NewGRPCClientTool(),
		NewShellExecuteTool(""),
		shuttle.NewContactHumanTool(shuttle.ContactHumanConfig{}),
	}
}

// ByName returns a builtin tool by name. Returns nil if not found.
func ByName(name string) shuttle.Tool {
	switch name {
	case "http_request":
		return NewHTTPClientTool()
	case "web_search":
		return NewWebSearchTool()
	case "file_write":
		return NewFileWriteTool("")
	case "file_read":
		return NewFileReadTool("")
	case "analyze_image":
		return NewVisionTool("")
	case "parse_document":
		return NewDocumentParseTool("")
	case "grpc_call":
		return NewGRPCClientTool()
	case "shell_execute":
		return NewShellExecuteTool("")
	case "contact_human":
		return shuttle.NewContactHumanTool(shuttle.ContactHumanConfig{})
	default:
		return nil
	}
}

// Names returns the names of all builtin tools.
// Note: spawn_agent is NOT included - it requires per-agent context (session ID, spawn handler)
// and must be created via NewSpawnAgentTool() when setting up agents.
func Names() []string {
	return []string{
		"http_request",
		"web_search",
		"file_write",
		"file_read",
		"analyze_image",
		"parse_document",
		"grpc_call",
		"shell_execute",
		"contact_human",
	}
}

// RegisterAll registers all builtin tools with a registry.
func RegisterAll(registry *shuttle.Registry) {
	for _, tool := range All() {
		registry.Register(tool)
	}
}

// RegisterSandbox registers the python_executor tool against a live
// ContainerManager. Unlike the rest of All(), this isn't constructed
// eagerly: the sandbox needs a Docker daemon connection with its own
// lifecycle (Close), so the caller owns that connection and decides
// whether the sandbox is available at all.
func RegisterSandbox(registry *shuttle.Registry, manager *sandbox.ContainerManager) {
	registry.Register(NewPythonExecutorTool(manager))
}

// RegisterByNames registers only the specified builtin tools.
// Apple-style: Only load what you need.
func RegisterByNames(registry *shuttle.Registry, names []string) {
	for _, name := range names {
		tool := ByName(name)
		if tool == nil {
			// Skip unknown tools (could be MCP or custom)
			continue
		}
		registry.Register(tool)
	}
}

// ToolSearchName is the name of the tool_search tool.
const ToolSearchName = "tool_search"

// metadataLoader is a singleton loader with caching for optimal performance.
var metadataLoader = metadata.NewLoader("tool_metadata")

// LoadMetadata loads rich metadata for a builtin tool with caching.
// Returns nil if metadata file not found or tool is not a builtin.
// Metadata includes: use_cases, conflicts, alternatives, examples, best_practices, etc.
// Subsequent calls for the same tool return cached results without file I/O.
func LoadMetadata(toolName string) (*metadata.ToolMetadata, error) {
	return metadataLoader.Load(toolName)
}

// LoadAllMetadata loads metadata for all builtin tools with caching.
// Returns a map of tool name -> metadata.
// Tools without metadata files are omitted from the map.
func LoadAllMetadata() (map[string]*metadata.ToolMetadata, error) {
	return metadataLoader.LoadAll()
}
