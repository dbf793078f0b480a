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
	"github.com/shuttleforge/agentrt/pkg/types"
)

// Type aliases for backward compatibility with code that imports pkg/agent.
// These types are now defined in pkg/types to break import cycles.
type Message = types.Message
type ToolCall = types.ToolCall
type Usage = types.Usage
type LLMResponse = types.LLMResponse
type LLMProvider = types.LLMProvider
type Session = types.Session
type Context = types.Context
type ProgressCallback = types.ProgressCallback
type ProgressEvent = types.ProgressEvent
type HITLRequestInfo = types.HITLRequestInfo
type ExecutionStage = types.ExecutionStage
type StreamingLLMProvider = types.StreamingLLMProvider

// Re-export ExecutionStage constants for backward compatibility
const (
	StagePatternSelection = types.StagePatternSelection
	StageSchemaDiscovery  = types.StageSchemaDiscovery
	StageLLMGeneration    = types.StageLLMGeneration
	StageToolExecution    = types.StageToolExecution
	StageSynthesis        = types.StageSynthesis
	StageHumanInTheLoop   = types.StageHumanInTheLoop
	StageGuardrailCheck   = types.StageGuardrailCheck
	StageSelfCorrection   = types.StageSelfCorrection
	StageCompleted        = types.StageCompleted
	StageFailed           = types.StageFailed
)
