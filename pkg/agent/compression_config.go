// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

// WorkloadProfile selects a named CompressionProfile preset.
type WorkloadProfile int

const (
	WorkloadProfileUnspecified WorkloadProfile = iota
	WorkloadProfileBalanced
	WorkloadProfileDataIntensive
	WorkloadProfileConversational
)

// BatchSizeOverrides allows overriding individual batch sizes of a CompressionProfile.
type BatchSizeOverrides struct {
	Normal   int
	Warning  int
	Critical int
}

// MemoryCompressionBatchSizes is an alias kept for call sites that spell out
// the longer teacher-era name.
type MemoryCompressionBatchSizes = BatchSizeOverrides

// MemoryCompressionConfig is the plain-Go configuration surface for
// compression behavior, replacing the teacher's protobuf
// MemoryCompressionConfig message. It is bound from viper the same way the
// rest of the Config surface in pkg/config is.
type MemoryCompressionConfig struct {
	WorkloadProfile          WorkloadProfile
	MaxL1Messages            int
	MinL1Messages            int
	WarningThresholdPercent  int
	CriticalThresholdPercent int
	BatchSizes               *BatchSizeOverrides
}
