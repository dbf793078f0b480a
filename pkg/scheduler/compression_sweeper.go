// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package scheduler runs the background compression sweep: a cron job that
// walks every in-memory session and compacts the ones that have gone idle,
// so a long-lived daemon doesn't accumulate uncompressed L1 history for
// sessions nobody is actively driving.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/shuttleforge/agentrt/pkg/agent"
)

// DefaultSchedule runs the sweep every five minutes.
const DefaultSchedule = "*/5 * * * *"

// DefaultIdleThreshold is how long a session must go untouched before the
// sweep compacts it.
const DefaultIdleThreshold = 10 * time.Minute

// Config controls the CompressionSweeper.
type Config struct {
	// Schedule is a standard 5-field cron expression. Defaults to
	// DefaultSchedule.
	Schedule string

	// IdleThreshold is how long since a session's last update before it is
	// eligible for compaction. Defaults to DefaultIdleThreshold.
	IdleThreshold time.Duration

	Memory *agent.Memory
	Logger *zap.Logger
}

// SweepStats summarizes one sweep pass, for logging and tests.
type SweepStats struct {
	SessionsScanned   int
	SessionsCompacted int
	MessagesCompacted int
	TokensSaved       int
}

// CompressionSweeper periodically compacts idle sessions' segmented memory.
type CompressionSweeper struct {
	memory        *agent.Memory
	idleThreshold time.Duration
	logger        *zap.Logger

	cronEngine *cron.Cron

	mu        sync.Mutex
	lastStats SweepStats
}

// NewCompressionSweeper validates cfg and builds a CompressionSweeper, but
// does not start it — call Start to begin running on the cron schedule.
func NewCompressionSweeper(cfg Config) (*CompressionSweeper, error) {
	if cfg.Memory == nil {
		return nil, fmt.Errorf("scheduler: memory is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = DefaultIdleThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &CompressionSweeper{
		memory:        cfg.Memory,
		idleThreshold: cfg.IdleThreshold,
		logger:        cfg.Logger,
		cronEngine:    cron.New(),
	}

	if _, err := s.cronEngine.AddFunc(cfg.Schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", cfg.Schedule, err)
	}

	return s, nil
}

// Start begins running the sweep on its cron schedule.
func (s *CompressionSweeper) Start() {
	s.cronEngine.Start()
}

// Stop halts the cron engine and waits for any in-flight sweep to finish.
func (s *CompressionSweeper) Stop() {
	<-s.cronEngine.Stop().Done()
}

// LastStats returns a copy of the most recently completed sweep's stats.
func (s *CompressionSweeper) LastStats() SweepStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStats
}

// RunOnce runs a single sweep synchronously, outside the cron schedule.
// Tests and a manual "compress now" admin action both use this directly.
func (s *CompressionSweeper) RunOnce() SweepStats {
	s.sweep()
	return s.LastStats()
}

// sweep walks every session in memory, compacting the L1 history of any
// session idle for at least idleThreshold.
func (s *CompressionSweeper) sweep() {
	sessions := s.memory.ListSessions()
	cutoff := time.Now().Add(-s.idleThreshold)

	stats := SweepStats{SessionsScanned: len(sessions)}

	for _, session := range sessions {
		if session.UpdatedAt.After(cutoff) {
			continue
		}

		segMem, ok := session.SegmentedMem.(*agent.SegmentedMemory)
		if !ok || segMem == nil {
			continue
		}

		messagesCompacted, tokensSaved := segMem.CompactMemory()
		if messagesCompacted == 0 {
			continue
		}

		stats.SessionsCompacted++
		stats.MessagesCompacted += messagesCompacted
		stats.TokensSaved += tokensSaved

		s.logger.Info("scheduler: compacted idle session",
			zap.String("session_id", session.ID),
			zap.Int("messages_compacted", messagesCompacted),
			zap.Int("tokens_saved", tokensSaved),
			zap.Duration("idle_for", time.Since(session.UpdatedAt)),
		)
	}

	s.mu.Lock()
	s.lastStats = stats
	s.mu.Unlock()

	if stats.SessionsCompacted > 0 {
		s.logger.Info("scheduler: sweep complete",
			zap.Int("sessions_scanned", stats.SessionsScanned),
			zap.Int("sessions_compacted", stats.SessionsCompacted),
			zap.Int("tokens_saved", stats.TokensSaved),
		)
	}
}
