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
package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// ExecStatus is the terminal disposition of one sandbox execution.
type ExecStatus string

const (
	StatusOK              ExecStatus = "ok"
	StatusTimeout         ExecStatus = "timeout"
	StatusSecurityBlocked ExecStatus = "security_blocked"
	StatusError           ExecStatus = "error"
)

// ExecResult is what a Runtime execution produces.
type ExecResult struct {
	Status     ExecStatus
	ExitCode   int
	Stdout     string
	Stderr     string
	Truncated  bool
	Warnings   []string
	DurationMs int64
}

// Config controls ContainerManager defaults. internal/runtime overrides only
// ImageName (from its SandboxImage setting) and keeps the other defaults.
type Config struct {
	ImageName           string
	ExecutionTimeout    time.Duration
	MaxExecutionTimeout time.Duration
	MaxOutputSize       int64
	MemoryLimit         string // e.g. "256m"
	CPUPeriod           int64
	CPUQuota            int64
	PidsLimit           int64
	NetworkEnabled      bool
}

// DefaultConfig returns the sandbox defaults.
func DefaultConfig() Config {
	return Config{
		ImageName:           "python:3.11-slim",
		ExecutionTimeout:    30 * time.Second,
		MaxExecutionTimeout: 120 * time.Second,
		MaxOutputSize:       65536,
		MemoryLimit:         "256m",
		CPUPeriod:           100000,
		CPUQuota:            50000,
		PidsLimit:           64,
		NetworkEnabled:      false,
	}
}

// ContainerManager runs one ephemeral container per execution: create,
// inject code, start, wait with a hard timeout, collect output, always
// remove. It never reuses or rotates containers — every run is isolated.
type ContainerManager struct {
	client *client.Client
	config Config
	logger *zap.Logger
	sem    chan struct{} // bounds concurrent container lifecycles
}

// NewContainerManager dials the Docker daemon (auto-detected endpoint,
// API-version negotiated) and verifies it is reachable.
func NewContainerManager(ctx context.Context, cfg Config, maxConcurrent int, logger *zap.Logger) (*ContainerManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("sandbox: docker daemon not reachable: %w", err)
	}

	return &ContainerManager{
		client: cli,
		config: cfg,
		logger: logger,
		sem:    make(chan struct{}, maxConcurrent),
	}, nil
}

// Close releases the Docker client.
func (m *ContainerManager) Close() error {
	return m.client.Close()
}

// RunPython executes one Python snippet in a fresh, resource-limited
// container and always removes it before returning. timeout is clamped to
// [1s, MaxExecutionTimeout]; zero means use the configured default.
func (m *ContainerManager) RunPython(ctx context.Context, code string, timeout time.Duration) (*ExecResult, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-m.sem }()

	timeout = clampTimeout(timeout, m.config.ExecutionTimeout, m.config.MaxExecutionTimeout)
	start := time.Now()

	containerID, err := m.create(ctx)
	if err != nil {
		return &ExecResult{Status: StatusError, DurationMs: time.Since(start).Milliseconds()}, err
	}
	defer m.remove(containerID)

	if err := m.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return &ExecResult{Status: StatusError, DurationMs: time.Since(start).Milliseconds()}, fmt.Errorf("sandbox: start container: %w", err)
	}

	if err := m.injectSource(ctx, containerID, code); err != nil {
		return &ExecResult{Status: StatusError, DurationMs: time.Since(start).Milliseconds()}, fmt.Errorf("sandbox: inject source: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := m.exec(runCtx, containerID)
	duration := time.Since(start).Milliseconds()
	if runCtx.Err() == context.DeadlineExceeded {
		return &ExecResult{Status: StatusTimeout, DurationMs: duration}, nil
	}
	if err != nil {
		return &ExecResult{Status: StatusError, DurationMs: duration}, err
	}

	stdoutStr, stdoutTrunc := truncate(stdout, m.config.MaxOutputSize)
	stderrStr, stderrTrunc := truncate(stderr, m.config.MaxOutputSize)

	return &ExecResult{
		Status:     StatusOK,
		ExitCode:   exitCode,
		Stdout:     stdoutStr,
		Stderr:     stderrStr,
		Truncated:  stdoutTrunc || stderrTrunc,
		DurationMs: duration,
	}, nil
}

func clampTimeout(requested, fallback, max time.Duration) time.Duration {
	if requested <= 0 {
		requested = fallback
	}
	if requested < time.Second {
		requested = time.Second
	}
	if requested > max {
		requested = max
	}
	return requested
}

func truncate(data []byte, max int64) (string, bool) {
	if max <= 0 || int64(len(data)) <= max {
		return string(data), false
	}
	return string(data[:max]) + "\n… [output truncated]", true
}

// create builds a container.Config/HostConfig pair applying the configured
// CPU/memory/PID limits, disables networking unless explicitly enabled, and
// hardens against privilege escalation (read-only root filesystem, all
// capabilities dropped, no-new-privileges).
func (m *ContainerManager) create(ctx context.Context) (string, error) {
	cfg := &container.Config{
		Image:      m.config.ImageName,
		Cmd:        []string{"python3", "/workspace/main.py"},
		WorkingDir: "/workspace",
		Env:        []string{"PYTHONUNBUFFERED=1"},
	}

	networkMode := container.NetworkMode("none")
	if m.config.NetworkEnabled {
		networkMode = "bridge"
	}

	hostCfg := &container.HostConfig{
		NetworkMode:    networkMode,
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp":       "rw,size=64m,mode=1777",
			"/workspace": "rw,size=16m,mode=1777",
		},
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		CPUPeriod:   m.config.CPUPeriod,
		CPUQuota:    m.config.CPUQuota,
	}
	if m.config.PidsLimit > 0 {
		pids := m.config.PidsLimit
		hostCfg.PidsLimit = &pids
	}
	if mb, err := parseMemoryLimit(m.config.MemoryLimit); err == nil && mb > 0 {
		hostCfg.Memory = mb
	}

	resp, err := m.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("sandbox: create container: %w", err)
	}
	return resp.ID, nil
}

// parseMemoryLimit converts a docker-style "256m"/"1g" string into bytes.
func parseMemoryLimit(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	s = strings.TrimSpace(strings.ToLower(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "g"):
		mult = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "g")
	case strings.HasSuffix(s, "m"):
		mult = 1024 * 1024
		s = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "k"):
		mult = 1024
		s = strings.TrimSuffix(s, "k")
	}
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	return n * mult, nil
}

// injectSource writes code as a single-file tar archive directly into
// /workspace/main.py — no bind mounts, the sandbox filesystem is ephemeral.
func (m *ContainerManager) injectSource(ctx context.Context, containerID, code string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: "main.py",
		Mode: 0o644,
		Size: int64(len(code)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write([]byte(code)); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return m.client.CopyToContainer(ctx, containerID, "/workspace", &buf, container.CopyToContainerOptions{})
}

// exec waits for the container's own entrypoint (python3 main.py) to finish
// and collects stdout/stderr separately via the multiplexed stream.
func (m *ContainerManager) exec(ctx context.Context, containerID string) ([]byte, []byte, int, error) {
	waitCh, errCh := m.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	logs, err := m.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("sandbox: attach logs: %w", err)
	}
	defer logs.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, cErr := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, logs)
		copyDone <- cErr
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), -1, fmt.Errorf("sandbox: wait container: %w", err)
		}
	case result := <-waitCh:
		<-copyDone
		if result.Error != nil {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), int(result.StatusCode), fmt.Errorf("sandbox: container error: %s", result.Error.Message)
		}
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), int(result.StatusCode), nil
	case <-ctx.Done():
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), -1, ctx.Err()
	}
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), -1, nil
}

// remove force-removes the container regardless of execution outcome. It
// logs (rather than surfaces) failures since it always runs in a defer path
// after the execution result has already been determined.
func (m *ContainerManager) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		m.logger.Warn("sandbox: failed to remove container", zap.String("container_id", containerID), zap.Error(err))
	}
}

var _ io.Closer = (*ContainerManager)(nil)
