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
package todo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shuttleforge/agentrt/pkg/agent"
	"github.com/shuttleforge/agentrt/pkg/shuttle"
)

// BroadcastFunc is invoked with the resulting snapshot after every mutation,
// letting a streaming caller push a todo_list chunk inline without Service
// needing to know anything about StreamChunk or channels.
type BroadcastFunc func(sessionID string, list *List)

// Service implements the manage_todo_list tool contract: lenient argument
// parsing, "at most one running item" enforcement, and revision-stamped
// wholesale replacement, backed by a Repository. It satisfies agent.TodoService.
type Service struct {
	repo      *Repository
	broadcast BroadcastFunc
}

// NewService constructs a Service. broadcast may be nil.
func NewService(repo *Repository, broadcast BroadcastFunc) *Service {
	return &Service{repo: repo, broadcast: broadcast}
}

// action is the manage_todo_list operation requested, aliased from several
// spellings the prompt or a less disciplined model might use.
type action string

const (
	actionReplace     action = "create_or_replace"
	actionAdvance     action = "advance_step"
	actionSetStatus   action = "set_item_status"
	actionCompleteAll action = "complete_all"
)

var actionAliases = map[string]action{
	"create_or_replace": actionReplace,
	"replace":           actionReplace,
	"set_list":          actionReplace,
	"create":            actionReplace,
	"advance_step":      actionAdvance,
	"advance":           actionAdvance,
	"next_step":         actionAdvance,
	"set_item_status":   actionSetStatus,
	"set_status":        actionSetStatus,
	"update_item":       actionSetStatus,
	"complete_all":      actionCompleteAll,
	"finish_all":        actionCompleteAll,
}

var statusAliases = map[string]Status{
	"pending":     StatusPending,
	"not-started": StatusPending,
	"not_started": StatusPending,
	"todo":        StatusPending,
	"running":     StatusRunning,
	"in-progress": StatusRunning,
	"in_progress": StatusRunning,
	"active":      StatusRunning,
	"completed":   StatusCompleted,
	"complete":    StatusCompleted,
	"done":        StatusCompleted,
	"finished":    StatusCompleted,
}

func normalizeStatus(raw string) Status {
	if s, ok := statusAliases[raw]; ok {
		return s
	}
	return StatusPending
}

func resolveAction(raw string) (action, bool) {
	a, ok := actionAliases[raw]
	return a, ok
}

// rawArgs is the lenient shape manage_todo_list arguments are decoded into,
// accepting every key spelling the contract tolerates. json.Unmarshal leaves
// unset fields nil/zero, which is what the alias resolution below depends on.
type rawArgs struct {
	Action string `json:"action"`

	Title string `json:"title"`

	Items     []rawItem `json:"items"`
	TodoList  []rawItem `json:"todoList"`
	TodoListB []rawItem `json:"todo_list"`
	Steps     []rawItem `json:"steps"`

	// Index is 1-based, matching the order_index a list exposes back to callers.
	Index int `json:"index"`

	Status string `json:"status"`
	State  string `json:"state"`
}

type rawItem struct {
	Label       string `json:"label"`
	Title       string `json:"title"`
	Name        string `json:"name"`
	Text        string `json:"text"`
	Description string `json:"description"`

	Status string `json:"status"`
	State  string `json:"state"`
}

func (i rawItem) label() string {
	for _, candidate := range []string{i.Label, i.Title, i.Name, i.Text, i.Description} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func (i rawItem) status() string {
	if i.Status != "" {
		return i.Status
	}
	return i.State
}

func (a rawArgs) items() []rawItem {
	for _, candidate := range [][]rawItem{a.Items, a.TodoList, a.TodoListB, a.Steps} {
		if len(candidate) > 0 {
			return candidate
		}
	}
	return nil
}

func (a rawArgs) status() string {
	if a.Status != "" {
		return a.Status
	}
	return a.State
}

func toItems(raw []rawItem) []Item {
	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		items = append(items, Item{Label: r.label(), Status: normalizeStatus(r.status())})
	}
	return items
}

// ensureOneRunning promotes the first pending item to running if the caller
// supplied a list with zero running items, matching the invariant that a
// plan always has a current step once it has any pending work at all.
func ensureOneRunning(items []Item) []Item {
	for _, item := range items {
		if item.Status == StatusRunning {
			return items
		}
	}
	for i := range items {
		if items[i].Status == StatusPending {
			items[i].Status = StatusRunning
			return items
		}
	}
	return items
}

func toSnapshot(list *List) *agent.TodoSnapshot {
	if list == nil {
		return nil
	}
	return &agent.TodoSnapshot{SessionID: list.SessionID, Revision: list.Revision, Items: list}
}

func errResult(code, message string) *shuttle.Result {
	return &shuttle.Result{Success: false, Error: &shuttle.Error{Code: code, Message: message}}
}

func okResult(list *List) *shuttle.Result {
	return &shuttle.Result{Success: true, Data: list}
}

// ProcessCall implements agent.TodoService. It decodes call.Input leniently,
// dispatches to the matching Repository operation, and — when a broadcast
// hook was configured — invokes it with the resulting snapshot before
// returning, so the caller's onTodo flush (see AgentLoop.dispatchToolCalls)
// and the returned snapshot always agree.
func (s *Service) ProcessCall(ctx context.Context, sessionID string, call agent.ToolCall) (*shuttle.Result, *agent.TodoSnapshot, error) {
	args, err := decodeArgs(call.Input)
	if err != nil {
		return errResult("invalid_arguments", err.Error()), nil, nil
	}

	act, ok := resolveAction(args.Action)
	if !ok {
		// No recognized action verb: a bare items/title payload defaults to
		// the idempotent wholesale-replace, the operation every caller needs
		// at least once to create the list in the first place.
		act = actionReplace
	}

	var list *List
	switch act {
	case actionReplace:
		items := ensureOneRunning(toItems(args.items()))
		title := args.Title
		if title == "" {
			title = "Plan"
		}
		list, err = s.repo.CreateOrReplace(ctx, sessionID, title, items)

	case actionAdvance:
		list, err = s.repo.Mutate(ctx, sessionID, func(l *List) {
			advanceStep(l)
		})

	case actionSetStatus:
		status := normalizeStatus(args.status())
		list, err = s.repo.Mutate(ctx, sessionID, func(l *List) {
			setItemStatus(l, args.Index, status)
		})

	case actionCompleteAll:
		list, err = s.repo.Mutate(ctx, sessionID, func(l *List) {
			for i := range l.Items {
				l.Items[i].Status = StatusCompleted
			}
		})
	}

	if err != nil {
		return errResult("todo_error", err.Error()), nil, nil
	}

	if s.broadcast != nil {
		s.broadcast(sessionID, list)
	}

	return okResult(list), toSnapshot(list), nil
}

// advanceStep marks the current running item completed and promotes the
// next pending item to running, in order_index order.
func advanceStep(l *List) {
	for i := range l.Items {
		if l.Items[i].Status == StatusRunning {
			l.Items[i].Status = StatusCompleted
			break
		}
	}
	for i := range l.Items {
		if l.Items[i].Status == StatusPending {
			l.Items[i].Status = StatusRunning
			return
		}
	}
}

// setItemStatus applies status to the item at the given 1-based index. An
// out-of-range index is a no-op: replaying an earlier call against a list
// that has since shrunk should not panic or corrupt unrelated items.
func setItemStatus(l *List, index int, status Status) {
	for i := range l.Items {
		if l.Items[i].OrderIndex == index {
			l.Items[i].Status = status
			return
		}
	}
}

func decodeArgs(input map[string]interface{}) (*rawArgs, error) {
	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("todo: failed to re-encode arguments: %w", err)
	}
	var args rawArgs
	if err := json.Unmarshal(encoded, &args); err != nil {
		return nil, fmt.Errorf("todo: invalid arguments: %w", err)
	}
	return &args, nil
}
