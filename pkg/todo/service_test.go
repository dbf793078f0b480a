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
	"testing"

	"github.com/shuttleforge/agentrt/pkg/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CreateOrReplacePromotesFirstPendingToRunning(t *testing.T) {
	repo := newTestRepository(t)
	svc := NewService(repo, nil)

	result, snapshot, err := svc.ProcessCall(context.Background(), "s1", agent.ToolCall{
		ID:   "call-1",
		Name: "manage_todo_list",
		Input: map[string]interface{}{
			"action": "create_or_replace",
			"title":  "Ship feature",
			"items": []interface{}{
				map[string]interface{}{"label": "write code"},
				map[string]interface{}{"label": "write tests"},
			},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, snapshot)
	assert.Equal(t, 1, snapshot.Revision)

	list := snapshot.Items.(*List)
	require.Len(t, list.Items, 2)
	assert.Equal(t, StatusRunning, list.Items[0].Status, "first pending item is promoted when caller supplied none running")
	assert.Equal(t, StatusPending, list.Items[1].Status)
}

func TestService_AcceptsAliasedKeys(t *testing.T) {
	repo := newTestRepository(t)
	svc := NewService(repo, nil)

	_, _, err := svc.ProcessCall(context.Background(), "s1", agent.ToolCall{
		ID:   "call-1",
		Name: "manage_todo_list",
		Input: map[string]interface{}{
			"action": "replace",
			"title":  "Plan",
			"todoList": []interface{}{
				map[string]interface{}{"title": "step one", "state": "in-progress"},
				map[string]interface{}{"name": "step two", "status": "not-started"},
			},
		},
	})
	require.NoError(t, err)

	list, err := repo.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "step one", list.Items[0].Label)
	assert.Equal(t, StatusRunning, list.Items[0].Status)
	assert.Equal(t, "step two", list.Items[1].Label)
	assert.Equal(t, StatusPending, list.Items[1].Status)
}

func TestService_AdvanceStepCompletesRunningAndPromotesNext(t *testing.T) {
	repo := newTestRepository(t)
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, _, err := svc.ProcessCall(ctx, "s1", agent.ToolCall{
		Input: map[string]interface{}{
			"action": "create_or_replace",
			"items": []interface{}{
				map[string]interface{}{"label": "a", "status": "running"},
				map[string]interface{}{"label": "b", "status": "pending"},
			},
		},
	})
	require.NoError(t, err)

	result, snapshot, err := svc.ProcessCall(ctx, "s1", agent.ToolCall{
		Input: map[string]interface{}{"action": "advance_step"},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 2, snapshot.Revision)

	list := snapshot.Items.(*List)
	assert.Equal(t, StatusCompleted, list.Items[0].Status)
	assert.Equal(t, StatusRunning, list.Items[1].Status)
}

func TestService_SetItemStatusByIndex(t *testing.T) {
	repo := newTestRepository(t)
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, _, err := svc.ProcessCall(ctx, "s1", agent.ToolCall{
		Input: map[string]interface{}{
			"action": "create_or_replace",
			"items": []interface{}{
				map[string]interface{}{"label": "a"},
				map[string]interface{}{"label": "b"},
			},
		},
	})
	require.NoError(t, err)

	_, snapshot, err := svc.ProcessCall(ctx, "s1", agent.ToolCall{
		Input: map[string]interface{}{"action": "set_item_status", "index": 2, "status": "done"},
	})
	require.NoError(t, err)

	list := snapshot.Items.(*List)
	assert.Equal(t, StatusCompleted, list.Items[1].Status)
}

func TestService_CompleteAllMarksEveryItemCompleted(t *testing.T) {
	repo := newTestRepository(t)
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, _, err := svc.ProcessCall(ctx, "s1", agent.ToolCall{
		Input: map[string]interface{}{
			"action": "create_or_replace",
			"items": []interface{}{
				map[string]interface{}{"label": "a"},
				map[string]interface{}{"label": "b"},
			},
		},
	})
	require.NoError(t, err)

	_, snapshot, err := svc.ProcessCall(ctx, "s1", agent.ToolCall{
		Input: map[string]interface{}{"action": "complete_all"},
	})
	require.NoError(t, err)

	list := snapshot.Items.(*List)
	for _, item := range list.Items {
		assert.Equal(t, StatusCompleted, item.Status)
	}
}

func TestService_MutateOnMissingSessionReturnsErrorResult(t *testing.T) {
	repo := newTestRepository(t)
	svc := NewService(repo, nil)

	result, snapshot, err := svc.ProcessCall(context.Background(), "ghost", agent.ToolCall{
		Input: map[string]interface{}{"action": "advance_step"},
	})
	require.NoError(t, err, "ProcessCall never returns a Go error for a failed tool call")
	assert.False(t, result.Success)
	assert.Nil(t, snapshot)
}

func TestService_BroadcastInvokedOnEveryMutation(t *testing.T) {
	repo := newTestRepository(t)
	var broadcasts []int
	svc := NewService(repo, func(sessionID string, list *List) {
		broadcasts = append(broadcasts, list.Revision)
	})
	ctx := context.Background()

	_, _, err := svc.ProcessCall(ctx, "s1", agent.ToolCall{
		Input: map[string]interface{}{"action": "create_or_replace", "items": []interface{}{
			map[string]interface{}{"label": "a"},
		}},
	})
	require.NoError(t, err)

	_, _, err = svc.ProcessCall(ctx, "s1", agent.ToolCall{
		Input: map[string]interface{}{"action": "advance_step"},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, broadcasts)
}
