/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jerry-enebeli/recon/internal/apierror"
	"github.com/jerry-enebeli/recon/internal/notification"
	"github.com/jerry-enebeli/recon/model"
	"github.com/redis/go-redis/v9"
)

const (
	hookKeyPrefix      = "recon:hook"
	completedHooksKey  = "recon:hooks:completed"
	failedHooksKey     = "recon:hooks:failed"
	defaultHookTimeout = 30
	defaultRetryCount  = 3
)

// RedisHookManager keeps hooks in Redis, indexed by type in a set per outcome.
type RedisHookManager struct {
	client redis.UniversalClient
	wg     sync.WaitGroup
}

// NewHookManager creates a Redis-backed hook manager.
func NewHookManager(redisClient redis.UniversalClient) *RedisHookManager {
	return &RedisHookManager{
		client: redisClient,
	}
}

// RegisterHook validates and stores a new hook.
func (m *RedisHookManager) RegisterHook(ctx context.Context, hook *Hook) error {
	if hook.ID == "" {
		hook.ID = model.GenerateUUIDWithSuffix("hook")
	}
	hook.CreatedAt = time.Now()

	if err := validateHook(hook); err != nil {
		return err
	}

	data, err := json.Marshal(hook)
	if err != nil {
		return fmt.Errorf("failed to marshal hook: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, hookKey(hook.ID), data, 0)
	pipe.SAdd(ctx, getTypeKey(hook.Type), hook.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store hook: %w", err)
	}
	return nil
}

// UpdateHook replaces a hook's settings, keeping its identity and run history.
func (m *RedisHookManager) UpdateHook(ctx context.Context, hookID string, hook *Hook) error {
	existing, err := m.GetHook(ctx, hookID)
	if err != nil {
		return err
	}

	hook.ID = existing.ID
	hook.CreatedAt = existing.CreatedAt
	hook.LastRun = existing.LastRun
	hook.LastSuccess = existing.LastSuccess

	if err := validateHook(hook); err != nil {
		return err
	}

	data, err := json.Marshal(hook)
	if err != nil {
		return fmt.Errorf("failed to marshal hook: %w", err)
	}

	pipe := m.client.TxPipeline()
	if existing.Type != hook.Type {
		pipe.SRem(ctx, getTypeKey(existing.Type), hookID)
		pipe.SAdd(ctx, getTypeKey(hook.Type), hookID)
	}
	pipe.Set(ctx, hookKey(hookID), data, 0)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteHook removes a hook.
func (m *RedisHookManager) DeleteHook(ctx context.Context, hookID string) error {
	hook, err := m.GetHook(ctx, hookID)
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, hookKey(hookID))
	pipe.SRem(ctx, getTypeKey(hook.Type), hookID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetHook retrieves a hook by ID.
func (m *RedisHookManager) GetHook(ctx context.Context, hookID string) (*Hook, error) {
	data, err := m.client.Get(ctx, hookKey(hookID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("hook with ID '%s' not found", hookID), err)
		}
		return nil, err
	}

	var hook Hook
	if err := json.Unmarshal(data, &hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hook: %w", err)
	}
	return &hook, nil
}

// ListHooks returns every hook of the given type. Entries that can no longer be read
// are skipped.
func (m *RedisHookManager) ListHooks(ctx context.Context, hookType HookType) ([]*Hook, error) {
	hookIDs, err := m.client.SMembers(ctx, getTypeKey(hookType)).Result()
	if err != nil {
		return nil, err
	}

	hooks := make([]*Hook, 0, len(hookIDs))
	for _, id := range hookIDs {
		hook, err := m.GetHook(ctx, id)
		if err != nil {
			continue
		}
		hooks = append(hooks, hook)
	}
	return hooks, nil
}

func (m *RedisHookManager) ExecuteHooks(ctx context.Context, hookType HookType, jobID string, data interface{}) error {
	hooks, err := m.ListHooks(ctx, hookType)
	if err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal hook data: %w", err)
	}

	payload := HookPayload{
		JobID:     jobID,
		HookType:  hookType,
		Timestamp: time.Now(),
		Data:      dataBytes,
	}

	for _, hook := range hooks {
		if !hook.Active {
			continue
		}

		m.wg.Add(1)
		go func(h *Hook) {
			defer m.wg.Done()
			if err := m.runHook(context.WithoutCancel(ctx), h, payload); err != nil {
				notification.NotifyError(fmt.Errorf("hook execution failed for hook %s (type: %s): %w", h.ID, h.Type, err))
			}
		}(hook)
	}
	return nil
}

// Wait blocks until every dispatched hook has finished or ctx is done. Deliveries still
// running when ctx expires keep going and are abandoned when the process exits.
func (m *RedisHookManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validateHook(hook *Hook) error {
	if hook.URL == "" {
		return apierror.NewAPIError(apierror.ErrBadRequest, "hook URL is required", nil)
	}
	if u, err := url.ParseRequestURI(hook.URL); err != nil || u.Host == "" {
		return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("invalid hook URL: %s", hook.URL), err)
	}
	if hook.Type != JobCompleted && hook.Type != JobFailed {
		return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("invalid hook type: %s", hook.Type), nil)
	}
	if hook.Timeout <= 0 {
		hook.Timeout = defaultHookTimeout
	}
	if hook.RetryCount < 0 {
		hook.RetryCount = defaultRetryCount
	}
	return nil
}

func hookKey(hookID string) string {
	return fmt.Sprintf("%s:%s", hookKeyPrefix, hookID)
}

func getTypeKey(hookType HookType) string {
	if hookType == JobFailed {
		return failedHooksKey
	}
	return completedHooksKey
}
