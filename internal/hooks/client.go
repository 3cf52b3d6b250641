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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// runHook posts the payload, retrying up to hook.RetryCount times with exponential
// backoff. Each attempt gets its own timeout.
func (m *RedisHookManager) runHook(ctx context.Context, hook *Hook, payload HookPayload) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(hook.RetryCount)),
		ctx,
	)

	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(hook.Timeout)*time.Second)
		defer cancel()
		return m.executeHook(attemptCtx, hook, payload)
	}

	err := backoff.Retry(attempt, policy)
	m.updateHookStatus(ctx, hook, err == nil)
	return err
}

// executeHook performs a single HTTP POST to the hook URL. Any 2xx reply counts as
// success unless the body is a HookResponse reporting failure.
func (m *RedisHookManager) executeHook(ctx context.Context, hook *Hook, payload HookPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to marshal payload: %w", err))
	}

	log := logrus.WithFields(logrus.Fields{
		"hook_id":   hook.ID,
		"hook_name": hook.Name,
		"hook_url":  hook.URL,
		"hook_type": hook.Type,
		"job_id":    payload.JobID,
	})
	log.Info("Executing webhook")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hook-ID", hook.ID)
	req.Header.Set("X-Hook-Type", string(hook.Type))

	client := &http.Client{Timeout: time.Duration(hook.Timeout) * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Error("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hook returned status %d: %s", resp.StatusCode, string(body))
	}

	if len(body) > 0 && json.Valid(body) {
		var hookResp HookResponse
		if err := json.Unmarshal(body, &hookResp); err == nil && hookResp.Success != nil && !*hookResp.Success {
			return fmt.Errorf("hook execution failed: %s", hookResp.Message)
		}
	}

	log.WithField("status_code", resp.StatusCode).Info("Hook executed successfully")
	return nil
}

func (m *RedisHookManager) updateHookStatus(ctx context.Context, hook *Hook, success bool) {
	hook.LastRun = time.Now()
	hook.LastSuccess = success

	data, err := json.Marshal(hook)
	if err != nil {
		logrus.WithField("hook_id", hook.ID).Errorf("failed to marshal hook: %v", err)
		return
	}
	// XX keeps a hook deleted mid-run from being recreated.
	if err := m.client.SetXX(ctx, hookKey(hook.ID), data, redis.KeepTTL).Err(); err != nil {
		logrus.WithField("hook_id", hook.ID).Errorf("failed to update hook status: %v", err)
	}
}
