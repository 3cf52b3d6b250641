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
	"time"
)

type HookType string

const (
	JobCompleted HookType = "JOB_COMPLETED"
	JobFailed    HookType = "JOB_FAILED"
)

// Hook represents a webhook called when a reconciliation job reaches a terminal state.
type Hook struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Type        HookType  `json:"type"`
	Active      bool      `json:"active"`
	Timeout     int       `json:"timeout"`     // seconds per attempt
	RetryCount  int       `json:"retry_count"` // retries after the first attempt
	CreatedAt   time.Time `json:"created_at"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess bool      `json:"last_success"`
}

// HookPayload is the body posted to hook endpoints.
type HookPayload struct {
	JobID     string          `json:"job_id"`
	HookType  HookType        `json:"hook_type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// HookResponse is the optional JSON body a hook endpoint may reply with. Replies
// without a success field are treated as successful.
type HookResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// HookManager stores hooks and fires them for job outcomes.
type HookManager interface {
	RegisterHook(ctx context.Context, hook *Hook) error
	UpdateHook(ctx context.Context, hookID string, hook *Hook) error
	DeleteHook(ctx context.Context, hookID string) error
	GetHook(ctx context.Context, hookID string) (*Hook, error)
	ListHooks(ctx context.Context, hookType HookType) ([]*Hook, error)

	// ExecuteHooks posts data to every active hook of hookType in the background.
	// It returns once the hooks are dispatched, not when they finish.
	ExecuteHooks(ctx context.Context, hookType HookType, jobID string, data interface{}) error

	// Wait blocks until dispatched hooks finish or ctx is done.
	Wait(ctx context.Context) error
}
