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

package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	DefaultLedgerPageSize = 100
	MaxLedgerPageSize     = 1000
)

type EnqueueJob struct {
	PaymentID string `json:"payment_id"`
}

type RetryFailedJobs struct {
	JobIDs []string `json:"job_ids"`
}

type LedgerQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func (e *EnqueueJob) ValidateEnqueueJob() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.PaymentID, validation.Required),
	)
}

func (r *RetryFailedJobs) ValidateRetryFailedJobs() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.JobIDs, validation.Each(validation.Required.Error("job id cannot be empty"))),
	)
}

// ValidateLedgerQuery applies the default page size before validating the bounds.
func (q *LedgerQuery) ValidateLedgerQuery() error {
	if q.Limit == 0 {
		q.Limit = DefaultLedgerPageSize
	}
	return validation.ValidateStruct(q,
		validation.Field(&q.Limit, validation.Min(1), validation.Max(MaxLedgerPageSize)),
		validation.Field(&q.Offset, validation.Min(0).Error("offset cannot be negative")),
	)
}

var ErrMissingID = errors.New("id is required. pass id in the route /:id")
