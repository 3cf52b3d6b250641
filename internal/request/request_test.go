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

package request

import (
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJsonReq(t *testing.T) {
	buf, err := ToJsonReq(map[string]string{"job_id": "job_1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_id":"job_1"}`, buf.String())

	_, err = ToJsonReq(make(chan int))
	assert.Error(t, err)
}

func TestCall(t *testing.T) {
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://example.com/hook",
		httpmock.NewStringResponder(200, `{"ok": true}`))
	httpmock.RegisterResponder("POST", "http://example.com/broken",
		httpmock.NewStringResponder(500, `{"ok": false}`))

	req, err := http.NewRequest("POST", "http://example.com/hook", nil)
	require.NoError(t, err)

	var response map[string]interface{}
	resp, err := Call(req, &response)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, true, response["ok"])
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	req, err = http.NewRequest("POST", "http://example.com/broken", nil)
	require.NoError(t, err)
	_, err = Call(req, nil)
	assert.Error(t, err)
}
