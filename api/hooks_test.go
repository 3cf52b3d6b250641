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

package api

import (
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/recon"
	"github.com/jerry-enebeli/recon/config"
	"github.com/jerry-enebeli/recon/database/mocks"
	"github.com/jerry-enebeli/recon/internal/hooks"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHookRouter(t *testing.T) *gin.Engine {
	t.Helper()
	config.MockConfig(&config.Configuration{
		ProjectName: "Recon Worker",
		Worker:      config.WorkerConfig{ID: "worker-api", PollIntervalMs: 2000, LockTimeoutMs: 30000},
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r, err := recon.NewRecon(&mocks.MockDataSource{})
	require.NoError(t, err)
	r.WithHooks(hooks.NewHookManager(client))

	a := NewAPI(r)
	require.NotNil(t, a)
	return a.Router()
}

func TestHooks_Lifecycle(t *testing.T) {
	router := setupHookRouter(t)

	var created hooks.Hook
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, hooks.Hook{Name: "ops", URL: "http://hooks.example.com/recon", Type: hooks.JobFailed, Active: true}),
		Router:   router,
		Response: &created,
		Method:   http.MethodPost,
		Route:    "/hooks",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	require.NotEmpty(t, created.ID)

	var listed []hooks.Hook
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &listed, Method: http.MethodGet, Route: "/hooks"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	var fetched hooks.Hook
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &fetched, Method: http.MethodGet, Route: "/hooks/" + created.ID})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ops", fetched.Name)

	var deleted map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &deleted, Method: http.MethodDelete, Route: "/hooks/" + created.ID})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)

	var missing map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &missing, Method: http.MethodGet, Route: "/hooks/" + created.ID})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRegisterHook_InvalidType(t *testing.T) {
	router := setupHookRouter(t)

	var body map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, hooks.Hook{URL: "http://hooks.example.com/recon", Type: "JOB_STARTED"}),
		Router:   router,
		Response: &body,
		Method:   http.MethodPost,
		Route:    "/hooks",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHooks_DisabledWithoutRedis(t *testing.T) {
	router, _ := setupRouter(t, "")

	var body map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &body, Method: http.MethodGet, Route: "/hooks"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
