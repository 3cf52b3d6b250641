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

	"github.com/gin-gonic/gin"
	"github.com/jerry-enebeli/recon/internal/apierror"
	"github.com/jerry-enebeli/recon/internal/hooks"
)

// hookManager returns the configured hook manager, answering 503 when hooks are
// disabled because no Redis is configured.
func (a Api) hookManager(c *gin.Context) (hooks.HookManager, bool) {
	m := a.recon.Hooks()
	if m == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hooks are disabled: RECON_REDIS_DNS is not configured"})
		return nil, false
	}
	return m, true
}

// RegisterHook handles the registration of a new job outcome hook.
func (a Api) RegisterHook(c *gin.Context) {
	m, ok := a.hookManager(c)
	if !ok {
		return
	}

	var hook hooks.Hook
	if err := c.ShouldBindJSON(&hook); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid hook data", err.Error()))
		return
	}

	if err := m.RegisterHook(c.Request.Context(), &hook); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, hook)
}

func (a Api) UpdateHook(c *gin.Context) {
	m, ok := a.hookManager(c)
	if !ok {
		return
	}

	var hook hooks.Hook
	if err := c.ShouldBindJSON(&hook); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid hook data", err.Error()))
		return
	}

	if err := m.UpdateHook(c.Request.Context(), c.Param("id"), &hook); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, hook)
}

func (a Api) GetHook(c *gin.Context) {
	m, ok := a.hookManager(c)
	if !ok {
		return
	}

	hook, err := m.GetHook(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, hook)
}

// ListHooks returns hooks of the type given in the query, or of every type.
func (a Api) ListHooks(c *gin.Context) {
	m, ok := a.hookManager(c)
	if !ok {
		return
	}

	types := []hooks.HookType{hooks.JobCompleted, hooks.JobFailed}
	if t := c.Query("type"); t != "" {
		types = []hooks.HookType{hooks.HookType(t)}
	}

	result := make([]*hooks.Hook, 0)
	for _, t := range types {
		found, err := m.ListHooks(c.Request.Context(), t)
		if err != nil {
			respondWithError(c, err)
			return
		}
		result = append(result, found...)
	}

	c.JSON(http.StatusOK, result)
}

func (a Api) DeleteHook(c *gin.Context) {
	m, ok := a.hookManager(c)
	if !ok {
		return
	}

	if err := m.DeleteHook(c.Request.Context(), c.Param("id")); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "hook deleted successfully"})
}
