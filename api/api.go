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
	"github.com/jerry-enebeli/recon"
	"github.com/jerry-enebeli/recon/api/middleware"
	"github.com/jerry-enebeli/recon/config"
	"github.com/jerry-enebeli/recon/internal/apierror"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	recon  *recon.Recon
	router *gin.Engine
	secret string
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/health", a.Health)

	router.GET("/jobs/:id", a.GetJob)
	router.GET("/jobs/:id/results", a.GetJobResults)
	router.POST("/jobs", middleware.SecretKeyAuthMiddleware(a.secret), a.EnqueueJob)
	router.POST("/jobs/retry-failed", middleware.SecretKeyAuthMiddleware(a.secret), a.RetryFailedJobs)

	router.GET("/accounts/:id/ledger", a.GetAccountLedger)

	hookRoutes := router.Group("/hooks", middleware.SecretKeyAuthMiddleware(a.secret))
	hookRoutes.POST("", a.RegisterHook)
	hookRoutes.GET("", a.ListHooks)
	hookRoutes.GET("/:id", a.GetHook)
	hookRoutes.PUT("/:id", a.UpdateHook)
	hookRoutes.DELETE("/:id", a.DeleteHook)
	return a.router
}

// NewAPI builds the monitoring API served alongside the worker.
func NewAPI(r *recon.Recon) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(conf.ProjectName))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "recon worker running...")
	})

	return &Api{recon: r, router: router, secret: conf.Worker.MonitoringSecret}
}

func respondWithError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}
