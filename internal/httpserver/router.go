// Package httpserver implements spec.md §6's External Interfaces: the
// gin HTTP router binding every wire-format endpoint to the Chat
// Handler, GET /v1/models, the config CRUD surface, and the
// admin-gated /metrics and /healthz routes.
//
// Grounded on the teacher's router/api-router.go (a flat gin.Engine with
// grouped route registration and a CORS-then-auth middleware chain) and
// main.go's direct promhttp.Handler() wiring for /metrics.
package httpserver

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1-api-gateway/relaygw/internal/chat"
	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/pricing"
	"github.com/1-api-gateway/relaygw/internal/provider"
	"github.com/1-api-gateway/relaygw/internal/store"
	"github.com/1-api-gateway/relaygw/internal/usage"
)

// Server holds every collaborator the HTTP layer dispatches to. It owns
// no business logic itself — every handler delegates to the Chat
// Handler or to internal/store.
type Server struct {
	Handler     *chat.Handler
	Store       *store.DB
	Connections *credential.Store
	Providers   *provider.Registry
	Pricing     *pricing.Table
	Usage       *usage.Recorder
	Log         glog.Logger
}

// NewRouter builds the gin.Engine with every route spec.md §6 names.
// CORS is unconditional (`Access-Control-Allow-Origin: *` on all
// responses, per §6); the config CRUD and /metrics routes additionally
// require adminAuth.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"*"},
	}))

	r.GET("/healthz", s.handleHealthz())
	r.GET("/metrics", adminAuth(), gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/chat/completions", s.handleChatCompletions())
		v1.POST("/messages", s.handleMessages())
		v1.POST("/responses", s.handleResponses())
		v1.GET("/models", s.handleModels())

		v1.GET("/connections", adminAuth(), s.listConnections())
		v1.PUT("/connections/:id", adminAuth(), s.putConnection())
		v1.DELETE("/connections/:id", adminAuth(), s.deleteConnection())

		v1.GET("/aliases", adminAuth(), s.listAliases())
		v1.PUT("/aliases/:name", adminAuth(), s.putAlias())
		v1.DELETE("/aliases/:name", adminAuth(), s.deleteAlias())

		v1.GET("/combos", adminAuth(), s.listCombos())
		v1.PUT("/combos/:name", adminAuth(), s.putCombo())
		v1.DELETE("/combos/:name", adminAuth(), s.deleteCombo())

		v1.PUT("/nodes/:id", adminAuth(), s.putNode())

		v1.GET("/pricing", adminAuth(), s.listPricing())
		v1.PUT("/pricing", adminAuth(), s.putPricing())

		v1.GET("/settings/:name", adminAuth(), s.getSetting())
		v1.PUT("/settings/:name", adminAuth(), s.putSetting())
	}

	// Gemini's REST surface lives under /v1beta/models/{model}:{action},
	// which gin can only match as a single path segment.
	r.POST("/v1beta/models/:modelAction", s.handleGenerateContent())

	return r
}
