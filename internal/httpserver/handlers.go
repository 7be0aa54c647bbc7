package httpserver

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/1-api-gateway/relaygw/internal/chat"
	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/ctxkey"
	"github.com/1-api-gateway/relaygw/internal/pricing"
	"github.com/1-api-gateway/relaygw/internal/provider"
	"github.com/1-api-gateway/relaygw/internal/store"
)

// wantStreamFunc decides, from the raw request body (and for Gemini, the
// URL), whether the client wants an SSE response (spec.md §6's
// "provider-specific flag" list).
type wantStreamFunc func(c *gin.Context, body []byte) bool

func streamFieldFlag(c *gin.Context, body []byte) bool {
	return gjson.GetBytes(body, "stream").Bool()
}

// serveChat is the shared entry point for every wire-format endpoint
// (spec.md §6): read the body, decide streaming, and hand off to the
// Chat Handler, rendering either an SSE stream or a JSON body/error.
func (s *Server) serveChat(anthropicVersionHeaderSeen bool, wantStream wantStreamFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		requestId, _ := c.Get(ctxkey.RequestId)
		rid, _ := requestId.(string)

		hreq := chat.HandlerRequest{
			Body:                       body,
			AnthropicVersionHeaderSeen: anthropicVersionHeaderSeen || c.GetHeader("anthropic-version") != "",
			UserAgent:                  c.GetHeader("User-Agent"),
			RequestId:                  rid,
		}

		if wantStream(c, body) {
			w, err := newSSEWriter(c.Writer)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			hreq.Writer = w

			status, err := s.Handler.Serve(c.Request.Context(), hreq)
			if err == nil {
				return
			}
			if w.committed() {
				w.writeErrorFrame(err.Error())
				return
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		var buf bytes.Buffer
		hreq.ResponseBodyOut = &buf
		status, err := s.Handler.Serve(c.Request.Context(), hreq)
		if err != nil && buf.Len() == 0 {
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Data(status, "application/json", buf.Bytes())
	}
}

func (s *Server) handleChatCompletions() gin.HandlerFunc {
	return s.serveChat(false, streamFieldFlag)
}

func (s *Server) handleMessages() gin.HandlerFunc {
	return s.serveChat(true, streamFieldFlag)
}

func (s *Server) handleResponses() gin.HandlerFunc {
	return s.serveChat(false, streamFieldFlag)
}

// handleGenerateContent serves both `:generateContent` and
// `:streamGenerateContent`: Gemini signals streaming through the URL
// action suffix rather than a body field (spec.md §6, §8's buildUrl
// testable property).
func (s *Server) handleGenerateContent() gin.HandlerFunc {
	return s.serveChat(false, func(c *gin.Context, _ []byte) bool {
		return strings.HasSuffix(c.Param("modelAction"), ":streamGenerateContent") ||
			c.Query("alt") == "sse"
	})
}

// handleModels implements GET /v1/models (spec.md §6): known models
// merged from every alias and every active connection's default model.
func (s *Server) handleModels() gin.HandlerFunc {
	return func(c *gin.Context) {
		seen := map[string]bool{}
		var ids []string
		add := func(id string) {
			if id == "" || seen[id] {
				return
			}
			seen[id] = true
			ids = append(ids, id)
		}

		aliases, err := s.Store.AllAliases()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		for _, a := range aliases {
			add(a.Name)
		}
		for _, providerId := range s.Connections.AllProviders() {
			for _, conn := range s.Connections.All(providerId) {
				if conn.IsActive && conn.DefaultModel != "" {
					add(conn.ProviderId + "/" + conn.DefaultModel)
				}
			}
		}

		data := make([]gin.H, 0, len(ids))
		for _, id := range ids {
			data = append(data, gin.H{"id": id, "object": "model"})
		}
		c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
	}
}

func (s *Server) handleHealthz() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// ---- config CRUD (spec.md §6: "CRUD only; secrets are stripped") ----

type connectionInput struct {
	ProviderId     string            `json:"providerId" binding:"required"`
	AuthType       provider.AuthType `json:"authType" binding:"required"`
	DisplayName    string            `json:"displayName"`
	Priority       int               `json:"priority"`
	GlobalPriority *int              `json:"globalPriority"`
	DefaultModel   string            `json:"defaultModel"`
	APIKey         string            `json:"apiKey"`
	AccessToken    string            `json:"accessToken"`
	RefreshToken   string            `json:"refreshToken"`
	IdToken        string            `json:"idToken"`
	IsActive       bool              `json:"isActive"`
}

func (s *Server) listConnections() gin.HandlerFunc {
	return func(c *gin.Context) {
		conns, err := s.Store.LoadConnections()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]credential.Summary, 0, len(conns))
		for _, conn := range conns {
			out = append(out, conn.Redacted())
		}
		c.JSON(http.StatusOK, gin.H{"connections": out})
	}
}

func (s *Server) putConnection() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in connectionInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		conn := &credential.Connection{
			Id: c.Param("id"), ProviderId: in.ProviderId, AuthType: in.AuthType, DisplayName: in.DisplayName,
			Priority: in.Priority, GlobalPriority: in.GlobalPriority, DefaultModel: in.DefaultModel,
			APIKey: in.APIKey, AccessToken: in.AccessToken, RefreshToken: in.RefreshToken, IdToken: in.IdToken,
			IsActive: in.IsActive, TestStatus: credential.StatusUnknown,
		}
		if err := s.Store.PutConnection(conn); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		s.reloadProvider(in.ProviderId)
		c.JSON(http.StatusOK, conn.Redacted())
	}
}

func (s *Server) deleteConnection() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		conns, err := s.Store.LoadConnections()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var providerId string
		for _, conn := range conns {
			if conn.Id == id {
				providerId = conn.ProviderId
				break
			}
		}
		if err := s.Store.DeleteConnection(id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if providerId != "" {
			s.reloadProvider(providerId)
		}
		c.Status(http.StatusNoContent)
	}
}

// reloadProvider rebuilds the live in-memory connection set for
// providerId from durable storage, so a config-surface write takes
// effect without a process restart.
func (s *Server) reloadProvider(providerId string) {
	conns, err := s.Store.LoadConnections()
	if err != nil {
		s.Log.Warn("reload connections after config write failed")
		return
	}
	var filtered []*credential.Connection
	for _, conn := range conns {
		if conn.ProviderId == providerId {
			filtered = append(filtered, conn)
		}
	}
	s.Connections.Replace(providerId, filtered)
}

type aliasInput struct {
	ProviderId string `json:"providerId" binding:"required"`
	Model      string `json:"model" binding:"required"`
}

func (s *Server) listAliases() gin.HandlerFunc {
	return func(c *gin.Context) {
		aliases, err := s.Store.AllAliases()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if aliases == nil {
			aliases = []store.AliasInfo{}
		}
		c.JSON(http.StatusOK, gin.H{"aliases": aliases})
	}
}

func (s *Server) putAlias() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in aliasInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		name := c.Param("name")
		if err := s.Store.PutAlias(name, in.ProviderId, in.Model); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, store.AliasInfo{Name: name, ProviderId: in.ProviderId, Model: in.Model})
	}
}

func (s *Server) deleteAlias() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Store.DeleteAlias(c.Param("name")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type comboInput struct {
	Models []string `json:"models" binding:"required"`
}

func (s *Server) listCombos() gin.HandlerFunc {
	return func(c *gin.Context) {
		combos, err := s.Store.AllCombos()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"combos": combos})
	}
}

func (s *Server) putCombo() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in comboInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		name := c.Param("name")
		if err := s.Store.PutCombo(name, in.Models); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, store.ComboInfo{Name: name, Models: in.Models})
	}
}

func (s *Server) deleteCombo() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Store.DeleteCombo(c.Param("name")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type nodeInput struct {
	BaseURL             string `json:"baseUrl" binding:"required"`
	AnthropicCompatible bool   `json:"anthropicCompatible"`
}

func (s *Server) putNode() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in nodeInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id := c.Param("id")
		if err := s.Store.PutNode(id, in.BaseURL, in.AnthropicCompatible); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		s.Providers.Register(provider.NewCompatibleNode(id, in.BaseURL, in.AnthropicCompatible))
		c.JSON(http.StatusOK, gin.H{"id": id, "baseUrl": in.BaseURL, "anthropicCompatible": in.AnthropicCompatible})
	}
}

type pricingInput struct {
	ProviderId    string  `json:"providerId" binding:"required"`
	Model         string  `json:"model" binding:"required"`
	Input         float64 `json:"input"`
	Output        float64 `json:"output"`
	Cached        float64 `json:"cached"`
	Reasoning     float64 `json:"reasoning"`
	CacheCreation float64 `json:"cacheCreation"`
}

func (s *Server) listPricing() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pricing": s.Pricing.All()})
	}
}

func (s *Server) putPricing() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in pricingInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entry := pricing.Entry{
			Input: in.Input, Output: in.Output, Cached: in.Cached,
			Reasoning: in.Reasoning, CacheCreation: in.CacheCreation,
		}
		if err := s.Store.SetPricing(in.ProviderId, in.Model, entry); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		s.Pricing.Set(in.ProviderId, in.Model, entry)
		c.JSON(http.StatusOK, in)
	}
}

type settingInput struct {
	Value string `json:"value" binding:"required"`
}

func (s *Server) getSetting() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok, err := s.Store.Setting(c.Param("name"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "setting not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "value": value})
	}
}

func (s *Server) putSetting() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in settingInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.Store.SetSetting(c.Param("name"), in.Value); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
