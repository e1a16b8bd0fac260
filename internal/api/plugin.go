package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/memoryledger/internal/plugin"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
	"go.uber.org/zap"
)

// PluginHandler exposes the agent-facing plugin over HTTP. Mutations answer
// with a wire.TransactionResult: 200 when applied, 422 otherwise.
type PluginHandler struct {
	plugin *plugin.Plugin
	logger *zap.Logger
}

// NewPluginHandler creates a new PluginHandler.
func NewPluginHandler(p *plugin.Plugin, logger *zap.Logger) *PluginHandler {
	return &PluginHandler{plugin: p, logger: logger}
}

// Register mounts the plugin routes on the given router group.
func (h *PluginHandler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/plugin")
	{
		p.POST("/characters", h.StoreCharacter)
		p.GET("/characters/:id", h.LoadCharacter)
		p.GET("/characters/:id/memories", h.LoadMemory)
		p.POST("/memories", h.UpdateMemory)
		p.POST("/transfers", h.TransferTokens)
		p.POST("/deposits", h.Deposit)
		p.POST("/owner", h.ChangeOwner)
	}
}

// StoreCharacter handles POST /plugin/characters with a text profile.
func (h *PluginHandler) StoreCharacter(c *gin.Context) {
	var prof plugin.Profile
	if err := c.ShouldBindJSON(&prof); err != nil {
		badRequest(c, err)
		return
	}
	result(c, h.plugin.StoreCharacter(c.Request.Context(), prof))
}

// LoadCharacter handles GET /plugin/characters/:id. The response carries
// the stored character and its decoded text profile.
func (h *PluginHandler) LoadCharacter(c *gin.Context) {
	ch := h.plugin.LoadCharacter(c.Param("id"))
	if ch == nil {
		c.JSON(http.StatusNotFound, wire.ErrorResponse{Error: "character not found", Code: "NotFound"})
		return
	}
	prof, err := plugin.DecodeProfile(*ch)
	if err != nil {
		h.logger.Error("decode stored character", zap.String("id", ch.ID), zap.Error(err))
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"character": ch, "profile": prof})
}

// LoadMemory handles GET /plugin/characters/:id/memories.
func (h *PluginHandler) LoadMemory(c *gin.Context) {
	mems := h.plugin.LoadMemory(c.Param("id"))
	if mems == nil {
		c.JSON(http.StatusNotFound, wire.ErrorResponse{Error: "character not found", Code: "NotFound"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": mems})
}

// UpdateMemory handles POST /plugin/memories.
func (h *PluginHandler) UpdateMemory(c *gin.Context) {
	var u wire.MemoryUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, err)
		return
	}
	result(c, h.plugin.UpdateMemory(c.Request.Context(), u))
}

type tokenRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// TransferTokens handles POST /plugin/transfers.
func (h *PluginHandler) TransferTokens(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}
	result(c, h.plugin.TransferTokens(c.Request.Context(), req.To, amount))
}

// Deposit handles POST /plugin/deposits.
func (h *PluginHandler) Deposit(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		badRequest(c, err)
		return
	}
	result(c, h.plugin.Deposit(c.Request.Context(), amount))
}

// ChangeOwner handles POST /plugin/owner.
func (h *PluginHandler) ChangeOwner(c *gin.Context) {
	var req struct {
		NewOwner string `json:"newOwner"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result(c, h.plugin.ChangeOwner(c.Request.Context(), req.NewOwner))
}

func result(c *gin.Context, r wire.TransactionResult) {
	if !r.Success {
		c.JSON(http.StatusUnprocessableEntity, r)
		return
	}
	c.JSON(http.StatusOK, r)
}
