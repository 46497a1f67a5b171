package handler

import (
	"fmt"
	"net/http"

	"Green_Community/internal/graph"
	"Green_Community/internal/pkg"
	"Green_Community/internal/service"

	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	svc *service.PlanService
}

type NodeStatusReq struct {
	Status string `json:"status" binding:"required"`
}

func NewPlanHandler(svc *service.PlanService) *PlanHandler {
	return &PlanHandler{svc: svc}
}

func scopeParam(c *gin.Context) (graph.Scope, bool) {
	scope, err := graph.ParseScope(c.Param("scope"))
	if err != nil {
		respondError(c, fmt.Errorf("%w: %w", pkg.ErrValidation, err))
		return "", false
	}
	return scope, true
}

// Get 当前用户可见的计划图
func (h *PlanHandler) Get(c *gin.Context) {
	scope, ok := scopeParam(c)
	if !ok {
		return
	}
	view, err := h.svc.ViewFor(c.Request.Context(), currentUser(c), scope)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Regenerate 只入队，生成完成前读到的仍是旧计划
func (h *PlanHandler) Regenerate(c *gin.Context) {
	scope, ok := scopeParam(c)
	if !ok {
		return
	}
	subject, err := h.svc.RequestRegeneration(c.Request.Context(), currentUser(c), scope)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"msg": "accepted", "subject": subject.Key()})
}

func (h *PlanHandler) UpdateNode(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req NodeStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}

	node, err := h.svc.UpdateNodeStatus(c.Request.Context(), currentUser(c), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}
