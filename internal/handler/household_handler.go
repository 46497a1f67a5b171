package handler

import (
	"net/http"

	"Green_Community/internal/service"

	"github.com/gin-gonic/gin"
)

type HouseholdHandler struct {
	svc *service.HouseholdService
}

func NewHouseholdHandler(svc *service.HouseholdService) *HouseholdHandler {
	return &HouseholdHandler{svc: svc}
}

// Submit 保存家庭数据，计划在后台重新生成
func (h *HouseholdHandler) Submit(c *gin.Context) {
	var req service.HouseholdInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}

	household, err := h.svc.SubmitHousehold(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, household)
}

func (h *HouseholdHandler) Get(c *gin.Context) {
	household, err := h.svc.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, household)
}
