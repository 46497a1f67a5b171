package handler

import (
	"net/http"
	"strconv"

	"Green_Community/internal/service"

	"github.com/gin-gonic/gin"
)

// CommunityHandler 社区资料与入会流程
type CommunityHandler struct {
	svc        *service.CommunityService
	membership *service.MembershipService
}

type ResolveReq struct {
	Decision string `json:"decision" binding:"required"`
}

func NewCommunityHandler(svc *service.CommunityService, membership *service.MembershipService) *CommunityHandler {
	return &CommunityHandler{svc: svc, membership: membership}
}

func (h *CommunityHandler) Create(c *gin.Context) {
	var req service.CommunityInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}

	community, err := h.svc.CreateCommunity(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, community)
}

// UpdateMine leader 修改自己社区的资料
func (h *CommunityHandler) UpdateMine(c *gin.Context) {
	var req service.CommunityInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid params")
		return
	}

	community, err := h.svc.UpdateCommunity(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, community)
}

func (h *CommunityHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))

	list, err := h.svc.ListCommunities(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"list": list})
}

func (h *CommunityHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	community, err := h.svc.GetCommunity(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, community)
}

func (h *CommunityHandler) Members(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	members, err := h.membership.ListMembers(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": members})
}

// Join 提交入会申请，等待 leader 审批
func (h *CommunityHandler) Join(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	req, err := h.membership.SubmitRequest(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, req)
}

// PendingRequests leader 查看待审批的申请
func (h *CommunityHandler) PendingRequests(c *gin.Context) {
	list, err := h.membership.ListPending(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list})
}

func (h *CommunityHandler) MyRequests(c *gin.Context) {
	list, err := h.membership.ListMyRequests(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list})
}

func (h *CommunityHandler) GetRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, err := h.membership.GetRequest(c.Request.Context(), id, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *CommunityHandler) Resolve(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body ResolveReq
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid params")
		return
	}
	decision, err := service.ParseDecision(body.Decision)
	if err != nil {
		respondError(c, err)
		return
	}

	req, err := h.membership.ResolveRequest(c.Request.Context(), id, currentUser(c), decision)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *CommunityHandler) RemoveMember(c *gin.Context) {
	memberID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	if err := h.membership.RemoveMember(c.Request.Context(), currentUser(c), memberID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "ok"})
}

func (h *CommunityHandler) Leave(c *gin.Context) {
	if err := h.membership.Leave(c.Request.Context(), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "ok"})
}
