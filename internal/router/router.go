package router

import (
	"Green_Community/internal/handler"
	"Green_Community/internal/middleware"
	"Green_Community/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services 路由用到的全部业务服务
type Services struct {
	User       *service.UserService
	Community  *service.CommunityService
	Membership *service.MembershipService
	Household  *service.HouseholdService
	Plan       *service.PlanService
}

func InitRouter(svc Services, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.AccessLog(logger), middleware.Recovery(logger))

	user := handler.NewUserHandler(svc.User)
	community := handler.NewCommunityHandler(svc.Community, svc.Membership)
	household := handler.NewHouseholdHandler(svc.Household)
	plan := handler.NewPlanHandler(svc.Plan)
	auth := middleware.AuthMiddleware(svc.User)

	// 用户相关接口
	userGroup := r.Group("/api/user")
	{
		userGroup.POST("/register", user.Register)
		userGroup.POST("/login", user.Login)
		userGroup.POST("/logout", auth, user.Logout)
		userGroup.GET("/me", auth, user.Me)
	}

	// token相关接口
	tokenGroup := r.Group("/api/token")
	{
		tokenGroup.POST("/refresh", user.TokenRefresh)
	}

	// 社区及入会相关接口
	communityGroup := r.Group("/api/community")
	communityGroup.Use(auth)
	{
		communityGroup.POST("/create", community.Create)
		communityGroup.PUT("/mine", community.UpdateMine)
		communityGroup.GET("/list", community.List)
		communityGroup.GET("/requests", community.PendingRequests)
		communityGroup.GET("/requests/mine", community.MyRequests)
		communityGroup.GET("/requests/:id", community.GetRequest)
		communityGroup.POST("/requests/:id/resolve", community.Resolve)
		communityGroup.DELETE("/members/:userId", community.RemoveMember)
		communityGroup.POST("/leave", community.Leave)
		communityGroup.GET("/:id", community.Get)
		communityGroup.GET("/:id/members", community.Members)
		communityGroup.POST("/:id/join", community.Join)
	}

	// 家庭数据
	householdGroup := r.Group("/api/household")
	householdGroup.Use(auth)
	{
		householdGroup.PUT("", household.Submit)
		householdGroup.GET("", household.Get)
	}

	// 计划图
	planGroup := r.Group("/api/plan")
	planGroup.Use(auth)
	{
		planGroup.PATCH("/nodes/:id", plan.UpdateNode)
		planGroup.GET("/:scope", plan.Get)
		planGroup.POST("/:scope/regenerate", plan.Regenerate)
	}

	return r
}
