package router

import (
	"github.com/labstack/echo/v4"

	"campaignhub/internal/adapter/api/handler"
	"campaignhub/internal/adapter/api/middleware"
)

func SetupContractRouter(v1 *echo.Group, contractHandler *handler.ContractHandler, milestoneHandler *handler.MilestoneHandler) {
	contracts := v1.Group("/contracts")

	contracts.GET("/:id", contractHandler.GetContract)
	contracts.GET("/:id/logs", contractHandler.ListLogs)
	contracts.POST("/:id/fund", contractHandler.Fund)
	contracts.POST("/:id/ship", contractHandler.Ship)
	contracts.POST("/:id/tracking", contractHandler.UpdateTracking)
	contracts.POST("/:id/receipt", contractHandler.ConfirmReceipt)
	contracts.POST("/:id/finalize", contractHandler.Finalize)
	contracts.POST("/:id/withdraw", contractHandler.Withdraw)

	contracts.GET("/:id/milestones", milestoneHandler.GetMilestones)
	contracts.POST("/:id/milestones/:mid/upload", milestoneHandler.Upload)
	contracts.POST("/:id/milestones/:mid/approve", milestoneHandler.Approve)
	contracts.POST("/:id/milestones/:mid/reject", milestoneHandler.Reject)
	contracts.POST("/:id/milestones/:mid/delay", milestoneHandler.Delay)
	contracts.POST("/:id/milestones/:mid/extend", milestoneHandler.Extend)

	admin := v1.Group("/admin", middleware.AdminOnly)
	admin.GET("/contracts", contractHandler.ListContracts)
}
