package router

import (
	"github.com/labstack/echo/v4"

	"campaignhub/internal/adapter/api/handler"
)

func SetupRoomRouter(v1 *echo.Group, roomHandler *handler.RoomHandler) {
	rooms := v1.Group("/rooms")

	rooms.POST("", roomHandler.CreateRoom)
	rooms.GET("", roomHandler.ListRooms)
	rooms.GET("/:id", roomHandler.GetRoom)

	rooms.GET("/:id/messages", roomHandler.GetMessages)
	rooms.POST("/:id/messages", roomHandler.SendMessage)
	rooms.POST("/:id/files", roomHandler.UploadFile)
	rooms.POST("/:id/read", roomHandler.MarkRead)
	rooms.POST("/:id/typing", roomHandler.SetTyping)

	rooms.POST("/:id/offers/:messageId/accept", roomHandler.AcceptOffer)
	rooms.POST("/:id/offers/:messageId/reject", roomHandler.RejectOffer)
	rooms.POST("/:id/offers/:messageId/cancel", roomHandler.CancelOffer)
}
