package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/repository"
	"campaignhub/internal/usecase"
	"campaignhub/pkg/errors"
	"campaignhub/pkg/response"
	"campaignhub/pkg/utils"
)

type RoomHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewRoomHandler(chatUseCase *usecase.ChatUseCase) *RoomHandler {
	return &RoomHandler{
		chatUseCase: chatUseCase,
	}
}

type createRoomRequest struct {
	RecipientID   string `json:"recipient_id" validate:"required"`
	CampaignTitle string `json:"campaign_title" validate:"max=200"`
}

type fileRequest struct {
	URL         string `json:"url" validate:"required,url"`
	Filename    string `json:"filename" validate:"max=255"`
	ContentType string `json:"content_type" validate:"required"`
	Size        int64  `json:"size" validate:"gte=0"`
}

type offerRequest struct {
	Budget        float64 `json:"budget" validate:"gt=0"`
	EstimatedDays int     `json:"estimated_days" validate:"gt=0,lte=365"`
}

type sendMessageRequest struct {
	Type        string        `json:"type" validate:"required,oneof=text file image offer"`
	Body        string        `json:"body" validate:"max=4000"`
	ClientToken string        `json:"client_token" validate:"max=64"`
	File        *fileRequest  `json:"file_metadata"`
	Offer       *offerRequest `json:"offer"`
}

type markReadRequest struct {
	MessageIDs []string `json:"message_ids" validate:"required,min=1,max=200"`
}

type typingRequest struct {
	Typing bool `json:"typing"`
}

type createRoomResponse struct {
	*entity.Room
	Created bool `json:"created"`
}

type markReadResponse struct {
	MessageIDs []string `json:"message_ids"`
}

func (h *RoomHandler) CreateRoom(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req createRoomRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	room, created, err := h.chatUseCase.CreateRoom(c.Request().Context(), actor, usecase.CreateRoomInput{
		RecipientID:   req.RecipientID,
		CampaignTitle: req.CampaignTitle,
	})
	if err != nil {
		return response.Error(c, err)
	}

	if created {
		return response.Created(c, createRoomResponse{Room: room, Created: true})
	}
	return response.Success(c, createRoomResponse{Room: room})
}

func (h *RoomHandler) ListRooms(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}

	page := utils.GetPaginationParams(c)

	rooms, total, err := h.chatUseCase.ListRooms(c.Request().Context(), actor, page.PageSize, page.Offset)
	if err != nil {
		return response.Error(c, err)
	}
	return response.SuccessPaginated(c, rooms, total, page.PageSize, page.Offset)
}

func (h *RoomHandler) GetRoom(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}

	room, err := h.chatUseCase.GetRoom(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, room)
}

// GetMessages returns the newest page of a room in ascending order. Pass the
// oldest id received as before to page backwards.
func (h *RoomHandler) GetMessages(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}

	messages, err := h.chatUseCase.GetMessages(c.Request().Context(), actor, c.Param("id"), repository.MessageQuery{
		Limit:  queryInt(c, "limit", 0),
		Before: c.QueryParam("before"),
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, messages)
}

func (h *RoomHandler) SendMessage(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req sendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	input := usecase.SendMessageInput{
		Type:        entity.MessageType(req.Type),
		Body:        req.Body,
		ClientToken: req.ClientToken,
	}
	if req.File != nil {
		input.File = &entity.FileMetadata{
			URL:         req.File.URL,
			Filename:    req.File.Filename,
			ContentType: req.File.ContentType,
			Size:        req.File.Size,
		}
	}
	if req.Offer != nil {
		input.Offer = &usecase.OfferInput{Budget: req.Offer.Budget, EstimatedDays: req.Offer.EstimatedDays}
	}

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), actor, c.Param("id"), input)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, message)
}

func (h *RoomHandler) UploadFile(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return response.Error(c, errors.Validation("file is required", err))
	}
	src, err := fh.Open()
	if err != nil {
		return response.Error(c, errors.Internal("Failed to read upload", err))
	}
	defer src.Close()

	meta, err := h.chatUseCase.UploadMessageFile(c.Request().Context(), actor, c.Param("id"), usecase.FileUpload{
		Reader:   src,
		Filename: fh.Filename,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, meta)
}

func (h *RoomHandler) MarkRead(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req markReadRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	changed, err := h.chatUseCase.MarkRead(c.Request().Context(), actor, c.Param("id"), req.MessageIDs)
	if err != nil {
		return response.Error(c, err)
	}
	if changed == nil {
		changed = []string{}
	}
	return response.Success(c, markReadResponse{MessageIDs: changed})
}

func (h *RoomHandler) SetTyping(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req typingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	if err := h.chatUseCase.SetTyping(c.Request().Context(), actor, c.Param("id"), req.Typing); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, req)
}

func (h *RoomHandler) AcceptOffer(c echo.Context) error {
	return h.decideOffer(c, h.chatUseCase.AcceptOffer)
}

func (h *RoomHandler) RejectOffer(c echo.Context) error {
	return h.decideOffer(c, h.chatUseCase.RejectOffer)
}

func (h *RoomHandler) CancelOffer(c echo.Context) error {
	return h.decideOffer(c, h.chatUseCase.CancelOffer)
}

type offerDecider func(ctx context.Context, actor entity.Actor, roomID, messageID string) (*usecase.OfferDecision, error)

func (h *RoomHandler) decideOffer(c echo.Context, decide offerDecider) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}

	decision, err := decide(c.Request().Context(), actor, c.Param("id"), c.Param("messageId"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, decision)
}
