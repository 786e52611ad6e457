package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"campaignhub/internal/usecase"
	"campaignhub/pkg/errors"
	"campaignhub/pkg/response"
)

type MilestoneHandler struct {
	milestoneUseCase *usecase.MilestoneUseCase
}

func NewMilestoneHandler(milestoneUseCase *usecase.MilestoneUseCase) *MilestoneHandler {
	return &MilestoneHandler{
		milestoneUseCase: milestoneUseCase,
	}
}

type rejectRequest struct {
	Comment         string `json:"comment" validate:"required,max=1000"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

type delayRequest struct {
	Justification   string `json:"justification" validate:"max=1000"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

type extendRequest struct {
	Days            int    `json:"days" validate:"required,gt=0,lte=90"`
	Reason          string `json:"reason" validate:"required,max=500"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

func (h *MilestoneHandler) GetMilestones(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}

	views, err := h.milestoneUseCase.GetMilestones(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, views)
}

// Upload takes a multipart form with a "file" part and an optional
// expected_version field.
func (h *MilestoneHandler) Upload(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}

	var expectedVersion int64
	if v := c.FormValue("expected_version"); v != "" {
		if expectedVersion, err = strconv.ParseInt(v, 10, 64); err != nil || expectedVersion < 0 {
			return response.Error(c, errors.Validation("expected_version must be a non-negative integer", err))
		}
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

	contract, err := h.milestoneUseCase.Upload(c.Request().Context(), actor, c.Param("id"), c.Param("mid"), usecase.FileUpload{
		Reader:   src,
		Filename: fh.Filename,
	}, expectedVersion)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, contract)
}

func (h *MilestoneHandler) Approve(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req versionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	contract, err := h.milestoneUseCase.Approve(c.Request().Context(), actor, c.Param("id"), c.Param("mid"), req.ExpectedVersion)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, contract)
}

func (h *MilestoneHandler) Reject(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req rejectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	contract, err := h.milestoneUseCase.Reject(c.Request().Context(), actor, c.Param("id"), c.Param("mid"), req.Comment, req.ExpectedVersion)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, contract)
}

func (h *MilestoneHandler) Delay(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req delayRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	contract, err := h.milestoneUseCase.Delay(c.Request().Context(), actor, c.Param("id"), c.Param("mid"), req.Justification, req.ExpectedVersion)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, contract)
}

func (h *MilestoneHandler) Extend(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req extendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	contract, err := h.milestoneUseCase.Extend(c.Request().Context(), actor, c.Param("id"), c.Param("mid"), usecase.ExtendInput{
		Days:            req.Days,
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, contract)
}
