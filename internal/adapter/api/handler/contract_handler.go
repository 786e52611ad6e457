package handler

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/workflow"
	"campaignhub/internal/usecase"
	"campaignhub/pkg/response"
)

type ContractHandler struct {
	contractUseCase *usecase.ContractUseCase
}

func NewContractHandler(contractUseCase *usecase.ContractUseCase) *ContractHandler {
	return &ContractHandler{
		contractUseCase: contractUseCase,
	}
}

type shipRequest struct {
	Kind            string `json:"kind" validate:"required,oneof=material product"`
	TrackingCode    string `json:"tracking_code" validate:"max=100"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

type trackingRequest struct {
	TrackingCode    string `json:"tracking_code" validate:"required,max=100"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

func (h *ContractHandler) GetContract(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}

	contract, err := h.contractUseCase.GetContract(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, contract)
}

func (h *ContractHandler) ListLogs(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}

	logs, err := h.contractUseCase.ListLogs(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, logs)
}

func (h *ContractHandler) Fund(c echo.Context) error {
	return h.transition(c, h.contractUseCase.Fund)
}

func (h *ContractHandler) ConfirmReceipt(c echo.Context) error {
	return h.transition(c, h.contractUseCase.ConfirmReceipt)
}

func (h *ContractHandler) Finalize(c echo.Context) error {
	return h.transition(c, h.contractUseCase.Finalize)
}

func (h *ContractHandler) Withdraw(c echo.Context) error {
	return h.transition(c, h.contractUseCase.Withdraw)
}

func (h *ContractHandler) Ship(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req shipRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	contract, err := h.contractUseCase.Ship(c.Request().Context(), actor, c.Param("id"), usecase.ShipInput{
		Kind:            workflow.ShipmentKind(req.Kind),
		TrackingCode:    req.TrackingCode,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, contract)
}

func (h *ContractHandler) UpdateTracking(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req trackingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	contract, err := h.contractUseCase.UpdateTracking(c.Request().Context(), actor, c.Param("id"), req.TrackingCode, req.ExpectedVersion)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, contract)
}

// ListContracts is the admin view, filtered by ?workflow_status=a,b.
func (h *ContractHandler) ListContracts(c echo.Context) error {
	var statuses []entity.WorkflowStatus
	for _, s := range strings.Split(c.QueryParam("workflow_status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, entity.WorkflowStatus(s))
		}
	}

	contracts, err := h.contractUseCase.ListByWorkflowStatus(c.Request().Context(), statuses)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, contracts)
}

type versionedAction func(ctx context.Context, actor entity.Actor, contractID string, expectedVersion int64) (*usecase.ContractDetail, error)

func (h *ContractHandler) transition(c echo.Context, action versionedAction) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}
	var req versionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	contract, err := action(c.Request().Context(), actor, c.Param("id"), req.ExpectedVersion)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, contract)
}
