package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignhub/internal/adapter/api"
	"campaignhub/internal/adapter/api/handler"
	"campaignhub/internal/adapter/api/middleware"
	"campaignhub/internal/adapter/api/router"
	"campaignhub/internal/adapter/repository"
	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/service"
	"campaignhub/internal/infrastructure/auth"
	"campaignhub/internal/infrastructure/ratelimit"
	ws "campaignhub/internal/infrastructure/websocket"
	"campaignhub/internal/usecase"
	"campaignhub/pkg/errors"
)

type discardFiles struct{ n int }

func (d *discardFiles) UploadFile(ctx context.Context, file io.Reader, contentType, folder string) (string, error) {
	if _, err := io.Copy(io.Discard, file); err != nil {
		return "", err
	}
	d.n++
	return fmt.Sprintf("https://files.example.com/%s/%d", folder, d.n), nil
}

func (d *discardFiles) DeleteFile(ctx context.Context, fileURL string) error { return nil }
func (d *discardFiles) Close() error                                         { return nil }

type server struct {
	e      *echo.Echo
	tokens map[string]string
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	users := repository.NewMemoryUserRepository()
	verifier := auth.NewHMACVerifier("test-secret", time.Hour)
	s := &server{e: echo.New(), tokens: map[string]string{}}
	for _, u := range []*entity.User{
		{ID: "brand-1", Role: entity.RoleBrand},
		{ID: "creator-1", Role: entity.RoleCreator},
		{ID: "admin-1", Role: entity.RoleAdmin},
	} {
		require.NoError(t, users.Create(ctx, u))
		token, err := verifier.IssueToken(u.ID)
		require.NoError(t, err)
		s.tokens[u.ID] = token
	}

	rooms := repository.NewMemoryRoomRepository()
	messages := repository.NewMemoryMessageRepository()
	contracts := repository.NewMemoryContractRepository()
	escrow := service.NewLedgerEscrowService(repository.NewMemoryEscrowRepository())
	limiter := ratelimit.NewRateLimiter()
	files := &discardFiles{}

	manager := ws.NewManager()
	manager.Start(ctx)

	chat := usecase.NewChatUseCase(rooms, messages, contracts, users, manager, files, limiter, 3*time.Second)
	manager.SetRoomActions(chat)

	s.e.Validator = api.NewValidator()
	router.Setup(s.e, router.Handlers{
		Room:      handler.NewRoomHandler(chat),
		Contract:  handler.NewContractHandler(usecase.NewContractUseCase(contracts, escrow, manager)),
		Milestone: handler.NewMilestoneHandler(usecase.NewMilestoneUseCase(contracts, files, manager, limiter)),
		WebSocket: handler.NewWebSocketHandler(ctx, manager, nil),
		Health:    handler.NewHealthHandler(map[string]handler.HealthCheck{"store": func(context.Context) error { return nil }}),
	}, middleware.NewAuthMiddleware(verifier, users), limiter)
	return s
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *server) do(t *testing.T, user, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[user])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestRequiresAuthentication(t *testing.T) {
	s := newServer(t)

	status, env := s.do(t, "", http.MethodGet, "/v1/rooms", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errors.CodeUnauthorized, env.Error.Code)

	s.tokens["forged"] = "not-a-token"
	status, _ = s.do(t, "forged", http.MethodGet, "/v1/rooms", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	status, _ := s.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, "/health/dependencies", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"ok"`)
}

func TestRoomAndMessages(t *testing.T) {
	s := newServer(t)

	status, env := s.do(t, "brand-1", http.MethodPost, "/v1/rooms", map[string]string{"recipient_id": "creator-1"})
	require.Equal(t, http.StatusCreated, status)
	var room struct {
		ID      string `json:"id"`
		Created bool   `json:"created"`
	}
	decode(t, env, &room)
	assert.True(t, room.Created)

	status, env = s.do(t, "creator-1", http.MethodPost, "/v1/rooms", map[string]string{"recipient_id": "brand-1"})
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, "brand-1", http.MethodPost, "/v1/rooms/"+room.ID+"/messages", map[string]string{"type": "sticker"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errors.CodeValidation, env.Error.Code)

	for i := 0; i < 2; i++ {
		status, _ = s.do(t, "brand-1", http.MethodPost, "/v1/rooms/"+room.ID+"/messages",
			map[string]string{"type": "text", "body": "olá", "client_token": "tok-1"})
		require.Equal(t, http.StatusCreated, status)
	}

	status, env = s.do(t, "creator-1", http.MethodGet, "/v1/rooms/"+room.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, status)
	var msgs []entity.Message
	decode(t, env, &msgs)
	require.Len(t, msgs, 1)

	status, env = s.do(t, "creator-1", http.MethodPost, "/v1/rooms/"+room.ID+"/read", map[string][]string{"message_ids": {msgs[0].ID}})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), msgs[0].ID)

	status, env = s.do(t, "admin-1", http.MethodGet, "/v1/rooms/"+room.ID, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = s.do(t, "creator-1", http.MethodGet, "/v1/rooms?page=1&limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Items []entity.Room `json:"items"`
		Total int64         `json:"total"`
	}
	decode(t, env, &page)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, room.ID, page.Items[0].ID)
}

func TestContractOverHTTP(t *testing.T) {
	s := newServer(t)

	_, env := s.do(t, "brand-1", http.MethodPost, "/v1/rooms", map[string]string{"recipient_id": "creator-1"})
	var room struct {
		ID string `json:"id"`
	}
	decode(t, env, &room)

	status, env := s.do(t, "brand-1", http.MethodPost, "/v1/rooms/"+room.ID+"/messages", map[string]interface{}{
		"type":  "offer",
		"offer": map[string]interface{}{"budget": 1200, "estimated_days": 10},
	})
	require.Equal(t, http.StatusCreated, status)
	var offer entity.Message
	decode(t, env, &offer)

	status, env = s.do(t, "creator-1", http.MethodPost, fmt.Sprintf("/v1/rooms/%s/offers/%s/accept", room.ID, offer.ID), nil)
	require.Equal(t, http.StatusOK, status, string(env.Data))
	var decision struct {
		Contract struct {
			ID         string                  `json:"id"`
			Version    int64                   `json:"version"`
			Milestones []map[string]interface{} `json:"milestones"`
		} `json:"contract"`
	}
	decode(t, env, &decision)
	contractID := decision.Contract.ID
	require.NotEmpty(t, contractID)
	require.Len(t, decision.Contract.Milestones, 4)
	scriptID := decision.Contract.Milestones[0]["id"].(string)

	status, env = s.do(t, "brand-1", http.MethodPost, "/v1/contracts/"+contractID+"/milestones/"+scriptID+"/approve", nil)
	assert.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, errors.CodePrecondition, env.Error.Code)

	status, env = s.do(t, "brand-1", http.MethodPost, "/v1/contracts/"+contractID+"/fund", map[string]int64{"expected_version": 99})
	assert.Equal(t, http.StatusConflict, status)

	status, env = s.do(t, "brand-1", http.MethodPost, "/v1/contracts/"+contractID+"/fund", map[string]int64{"expected_version": decision.Contract.Version})
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, "brand-1", http.MethodPost, "/v1/contracts/"+contractID+"/ship", map[string]string{"kind": "boat"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, env = s.do(t, "brand-1", http.MethodPost, "/v1/contracts/"+contractID+"/ship", map[string]string{"kind": "product", "tracking_code": "BR1"})
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, "brand-1", http.MethodGet, "/v1/contracts/"+contractID, nil)
	require.Equal(t, http.StatusOK, status)
	var contract entity.Contract
	decode(t, env, &contract)
	assert.Equal(t, entity.WorkflowProductSent, contract.WorkflowStatus)
	assert.Equal(t, "BR1", contract.TrackingCode)

	status, env = s.do(t, "creator-1", http.MethodGet, "/v1/contracts/"+contractID+"/logs", nil)
	require.Equal(t, http.StatusOK, status)
	var logs []entity.ContractLog
	decode(t, env, &logs)
	assert.Len(t, logs, 3)

	status, _ = s.do(t, "brand-1", http.MethodGet, "/v1/admin/contracts", nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, env = s.do(t, "admin-1", http.MethodGet, "/v1/admin/contracts?workflow_status=product_sent", nil)
	require.Equal(t, http.StatusOK, status)
	var listed []entity.Contract
	decode(t, env, &listed)
	assert.Len(t, listed, 1)
}
