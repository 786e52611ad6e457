package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/workflow"
	"campaignhub/pkg/errors"
	"campaignhub/pkg/response"
)

// Backend is the request/response side of the server. Every mutation goes
// through it; the live channel only carries what already happened.
type Backend interface {
	GetRoom(ctx context.Context, roomID string) (*entity.Room, error)
	GetMessages(ctx context.Context, roomID string, limit int) ([]entity.Message, error)
	SendMessage(ctx context.Context, roomID string, req SendRequest) (*entity.Message, error)
	MarkRead(ctx context.Context, roomID string, messageIDs []string) error
	GetMilestones(ctx context.Context, contractID string) ([]workflow.MilestoneView, error)
}

// SendRequest mirrors the body of POST /v1/rooms/:id/messages.
type SendRequest struct {
	Type        entity.MessageType   `json:"type"`
	Body        string               `json:"body,omitempty"`
	ClientToken string               `json:"client_token"`
	File        *entity.FileMetadata `json:"file_metadata,omitempty"`
	Offer       *OfferTerms          `json:"offer,omitempty"`
}

type OfferTerms struct {
	Budget        float64 `json:"budget"`
	EstimatedDays int     `json:"estimated_days"`
}

// HTTPBackend talks to the /v1 REST API.
type HTTPBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPBackend builds a backend for baseURL (for example
// "https://api.example.com"). A nil client uses a 15 second timeout.
func NewHTTPBackend(baseURL, token string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

func (b *HTTPBackend) GetRoom(ctx context.Context, roomID string) (*entity.Room, error) {
	var room entity.Room
	if err := b.do(ctx, http.MethodGet, "/v1/rooms/"+url.PathEscape(roomID), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (b *HTTPBackend) GetMessages(ctx context.Context, roomID string, limit int) ([]entity.Message, error) {
	path := "/v1/rooms/" + url.PathEscape(roomID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var messages []entity.Message
	if err := b.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (b *HTTPBackend) SendMessage(ctx context.Context, roomID string, req SendRequest) (*entity.Message, error) {
	var msg entity.Message
	if err := b.do(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(roomID)+"/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (b *HTTPBackend) MarkRead(ctx context.Context, roomID string, messageIDs []string) error {
	body := map[string][]string{"message_ids": messageIDs}
	return b.do(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(roomID)+"/read", body, nil)
}

func (b *HTTPBackend) GetMilestones(ctx context.Context, contractID string) ([]workflow.MilestoneView, error) {
	var views []workflow.MilestoneView
	if err := b.do(ctx, http.MethodGet, "/v1/contracts/"+url.PathEscape(contractID)+"/milestones", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// do sends one request and decodes the envelope. Server failures come back as
// the AppError the server produced; anything below HTTP becomes Transport.
func (b *HTTPBackend) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Validation("Failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return errors.Validation("Invalid request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Transport(fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 400 {
			return errors.FromResponse("", http.StatusText(resp.StatusCode), resp.StatusCode)
		}
		return errors.Transport("Malformed response", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		if env.Error == nil {
			return errors.FromResponse("", http.StatusText(resp.StatusCode), resp.StatusCode)
		}
		return errors.FromResponse(env.Error.Code, env.Error.Message, resp.StatusCode)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Transport("Malformed response data", err)
	}
	return nil
}
