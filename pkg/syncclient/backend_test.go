package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignhub/internal/domain/entity"
	"campaignhub/pkg/errors"
)

func envelopeHandler(t *testing.T, status int, body string, check func(r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestHTTPBackendSendMessage(t *testing.T) {
	srv := httptest.NewServer(envelopeHandler(t, http.StatusCreated,
		`{"success":true,"data":{"id":"m1","room_id":"r1","sender_id":"alice","type":"text","body":"oi","client_token":"tok-1"}}`,
		func(r *http.Request) {
			assert.Equal(t, "/v1/rooms/r1/messages", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			var req SendRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "tok-1", req.ClientToken)
		}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL+"/", "secret", nil)
	m, err := b.SendMessage(context.Background(), "r1", SendRequest{Type: entity.MessageTypeText, Body: "oi", ClientToken: "tok-1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "tok-1", m.ClientToken)
}

func TestHTTPBackendMapsErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(envelopeHandler(t, http.StatusPreconditionFailed,
		`{"success":false,"error":{"code":"PRECONDITION_FAILED","message":"cannot approve while payment_pending"}}`, nil))
	defer srv.Close()

	_, err := NewHTTPBackend(srv.URL, "", nil).GetMilestones(context.Background(), "c1")
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodePrecondition, appErr.Code)
	assert.Equal(t, http.StatusPreconditionFailed, appErr.Status)
	assert.Contains(t, appErr.Message, "payment_pending")
}

func TestHTTPBackendNonEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(envelopeHandler(t, http.StatusBadGateway, "upstream down", nil))
	defer srv.Close()

	err := NewHTTPBackend(srv.URL, "", nil).MarkRead(context.Background(), "r1", []string{"m1"})
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeInternal, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}

func TestHTTPBackendNetworkFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(envelopeHandler(t, http.StatusOK, `{}`, nil))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPBackend(url, "", nil).GetRoom(context.Background(), "r1")
	assert.True(t, errors.IsRetryable(err))
}
