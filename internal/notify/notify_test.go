package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-mesh/agency/internal/wire"
)

func TestWebhookNotifyPostsJSONBody(t *testing.T) {
	var got wire.MessageNotification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := wire.MessageNotification{MsgUID: "uid-1", MsgType: wire.RMTConnReqAnswer, PairwiseDID: "did:pw"}
	err := New(time.Second).Notify(context.Background(), srv.URL, n)
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

func TestWebhookNotifyReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(time.Second).Notify(context.Background(), srv.URL, wire.MessageNotification{})
	assert.Error(t, err)
}

func TestWebhookNotifyDefaultsTimeout(t *testing.T) {
	w := New(0)
	assert.Equal(t, 5*time.Second, w.client.Timeout)
}
