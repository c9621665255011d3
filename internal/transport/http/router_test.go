package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gke-notify/internal/application/notification"
	"github.com/gke-notify/internal/config"
	"github.com/gke-notify/internal/domain"
)

func newTestRouter(t *testing.T, logs *bytes.Buffer) http.Handler {
	t.Helper()
	cfg := &config.Config{AllowedOrigins: []string{"https://ops.example.com"}}
	logger := zerolog.New(logs).Level(zerolog.InfoLevel)
	svc := notification.NewService(nil, nil, nil, notification.Options{ProjectID: "my-project"}, logger)
	return NewRouter(cfg, &Deps{Notifications: svc, Logger: logger})
}

func envelopeBody(t *testing.T, payload string) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(domain.PushEnvelope{Message: domain.PushMessage{
		Data:        base64.StdEncoding.EncodeToString([]byte(payload)),
		MessageID:   "1",
		PublishTime: "2023-06-01T10:00:00Z",
	}})
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func TestRouter_PushRoutes(t *testing.T) {
	var logs bytes.Buffer
	r := newTestRouter(t, &logs)
	payload := `{"type":"UpgradeAvailableEvent","resource":{"type":"master","name":"cluster-a"},"currentVersion":"1.27","targetVersion":"1.28"}`

	for _, path := range []string{"/", "/v1/push"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, envelopeBody(t, payload)))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), string(domain.DeliverySkippedNotConfigured), path)
	}
	assert.Contains(t, logs.String(), "cluster-a")
}

func TestRouter_MalformedPushIsAcknowledgedAndWarned(t *testing.T) {
	var logs bytes.Buffer
	r := newTestRouter(t, &logs)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/push", envelopeBody(t, `{"foo":"bar"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "missing_discriminator")
}

func TestRouter_Preview(t *testing.T) {
	r := newTestRouter(t, &bytes.Buffer{})
	req := httptest.NewRequest(http.MethodPost, "/v1/preview", envelopeBody(t, `{"type":"FutureUnknownEvent","foo":"bar"}`))
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	var out struct {
		Text   string         `json:"text"`
		Blocks []domain.Block `json:"blocks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Contains(t, out.Text, "FutureUnknownEvent")
	assert.NotEmpty(t, out.Blocks)
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t, &bytes.Buffer{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "UP", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pong")
}
