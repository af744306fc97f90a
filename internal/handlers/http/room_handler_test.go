package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"roomcast/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAnnouncer struct {
	texts []string
}

func (a *recordingAnnouncer) PublishAnnouncement(ctx context.Context, text string) error {
	a.texts = append(a.texts, text)
	return nil
}

func newAnnounceRouter(announcer Announcer, apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	h := NewRoomHandler(nil, nil, nil, announcer, apiKey, "", log)
	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.POST("/api/announce", h.Announce)
	return router
}

func postAnnounce(router *gin.Engine, apiKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/announce", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAnnounceRequiresAPIKey(t *testing.T) {
	announcer := &recordingAnnouncer{}
	router := newAnnounceRouter(announcer, "secret")

	rec := postAnnounce(router, "", `{"text":"hello"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postAnnounce(router, "wrong", `{"text":"hello"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, announcer.texts)
}

func TestAnnounceDisabledWithoutConfiguredKey(t *testing.T) {
	announcer := &recordingAnnouncer{}
	router := newAnnounceRouter(announcer, "")

	// an empty configured key disables the endpoint entirely
	rec := postAnnounce(router, "", `{"text":"hello"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, announcer.texts)
}

func TestAnnouncePublishes(t *testing.T) {
	announcer := &recordingAnnouncer{}
	router := newAnnounceRouter(announcer, "secret")

	rec := postAnnounce(router, "secret", `{"text":"maintenance in 5 minutes"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, announcer.texts, 1)
	assert.Equal(t, "maintenance in 5 minutes", announcer.texts[0])
}

func TestAnnounceRejectsEmptyText(t *testing.T) {
	announcer := &recordingAnnouncer{}
	router := newAnnounceRouter(announcer, "secret")

	rec := postAnnounce(router, "secret", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, announcer.texts)
}
