package webhook

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(nil).RegisterRoutes(r.Group("/api/v2"))
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestActivityRejectsMissingSessionID(t *testing.T) {
	r := newTestRouter()

	w := postJSON(r, "/api/v2/webhook/activity", `{"message":"clicked login"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "sessionId")
}

func TestActivityRejectsMissingMessage(t *testing.T) {
	r := newTestRouter()

	w := postJSON(r, "/api/v2/webhook/activity", `{"sessionId":"sess-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestViewportUpdateRejectsMissingURL(t *testing.T) {
	r := newTestRouter()

	w := postJSON(r, "/api/v2/webhook/viewport-update", `{"sessionId":"sess-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "currentUrl")
}

func TestActivityRejectsMalformedJSON(t *testing.T) {
	r := newTestRouter()

	w := postJSON(r, "/api/v2/webhook/activity", `{"sessionId":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
