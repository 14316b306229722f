package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DoyleJ11/live-leaderboard/internal/config"
	"github.com/DoyleJ11/live-leaderboard/internal/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		StoreDriver:     config.DriverMemory,
		CORSOrigins:     []string{"http://localhost:3000"},
		LogLevel:        "error",
		LogFormat:       "console",
		WSPingInterval:  time.Second,
		WSWriteTimeout:  time.Second,
		WSOutboxSize:    4,
		RequestTimeout:  time.Second,
		ShutdownTimeout: time.Second,
	}
}

func TestModule_StartsWithMemoryStore(t *testing.T) {
	var (
		handler http.Handler
		h       *hub.Hub
	)
	app := fxtest.New(t,
		fx.Supply(testConfig()),
		Module,
		fx.Invoke(func(*http.Server) {}),
		fx.Populate(&handler, &h),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, hub.StateActive, h.State())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string    `json:"status"`
		Hub    hub.Stats `json:"hub"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, hub.StateActive, body.Hub.State)
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t,
		[]string{"localhost:3000", "board.example.com"},
		originPatterns([]string{"http://localhost:3000", "https://board.example.com"}))
	assert.Equal(t, []string{"*"}, originPatterns([]string{"http://a.test", "*"}))
	assert.Empty(t, originPatterns(nil))
}
