package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline-ai/bookline/internal/availability"
	"github.com/bookline-ai/bookline/internal/bookings"
	"github.com/bookline-ai/bookline/internal/conversation"
	"github.com/bookline-ai/bookline/internal/dialogue"
	"github.com/bookline-ai/bookline/internal/directory"
	"github.com/bookline-ai/bookline/internal/engine"
	"github.com/bookline-ai/bookline/internal/intent"
)

const testBusinessID = "7f0e2d4a-9c1b-4e8f-a36d-5b2c8e917f40"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir, err := directory.NewStaticDirectory(map[string]string{testBusinessID: "America/New_York"})
	require.NoError(t, err)
	avail := availability.NewEngine(bookings.NewMemoryRepository(), dir, availability.DefaultConfig(), nil, nil)
	eng := engine.New(
		conversation.NewMemoryStore(20),
		nil,
		intent.NewRuleDetector(),
		dialogue.NewManager(time.Hour, 0.7, nil),
		avail,
		20,
		nil,
		nil,
	)
	h := New(&Config{Handler: NewHandler(eng, nil)})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMessageEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/messages", MessageRequest{
		Channel:       "webchat",
		ChannelUserID: "user-1",
		BusinessID:    testBusinessID,
		Content:       "I want to book a cleaning for friday at 3pm",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out MessageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.FocusedGoal)
	assert.Equal(t, dialogue.GoalServiceBooking, out.FocusedGoal.Type)
	assert.True(t, out.GoalComplete)
	assert.Equal(t, 1, out.TurnCount)
}

func TestMessageEndpointRejectsMissingKey(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/messages", MessageRequest{Content: "hello"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookingLifecycle(t *testing.T) {
	srv := newTestServer(t)
	providerID := uuid.New().String()

	req := BookingRequest{
		ProviderID: providerID,
		BusinessID: testBusinessID,
		UserID:     uuid.New().String(),
		QuoteID:    uuid.New().String(),
		DateTime:   "2026-06-01T15:00:00Z",
	}

	resp := postJSON(t, srv.URL+"/v1/bookings", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created BookingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.NotEmpty(t, created.Booking.ID)
	assert.False(t, created.ReconciliationRequired)

	// A conflicting slot is rejected with 409.
	conflicting := req
	conflicting.QuoteID = uuid.New().String()
	conflicting.DateTime = "2026-06-01T15:30:00Z"
	resp = postJSON(t, srv.URL+"/v1/bookings", conflicting)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Availability for the day excludes the committed slot.
	resp, err := http.Get(fmt.Sprintf("%s/v1/availability?providerId=%s&date=2026-06-01&businessId=%s", srv.URL, providerID, testBusinessID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var availOut struct {
		Windows []availability.Window `json:"windows"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&availOut))
	resp.Body.Close()
	at, _ := time.Parse(time.RFC3339, req.DateTime)
	require.NotEmpty(t, availOut.Windows)
	for _, w := range availOut.Windows {
		assert.False(t, w.Contains(at))
	}

	// Reschedule, then cancel.
	buf, _ := json.Marshal(RescheduleRequest{DateTime: "2026-06-02T16:00:00Z"})
	patch, err := http.NewRequest(http.MethodPatch, srv.URL+"/v1/bookings/"+created.Booking.ID, bytes.NewReader(buf))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(patch)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	del, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/bookings/"+created.Booking.ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(del)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Deleting again is a 404.
	resp, err = http.DefaultClient.Do(del)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBookingValidationError(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/bookings", BookingRequest{
		ProviderID: "not-a-uuid",
		BusinessID: testBusinessID,
		UserID:     uuid.New().String(),
		QuoteID:    uuid.New().String(),
		DateTime:   "2026-06-01T15:00:00Z",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
