package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/internal/alerting"
	"github.com/plantpulse/plant-server/internal/assistant"
	"github.com/plantpulse/plant-server/internal/database"
	"github.com/plantpulse/plant-server/internal/poller"
	"github.com/plantpulse/plant-server/internal/profile"
	"github.com/plantpulse/plant-server/internal/telemetry"
	"github.com/plantpulse/plant-server/internal/threshold"
)

// fakeProfiles is an in-memory ProfileStore with the same merge semantics as
// the SQL-backed store.
type fakeProfiles struct {
	profiles map[string]*profile.Profile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: make(map[string]*profile.Profile)}
}

func (f *fakeProfiles) get(userID string) *profile.Profile {
	if p, ok := f.profiles[userID]; ok {
		return p
	}
	p := &profile.Profile{UserID: userID}
	f.profiles[userID] = p
	return p
}

func (f *fakeProfiles) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (f *fakeProfiles) Update(ctx context.Context, userID string, patch profile.Patch) error {
	p := f.get(userID)
	if patch.PlantName != nil {
		p.PlantName = *patch.PlantName
	}
	if patch.PlantingDate != nil {
		d := *patch.PlantingDate
		p.PlantingDate = &d
	}
	if patch.AlertEmail != nil {
		p.AlertEmail = *patch.AlertEmail
	}
	return nil
}

func (f *fakeProfiles) ClearPlantingDate(ctx context.Context, userID string) error {
	f.get(userID).PlantingDate = nil
	return nil
}

func (f *fakeProfiles) AddCredential(ctx context.Context, userID, credential string) error {
	p := f.get(userID)
	p.Credentials = append(p.Credentials, credential)
	return nil
}

func (f *fakeProfiles) RemoveCredential(ctx context.Context, userID string, index int) error {
	p := f.get(userID)
	if index < 0 || index >= len(p.Credentials) {
		return profile.ErrCredentialIndex
	}
	p.Credentials = append(p.Credentials[:index], p.Credentials[index+1:]...)
	if p.SelectedCredential >= len(p.Credentials) {
		p.SelectedCredential = 0
	}
	return nil
}

func (f *fakeProfiles) SelectCredential(ctx context.Context, userID string, index int) error {
	p := f.get(userID)
	if index < 0 || index >= len(p.Credentials) {
		return profile.ErrCredentialIndex
	}
	p.SelectedCredential = index
	return nil
}

type fakeHistory struct {
	readings []*database.HourlyReading
	latest   *database.PlantReading
	userID   string
}

func (f *fakeHistory) GetHourlyReadings(userID string, start, end time.Time) ([]*database.HourlyReading, error) {
	f.userID = userID
	return f.readings, nil
}

func (f *fakeHistory) GetLatestReading(userID string) (*database.PlantReading, error) {
	return f.latest, nil
}

type fakeChat struct {
	reply    string
	question string
	snapshot *telemetry.Snapshot
	prof     *profile.Profile
}

func (f *fakeChat) Chat(ctx context.Context, history []assistant.Message, question string, snapshot *telemetry.Snapshot, prof *profile.Profile) (string, error) {
	f.question = question
	f.snapshot = snapshot
	f.prof = prof
	return f.reply, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, credential string) telemetry.Outcome {
	temp, hum := 22.0, 50.0
	return telemetry.Outcome{
		Kind: telemetry.OutcomeSuccess,
		Snapshot: &telemetry.Snapshot{
			Online:      true,
			Temperature: &temp,
			Humidity:    &hum,
			FetchedAt:   time.Now(),
		},
	}
}

type nopSink struct{}

func (nopSink) Dispatch(alerting.Breach, *telemetry.Snapshot, alerting.Target) {}

type testEnv struct {
	server   *Server
	profiles *fakeProfiles
	history  *fakeHistory
	chat     *fakeChat
	registry *poller.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		profiles: newFakeProfiles(),
		history:  &fakeHistory{},
		chat:     &fakeChat{reply: "water it less"},
		registry: poller.NewRegistry(10),
	}
	factory := func(userID string) *poller.Controller {
		return poller.NewController(poller.Options{
			UserID:     userID,
			Fetcher:    stubFetcher{},
			Dispatcher: nopSink{},
			Bands: poller.Bands{
				Temperature: threshold.Band{Min: 15, Max: 73},
				Humidity:    threshold.Band{Min: 30, Max: 80},
			},
			Interval: 10 * time.Millisecond,
			Logger:   zerolog.Nop(),
		})
	}
	env.server = NewServer(0, env.registry, env.profiles, env.chat, env.history, factory, zerolog.Nop())
	t.Cleanup(env.registry.CloseAll)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAPIRequiresUserHeader(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/profile", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without user header, got %d", rec.Code)
	}
}

func TestGetProfileDefaultsForNewUser(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/profile", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp profileResponse
	decodeBody(t, rec, &resp)
	if resp.PlantName != "" || resp.CredentialCount != 0 {
		t.Errorf("expected empty defaults, got %+v", resp)
	}
	if resp.Credentials == nil {
		t.Error("credentials should encode as [], not null")
	}
}

func TestPatchProfileRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPatch, "/api/profile", "user-1", map[string]string{
		"plant_name":    "Monstera",
		"planting_date": "15/03/2026",
		"alert_email":   "me@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp profileResponse
	decodeBody(t, rec, &resp)
	if resp.PlantName != "Monstera" {
		t.Errorf("plant name not saved: %+v", resp)
	}
	if resp.PlantingDate != "15/03/2026" {
		t.Errorf("planting date not round-tripped: %q", resp.PlantingDate)
	}
	if resp.DaysSincePlanting == nil {
		t.Error("days_since_planting missing after setting a date")
	}
	if resp.AlertEmail != "me@example.com" {
		t.Errorf("alert email not saved: %q", resp.AlertEmail)
	}
}

func TestPatchProfileMergesPartialUpdate(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPatch, "/api/profile", "user-1", map[string]string{"plant_name": "Fern"})
	rec := env.do(t, http.MethodPatch, "/api/profile", "user-1", map[string]string{"alert_email": "a@b.c"})

	var resp profileResponse
	decodeBody(t, rec, &resp)
	if resp.PlantName != "Fern" {
		t.Errorf("partial update clobbered plant name: %+v", resp)
	}
	if resp.AlertEmail != "a@b.c" {
		t.Errorf("alert email not applied: %+v", resp)
	}
}

func TestPatchProfileRejectsBadDate(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPatch, "/api/profile", "user-1", map[string]string{
		"planting_date": "2026-03-15",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("ISO date should be rejected, got %d", rec.Code)
	}
}

func TestPatchProfileClearsPlantingDate(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPatch, "/api/profile", "user-1", map[string]string{"planting_date": "15/03/2026"})

	rec := env.do(t, http.MethodPatch, "/api/profile", "user-1", map[string]string{"planting_date": ""})
	var resp profileResponse
	decodeBody(t, rec, &resp)
	if resp.PlantingDate != "" || resp.DaysSincePlanting != nil {
		t.Errorf("planting date not cleared: %+v", resp)
	}
}

func TestAddCredentialStartsPolling(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/credentials", "user-1", map[string]string{"credential": "tok-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	sess, ok := env.registry.Get("user-1")
	if !ok {
		t.Fatal("no session created")
	}
	if !sess.Controller.Polling() {
		t.Error("controller should be polling after credential added")
	}

	deadline := time.After(time.Second)
	for {
		if env.registry.Count() > 0 && sess.Controller.Latest().Status == poller.StatusOnline {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("status never became online: %+v", sess.Controller.Latest())
		case <-time.After(5 * time.Millisecond):
		}
	}

	status := env.do(t, http.MethodGet, "/api/status", "user-1", nil)
	var resp statusResponse
	decodeBody(t, status, &resp)
	if resp.Status != poller.StatusOnline {
		t.Errorf("expected online status, got %q", resp.Status)
	}
}

func TestSelectCredentialOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/credentials", "user-1", map[string]string{"credential": "tok-1"})

	rec := env.do(t, http.MethodPost, "/api/credentials/select", "user-1", map[string]int{"index": 5})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range index, got %d", rec.Code)
	}
}

func TestRemoveCredential(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/credentials", "user-1", map[string]string{"credential": "tok-1"})
	env.do(t, http.MethodPost, "/api/credentials", "user-1", map[string]string{"credential": "tok-2"})

	rec := env.do(t, http.MethodDelete, "/api/credentials/1", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp profileResponse
	decodeBody(t, rec, &resp)
	if resp.CredentialCount != 1 || resp.Credentials[0] != "tok-1" {
		t.Errorf("unexpected credentials after removal: %+v", resp)
	}

	rec = env.do(t, http.MethodDelete, "/api/credentials/7", "user-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad index, got %d", rec.Code)
	}
}

func TestSnapshotIncludesPlantContext(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPatch, "/api/profile", "user-1", map[string]string{
		"plant_name":    "Basil",
		"planting_date": "01/01/2026",
	})
	env.do(t, http.MethodPost, "/api/credentials", "user-1", map[string]string{"credential": "tok-1"})

	time.Sleep(50 * time.Millisecond) // let the first poll land

	rec := env.do(t, http.MethodGet, "/api/snapshot", "user-1", nil)
	var resp snapshotResponse
	decodeBody(t, rec, &resp)
	if resp.PlantName != "Basil" {
		t.Errorf("plant name missing from snapshot: %+v", resp)
	}
	if resp.DaysSincePlanting == nil {
		t.Error("days_since_planting missing")
	}
	if resp.Snapshot == nil || resp.Snapshot.Temperature == nil {
		t.Fatalf("sensor snapshot missing: %+v", resp)
	}
	if *resp.Snapshot.Temperature != 22.0 {
		t.Errorf("expected temperature 22.0, got %v", *resp.Snapshot.Temperature)
	}
}

func TestSnapshotFallsBackToStoredReading(t *testing.T) {
	env := newTestEnv(t)
	storedTemp := 19.5
	env.history.latest = &database.PlantReading{
		UserID:      "user-1",
		Online:      true,
		Temperature: &storedTemp,
		FetchedAt:   time.Now().Add(-time.Hour),
	}

	// No credential, so no poll ever runs; the stored reading fills in.
	rec := env.do(t, http.MethodGet, "/api/snapshot", "user-1", nil)
	var resp snapshotResponse
	decodeBody(t, rec, &resp)
	if resp.Status != poller.StatusNoCredential {
		t.Errorf("expected no_credential status, got %q", resp.Status)
	}
	if resp.Snapshot == nil || resp.Snapshot.Temperature == nil || *resp.Snapshot.Temperature != 19.5 {
		t.Errorf("stored reading not used as fallback: %+v", resp.Snapshot)
	}
}

func TestChatSeedsLatestSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPatch, "/api/profile", "user-1", map[string]string{"plant_name": "Basil"})
	env.do(t, http.MethodPost, "/api/credentials", "user-1", map[string]string{"credential": "tok-1"})
	time.Sleep(50 * time.Millisecond)

	rec := env.do(t, http.MethodPost, "/api/chat", "user-1", map[string]interface{}{
		"question": "Is my plant ok?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	decodeBody(t, rec, &resp)
	if resp.Reply != "water it less" {
		t.Errorf("unexpected reply: %q", resp.Reply)
	}
	if env.chat.question != "Is my plant ok?" {
		t.Errorf("question not forwarded: %q", env.chat.question)
	}
	if env.chat.prof == nil || env.chat.prof.PlantName != "Basil" {
		t.Errorf("profile not forwarded to assistant: %+v", env.chat.prof)
	}
	if env.chat.snapshot == nil {
		t.Error("latest snapshot not forwarded to assistant")
	}
}

func TestChatRequiresQuestion(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/chat", "user-1", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	avgTemp, avgHum := 21.5, 48.0
	env.history.readings = []*database.HourlyReading{
		{UserID: "user-1", AvgTemp: &avgTemp, AvgHumidity: &avgHum, SampleCount: 12},
	}

	rec := env.do(t, http.MethodGet, "/api/history?hours=48", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.history.userID != "user-1" {
		t.Errorf("history queried for wrong user: %q", env.history.userID)
	}
	if !strings.Contains(rec.Body.String(), "21.5") {
		t.Errorf("readings missing from response: %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/history?hours=0", "user-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for hours=0, got %d", rec.Code)
	}
}
