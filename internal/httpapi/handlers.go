package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/plantpulse/plant-server/internal/assistant"
	"github.com/plantpulse/plant-server/internal/poller"
	"github.com/plantpulse/plant-server/internal/profile"
	"github.com/plantpulse/plant-server/internal/telemetry"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.registry.Count(),
	})
}

// loadProfile fetches the user's profile, substituting an empty one for
// first-time users who have never saved anything.
func (s *Server) loadProfile(r *http.Request) (*profile.Profile, error) {
	userID := r.Header.Get(userIDHeader)
	prof, err := s.profiles.Get(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if prof == nil {
		prof = &profile.Profile{UserID: userID}
	}
	return prof, nil
}

// ensureSession makes sure a polling session exists for the user and that it
// is polling with the profile's currently selected credential.
func (s *Server) ensureSession(r *http.Request) (*poller.Session, *profile.Profile, error) {
	userID := r.Header.Get(userIDHeader)

	prof, err := s.loadProfile(r)
	if err != nil {
		return nil, nil, err
	}

	sess, err := s.registry.GetOrCreate(userID, func() *poller.Controller {
		return s.factory(userID)
	})
	if err != nil {
		return nil, nil, err
	}

	sess.Controller.SetCredential(prof.ActiveCredential())
	return sess, prof, nil
}

type statusResponse struct {
	Status    poller.Status `json:"status"`
	Notice    string        `json:"notice,omitempty"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.ensureSession(r)
	if err != nil {
		s.sessionError(w, err)
		return
	}

	latest := sess.Controller.Latest()
	resp := statusResponse{Status: latest.Status, Notice: latest.Notice}
	if !latest.UpdatedAt.IsZero() {
		resp.UpdatedAt = &latest.UpdatedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type snapshotResponse struct {
	Status            poller.Status       `json:"status"`
	Snapshot          *telemetry.Snapshot `json:"snapshot,omitempty"`
	PlantName         string              `json:"plant_name,omitempty"`
	DaysSincePlanting *int                `json:"days_since_planting,omitempty"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, prof, err := s.ensureSession(r)
	if err != nil {
		s.sessionError(w, err)
		return
	}

	latest := sess.Controller.Latest()
	resp := snapshotResponse{Status: latest.Status, PlantName: prof.PlantName}
	if latest.Outcome != nil {
		resp.Snapshot = latest.Outcome.Snapshot
	}
	if resp.Snapshot == nil {
		// No poll has landed yet in this session; show the last stored
		// reading so a returning user is not greeted with blanks.
		if stored, err := s.history.GetLatestReading(prof.UserID); err == nil && stored != nil {
			resp.Snapshot = &telemetry.Snapshot{
				Online:      stored.Online,
				Temperature: stored.Temperature,
				Humidity:    stored.Humidity,
				FetchedAt:   stored.FetchedAt,
			}
		}
	}
	if prof.PlantingDate != nil {
		days := profile.DaysSincePlanting(*prof.PlantingDate, time.Now())
		resp.DaysSincePlanting = &days
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 24*31 {
			writeError(w, http.StatusBadRequest, "hours must be between 1 and 744")
			return
		}
		hours = n
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)
	readings, err := s.history.GetHourlyReadings(userID, start, end)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load hourly readings")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"readings": readings})
}

type profileResponse struct {
	PlantName         string   `json:"plant_name"`
	PlantingDate      string   `json:"planting_date,omitempty"` // DD/MM/YYYY
	DaysSincePlanting *int     `json:"days_since_planting,omitempty"`
	AlertEmail        string   `json:"alert_email"`
	CredentialCount   int      `json:"credential_count"`
	SelectedIndex     int      `json:"selected_index"`
	Credentials       []string `json:"credentials"`
}

func profileToResponse(prof *profile.Profile) profileResponse {
	resp := profileResponse{
		PlantName:       prof.PlantName,
		AlertEmail:      prof.AlertEmail,
		CredentialCount: len(prof.Credentials),
		SelectedIndex:   prof.SelectedCredential,
		Credentials:     prof.Credentials,
	}
	if resp.Credentials == nil {
		resp.Credentials = []string{}
	}
	if prof.PlantingDate != nil {
		resp.PlantingDate = profile.FormatPlantingDate(*prof.PlantingDate)
		days := profile.DaysSincePlanting(*prof.PlantingDate, time.Now())
		resp.DaysSincePlanting = &days
	}
	return resp
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	prof, err := s.loadProfile(r)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", r.Header.Get(userIDHeader)).Msg("Failed to load profile")
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profileToResponse(prof))
}

type patchProfileRequest struct {
	PlantName    *string `json:"plant_name"`
	PlantingDate *string `json:"planting_date"` // DD/MM/YYYY, "" clears
	AlertEmail   *string `json:"alert_email"`
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	var req patchProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	patch := profile.Patch{PlantName: req.PlantName, AlertEmail: req.AlertEmail}
	clearDate := false
	if req.PlantingDate != nil {
		if *req.PlantingDate == "" {
			clearDate = true
		} else {
			parsed, err := profile.ParsePlantingDate(*req.PlantingDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			patch.PlantingDate = &parsed
		}
	}

	if err := s.profiles.Update(r.Context(), userID, patch); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to update profile")
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	if clearDate {
		if err := s.profiles.ClearPlantingDate(r.Context(), userID); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to clear planting date")
			writeError(w, http.StatusInternalServerError, "failed to update profile")
			return
		}
	}

	prof, err := s.loadProfile(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profileToResponse(prof))
}

type credentialRequest struct {
	Credential string `json:"credential"`
}

func (s *Server) handleAddCredential(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Credential == "" {
		writeError(w, http.StatusBadRequest, "credential is required")
		return
	}

	if err := s.profiles.AddCredential(r.Context(), userID, req.Credential); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to add credential")
		writeError(w, http.StatusInternalServerError, "failed to add credential")
		return
	}

	s.syncSession(w, r)
}

type selectCredentialRequest struct {
	Index int `json:"index"`
}

func (s *Server) handleSelectCredential(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	var req selectCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.profiles.SelectCredential(r.Context(), userID, req.Index); err != nil {
		if errors.Is(err, profile.ErrCredentialIndex) {
			writeError(w, http.StatusBadRequest, "credential index out of range")
			return
		}
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to select credential")
		writeError(w, http.StatusInternalServerError, "failed to select credential")
		return
	}

	s.syncSession(w, r)
}

func (s *Server) handleRemoveCredential(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)

	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}

	if err := s.profiles.RemoveCredential(r.Context(), userID, index); err != nil {
		if errors.Is(err, profile.ErrCredentialIndex) {
			writeError(w, http.StatusBadRequest, "credential index out of range")
			return
		}
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to remove credential")
		writeError(w, http.StatusInternalServerError, "failed to remove credential")
		return
	}

	s.syncSession(w, r)
}

// syncSession re-reads the profile, pushes the now-active credential into the
// user's polling session, and responds with the updated profile.
func (s *Server) syncSession(w http.ResponseWriter, r *http.Request) {
	_, prof, err := s.ensureSession(r)
	if err != nil {
		s.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileToResponse(prof))
}

type chatRequest struct {
	Question string              `json:"question"`
	History  []assistant.Message `json:"history"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if len(req.History) > 50 {
		req.History = req.History[len(req.History)-50:]
	}

	sess, prof, err := s.ensureSession(r)
	if err != nil {
		s.sessionError(w, err)
		return
	}

	var snapshot *telemetry.Snapshot
	if latest := sess.Controller.Latest(); latest.Outcome != nil {
		snapshot = latest.Outcome.Snapshot
	}

	reply, err := s.assistant.Chat(r.Context(), req.History, req.Question, snapshot, prof)
	if err != nil {
		if errors.Is(err, assistant.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "assistant is not configured")
			return
		}
		s.logger.Error().Err(err).Msg("Chat request failed")
		writeError(w, http.StatusBadGateway, "assistant request failed")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, poller.ErrMaxSessionsReached) {
		writeError(w, http.StatusServiceUnavailable, "too many active sessions")
		return
	}
	s.logger.Error().Err(err).Msg("Session setup failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
