package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"smartair-guardian/internal/common"
	"smartair-guardian/internal/ingest"
	"smartair-guardian/internal/ml"
	"smartair-guardian/internal/storage"

	"github.com/rs/zerolog/log"
)

type rootResponse struct {
	Status        string `json:"status"`
	TotalReadings int    `json:"total_readings"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{Status: "ok", TotalReadings: s.store.Count()})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed JSON body: %v", err))
		return
	}

	enriched, err := s.ingest.Ingest(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("sensor_id", req.SensorID).Msg("Ingest failed")
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, enriched)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrInvalidReading), errors.Is(err, ml.ErrInvalidFeature):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ml.ErrModelsUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	limit := s.limit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > common.MaxReadingsLimit {
			writeError(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("limit must be an integer between 1 and %d", common.MaxReadingsLimit))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.store.Latest(limit))
}

type healthResponse struct {
	Status   string     `json:"status"`
	Models   string     `json:"models"`
	RunID    string     `json:"run_id,omitempty"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
	Error    string     `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.models.Status()
	resp := healthResponse{Status: "ok", Models: st.State.String()}
	if st.LastError != nil {
		resp.Error = st.LastError.Error()
	}
	if st.State != ml.StateLoaded {
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.RunID = st.Metadata.RunID
	resp.LoadedAt = &st.LoadedAt
	writeJSON(w, http.StatusOK, resp)
}

type modelInfoResponse struct {
	Loaded  *ml.ModelMetadata   `json:"loaded,omitempty"`
	LastRun *storage.RunRecord  `json:"last_run,omitempty"`
	History []storage.RunRecord `json:"history,omitempty"`
}

// handleModelInfo reports the loaded model set and the last recorded run. With ?since=<RFC3339>
// it also lists every run trained from that instant on.
func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "since must be an RFC3339 timestamp")
			return
		}
		since = t
	}

	var resp modelInfoResponse
	if st := s.models.Status(); st.State == ml.StateLoaded {
		md := st.Metadata
		resp.Loaded = &md
	}

	if s.runs != nil {
		run, err := s.runs.LatestRun()
		switch {
		case err == nil:
			resp.LastRun = &run
		case errors.Is(err, storage.ErrNoRuns):
		default:
			log.Error().Err(err).Msg("Failed to read training history")
			writeError(w, http.StatusInternalServerError, "training history unavailable")
			return
		}

		if !since.IsZero() {
			history, err := s.runs.RunsBetween(since, time.Now())
			if err != nil {
				log.Error().Err(err).Msg("Failed to read training history")
				writeError(w, http.StatusInternalServerError, "training history unavailable")
				return
			}
			resp.History = history
		}
	}

	if resp.Loaded == nil && resp.LastRun == nil {
		writeError(w, http.StatusNotFound, "no models loaded and no training run recorded")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
