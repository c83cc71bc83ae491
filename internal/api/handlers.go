package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/animanga/mangapipe/internal/models"
	"github.com/animanga/mangapipe/internal/origin"
	"github.com/animanga/mangapipe/internal/pipeline"
	"github.com/animanga/mangapipe/internal/publish"
	"github.com/animanga/mangapipe/internal/service"
	"github.com/animanga/mangapipe/internal/util"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		RespondWithError(w, http.StatusBadRequest, "Missing query parameter 'q'")
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		var err error
		page, err = strconv.Atoi(p)
		if err != nil || page < 1 {
			RespondWithError(w, http.StatusBadRequest, "Invalid page number")
			return
		}
	}

	filters := make(map[string]string)
	for _, key := range []string{"genres", "kinds", "order_by"} {
		if v := r.URL.Query().Get(key); v != "" {
			filters[key] = v
		}
	}

	result, err := s.svc.Search(r.Context(), query, filters, page)
	if err != nil {
		if errors.Is(err, origin.ErrBlocked) {
			RespondWithError(w, http.StatusServiceUnavailable, "Origin is refusing requests")
			return
		}
		RespondWithError(w, http.StatusBadGateway, "Search failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	seriesID, err := strconv.ParseInt(chi.URLParam(r, "seriesID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid series ID")
		return
	}

	m, err := s.svc.GetSeries(r.Context(), seriesID)
	if err != nil {
		RespondWithError(w, http.StatusBadGateway, "Failed to fetch series")
		return
	}
	if m == nil {
		RespondWithError(w, http.StatusNotFound, "Series not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, m)
}

// AcquireChapterPayload is the expected structure for chapter requests.
type AcquireChapterPayload struct {
	UserID      int64   `json:"user_id"`
	Tier        string  `json:"tier"`
	SeriesID    int64   `json:"series_id"`
	SeriesTitle string  `json:"series_title"`
	ChapterID   string  `json:"chapter_id"`
	Chapter     float64 `json:"chapter"`
	Format      string  `json:"format"`
}

func (s *Server) handleAcquireChapter(w http.ResponseWriter, r *http.Request) {
	var payload AcquireChapterPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.UserID == 0 || payload.SeriesID == 0 || payload.ChapterID == "" {
		RespondWithError(w, http.StatusBadRequest, "user_id, series_id and chapter_id are required")
		return
	}

	format := models.ArtifactFormat(payload.Format)
	if format != models.FormatDocument && format != models.FormatPublished {
		RespondWithError(w, http.StatusBadRequest, "Unknown format")
		return
	}
	tier := models.Tier(payload.Tier)
	if tier == "" {
		tier = models.TierStandard
	}

	delivery, err := s.svc.GetChapterArtifact(r.Context(), service.ChapterRequest{
		UserID:      payload.UserID,
		Tier:        tier,
		SeriesID:    payload.SeriesID,
		SeriesTitle: payload.SeriesTitle,
		ChapterID:   payload.ChapterID,
		Chapter:     payload.Chapter,
		Format:      format,
	})
	if err != nil {
		var qe *service.QuotaExceededError
		var pe *publish.Error
		switch {
		case errors.As(err, &qe):
			RespondWithError(w, http.StatusTooManyRequests, qe.Reason)
		case errors.Is(err, pipeline.ErrNoPages):
			RespondWithError(w, http.StatusNotFound, "Chapter has no pages")
		case errors.Is(err, pipeline.ErrEmptyArtifact):
			RespondWithError(w, http.StatusBadGateway, "No pages could be downloaded")
		case errors.Is(err, pipeline.ErrArtifactTooLarge):
			RespondWithError(w, http.StatusRequestEntityTooLarge, "Chapter is too large for the document format")
		case errors.Is(err, origin.ErrBlocked):
			RespondWithError(w, http.StatusServiceUnavailable, "Origin is refusing requests")
		case errors.As(err, &pe):
			RespondWithError(w, http.StatusBadGateway, pe.Error())
		default:
			RespondWithError(w, http.StatusBadGateway, "Chapter acquisition failed")
		}
		return
	}

	// A delivery without a reference only exists in degraded mode: the
	// document was built but could not be stored, so hand the bytes
	// straight to the caller.
	if delivery.Reference == "" && len(delivery.Data) > 0 {
		filename := fmt.Sprintf("series_%d_chapter_%s.cbz", payload.SeriesID, util.FormatChapter(payload.Chapter))
		w.Header().Set("Content-Type", "application/vnd.comicbook+zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Header().Set("X-Artifact-Cached", "false")
		w.WriteHeader(http.StatusOK)
		w.Write(delivery.Data)
		return
	}

	RespondWithJSON(w, http.StatusOK, delivery)
}

func (s *Server) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	tier := models.Tier(r.URL.Query().Get("tier"))
	if tier == "" {
		tier = models.TierStandard
	}

	decision, err := s.app.Quotas().Check(userID, tier)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to read quota")
		return
	}
	RespondWithJSON(w, http.StatusOK, decision)
}

func (s *Server) handleGetCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.CacheStats()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to read cache stats")
		return
	}
	RespondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRunAdminJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	err := s.app.JobManager().RunJob(payload.JobID, s.app)
	if err != nil {
		RespondWithError(w, http.StatusConflict, err.Error()) // 409 Conflict if a job is already running
		return
	}

	RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": "Job '" + payload.JobID + "' started successfully.",
	})
}

func (s *Server) handleGetAdminJobsStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.app.JobManager().GetStatus()
	RespondWithJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleUpdateUserTier(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var payload struct {
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	tier := models.Tier(payload.Tier)
	if tier != models.TierStandard && tier != models.TierPremium {
		RespondWithError(w, http.StatusBadRequest, "Unknown tier")
		return
	}

	if err := s.app.Quotas().SetTier(userID, tier); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to update tier")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"tier": payload.Tier})
}
