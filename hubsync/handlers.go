package hubsync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mmdatafocus/hubsync_backend/config"
	"github.com/mmdatafocus/hubsync_backend/models"
)

func HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		runs, err := ListRuns(c.Request.Context(), config.GetDB(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, toRunResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func RunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}
		run, errs, err := GetRun(c.Request.Context(), config.GetDB(), uint(id))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := SyncRunDetailResponse{SyncRunResponse: toRunResponse(*run)}
		resp.Errors = make([]SyncErrorResponse, 0, len(errs))
		for _, e := range errs {
			item := SyncErrorResponse{
				ID:        e.ID,
				Module:    e.Module,
				ErrorKind: e.ErrorKind,
				EntityKey: e.EntityKey,
				Message:   e.Message,
			}
			if len(e.BrokenRulesJSON) > 0 {
				_ = json.Unmarshal(e.BrokenRulesJSON, &item.BrokenRules)
			}
			resp.Errors = append(resp.Errors, item)
		}
		c.JSON(http.StatusOK, resp)
	}
}

func toRunResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:          run.ID,
		RequestID:   run.RequestId,
		CompanyCode: run.CompanyCode,
		Status:      run.Status,
		StartedAt:   formatTime(run.StartedAt),
		FinishedAt:  formatTime(run.FinishedAt),
		DurationMs:  run.DurationMs,
		ErrorCount:  run.ErrorCount,
		TriggeredBy: run.TriggeredBy,
		Stats:       json.RawMessage(run.StatsJSON),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339)
	return &v
}
