package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/models"
	"bitbucket.org/mmdatafocus/counts_backend/models/reports"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
	"github.com/gin-gonic/gin"
)

// respondError maps the model error taxonomy onto HTTP statuses:
// validation 422, conflict 409, not found 404, transient IO 503.
func respondError(c *gin.Context, err error) {
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		body := gin.H{"error": verr.Message}
		if len(verr.ItemIds) > 0 {
			body["item_ids"] = verr.ItemIds
		}
		c.JSON(http.StatusUnprocessableEntity, body)
		return
	}
	var cerr *utils.ConflictError
	if errors.As(err, &cerr) {
		c.JSON(http.StatusConflict, gin.H{"error": cerr.Message})
		return
	}
	if utils.IsNotFoundError(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	if utils.IsTransientIOError(err) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	logger := config.GetLogger()
	config.LogError(logger, "handlers.go", "respondError", c.FullPath(), nil, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func authorizeAdminOnly(ctx context.Context) error {
	if isAdmin, ok := utils.GetIsAdminFromContext(ctx); ok && isAdmin {
		return nil
	}
	return errors.New("admin only")
}

type signInRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func signInHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signInRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		info, err := models.SignIn(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := models.Logout(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func listItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := models.ListCountItems(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

func createItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input models.NewCountItem
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ParseValidationErrors(err)})
			return
		}
		item, err := models.CreateCountItem(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

func updateItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input models.NewCountItem
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ParseValidationErrors(err)})
			return
		}
		item, err := models.UpdateCountItem(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func deleteItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		item, err := models.DeleteCountItem(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

type toggleActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func toggleItemActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}
		item, err := models.ToggleActiveCountItem(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

type startSessionRequest struct {
	Date string `json:"date"`
}

func startMilkSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startSessionRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		session, err := models.StartMilkSession(c.Request.Context(), req.Date)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, session)
	}
}

func activeMilkSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := models.GetActiveMilkSession(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

func getMilkSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		session, err := models.GetMilkSession(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

func milkSessionSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		summary, err := models.GetMilkSessionSummary(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if c.Query("format") == "xlsx" {
			c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			c.Header("Content-Disposition", "attachment; filename=milkSummary.xlsx")
			if err := reports.ExportMilkSummaryExcel(c.Writer, summary); err != nil {
				config.LogError(config.GetLogger(), "handlers.go", "milkSessionSummaryHandler", "ExportMilkSummaryExcel", nil, err)
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary})
	}
}

type savePhaseRequest struct {
	Entries []models.PhaseEntryInput `json:"entries"`
}

func saveMilkPhaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		phase := models.MilkSessionStatus(c.Param("phase"))
		var req savePhaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ParseValidationErrors(err)})
			return
		}
		session, err := models.SaveMilkPhase(c.Request.Context(), id, phase, req.Entries)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

func milkSessionHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		var after *string
		if v := c.Query("after"); v != "" {
			after = &v
		}
		connection, err := models.PaginateMilkSessionHistory(c.Request.Context(), limit, after)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, connection)
	}
}

func startRestockSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startSessionRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		session, err := models.StartRestockSession(c.Request.Context(), req.Date)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, session)
	}
}

func activeRestockSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := models.GetActiveRestockSession(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

type restockCountRequest struct {
	Value *int `json:"value"`
}

func updateRestockCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		itemId, ok := pathId(c, "itemId")
		if !ok {
			return
		}
		var req restockCountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		entry, err := models.UpdateRestockCount(c.Request.Context(), id, itemId, req.Value)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

type restockPulledRequest struct {
	Pulled *bool `json:"pulled" binding:"required"`
}

func toggleRestockPulledHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		itemId, ok := pathId(c, "itemId")
		if !ok {
			return
		}
		var req restockPulledRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pulled is required"})
			return
		}
		entry, err := models.ToggleRestockPulled(c.Request.Context(), id, itemId, *req.Pulled)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

type beginPullingRequest struct {
	AssignZero bool `json:"assign_zero"`
}

func beginPullingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req beginPullingRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		session, err := models.BeginPulling(c.Request.Context(), id, req.AssignZero)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

func restockSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		summary, err := models.GetRestockSummary(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary})
	}
}

func restockPullListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		summary, err := models.GetRestockPullList(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary})
	}
}

func completeRestockSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		summary, err := models.CompleteRestockSession(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary})
	}
}

func sessionAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		referenceType := models.SessionTypeMilk
		if c.Query("type") == "restock" {
			referenceType = models.SessionTypeRestock
		}
		rows, err := models.ListHistory(c.Request.Context(), referenceType, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": rows})
	}
}

func milkOrderReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fromDate := c.Query("from")
		toDate := c.Query("to")
		rows, err := reports.GetMilkOrderReport(c.Request.Context(), fromDate, toDate)
		if err != nil {
			respondError(c, err)
			return
		}
		if c.Query("format") == "xlsx" {
			c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			c.Header("Content-Disposition", "attachment; filename=milkOrders.xlsx")
			if err := reports.ExportMilkOrderExcel(c.Writer, rows); err != nil {
				config.LogError(config.GetLogger(), "handlers.go", "milkOrderReportHandler", "ExportMilkOrderExcel", nil, err)
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"rows": rows})
	}
}

type outboxReplayRequest struct {
	BusinessId string `json:"business_id"`
	RecordId   int    `json:"record_id"`
}

// Ops tooling (admin only): requeue outbox records that went DEAD/FAILED.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.BusinessId == "" || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id and record_id are required"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		now := time.Now().UTC()
		if err := db.WithContext(c.Request.Context()).
			Model(&models.SessionEventRecord{}).
			Where("id = ? AND business_id = ?", req.RecordId, req.BusinessId).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusFailed,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			}).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"business_id":     req.BusinessId,
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusFailed,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}
