package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"ridestore/internal/models"
	"ridestore/internal/services"
	"ridestore/internal/utils"

	"github.com/gin-gonic/gin"
)

type StoreHandler struct {
	txService services.TransactionService
}

func NewStoreHandler(txService services.TransactionService) *StoreHandler {
	return &StoreHandler{
		txService: txService,
	}
}

// BeginTransaction opens a transaction and returns its handle
func (h *StoreHandler) BeginTransaction(c *gin.Context) {
	info, err := h.txService.Begin(c.Request.Context())
	if err != nil {
		utils.StoreErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Transaction started", info)
}

// InsertRecord stages an insert of the request body into the table
func (h *StoreHandler) InsertRecord(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, utils.MaxRequestBodySize))
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read request body")
		return
	}
	if !json.Valid(body) {
		utils.BadRequestResponse(c, utils.ErrInvalidInput)
		return
	}

	key, err := h.txService.Insert(c.Request.Context(), c.Param("tx_id"), c.Param("table"), body)
	if err != nil {
		utils.StoreErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Record staged", gin.H{
		"table": c.Param("table"),
		"key":   key.String(),
	})
}

// UpdateRecord stages a column patch of an existing row
func (h *StoreHandler) UpdateRecord(c *gin.Context) {
	key, ok := parseKeyParam(c)
	if !ok {
		return
	}

	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if len(patch) == 0 {
		utils.BadRequestResponse(c, "Patch must name at least one column")
		return
	}

	if err := h.txService.Update(c.Request.Context(), c.Param("tx_id"), c.Param("table"), key, patch); err != nil {
		utils.StoreErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Update staged", gin.H{
		"table": c.Param("table"),
		"key":   key.String(),
	})
}

// DeleteRecord stages a delete, cascading to owned children when asked
func (h *StoreHandler) DeleteRecord(c *gin.Context) {
	key, ok := parseKeyParam(c)
	if !ok {
		return
	}

	cascade := false
	if raw := c.Query("cascade"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid cascade flag")
			return
		}
		cascade = parsed
	}

	if err := h.txService.Delete(c.Request.Context(), c.Param("tx_id"), c.Param("table"), key, cascade); err != nil {
		utils.StoreErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Delete staged", gin.H{
		"table":   c.Param("table"),
		"key":     key.String(),
		"cascade": cascade,
	})
}

// CommitTransaction validates and publishes the staged mutations
func (h *StoreHandler) CommitTransaction(c *gin.Context) {
	result, err := h.txService.Commit(c.Request.Context(), c.Param("tx_id"))
	if err != nil {
		utils.StoreErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Transaction committed", result)
}

// AbortTransaction discards the staged mutations
func (h *StoreHandler) AbortTransaction(c *gin.Context) {
	if err := h.txService.Abort(c.Request.Context(), c.Param("tx_id")); err != nil {
		utils.StoreErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Transaction aborted", nil)
}

// GetRecord reads one committed row
func (h *StoreHandler) GetRecord(c *gin.Context) {
	key, ok := parseKeyParam(c)
	if !ok {
		return
	}

	rec, err := h.txService.Get(c.Request.Context(), c.Param("table"), key)
	if err != nil {
		utils.StoreErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Record retrieved successfully", rec)
}

// QueryRecords lists committed rows whose foreign key column equals value
func (h *StoreHandler) QueryRecords(c *gin.Context) {
	column := c.Query("fk")
	if column == "" {
		utils.BadRequestResponse(c, "Query parameter fk is required")
		return
	}
	value, err := strconv.ParseInt(c.Query("value"), 10, 64)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid value")
		return
	}

	records, err := h.txService.QueryByForeignKey(c.Request.Context(), c.Param("table"), column, value)
	if err != nil {
		utils.StoreErrorResponse(c, err)
		return
	}
	if records == nil {
		records = []models.Record{}
	}

	meta := &utils.Meta{
		Total: int64(len(records)),
		Count: len(records),
	}
	utils.SuccessResponseWithMeta(c, "Records retrieved successfully", records, meta)
}

func parseKeyParam(c *gin.Context) (models.Key, bool) {
	key, err := models.ParseKey(c.Param("key"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "INVALID_KEY", err.Error())
		return models.Key{}, false
	}
	return key, true
}
