package routes

import (
	handlers "ridestore/internal/handlers/shared"

	"github.com/gin-gonic/gin"
)

// SetupStoreRoutes sets up the transaction and committed-read routes
func SetupStoreRoutes(r *gin.RouterGroup, storeHandler *handlers.StoreHandler) {
	transactions := r.Group("/transactions")
	{
		transactions.POST("", storeHandler.BeginTransaction)
		transactions.POST("/:tx_id/commit", storeHandler.CommitTransaction)
		transactions.POST("/:tx_id/abort", storeHandler.AbortTransaction)

		// Staged mutations
		transactions.POST("/:tx_id/records/:table", storeHandler.InsertRecord)
		transactions.PATCH("/:tx_id/records/:table/:key", storeHandler.UpdateRecord)
		transactions.DELETE("/:tx_id/records/:table/:key", storeHandler.DeleteRecord)
	}

	tables := r.Group("/tables")
	{
		tables.GET("/:table", storeHandler.QueryRecords)
		tables.GET("/:table/:key", storeHandler.GetRecord)
	}
}
