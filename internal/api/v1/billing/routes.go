package billing

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/billing")
	group.GET("/ledger", Ledger)
	group.GET("/ledger/export", ExportLedger)
	group.GET("/invoices", ListInvoices)
	group.POST("/invoices", GenerateInvoice)
}
