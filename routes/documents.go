package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docatlas/internal/faults"
	"docatlas/internal/store"
	"docatlas/services"
	"docatlas/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SetupDocumentRoutes exposes the document inventory, deletion, the 3-D
// projection endpoints and the spreadsheet export.
func SetupDocumentRoutes(router *gin.Engine, st *store.Store) {
	docs := router.Group("/documents")

	docs.GET("", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		list, err := st.ListDocuments(ctx)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"documents": list,
			"total":     len(list),
		})
	})

	docs.GET("/export", func(c *gin.Context) {
		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		list, err := st.ListDocuments(ctx)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		data, err := services.ExportDocumentsXLSX(list)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to build export", nil)
			return
		}

		c.Header("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", services.ExportFilename(time.Now())))
		c.Data(http.StatusOK, xlsxContentType, data)
	})

	docs.GET("/:doc_id", func(c *gin.Context) {
		docID, ok := parseDocID(c)
		if !ok {
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		doc, err := st.GetDocument(ctx, docID)
		if err != nil {
			if faults.KindOf(err) == faults.NotFound {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to retrieve document", nil)
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	// Chunks cascade with the row; the precomputed 3-D points for this
	// document vanish on the next reducer run.
	docs.DELETE("/:doc_id", func(c *gin.Context) {
		docID, ok := parseDocID(c)
		if !ok {
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		if err := st.DeleteDocument(ctx, docID); err != nil {
			if faults.KindOf(err) == faults.NotFound {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to delete document", nil)
			return
		}
		c.Status(http.StatusNoContent)
	})

	docs.GET("/:doc_id/chunks-3d", func(c *gin.Context) {
		docID, ok := parseDocID(c)
		if !ok {
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		points, err := st.Chunks3D(ctx, docID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load chunk points", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"doc_id": docID,
			"chunks": points,
			"total":  len(points),
		})
	})

	router.GET("/documents-3d", func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		points, err := st.Docs3D(ctx)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load document points", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"points": points,
			"total":  len(points),
		})
	})
}

func parseDocID(c *gin.Context) (uuid.UUID, bool) {
	docID, err := uuid.Parse(c.Param("doc_id"))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid document ID format", nil)
		return uuid.Nil, false
	}
	return docID, true
}
