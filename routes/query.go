package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docatlas/internal/logger"
	"docatlas/internal/store"
	"docatlas/services"
	"docatlas/utils"
)

const keywordSearchLimit = 10

// SetupQueryRoutes wires the question-answering endpoint. Retrieval problems
// degrade to a fallback answer rather than an error status: once the request
// parses, the caller always gets a 200 with something to show.
func SetupQueryRoutes(router *gin.Engine, st *store.Store, retriever *services.RetrieverService, refiner *services.RefineService, answerer *services.AnswerService, rrfK int) {
	router.POST("/query", func(c *gin.Context) {
		var req struct {
			Query string `json:"query" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		query := strings.TrimSpace(req.Query)
		if query == "" {
			utils.RespondWithBadRequest(c, "Query must not be empty", nil)
			return
		}

		ctx := c.Request.Context()
		tag := services.ClassifyQuery(query)

		semantic, err := retriever.Retrieve(ctx, query, tag)
		if err != nil {
			logger.Warn("Retrieval failed, answering without context", "tag", tag, "error", err)
			semantic = nil
		}
		if len(semantic) > 0 {
			semantic = refiner.Refine(ctx, query, semantic)
		}

		keyword, err := st.KeywordSearch(ctx, query, keywordSearchLimit)
		if err != nil {
			logger.Warn("Keyword search failed", "error", err)
			keyword = nil
		}

		fused := services.FuseRanks(rrfK, semantic, keyword)
		answer := answerer.Assemble(ctx, query, tag, fused)

		c.JSON(http.StatusOK, gin.H{
			"answer":  answer.Answer,
			"sources": answer.Sources,
			"tag":     tag,
		})
	})
}
