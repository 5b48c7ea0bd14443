package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docatlas/internal/faults"
	"docatlas/internal/store"
	"docatlas/utils"
)

// SetupTaskRoutes exposes the task polling surface for the async ingests.
func SetupTaskRoutes(router *gin.Engine, st *store.Store) {
	tasks := router.Group("/tasks")

	tasks.GET("/:task_id", func(c *gin.Context) {
		taskID, err := uuid.Parse(c.Param("task_id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid task ID format", nil)
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		task, err := st.GetTask(ctx, taskID)
		if err != nil {
			if faults.KindOf(err) == faults.NotFound {
				utils.RespondWithNotFound(c, "Task not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to retrieve task", nil)
			return
		}
		c.JSON(http.StatusOK, task)
	})

	tasks.GET("", func(c *gin.Context) {
		taskType := c.Query("task_type")
		status := c.Query("status")

		limit := 50
		if l, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && l > 0 && l <= 200 {
			limit = l
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		list, err := st.ListTasks(ctx, taskType, status, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list tasks", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"tasks": list,
			"total": len(list),
		})
	})
}
