package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"zh.xyz/dv/console/database"
	"zh.xyz/dv/console/models"
)

type ExecutionHandler struct{}

// CreateExecution 创建执行记录
// 分发逻辑由操作端负责，这里只登记待执行的记录供回调更新
func (h *ExecutionHandler) CreateExecution(c *gin.Context) {
	var req struct {
		Command          string `json:"command" binding:"required"`
		RemoteInstanceID uint   `json:"remote_instance_id" binding:"required"`
		GlobalTenantID   *uint  `json:"global_tenant_id"` // 与租户无关的命令为空
		TotalSteps       int    `json:"total_steps"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var inst models.RemoteInstance
	if err := database.DB.First(&inst, req.RemoteInstanceID).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "远程实例不存在"})
		return
	}

	totalSteps := req.TotalSteps
	if totalSteps < 1 {
		totalSteps = 1
	}

	exec := models.CommandExecution{
		Command:          req.Command,
		RemoteInstanceID: req.RemoteInstanceID,
		GlobalTenantID:   req.GlobalTenantID,
		Status:           "pending",
		TotalSteps:       totalSteps,
	}

	if err := database.DB.Create(&exec).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建执行记录失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "执行记录创建成功",
		"data":    exec,
	})
}

// ListExecutions 列出执行记录，支持按实例和状态过滤
func (h *ExecutionHandler) ListExecutions(c *gin.Context) {
	query := database.DB.Preload("RemoteInstance").Order("id DESC")

	if instanceID := c.Query("remote_instance_id"); instanceID != "" {
		query = query.Where("remote_instance_id = ?", instanceID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var executions []models.CommandExecution
	if err := query.Find(&executions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}

	data := make([]gin.H, 0, len(executions))
	for i := range executions {
		data = append(data, executionView(&executions[i]))
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

// GetExecution 获取单条执行记录
func (h *ExecutionHandler) GetExecution(c *gin.Context) {
	id := c.Param("id")

	var exec models.CommandExecution
	if err := database.DB.Preload("RemoteInstance").First(&exec, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "执行记录不存在"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": executionView(&exec)})
}

// executionView 执行记录视图，进度百分比读取时派生
func executionView(exec *models.CommandExecution) gin.H {
	return gin.H{
		"execution":        exec,
		"progress_percent": exec.ProgressPercent(),
	}
}
