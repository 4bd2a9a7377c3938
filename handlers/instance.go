package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"zh.xyz/dv/console/database"
	"zh.xyz/dv/console/dbconn"
	"zh.xyz/dv/console/models"
	"zh.xyz/dv/console/service"
)

type InstanceHandler struct{}

// CreateInstance 注册远程实例
func (h *InstanceHandler) CreateInstance(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Type        string `json:"type" binding:"required,oneof=mysql postgres"`
		Host        string `json:"host" binding:"required"`
		Port        string `json:"port" binding:"required"`
		Username    string `json:"username" binding:"required"`
		Password    string `json:"password" binding:"required"`
		Database    string `json:"database" binding:"required"`
		Description string `json:"description"`
		IsMaster    bool   `json:"is_master"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	registry := &service.RegistryService{}
	if req.IsMaster {
		if err := registry.EnsureNoOtherMaster(0); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	inst := models.RemoteInstance{
		Name:         req.Name,
		Type:         req.Type,
		Host:         req.Host,
		Port:         req.Port,
		Username:     req.Username,
		Password:     req.Password, // 实际应用中应该加密存储
		Database:     req.Database,
		Description:  req.Description,
		IsMaster:     req.IsMaster,
		IsActive:     true,
		HealthStatus: "unknown",
	}

	if err := database.DB.Create(&inst).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "注册远程实例失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "远程实例注册成功",
		"data":    inst,
	})
}

// ListInstances 列出所有远程实例
func (h *InstanceHandler) ListInstances(c *gin.Context) {
	var instances []models.RemoteInstance
	if err := database.DB.Find(&instances).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": instances})
}

// GetInstance 获取单个远程实例
func (h *InstanceHandler) GetInstance(c *gin.Context) {
	id := c.Param("id")

	var inst models.RemoteInstance
	if err := database.DB.First(&inst, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "远程实例不存在"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inst})
}

// UpdateInstance 更新远程实例
func (h *InstanceHandler) UpdateInstance(c *gin.Context) {
	id := c.Param("id")

	var inst models.RemoteInstance
	if err := database.DB.First(&inst, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "远程实例不存在"})
		return
	}

	var req struct {
		Name        string `json:"name"`
		Host        string `json:"host"`
		Port        string `json:"port"`
		Username    string `json:"username"`
		Password    string `json:"password"`
		Database    string `json:"database"`
		Description string `json:"description"`
		IsMaster    *bool  `json:"is_master"`
		IsActive    *bool  `json:"is_active"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 主实例切换必须走提升接口，这里只拦截直接设置
	if req.IsMaster != nil && *req.IsMaster && !inst.IsMaster {
		registry := &service.RegistryService{}
		if err := registry.EnsureNoOtherMaster(inst.ID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	// 更新字段
	if req.Name != "" {
		inst.Name = req.Name
	}
	if req.Host != "" {
		inst.Host = req.Host
	}
	if req.Port != "" {
		inst.Port = req.Port
	}
	if req.Username != "" {
		inst.Username = req.Username
	}
	if req.Password != "" {
		inst.Password = req.Password
	}
	if req.Database != "" {
		inst.Database = req.Database
	}
	if req.Description != "" {
		inst.Description = req.Description
	}
	if req.IsMaster != nil {
		inst.IsMaster = *req.IsMaster
	}
	if req.IsActive != nil {
		inst.IsActive = *req.IsActive
	}

	if err := database.DB.Save(&inst).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新失败"})
		return
	}

	// 连接参数可能已变化，丢弃池中的旧连接
	dbconn.CloseConnection(inst.ID)

	c.JSON(http.StatusOK, gin.H{
		"message": "更新成功",
		"data":    inst,
	})
}

// DeleteInstance 删除远程实例
// 被租户缓存引用的实例只做停用
func (h *InstanceHandler) DeleteInstance(c *gin.Context) {
	id := c.Param("id")

	var inst models.RemoteInstance
	if err := database.DB.First(&inst, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "远程实例不存在"})
		return
	}

	dbconn.CloseConnection(inst.ID)

	registry := &service.RegistryService{}
	deleted, err := registry.Deactivate(inst.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除失败"})
		return
	}

	if deleted {
		c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
	} else {
		c.JSON(http.StatusOK, gin.H{"message": "实例被租户缓存引用，已改为停用"})
	}
}

// PromoteMaster 提升为主实例
func (h *InstanceHandler) PromoteMaster(c *gin.Context) {
	id := c.Param("id")

	var inst models.RemoteInstance
	if err := database.DB.First(&inst, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "远程实例不存在"})
		return
	}

	registry := &service.RegistryService{}
	promoted, err := registry.PromoteToMaster(inst.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "已提升为主实例",
		"data":    promoted,
	})
}

// TestConnection 测试一组连接参数（未注册的实例）
func (h *InstanceHandler) TestConnection(c *gin.Context) {
	var req struct {
		Type     string `json:"type" binding:"required,oneof=mysql postgres"`
		Host     string `json:"host" binding:"required"`
		Port     string `json:"port" binding:"required"`
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Database string `json:"database" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inst := &models.RemoteInstance{
		Type:     req.Type,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		Database: req.Database,
	}

	healthService := service.NewHealthService()
	result := healthService.TestConnection(c.Request.Context(), inst)

	c.JSON(http.StatusOK, gin.H{
		"success":    result.Success,
		"message":    result.Message,
		"latency_ms": result.LatencyMS,
	})
}

// RefreshHealth 探测单个实例并刷新健康状态
func (h *InstanceHandler) RefreshHealth(c *gin.Context) {
	id := c.Param("id")

	var inst models.RemoteInstance
	if err := database.DB.First(&inst, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "远程实例不存在"})
		return
	}

	healthService := service.NewHealthService()
	result := healthService.RefreshHealth(c.Request.Context(), &inst)

	c.JSON(http.StatusOK, gin.H{
		"data":          result,
		"health_status": inst.HealthStatus,
	})
}

// RefreshAllHealth 探测所有激活实例
func (h *InstanceHandler) RefreshAllHealth(c *gin.Context) {
	healthService := service.NewHealthService()
	results := healthService.RefreshAllHealth(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{"data": results})
}
