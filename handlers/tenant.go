package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"zh.xyz/dv/console/database"
	"zh.xyz/dv/console/models"
	"zh.xyz/dv/console/service"
)

type TenantHandler struct{}

// ListTenantIdentities 列出租户身份缓存，过期与否读取时计算
func (h *TenantHandler) ListTenantIdentities(c *gin.Context) {
	query := database.DB.Preload("RemoteInstance").Order("id")

	if instanceID := c.Query("remote_instance_id"); instanceID != "" {
		query = query.Where("remote_instance_id = ?", instanceID)
	}

	var identities []models.TenantIdentity
	if err := query.Find(&identities).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}

	threshold := service.StaleThreshold()
	data := make([]gin.H, 0, len(identities))
	for i := range identities {
		data = append(data, gin.H{
			"identity": identities[i],
			"is_stale": identities[i].IsStale(threshold),
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

// SyncInstance 立即同步单个实例的租户缓存
func (h *TenantHandler) SyncInstance(c *gin.Context) {
	id := c.Param("id")

	var inst models.RemoteInstance
	if err := database.DB.First(&inst, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "远程实例不存在"})
		return
	}

	syncService := service.NewTenantSyncService()
	count, err := syncService.SyncInstance(c.Request.Context(), &inst)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "同步成功",
		"tenant_count": count,
	})
}

// SyncAll 立即同步所有激活实例的租户缓存
func (h *TenantHandler) SyncAll(c *gin.Context) {
	syncService := service.NewTenantSyncService()
	results := syncService.SyncAll(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{"data": results})
}
