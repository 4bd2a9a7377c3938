package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"zh.xyz/dv/console/config"
	"zh.xyz/dv/console/service"
	"zh.xyz/dv/console/utils"
)

type WebhookHandler struct{}

// Health 健康探测端点，供远程实例确认控制台可达，无需认证
func (h *WebhookHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"app":       "federation-console",
	})
}

// CommandCallback 命令进度回调
// 签名方案：X-Webhook-Signature: <unix时间戳>.<hex签名>
func (h *WebhookHandler) CommandCallback(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	cfg := config.GlobalConfig.Webhook
	tolerance := time.Duration(cfg.TimestampTolerance) * time.Second
	ok, reason := utils.VerifyTimestampedSignature(body, c.GetHeader("X-Webhook-Signature"), cfg.CallbackSecret, tolerance)
	if !ok {
		// 具体原因只写日志，避免向调用方泄露校验细节
		log.Printf("[回调] 签名校验失败: %s, 来源=%s", reason, c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var payload struct {
		ExecutionID *uint `json:"execution_id"`
		service.ExecutionUpdate
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}
	if payload.ExecutionID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing execution_id"})
		return
	}

	executionService := &service.ExecutionService{}
	_, err = executionService.ApplyUpdate(*payload.ExecutionID, &payload.ExecutionUpdate)
	if err == service.ErrExecutionNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found"})
		return
	}
	if err != nil {
		log.Printf("[回调] 更新执行 %d 失败: %v", *payload.ExecutionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AuditEvent 审计事件推送
// 签名方案：X-Rainbo-Signature: <hex签名>，对原始请求体计算
func (h *WebhookHandler) AuditEvent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	cfg := config.GlobalConfig.Webhook
	if !utils.VerifySimpleSignature(body, c.GetHeader("X-Rainbo-Signature"), cfg.EventSecret) {
		log.Printf("[审计] 签名校验失败, 来源=%s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var payload service.AuditPushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	auditService := &service.AuditService{}
	if _, err := auditService.Ingest(&payload); err != nil {
		if err == service.ErrUnknownInstance {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown RDS instance"})
			return
		}
		if vErr, ok := err.(*service.ValidationError); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Message})
			return
		}
		// 基础设施故障，远端可以稍后重试
		log.Printf("[审计] 处理事件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Audit event recorded"})
}
