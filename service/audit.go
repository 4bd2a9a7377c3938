package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"zh.xyz/dv/console/database"
	"zh.xyz/dv/console/models"
)

var ErrUnknownInstance = errors.New("未知的远程实例")

// ValidationError 载荷校验失败，字段级信息可以安全回传
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AuditPushPayload 远程实例推送的审计事件
type AuditPushPayload struct {
	EventType        string        `json:"event_type"`
	RemoteInstanceID uint          `json:"remote_instance_id"`
	Data             AuditPushData `json:"data"`
}

type AuditPushData struct {
	Action         string                 `json:"action"`
	ModelType      string                 `json:"model_type"`
	ModelID        *uint                  `json:"model_id"`
	RemoteTenantID *uint                  `json:"remote_tenant_id"`
	ActingUserID   *uint                  `json:"acting_user_id"`
	OldValues      map[string]interface{} `json:"old_values"`
	NewValues      map[string]interface{} `json:"new_values"`
	IPAddress      string                 `json:"ip_address"`
	UserAgent      string                 `json:"user_agent"`
	Timestamp      string                 `json:"timestamp"`
}

// AuditService 审计事件接收
type AuditService struct{}

// Ingest 接收并持久化一条远程审计事件
// 远程实例必须已注册；租户解析失败不阻断事件落库
func (s *AuditService) Ingest(payload *AuditPushPayload) (*models.AuditEvent, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	// 指向未注册实例的事件意味着配置错误或伪造，硬失败
	var inst models.RemoteInstance
	if err := database.DB.First(&inst, payload.RemoteInstanceID).Error; err != nil {
		return nil, ErrUnknownInstance
	}

	event := models.AuditEvent{
		ActingUserID:     payload.Data.ActingUserID,
		Action:           payload.Data.Action,
		ModelType:        payload.Data.ModelType,
		ModelID:          payload.Data.ModelID,
		RemoteInstanceID: inst.ID,
		IPAddress:        payload.Data.IPAddress,
		UserAgent:        payload.Data.UserAgent,
		Source:           "remote_push",
		CreatedAt:        parseEventTime(payload.Data.Timestamp),
	}

	// 关于未知租户的审计事件依然值得记录，解析不到就留空
	if payload.Data.RemoteTenantID != nil {
		var identity models.TenantIdentity
		err := database.DB.Where("remote_instance_id = ? AND remote_tenant_id = ?",
			inst.ID, *payload.Data.RemoteTenantID).First(&identity).Error
		if err == nil {
			event.GlobalTenantID = &identity.ID
		} else {
			log.Printf("[审计] 实例 %d 的租户 %d 未在缓存中，事件不关联全局租户",
				inst.ID, *payload.Data.RemoteTenantID)
		}
	}

	event.OldValues = marshalValues(payload.Data.OldValues)
	event.NewValues = marshalValues(payload.Data.NewValues)

	if err := database.DB.Create(&event).Error; err != nil {
		return nil, fmt.Errorf("保存审计事件失败: %w", err)
	}

	return &event, nil
}

func validatePayload(payload *AuditPushPayload) error {
	if payload.EventType != "audit" {
		return &ValidationError{Message: "event_type must be \"audit\""}
	}
	if payload.RemoteInstanceID == 0 {
		return &ValidationError{Message: "remote_instance_id is required"}
	}
	if payload.Data.Action == "" {
		return &ValidationError{Message: "data.action is required"}
	}
	return nil
}

// parseEventTime 解析远端携带的事件时间，解析失败时退回接收时间
func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	log.Printf("[审计] 事件时间无法解析: %q，使用接收时间", s)
	return time.Now()
}

func marshalValues(values map[string]interface{}) string {
	if values == nil {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}
