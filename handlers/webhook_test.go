package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"zh.xyz/dv/console/config"
	"zh.xyz/dv/console/utils"
)

func setupWebhookRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	config.LoadConfig("config-not-present.json")
	config.GlobalConfig.Webhook.CallbackSecret = "callback-secret"
	config.GlobalConfig.Webhook.EventSecret = "event-secret"

	r := gin.New()
	h := &WebhookHandler{}
	r.GET("/api/v1/health", h.Health)
	r.POST("/api/v1/webhooks/command-callback", h.CommandCallback)
	r.POST("/api/v1/webhooks/events", h.AuditEvent)
	return r
}

func TestHealthEndpoint(t *testing.T) {
	r := setupWebhookRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("期望200, 实际 %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应不是合法JSON: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status应为ok, 实际 %v", resp["status"])
	}
	if resp["app"] == "" || resp["timestamp"] == "" {
		t.Error("响应应包含app和timestamp")
	}
}

func TestCommandCallbackRejectsBadSignature(t *testing.T) {
	r := setupWebhookRouter(t)

	body := []byte(`{"execution_id":42,"status":"running"}`)

	// 无签名头
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/webhooks/command-callback", bytes.NewReader(body))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("无签名应返回401, 实际 %d", w.Code)
	}

	// 密钥错误的签名
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/v1/webhooks/command-callback", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", utils.ComputeTimestampedSignature(body, "wrong-secret", time.Now()))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("错误签名应返回401, 实际 %d", w.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "Invalid signature" {
		t.Errorf("错误信息应为通用的 Invalid signature, 实际 %v", resp["error"])
	}

	// 过期时间戳
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/v1/webhooks/command-callback", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature",
		utils.ComputeTimestampedSignature(body, "callback-secret", time.Now().Add(-time.Hour)))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("过期签名应返回401, 实际 %d", w.Code)
	}
}

func TestCommandCallbackMissingExecutionID(t *testing.T) {
	r := setupWebhookRouter(t)

	body := []byte(`{"status":"running"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/webhooks/command-callback", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature",
		utils.ComputeTimestampedSignature(body, "callback-secret", time.Now()))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("缺少execution_id应返回400, 实际 %d", w.Code)
	}
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "Missing execution_id" {
		t.Errorf("错误信息应为 Missing execution_id, 实际 %v", resp["error"])
	}
}

func TestAuditEventRejectsBadSignature(t *testing.T) {
	r := setupWebhookRouter(t)

	body := []byte(`{"event_type":"audit","remote_instance_id":7,"data":{"action":"updated"}}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/webhooks/events", bytes.NewReader(body))
	req.Header.Set("X-Rainbo-Signature", utils.ComputeSimpleSignature(body, "wrong-secret"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("错误签名应返回401, 实际 %d", w.Code)
	}
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "Invalid signature" {
		t.Errorf("错误信息应为 Invalid signature, 实际 %v", resp["error"])
	}
}

func TestAuditEventRejectsBadEventType(t *testing.T) {
	r := setupWebhookRouter(t)

	body := []byte(`{"event_type":"metric","remote_instance_id":7,"data":{"action":"updated"}}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/webhooks/events", bytes.NewReader(body))
	req.Header.Set("X-Rainbo-Signature", utils.ComputeSimpleSignature(body, "event-secret"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("事件类型错误应返回400, 实际 %d", w.Code)
	}
}
