package models

import (
	"math"
	"time"
)

// User 控制台操作员账户
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"` // 不返回给前端
	Email     string    `gorm:"type:varchar(255);not null" json:"email"`
	Role      string    `gorm:"type:varchar(50);default:user" json:"role"`     // admin, user
	Status    string    `gorm:"type:varchar(50);default:active" json:"status"` // active, inactive
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RemoteInstance 远程实例（一套独立部署，自带数据库）
type RemoteInstance struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Name              string     `gorm:"type:varchar(255);not null" json:"name"`
	Type              string     `gorm:"type:varchar(50);not null" json:"type"` // mysql, postgres
	Host              string     `gorm:"not null" json:"host"`
	Port              string     `gorm:"not null" json:"port"`
	Username          string     `gorm:"not null" json:"username"`
	Password          string     `gorm:"not null" json:"-"` // 加密存储
	Database          string     `gorm:"not null" json:"database"`
	Description       string     `json:"description"`
	IsMaster          bool       `gorm:"default:false" json:"is_master"` // 全局参考数据的权威来源，最多一个
	IsActive          bool       `gorm:"default:true" json:"is_active"`
	HealthStatus      string     `gorm:"type:varchar(50);default:unknown" json:"health_status"` // unknown, healthy, degraded, down
	LastHealthCheckAt *time.Time `json:"last_health_check_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TenantIdentity 租户身份缓存：远程实例内的租户 → 全局租户
// (remote_instance_id, remote_tenant_id) 唯一，ID即全局租户ID
type TenantIdentity struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	RemoteInstanceID   uint           `gorm:"not null;uniqueIndex:idx_instance_tenant" json:"remote_instance_id"`
	RemoteTenantID     uint           `gorm:"not null;uniqueIndex:idx_instance_tenant" json:"remote_tenant_id"`
	RemoteInstance     RemoteInstance `gorm:"foreignKey:RemoteInstanceID" json:"remote_instance,omitempty"`
	Name               string         `gorm:"type:varchar(255)" json:"name"`
	ContactEmail       string         `gorm:"type:varchar(255)" json:"contact_email"`
	Status             string         `gorm:"type:varchar(50)" json:"status"`
	TrialEndsAt        *time.Time     `json:"trial_ends_at"`
	SubscriptionEndsAt *time.Time     `json:"subscription_ends_at"`
	UserCount          int            `gorm:"default:0" json:"user_count"`
	LocationCount      int            `gorm:"default:0" json:"location_count"`
	CacheRefreshedAt   time.Time      `json:"cache_refreshed_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// IsStale 缓存是否过期（读取时计算，不落库）
func (t *TenantIdentity) IsStale(threshold time.Duration) bool {
	return time.Since(t.CacheRefreshedAt) > threshold
}

// CommandExecution 一次远程命令执行记录
// 由分发方创建，之后只通过带签名的回调更新，永不删除
type CommandExecution struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	GlobalTenantID   *uint          `json:"global_tenant_id"` // 与租户无关的命令为空
	RemoteInstanceID uint           `gorm:"not null;index" json:"remote_instance_id"`
	RemoteInstance   RemoteInstance `gorm:"foreignKey:RemoteInstanceID" json:"remote_instance,omitempty"`
	Command          string         `gorm:"type:varchar(255);not null" json:"command"`
	Status           string         `gorm:"type:varchar(50);default:pending" json:"status"` // pending, running, completed, failed
	CurrentStep      string         `gorm:"type:varchar(255)" json:"current_step"`
	CompletedSteps   int            `gorm:"default:0" json:"completed_steps"`
	TotalSteps       int            `gorm:"default:1" json:"total_steps"` // 默认1，避免计算进度时除零
	Output           string         `gorm:"type:text" json:"output"`
	Error            *string        `gorm:"type:text" json:"error"`
	ProcessID        string         `gorm:"type:varchar(100)" json:"process_id"` // 远端进程句柄，不透明
	StartedAt        *time.Time     `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ProgressPercent 进度百分比，读取时派生，不存储
func (e *CommandExecution) ProgressPercent() int {
	total := e.TotalSteps
	if total < 1 {
		total = 1
	}
	percent := int(math.Round(float64(e.CompletedSteps) / float64(total) * 100))
	if percent > 100 {
		percent = 100
	}
	return percent
}

// IsTerminal 是否已处于终态
func (e *CommandExecution) IsTerminal() bool {
	return e.Status == "completed" || e.Status == "failed"
}

// AuditEvent 审计事件，写入后不可变
type AuditEvent struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ActingUserID     *uint          `json:"acting_user_id"` // 为空表示系统发起
	Action           string         `gorm:"type:varchar(255);not null" json:"action"`
	ModelType        string         `gorm:"type:varchar(255)" json:"model_type"`
	ModelID          *uint          `json:"model_id"`
	RemoteInstanceID uint           `gorm:"not null;index" json:"remote_instance_id"`
	RemoteInstance   RemoteInstance `gorm:"foreignKey:RemoteInstanceID" json:"remote_instance,omitempty"`
	GlobalTenantID   *uint          `gorm:"index" json:"global_tenant_id"`
	OldValues        string         `gorm:"type:text" json:"old_values"` // JSON格式
	NewValues        string         `gorm:"type:text" json:"new_values"` // JSON格式
	IPAddress        string         `gorm:"type:varchar(100)" json:"ip_address"`
	UserAgent        string         `gorm:"type:varchar(500)" json:"user_agent"`
	Source           string         `gorm:"type:varchar(50);not null" json:"source"` // local, remote_push
	CreatedAt        time.Time      `json:"created_at"`
}
