package service

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"zh.xyz/dv/console/database"
	"zh.xyz/dv/console/models"
)

// setupTestDB 在内存sqlite上初始化测试库
func setupTestDB(t *testing.T) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.RemoteInstance{},
		&models.TenantIdentity{},
		&models.CommandExecution{},
		&models.AuditEvent{},
	)
	if err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}

	database.DB = db
}

func createTestInstance(t *testing.T, name string) models.RemoteInstance {
	t.Helper()
	inst := models.RemoteInstance{
		Name:         name,
		Type:         "mysql",
		Host:         "10.0.0.1",
		Port:         "3306",
		Username:     "console",
		Password:     "secret",
		Database:     "tenant_db",
		IsActive:     true,
		HealthStatus: "unknown",
	}
	if err := database.DB.Create(&inst).Error; err != nil {
		t.Fatalf("创建测试实例失败: %v", err)
	}
	return inst
}

func TestSyncInstanceUpsertKeyStable(t *testing.T) {
	setupTestDB(t)
	inst := createTestInstance(t, "A")

	name := "老店名"
	s := &TenantSyncService{
		fetch: func(ctx context.Context, inst *models.RemoteInstance) ([]remoteTenant, error) {
			return []remoteTenant{
				{RemoteID: 7, Name: name, Status: "active", UserCount: 3},
				{RemoteID: 8, Name: "另一家", Status: "active", UserCount: 1},
			}, nil
		},
	}

	count, err := s.SyncInstance(context.Background(), &inst)
	if err != nil || count != 2 {
		t.Fatalf("首次同步失败: count=%d err=%v", count, err)
	}

	var first models.TenantIdentity
	if err := database.DB.Where("remote_instance_id = ? AND remote_tenant_id = ?", inst.ID, 7).
		First(&first).Error; err != nil {
		t.Fatalf("查询缓存行失败: %v", err)
	}
	firstGlobalID := first.ID
	firstRefresh := first.CacheRefreshedAt

	// 重复同步同一批远程租户不产生重复行，只刷新cache_refreshed_at
	time.Sleep(10 * time.Millisecond)
	name = "新店名"
	count, err = s.SyncInstance(context.Background(), &inst)
	if err != nil || count != 2 {
		t.Fatalf("二次同步失败: count=%d err=%v", count, err)
	}

	var rows int64
	database.DB.Model(&models.TenantIdentity{}).Where("remote_instance_id = ?", inst.ID).Count(&rows)
	if rows != 2 {
		t.Errorf("重复同步不应产生重复行, 期望2行, 实际 %d", rows)
	}

	var second models.TenantIdentity
	database.DB.Where("remote_instance_id = ? AND remote_tenant_id = ?", inst.ID, 7).First(&second)
	if second.ID != firstGlobalID {
		t.Errorf("全局租户ID应保持稳定, 期望 %d, 实际 %d", firstGlobalID, second.ID)
	}
	if !second.CacheRefreshedAt.After(firstRefresh) {
		t.Errorf("cache_refreshed_at应被刷新, 首次 %v, 二次 %v", firstRefresh, second.CacheRefreshedAt)
	}
	if second.Name != "新店名" {
		t.Errorf("展示字段应被更新, 实际 %q", second.Name)
	}
}

func TestIngestUnknownInstanceNotPersisted(t *testing.T) {
	setupTestDB(t)

	s := &AuditService{}
	_, err := s.Ingest(&AuditPushPayload{
		EventType:        "audit",
		RemoteInstanceID: 7, // 未注册
		Data:             AuditPushData{Action: "updated"},
	})
	if err != ErrUnknownInstance {
		t.Fatalf("未注册实例应返回ErrUnknownInstance, 实际 %v", err)
	}

	var rows int64
	database.DB.Model(&models.AuditEvent{}).Count(&rows)
	if rows != 0 {
		t.Errorf("被拒绝的事件不应落库, 实际 %d 行", rows)
	}
}

func TestIngestTenantResolution(t *testing.T) {
	setupTestDB(t)
	inst := createTestInstance(t, "A")

	identity := models.TenantIdentity{
		RemoteInstanceID: inst.ID,
		RemoteTenantID:   55,
		Name:             "可解析租户",
		CacheRefreshedAt: time.Now(),
	}
	if err := database.DB.Create(&identity).Error; err != nil {
		t.Fatalf("创建缓存行失败: %v", err)
	}

	s := &AuditService{}

	// 缓存中不存在的租户：事件照常落库，全局租户留空
	unknownTenant := uint(999)
	event, err := s.Ingest(&AuditPushPayload{
		EventType:        "audit",
		RemoteInstanceID: inst.ID,
		Data:             AuditPushData{Action: "updated", RemoteTenantID: &unknownTenant},
	})
	if err != nil {
		t.Fatalf("未解析租户的事件不应被拒绝: %v", err)
	}
	if event.GlobalTenantID != nil {
		t.Errorf("未解析租户的事件global_tenant_id应为空, 实际 %v", *event.GlobalTenantID)
	}

	var saved models.AuditEvent
	if err := database.DB.First(&saved, event.ID).Error; err != nil {
		t.Fatalf("事件应已落库: %v", err)
	}
	if saved.GlobalTenantID != nil {
		t.Error("落库的事件global_tenant_id应为空")
	}
	if saved.Source != "remote_push" {
		t.Errorf("来源应为remote_push, 实际 %q", saved.Source)
	}

	// 缓存中存在的租户：关联全局租户ID
	knownTenant := uint(55)
	event, err = s.Ingest(&AuditPushPayload{
		EventType:        "audit",
		RemoteInstanceID: inst.ID,
		Data:             AuditPushData{Action: "deleted", RemoteTenantID: &knownTenant},
	})
	if err != nil {
		t.Fatalf("可解析租户的事件失败: %v", err)
	}
	if event.GlobalTenantID == nil || *event.GlobalTenantID != identity.ID {
		t.Errorf("应关联全局租户 %d, 实际 %v", identity.ID, event.GlobalTenantID)
	}
}

func TestApplyUpdatePersistedSparse(t *testing.T) {
	setupTestDB(t)
	inst := createTestInstance(t, "A")

	exec := models.CommandExecution{
		Command:          "tenant:migrate",
		RemoteInstanceID: inst.ID,
		Status:           "pending",
		TotalSteps:       10,
	}
	if err := database.DB.Create(&exec).Error; err != nil {
		t.Fatalf("创建执行记录失败: %v", err)
	}

	s := &ExecutionService{}

	// 两次各带一个字段的回调互不覆盖
	if _, err := s.ApplyUpdate(exec.ID, &ExecutionUpdate{Status: strPtr("running")}); err != nil {
		t.Fatalf("第一次更新失败: %v", err)
	}
	if _, err := s.ApplyUpdate(exec.ID, &ExecutionUpdate{CompletedSteps: intPtr(5)}); err != nil {
		t.Fatalf("第二次更新失败: %v", err)
	}

	var saved models.CommandExecution
	database.DB.First(&saved, exec.ID)
	if saved.Status != "running" || saved.CompletedSteps != 5 {
		t.Errorf("两次部分更新应叠加, 实际 status=%s completed=%d", saved.Status, saved.CompletedSteps)
	}
	if saved.ProgressPercent() != 50 {
		t.Errorf("进度应为50, 实际 %d", saved.ProgressPercent())
	}

	// 完成回调
	if _, err := s.ApplyUpdate(exec.ID, &ExecutionUpdate{
		Status:         strPtr("completed"),
		CompletedSteps: intPtr(10),
		TotalSteps:     intPtr(10),
		CompletedAt:    strPtr("2025-01-01T00:00:00Z"),
	}); err != nil {
		t.Fatalf("完成回调失败: %v", err)
	}

	database.DB.First(&saved, exec.ID)
	if saved.Status != "completed" {
		t.Errorf("status应为completed, 实际 %s", saved.Status)
	}
	if saved.ProgressPercent() != 100 {
		t.Errorf("完成后进度应为100, 实际 %d", saved.ProgressPercent())
	}
	if saved.CompletedAt == nil {
		t.Error("completed_at应已写入")
	}

	// 未知执行ID
	if _, err := s.ApplyUpdate(999999, &ExecutionUpdate{Status: strPtr("running")}); err != ErrExecutionNotFound {
		t.Errorf("未知执行ID应返回ErrExecutionNotFound, 实际 %v", err)
	}
}
