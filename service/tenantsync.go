package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm/clause"
	"zh.xyz/dv/console/config"
	"zh.xyz/dv/console/database"
	"zh.xyz/dv/console/dbconn"
	"zh.xyz/dv/console/models"
)

// remoteTenant 远程实例中的一条租户记录及派生计数
type remoteTenant struct {
	RemoteID           uint
	Name               string
	ContactEmail       string
	Status             string
	TrialEndsAt        *time.Time
	SubscriptionEndsAt *time.Time
	UserCount          int
	LocationCount      int
}

// SyncResult 单个实例的同步结果
type SyncResult struct {
	InstanceID  uint   `json:"instance_id"`
	Name        string `json:"name"`
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	TenantCount int    `json:"tenant_count"`
}

// TenantSyncService 租户身份缓存同步
// 本服务是TenantIdentity的唯一写入方，审计接收和执行分发只读
type TenantSyncService struct {
	fetch func(ctx context.Context, inst *models.RemoteInstance) ([]remoteTenant, error)
}

func NewTenantSyncService() *TenantSyncService {
	return &TenantSyncService{fetch: fetchRemoteTenants}
}

// SyncInstance 同步单个实例的租户列表到本地缓存
// 按(remote_instance_id, remote_tenant_id)去重，重复同步只会刷新已有行
func (s *TenantSyncService) SyncInstance(ctx context.Context, inst *models.RemoteInstance) (int, error) {
	timeout := time.Duration(config.GlobalConfig.Sync.Timeout) * time.Second
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tenants, err := s.fetch(fetchCtx, inst)
	if err != nil {
		return 0, fmt.Errorf("拉取实例 %s 租户列表失败: %w", inst.Name, err)
	}

	if len(tenants) == 0 {
		log.Printf("[同步] 实例 %s(%d) 没有租户记录，跳过", inst.Name, inst.ID)
		return 0, nil
	}

	now := time.Now()
	for i := range tenants {
		identity := toTenantIdentity(inst.ID, &tenants[i], now)
		err := database.DB.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "remote_instance_id"}, {Name: "remote_tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "contact_email", "status", "trial_ends_at",
				"subscription_ends_at", "user_count", "location_count",
				"cache_refreshed_at", "updated_at",
			}),
		}).Create(&identity).Error
		if err != nil {
			return 0, fmt.Errorf("写入租户缓存失败: %w", err)
		}
	}

	log.Printf("[同步] 实例 %s(%d) 同步完成，共 %d 个租户", inst.Name, inst.ID, len(tenants))
	return len(tenants), nil
}

// toTenantIdentity 远程租户记录映射为本地缓存行
func toTenantIdentity(instanceID uint, rt *remoteTenant, now time.Time) models.TenantIdentity {
	return models.TenantIdentity{
		RemoteInstanceID:   instanceID,
		RemoteTenantID:     rt.RemoteID,
		Name:               rt.Name,
		ContactEmail:       rt.ContactEmail,
		Status:             rt.Status,
		TrialEndsAt:        rt.TrialEndsAt,
		SubscriptionEndsAt: rt.SubscriptionEndsAt,
		UserCount:          rt.UserCount,
		LocationCount:      rt.LocationCount,
		CacheRefreshedAt:   now,
	}
}

// SyncAll 同步所有激活实例
// 不可达的实例只记为该实例的失败，不中断整个批次
func (s *TenantSyncService) SyncAll(ctx context.Context) []SyncResult {
	var instances []models.RemoteInstance
	if err := database.DB.Where("is_active = ?", true).Find(&instances).Error; err != nil {
		log.Printf("[同步] 查询实例列表失败: %v", err)
		return nil
	}

	workers := config.GlobalConfig.Sync.Workers
	results := make([]SyncResult, len(instances))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range instances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst := &instances[i]
			result := SyncResult{InstanceID: inst.ID, Name: inst.Name}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				result.Message = "已取消: " + ctx.Err().Error()
				results[i] = result
				return
			}

			count, err := s.SyncInstance(ctx, inst)
			if err != nil {
				result.Message = err.Error()
				log.Printf("[同步] %v", err)
			} else {
				result.Success = true
				result.TenantCount = count
				result.Message = "同步成功"
			}
			results[i] = result
		}(i)
	}

	wg.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed > 0 {
		log.Printf("[同步] 批量同步完成: %d 个实例，%d 个失败", len(results), failed)
		go SendSyncFailureReport(results)
	}

	return results
}

// StaleThreshold 当前配置的缓存过期阈值
func StaleThreshold() time.Duration {
	return time.Duration(config.GlobalConfig.Sync.StaleThreshold) * time.Hour
}

// fetchRemoteTenants 查询远程实例的租户表及每租户的用户数、门店数
func fetchRemoteTenants(ctx context.Context, inst *models.RemoteInstance) ([]remoteTenant, error) {
	db, err := dbconn.GetRawConnection(inst)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		"SELECT id, name, contact_email, status, trial_ends_at, subscription_ends_at FROM tenants")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []remoteTenant
	index := map[uint]int{}
	for rows.Next() {
		var rt remoteTenant
		var contactEmail, status sql.NullString
		var trialEndsAt, subscriptionEndsAt sql.NullTime
		if err := rows.Scan(&rt.RemoteID, &rt.Name, &contactEmail, &status,
			&trialEndsAt, &subscriptionEndsAt); err != nil {
			return nil, err
		}
		rt.ContactEmail = contactEmail.String
		rt.Status = status.String
		if trialEndsAt.Valid {
			rt.TrialEndsAt = &trialEndsAt.Time
		}
		if subscriptionEndsAt.Valid {
			rt.SubscriptionEndsAt = &subscriptionEndsAt.Time
		}
		index[rt.RemoteID] = len(tenants)
		tenants = append(tenants, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	userCounts, err := fetchCounts(ctx, db, "SELECT tenant_id, COUNT(*) FROM users GROUP BY tenant_id")
	if err != nil {
		return nil, err
	}
	locationCounts, err := fetchCounts(ctx, db, "SELECT tenant_id, COUNT(*) FROM locations GROUP BY tenant_id")
	if err != nil {
		return nil, err
	}

	for tenantID, i := range index {
		tenants[i].UserCount = userCounts[tenantID]
		tenants[i].LocationCount = locationCounts[tenantID]
	}

	return tenants, nil
}

func fetchCounts(ctx context.Context, db *sql.DB, query string) (map[uint]int, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[uint]int{}
	for rows.Next() {
		var tenantID uint
		var count int
		if err := rows.Scan(&tenantID, &count); err != nil {
			return nil, err
		}
		counts[tenantID] = count
	}
	return counts, rows.Err()
}
