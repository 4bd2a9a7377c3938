package service

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
	"zh.xyz/dv/console/config"
)

var cronManager *cron.Cron

// InitCronManager 初始化定时任务管理器
// 按配置注册周期性的健康探测和租户缓存同步
func InitCronManager() {
	cronManager = cron.New(cron.WithSeconds())

	cfg := config.GlobalConfig

	if cfg.Health.CronExpr != "" {
		healthService := NewHealthService()
		_, err := cronManager.AddFunc(cfg.Health.CronExpr, func() {
			results := healthService.RefreshAllHealth(context.Background())
			log.Printf("[定时] 健康探测完成，共 %d 个实例", len(results))
		})
		if err != nil {
			log.Printf("[定时] 注册健康探测任务失败: %v", err)
		}
	}

	if cfg.Sync.CronExpr != "" {
		syncService := NewTenantSyncService()
		_, err := cronManager.AddFunc(cfg.Sync.CronExpr, func() {
			results := syncService.SyncAll(context.Background())
			log.Printf("[定时] 租户同步完成，共 %d 个实例", len(results))
		})
		if err != nil {
			log.Printf("[定时] 注册租户同步任务失败: %v", err)
		}
	}

	cronManager.Start()
}

// StopCronManager 停止定时任务（优雅退出时调用）
func StopCronManager() {
	if cronManager != nil {
		cronManager.Stop()
	}
}
