package service

import (
	"context"
	"log"
	"sync"
	"time"

	"zh.xyz/dv/console/config"
	"zh.xyz/dv/console/database"
	"zh.xyz/dv/console/dbconn"
	"zh.xyz/dv/console/models"
)

// ProbeResult 单次连通性探测结果
type ProbeResult struct {
	InstanceID uint   `json:"instance_id"`
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	LatencyMS  int64  `json:"latency_ms"`
}

// HealthService 远程实例健康监控
type HealthService struct {
	probe func(ctx context.Context, inst *models.RemoteInstance) ProbeResult
}

func NewHealthService() *HealthService {
	return &HealthService{probe: probeInstance}
}

// probeInstance 打开远程连接并测量往返延迟
// 连接失败作为失败结果返回，永远不向调用方抛出
func probeInstance(ctx context.Context, inst *models.RemoteInstance) ProbeResult {
	result := ProbeResult{InstanceID: inst.ID, Name: inst.Name}

	db, err := dbconn.GetRawConnection(inst)
	if err != nil {
		result.Message = "连接配置错误: " + err.Error()
		return result
	}
	defer db.Close()

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		result.LatencyMS = time.Since(start).Milliseconds()
		result.Message = "连接失败: " + err.Error()
		return result
	}

	result.Success = true
	result.LatencyMS = time.Since(start).Milliseconds()
	result.Message = "连接成功"
	return result
}

// TestConnection 带超时的连通性探测
func (s *HealthService) TestConnection(ctx context.Context, inst *models.RemoteInstance) ProbeResult {
	timeout := time.Duration(config.GlobalConfig.Health.ProbeTimeout) * time.Second
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.probe(probeCtx, inst)
}

// RefreshHealth 探测单个实例并更新健康状态
// 基线探测只区分healthy/down，degraded留给部分能力场景
func (s *HealthService) RefreshHealth(ctx context.Context, inst *models.RemoteInstance) ProbeResult {
	result := s.TestConnection(ctx, inst)
	s.recordHealth(inst, result)
	return result
}

func (s *HealthService) recordHealth(inst *models.RemoteInstance, result ProbeResult) {
	status := "down"
	if result.Success {
		status = "healthy"
	}

	wasDown := inst.HealthStatus == "down"
	now := time.Now()

	err := database.DB.Model(&models.RemoteInstance{}).Where("id = ?", inst.ID).
		Updates(map[string]interface{}{
			"health_status":        status,
			"last_health_check_at": now,
		}).Error
	if err != nil {
		log.Printf("[健康] 更新实例 %d 健康状态失败: %v", inst.ID, err)
		return
	}

	inst.HealthStatus = status
	inst.LastHealthCheckAt = &now

	if status == "down" && !wasDown {
		log.Printf("[健康] 实例 %s(%d) 不可达: %s", inst.Name, inst.ID, result.Message)
		go SendInstanceDownAlert(inst, result.Message)
	}
}

// RefreshAllHealth 探测所有激活实例
// 单个实例的失败不会中断其余实例的探测
func (s *HealthService) RefreshAllHealth(ctx context.Context) []ProbeResult {
	var instances []models.RemoteInstance
	if err := database.DB.Where("is_active = ?", true).Find(&instances).Error; err != nil {
		log.Printf("[健康] 查询实例列表失败: %v", err)
		return nil
	}

	results := s.probeAll(ctx, instances)
	for i := range results {
		if ctx.Err() != nil {
			break
		}
		s.recordHealth(&instances[i], results[i])
	}
	return results
}

// probeAll 有界并发地探测一批实例，结果与输入顺序一一对应
func (s *HealthService) probeAll(ctx context.Context, instances []models.RemoteInstance) []ProbeResult {
	workers := config.GlobalConfig.Health.Workers
	timeout := time.Duration(config.GlobalConfig.Health.ProbeTimeout) * time.Second

	results := make([]ProbeResult, len(instances))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range instances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = ProbeResult{
					InstanceID: instances[i].ID,
					Name:       instances[i].Name,
					Message:    "已取消: " + ctx.Err().Error(),
				}
				return
			}

			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			results[i] = s.probe(probeCtx, &instances[i])
		}(i)
	}

	wg.Wait()
	return results
}
