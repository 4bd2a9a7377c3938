package service

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"zh.xyz/dv/console/database"
	"zh.xyz/dv/console/models"
)

var ErrExecutionNotFound = errors.New("执行记录不存在")

// NullableString 区分"字段缺失"和"显式null"的可空字符串
// error字段允许远端用null清除之前上报的错误，普通指针无法表达这层语义
type NullableString struct {
	Set   bool
	Value *string
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// ExecutionUpdate 回调携带的部分更新
// 所有字段都是可选的：远端一次回调可能只报当前步骤，下一次只报状态和完成时间
// 只有携带的字段会写入，缺失字段保持原值
type ExecutionUpdate struct {
	Status         *string        `json:"status"`
	CurrentStep    *string        `json:"current_step"`
	CompletedSteps *int           `json:"completed_steps"`
	TotalSteps     *int           `json:"total_steps"`
	Output         *string        `json:"output"`
	Error          NullableString `json:"error"` // 显式null清除已有错误
	CompletedAt    *string        `json:"completed_at"` // ISO-8601
	PID            *string        `json:"pid"`
}

// ExecutionService 命令执行状态跟踪
type ExecutionService struct{}

// 同一执行ID的更新必须串行，避免两次并发部分更新互相覆盖
var executionLocks = sync.Map{}

func lockExecution(id uint) *sync.Mutex {
	mu, _ := executionLocks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ApplyUpdate 应用一次回调更新
// 未知的执行ID返回ErrExecutionNotFound；没有可识别字段的更新是成功的空操作
func (s *ExecutionService) ApplyUpdate(executionID uint, upd *ExecutionUpdate) (*models.CommandExecution, error) {
	mu := lockExecution(executionID)
	mu.Lock()
	defer mu.Unlock()

	var exec models.CommandExecution
	if err := database.DB.First(&exec, executionID).Error; err != nil {
		return nil, ErrExecutionNotFound
	}

	updates := buildUpdates(&exec, upd)
	if len(updates) == 0 {
		return &exec, nil
	}

	if err := database.DB.Model(&exec).Updates(updates).Error; err != nil {
		return nil, err
	}

	log.Printf("[执行] 更新执行 %d: 状态=%s 进度=%d/%d",
		exec.ID, exec.Status, exec.CompletedSteps, exec.TotalSteps)

	return &exec, nil
}

// buildUpdates 根据当前记录和回调载荷构建更新字段集合
// 同时在内存中同步current，使调用方拿到更新后的视图
func buildUpdates(current *models.CommandExecution, upd *ExecutionUpdate) map[string]interface{} {
	updates := map[string]interface{}{}
	now := time.Now()

	if upd.Status != nil {
		newStatus := *upd.Status
		switch {
		case statusRank(newStatus) < 0:
			log.Printf("[执行] 忽略执行 %d 的未知状态 %q", current.ID, newStatus)
		case current.IsTerminal() && newStatus != current.Status:
			// 乱序送达的旧回调不能把终态拉回非终态
			log.Printf("[执行] 忽略执行 %d 的状态回退 %s -> %s", current.ID, current.Status, newStatus)
		case statusRank(newStatus) < statusRank(current.Status):
			log.Printf("[执行] 忽略执行 %d 的状态回退 %s -> %s", current.ID, current.Status, newStatus)
		default:
			updates["status"] = newStatus
			if newStatus == "running" && current.StartedAt == nil {
				updates["started_at"] = now
				current.StartedAt = &now
			}
			current.Status = newStatus
		}
	}

	if upd.CurrentStep != nil {
		updates["current_step"] = *upd.CurrentStep
		current.CurrentStep = *upd.CurrentStep
	}

	// 步数按远端上报原样记录，不做修正
	if upd.CompletedSteps != nil {
		updates["completed_steps"] = *upd.CompletedSteps
		current.CompletedSteps = *upd.CompletedSteps
	}
	if upd.TotalSteps != nil {
		updates["total_steps"] = *upd.TotalSteps
		current.TotalSteps = *upd.TotalSteps
	}
	if current.CompletedSteps > current.TotalSteps {
		// 接受但记录，不能替调用方猜测真实进度
		log.Printf("[执行] 执行 %d 进度异常: completed_steps(%d) > total_steps(%d)",
			current.ID, current.CompletedSteps, current.TotalSteps)
	}

	if upd.Output != nil {
		updates["output"] = *upd.Output
		current.Output = *upd.Output
	}

	if upd.Error.Set {
		if upd.Error.Value != nil {
			updates["error"] = *upd.Error.Value
		} else {
			updates["error"] = nil
		}
		current.Error = upd.Error.Value
	}

	if upd.CompletedAt != nil {
		if t, err := time.Parse(time.RFC3339, *upd.CompletedAt); err == nil {
			updates["completed_at"] = t
			current.CompletedAt = &t
		} else {
			log.Printf("[执行] 执行 %d 的completed_at无法解析: %q", current.ID, *upd.CompletedAt)
		}
	}

	if upd.PID != nil {
		updates["process_id"] = *upd.PID
		current.ProcessID = *upd.PID
	}

	return updates
}

// statusRank 状态单调序，未知状态返回-1
func statusRank(status string) int {
	switch status {
	case "pending":
		return 0
	case "running":
		return 1
	case "completed", "failed":
		return 2
	default:
		return -1
	}
}
