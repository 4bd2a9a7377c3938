package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"zh.xyz/dv/console/database"
	"zh.xyz/dv/console/models"
)

var ErrMasterExists = errors.New("已存在主实例，请先通过提升操作切换")

// RegistryService 远程实例注册表
// 主实例唯一性在这里强制，而不是依赖每个写入方自觉
type RegistryService struct{}

// EnsureNoOtherMaster 检查除excludeID外是否已有主实例
func (s *RegistryService) EnsureNoOtherMaster(excludeID uint) error {
	var count int64
	query := database.DB.Model(&models.RemoteInstance{}).Where("is_master = ?", true)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrMasterExists
	}
	return nil
}

// PromoteToMaster 原子地把指定实例提升为主实例
// 同一事务内先清除现有主实例再设置新的，保证任何时刻最多一个
func (s *RegistryService) PromoteToMaster(instanceID uint) (*models.RemoteInstance, error) {
	var inst models.RemoteInstance

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&inst, instanceID).Error; err != nil {
			return fmt.Errorf("实例不存在: %w", err)
		}

		if err := tx.Model(&models.RemoteInstance{}).
			Where("is_master = ?", true).
			Update("is_master", false).Error; err != nil {
			return err
		}

		if err := tx.Model(&inst).Update("is_master", true).Error; err != nil {
			return err
		}

		inst.IsMaster = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &inst, nil
}

// Deactivate 停用或删除实例
// 被租户缓存引用的实例不允许删除，只做软停用
func (s *RegistryService) Deactivate(instanceID uint) (deleted bool, err error) {
	var inst models.RemoteInstance
	if err := database.DB.First(&inst, instanceID).Error; err != nil {
		return false, err
	}

	var refCount int64
	if err := database.DB.Model(&models.TenantIdentity{}).
		Where("remote_instance_id = ?", instanceID).Count(&refCount).Error; err != nil {
		return false, err
	}

	if refCount > 0 {
		err := database.DB.Model(&inst).Update("is_active", false).Error
		return false, err
	}

	if err := database.DB.Delete(&inst).Error; err != nil {
		return false, err
	}
	return true, nil
}
