package dbconn

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"zh.xyz/dv/console/models"
)

var connectionPool = sync.Map{}

// GetConnection 获取远程实例的GORM连接
func GetConnection(inst *models.RemoteInstance) (*gorm.DB, error) {
	key := fmt.Sprintf("%d", inst.ID)

	// 从连接池获取
	if conn, ok := connectionPool.Load(key); ok {
		return conn.(*gorm.DB), nil
	}

	dsn, err := buildDSN(inst)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch inst.Type {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", inst.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// 存储到连接池
	connectionPool.Store(key, db)
	return db, nil
}

// GetRawConnection 获取远程实例的原生连接（用于租户同步查询和连通性探测）
// 调用方负责关闭
func GetRawConnection(inst *models.RemoteInstance) (*sql.DB, error) {
	dsn, err := buildDSN(inst)
	if err != nil {
		return nil, err
	}

	var driverName string
	switch inst.Type {
	case "mysql":
		driverName = "mysql"
	case "postgres":
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database type: %s", inst.Type)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	// 远程实例的连接不长驻，限制空闲资源
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func buildDSN(inst *models.RemoteInstance) (string, error) {
	switch inst.Type {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			inst.Username, inst.Password, inst.Host, inst.Port, inst.Database), nil
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Shanghai",
			inst.Host, inst.Username, inst.Password, inst.Database, inst.Port), nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", inst.Type)
	}
}

// CloseConnection 关闭并移除池中的连接（实例被修改或停用时调用）
func CloseConnection(instID uint) {
	key := fmt.Sprintf("%d", instID)
	if conn, ok := connectionPool.LoadAndDelete(key); ok {
		if db, ok := conn.(*gorm.DB); ok {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
	}
}
