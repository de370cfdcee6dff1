// persistence/gorm_postgresql.go
package persistence

import (
	"errors"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	applog "github.com/wfunc/liarsbar/logger"
	"github.com/wfunc/liarsbar/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}
	return newGormStore(db)
}

func newGormStore(db *gorm.DB) (*GormPostgreSQL, error) {
	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// AutoMigrate 自动迁移表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.GormRoom{})
}

// SaveRoom 保存房间快照，存在则更新
func (p *GormPostgreSQL) SaveRoom(room *models.GameRoom) error {
	rec, err := models.NewGormRoom(room)
	if err != nil {
		return err
	}
	return p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "phase", "is_started", "state", "updated_at"}),
	}).Create(rec).Error
}

// LoadRoom 加载房间快照
func (p *GormPostgreSQL) LoadRoom(roomID string) (*models.GameRoom, error) {
	var rec models.GormRoom
	if err := p.db.Where("room_id = ?", roomID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rec.Room()
}

// DeleteRoom 删除房间，记录不存在时不报错
func (p *GormPostgreSQL) DeleteRoom(roomID string) error {
	return p.db.Unscoped().Where("room_id = ?", roomID).Delete(&models.GormRoom{}).Error
}

// ListRooms 按创建顺序列出所有房间
func (p *GormPostgreSQL) ListRooms() ([]*models.GameRoom, error) {
	var recs []models.GormRoom
	if err := p.db.Order("id").Find(&recs).Error; err != nil {
		return nil, err
	}
	rooms := make([]*models.GameRoom, 0, len(recs))
	for i := range recs {
		r, err := recs[i].Room()
		if err != nil {
			applog.Log.Warnf("skip stored room %s: %v", recs[i].RoomID, err)
			continue
		}
		rooms = append(rooms, r)
	}
	return rooms, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
