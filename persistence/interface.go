// persistence/interface.go
package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/liarsbar/config"
	"github.com/wfunc/liarsbar/models"
)

// Store 房间实体存储，按房间 ID 保存整个房间快照
type Store interface {
	SaveRoom(room *models.GameRoom) error
	LoadRoom(roomID string) (*models.GameRoom, error)
	DeleteRoom(roomID string) error
	ListRooms() ([]*models.GameRoom, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
)

const queryTimeout = 5 * time.Second

// Open builds the store selected by cfg.Driver.
func Open(cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "gorm":
		return NewGormPostgreSQL(cfg.Postgres.DSN())
	case "postgres":
		return NewPostgreSQL(cfg.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
