// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/liarsbar/logger"
	"github.com/wfunc/liarsbar/models"
)

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构，与 GORM 模型保持同一张 rooms 表
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS rooms (
            id BIGSERIAL PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ,
            room_id TEXT NOT NULL,
            name TEXT NOT NULL,
            phase TEXT NOT NULL,
            is_started BOOLEAN DEFAULT FALSE,
            state JSONB NOT NULL
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_room_id ON rooms(room_id);
        CREATE INDEX IF NOT EXISTS idx_rooms_deleted_at ON rooms(deleted_at);
    `)
	return err
}

// SaveRoom 保存房间快照
func (p *PostgreSQL) SaveRoom(room *models.GameRoom) error {
	state, err := json.Marshal(room)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	// 使用 UPSERT 操作 (PostgreSQL 9.5+)
	query := `
        INSERT INTO rooms (room_id, name, phase, is_started, state)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (room_id)
        DO UPDATE SET name = $2, phase = $3, is_started = $4, state = $5,
                      updated_at = CURRENT_TIMESTAMP, deleted_at = NULL
    `

	_, err = p.db.ExecContext(ctx, query, room.ID, room.Name, string(room.State.Phase), room.IsStarted, state)
	return err
}

// LoadRoom 加载房间快照
func (p *PostgreSQL) LoadRoom(roomID string) (*models.GameRoom, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var data []byte
	query := `SELECT state FROM rooms WHERE room_id = $1 AND deleted_at IS NULL`
	err := p.db.QueryRowContext(ctx, query, roomID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return models.DecodeRoom(data)
}

// DeleteRoom 删除房间
func (p *PostgreSQL) DeleteRoom(roomID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID)
	return err
}

// ListRooms 列出所有房间
func (p *PostgreSQL) ListRooms() ([]*models.GameRoom, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `SELECT room_id, state FROM rooms WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.GameRoom
	for rows.Next() {
		var (
			roomID string
			data   []byte
		)
		if err := rows.Scan(&roomID, &data); err != nil {
			return nil, err
		}
		r, err := models.DecodeRoom(data)
		if err != nil {
			logger.Log.Warnf("skip stored room %s: %v", roomID, err)
			continue
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
