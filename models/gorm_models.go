// models/gorm_models.go
package models

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormRoom 房间实体，整个房间状态以 JSON 存放
type GormRoom struct {
	gorm.Model
	RoomID    string         `gorm:"uniqueIndex;not null"`
	Name      string         `gorm:"not null"`
	Phase     string         `gorm:"not null"`
	IsStarted bool           `gorm:"default:false"`
	State     datatypes.JSON `gorm:"type:jsonb;not null"`
}

// TableName keeps the table name stable across struct renames.
func (GormRoom) TableName() string {
	return "rooms"
}

// NewGormRoom encodes r into its storage record.
func NewGormRoom(r *GameRoom) (*GormRoom, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode room %s: %w", r.ID, err)
	}
	return &GormRoom{
		RoomID:    r.ID,
		Name:      r.Name,
		Phase:     string(r.State.Phase),
		IsStarted: r.IsStarted,
		State:     datatypes.JSON(data),
	}, nil
}

// Room decodes the stored room.
func (g *GormRoom) Room() (*GameRoom, error) {
	return DecodeRoom(g.State)
}

// DecodeRoom parses a JSON-encoded room.
func DecodeRoom(data []byte) (*GameRoom, error) {
	var r GameRoom
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	if r.State == nil {
		return nil, fmt.Errorf("decode room %s: missing game state", r.ID)
	}
	return &r, nil
}
