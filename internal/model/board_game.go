package model

import "time"

// BoardGameCategory tags board games. Read-only reference data.
type BoardGameCategory struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// BoardGame is a catalog entry that reservation items point at.
type BoardGame struct {
	ID         int64               `gorm:"primaryKey" json:"id"`
	Name       string              `gorm:"size:256;not null" json:"name"`
	Categories []BoardGameCategory `gorm:"many2many:board_game_category_mapping;" json:"categories"`
	CreatedAt  time.Time           `json:"-"`
	UpdatedAt  time.Time           `json:"-"`
}
