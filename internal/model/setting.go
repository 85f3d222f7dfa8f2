package model

import (
	"time"
)

// AppSetting 运营配置项（如各模型积分单价），管理端写入后使缓存失效
type AppSetting struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AppSetting) TableName() string {
	return "app_settings"
}
