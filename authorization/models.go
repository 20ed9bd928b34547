package authorization

import "time"

// Account 表示一个后台管理账号。
// 账号仅通过环境变量种子创建，不开放注册。
type Account struct {
	ID           uint64     `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:64;not null" json:"username"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	Role         string     `gorm:"size:32;not null;default:'admin'" json:"role"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName 指定管理账号表名。
func (Account) TableName() string {
	return "admin_accounts"
}
