package guestbook

import "time"

const anonymousVisitorName = "匿名访客"

// Entry 是留言板上的一条留言。
type Entry struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	ContactName string    `gorm:"size:100;not null" json:"contact_name"`
	ContactInfo *string   `gorm:"size:255" json:"contact_info,omitempty"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	IsPublic    bool      `gorm:"not null;index" json:"is_public"`
	LikesCount  uint64    `gorm:"not null;default:0" json:"likes_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName 指定 Entry 模型对应的数据库表名。
func (Entry) TableName() string {
	return "guestbook"
}
