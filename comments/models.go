package comments

import "time"

// Comment 是视频下的一条留言，允许匿名提交。
type Comment struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	VideoID    uint64    `gorm:"not null;index" json:"video_id"`
	ParentID   *uint64   `gorm:"index" json:"parent_id,omitempty"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	LikesCount uint64    `gorm:"not null;default:0" json:"likes_count"`
	VisitorID  *string   `gorm:"size:64" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName 指定 Comment 模型对应的数据库表名。
func (Comment) TableName() string {
	return "comments"
}

const anonymousUserName = "匿名用户"

// RedactedComment 是对外展示的评论形态。无论库里是否存有访客标识，
// 返回时一律替换为匿名身份。
type RedactedComment struct {
	ID         uint64    `json:"id"`
	Content    string    `json:"content"`
	LikesCount uint64    `json:"likes_count"`
	UserName   string    `json:"user_name"`
	AvatarURL  *string   `json:"avatar_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// redact 把存储形态转换为匿名展示形态。
func redact(comment Comment) RedactedComment {
	return RedactedComment{
		ID:         comment.ID,
		Content:    comment.Content,
		LikesCount: comment.LikesCount,
		UserName:   anonymousUserName,
		AvatarURL:  nil,
		CreatedAt:  comment.CreatedAt,
	}
}
