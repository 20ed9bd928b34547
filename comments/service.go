package comments

import (
	"context"
	"errors"
	"log"
	"strings"

	"gorm.io/gorm"
)

// ErrLikeFailed 在点赞计数更新失败时返回给调用方。
var ErrLikeFailed = errors.New("comments: 点赞失败")

// Service 管理视频评论的读写。读路径吞错退化为空结果，
// 写路径抛出带封闭分类的 WriteError。
type Service struct {
	db *gorm.DB
}

// NewService 基于给定的数据库句柄构建评论服务。
func NewService(db *gorm.DB) *Service {
	if db == nil {
		return nil
	}
	return &Service{db: db}
}

// GetComments 返回视频下的顶级评论（parent_id 为空），按创建时间倒序。
// 所有评论以匿名身份返回，失败时返回空列表。
func (s *Service) GetComments(ctx context.Context, videoID uint64) []RedactedComment {
	if s == nil || s.db == nil || videoID == 0 {
		return []RedactedComment{}
	}

	rows := make([]Comment, 0)
	err := s.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Where("parent_id IS NULL").
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		log.Printf("comments: list comments for video %d: %v", videoID, err)
		return []RedactedComment{}
	}

	redacted := make([]RedactedComment, 0, len(rows))
	for _, row := range rows {
		redacted = append(redacted, redact(row))
	}
	return redacted
}

// SubmitComment 落库一条裁剪过的评论并以匿名形态返回。
// 访客标识可选，缺省即匿名提交。
func (s *Service) SubmitComment(ctx context.Context, videoID uint64, content string, visitorID *string) (*RedactedComment, error) {
	if s == nil || s.db == nil {
		return nil, newWriteError(ErrClassUnknown, errors.New("comments: service not initialized"))
	}
	if videoID == 0 {
		return nil, newWriteError(ErrClassCheck, errors.New("comments: video id is required"))
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, newWriteError(ErrClassNotNull, errors.New("comments: content is empty"))
	}

	comment := Comment{VideoID: videoID, Content: trimmed}
	if visitorID != nil {
		if id := strings.TrimSpace(*visitorID); id != "" {
			comment.VisitorID = &id
		}
	}

	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		log.Printf("comments: submit comment for video %d: %v", videoID, err)
		return nil, newWriteError(classifyWriteError(err), err)
	}

	redacted := redact(comment)
	return &redacted, nil
}

// LikeComment 以单条原子 UPDATE 增加点赞计数，失败时返回统一错误。
func (s *Service) LikeComment(ctx context.Context, commentID uint64) error {
	if s == nil || s.db == nil || commentID == 0 {
		return ErrLikeFailed
	}

	result := s.db.WithContext(ctx).
		Model(&Comment{}).
		Where("id = ?", commentID).
		UpdateColumn("likes_count", gorm.Expr("likes_count + 1"))
	if result.Error != nil {
		log.Printf("comments: like comment %d: %v", commentID, result.Error)
		return ErrLikeFailed
	}
	if result.RowsAffected == 0 {
		return ErrLikeFailed
	}
	return nil
}

// DeleteComment 删除一条评论。提供访客标识时只删除其本人的评论，
// 未提供时不加归属过滤。
func (s *Service) DeleteComment(ctx context.Context, commentID uint64, visitorID *string) bool {
	if s == nil || s.db == nil || commentID == 0 {
		return false
	}

	query := s.db.WithContext(ctx).Where("id = ?", commentID)
	if visitorID != nil {
		if id := strings.TrimSpace(*visitorID); id != "" {
			query = query.Where("visitor_id = ?", id)
		}
	}

	result := query.Delete(&Comment{})
	if result.Error != nil {
		log.Printf("comments: delete comment %d: %v", commentID, result.Error)
		return false
	}
	return result.RowsAffected > 0
}
