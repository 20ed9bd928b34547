package guestbook

import (
	"context"
	"errors"
	"log"
	"strings"

	"gorm.io/gorm"
)

// ErrLikeFailed 在点赞计数更新失败时返回给调用方。
var ErrLikeFailed = errors.New("guestbook: 点赞失败")

const defaultPageLimit = 20

// Service 管理留言板的读写，策略与评论模块一致：
// 读路径吞错退化，写路径抛出分类错误。
type Service struct {
	db *gorm.DB
}

// NewService 基于给定的数据库句柄构建留言服务。
func NewService(db *gorm.DB) *Service {
	if db == nil {
		return nil
	}
	return &Service{db: db}
}

// GetGuestbooks 返回公开留言，按创建时间倒序，offset/limit 分页。
func (s *Service) GetGuestbooks(ctx context.Context, limit, offset int) []Entry {
	if s == nil || s.db == nil {
		return []Entry{}
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries := make([]Entry, 0, limit)
	err := s.db.WithContext(ctx).
		Where("is_public = ?", true).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		log.Printf("guestbook: list entries: %v", err)
		return []Entry{}
	}
	return entries
}

// SubmitGuestbook 落库一条留言。空白称呼回落为匿名访客，
// 联系方式为空时存 NULL，内容为空直接拒绝。
func (s *Service) SubmitGuestbook(ctx context.Context, contactName, contactInfo, content string) (*Entry, error) {
	if s == nil || s.db == nil {
		return nil, newWriteError(ErrClassUnknown, errors.New("guestbook: service not initialized"))
	}

	trimmedContent := strings.TrimSpace(content)
	if trimmedContent == "" {
		return nil, newWriteError(ErrClassNotNull, errors.New("guestbook: content is empty"))
	}

	name := strings.TrimSpace(contactName)
	if name == "" {
		name = anonymousVisitorName
	}

	entry := Entry{
		ContactName: name,
		Content:     trimmedContent,
		IsPublic:    true,
	}
	if info := strings.TrimSpace(contactInfo); info != "" {
		entry.ContactInfo = &info
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Printf("guestbook: submit entry: %v", err)
		return nil, newWriteError(classifyWriteError(err), err)
	}
	return &entry, nil
}

// LikeGuestbook 以单条原子 UPDATE 增加点赞计数。
func (s *Service) LikeGuestbook(ctx context.Context, entryID uint64) error {
	if s == nil || s.db == nil || entryID == 0 {
		return ErrLikeFailed
	}

	result := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("id = ?", entryID).
		UpdateColumn("likes_count", gorm.Expr("likes_count + 1"))
	if result.Error != nil {
		log.Printf("guestbook: like entry %d: %v", entryID, result.Error)
		return ErrLikeFailed
	}
	if result.RowsAffected == 0 {
		return ErrLikeFailed
	}
	return nil
}

// DeleteGuestbook 无条件删除一条留言，归属校验由路由上的管理员守卫承担。
func (s *Service) DeleteGuestbook(ctx context.Context, entryID uint64) bool {
	if s == nil || s.db == nil || entryID == 0 {
		return false
	}

	result := s.db.WithContext(ctx).Where("id = ?", entryID).Delete(&Entry{})
	if result.Error != nil {
		log.Printf("guestbook: delete entry %d: %v", entryID, result.Error)
		return false
	}
	return result.RowsAffected > 0
}

// GetGuestbookCount 返回公开留言总数，失败时返回 0。
func (s *Service) GetGuestbookCount(ctx context.Context) int64 {
	if s == nil || s.db == nil {
		return 0
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("is_public = ?", true).
		Count(&count).Error
	if err != nil {
		log.Printf("guestbook: count entries: %v", err)
		return 0
	}
	return count
}
