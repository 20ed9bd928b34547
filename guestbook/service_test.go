package guestbook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Entry{}))
	return db
}

func TestSubmitGuestbookDefaults(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)
	ctx := context.Background()

	entry, err := s.SubmitGuestbook(ctx, "  ", "   ", "  网站做得很好  ")
	require.NoError(t, err)
	assert.Equal(t, "匿名访客", entry.ContactName)
	assert.Nil(t, entry.ContactInfo)
	assert.Equal(t, "网站做得很好", entry.Content)
	assert.True(t, entry.IsPublic)

	entry, err = s.SubmitGuestbook(ctx, "张三", "zhangsan@example.com", "常来听相声")
	require.NoError(t, err)
	assert.Equal(t, "张三", entry.ContactName)
	require.NotNil(t, entry.ContactInfo)
	assert.Equal(t, "zhangsan@example.com", *entry.ContactInfo)
}

func TestSubmitGuestbookRejectsEmptyContent(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)

	_, err := s.SubmitGuestbook(context.Background(), "张三", "", "   ")
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, ErrClassNotNull, writeErr.Class)
	assert.Equal(t, "留言内容不能为空", writeErr.Error())
}

func TestGetGuestbooksPublicOnly(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)

	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		{ID: 1, ContactName: "甲", Content: "第一条", IsPublic: true, CreatedAt: base},
		{ID: 2, ContactName: "乙", Content: "第二条", IsPublic: true, CreatedAt: base.Add(time.Hour)},
		{ID: 3, ContactName: "丙", Content: "私密留言", IsPublic: false, CreatedAt: base.Add(2 * time.Hour)},
	}
	require.NoError(t, db.Create(&entries).Error)

	got := s.GetGuestbooks(context.Background(), 10, 0)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].ID)
	assert.Equal(t, uint64(1), got[1].ID)

	got = s.GetGuestbooks(context.Background(), 1, 1)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].ID)

	assert.Equal(t, int64(2), s.GetGuestbookCount(context.Background()))
}

func TestPrivateEntryStaysPrivate(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)

	require.NoError(t, db.Create(&Entry{ID: 1, ContactName: "丙", Content: "私密留言", IsPublic: false}).Error)

	var stored Entry
	require.NoError(t, db.First(&stored, "id = ?", 1).Error)
	assert.False(t, stored.IsPublic)
	assert.Equal(t, int64(0), s.GetGuestbookCount(context.Background()))
}

func TestClassifyWriteError(t *testing.T) {
	assert.Equal(t, ErrClassNotNull, classifyWriteError(gorm.ErrInvalidValue))
	assert.Equal(t, ErrClassUnknown, classifyWriteError(errors.New("boom")))

	denied := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgInsufficientPrivilege})
	assert.Equal(t, ErrClassPermission, classifyWriteError(denied))
	assert.Equal(t, "留言功能暂时不可用，请稍后重试", newWriteError(classifyWriteError(denied), denied).Error())
}

func TestLikeAndDeleteGuestbook(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&Entry{ID: 1, ContactName: "甲", Content: "好"}).Error)

	require.NoError(t, s.LikeGuestbook(ctx, 1))
	assert.ErrorIs(t, s.LikeGuestbook(ctx, 999), ErrLikeFailed)

	var stored Entry
	require.NoError(t, db.First(&stored, "id = ?", 1).Error)
	assert.Equal(t, uint64(1), stored.LikesCount)

	assert.True(t, s.DeleteGuestbook(ctx, 1))
	assert.False(t, s.DeleteGuestbook(ctx, 1))
}
