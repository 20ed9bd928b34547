package comments

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

	require.NoError(t, db.AutoMigrate(&Comment{}))
	return db
}

func strPtr(v string) *string { return &v }

func TestSubmitCommentRedactsVisitor(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)

	redacted, err := s.SubmitComment(context.Background(), 1, "  说得真好  ", strPtr("visitor-42"))
	require.NoError(t, err)
	assert.Equal(t, "说得真好", redacted.Content)
	assert.Equal(t, "匿名用户", redacted.UserName)
	assert.Nil(t, redacted.AvatarURL)

	// 访客标识只落库，不出现在任何返回载荷里。
	var stored Comment
	require.NoError(t, db.First(&stored, "id = ?", redacted.ID).Error)
	require.NotNil(t, stored.VisitorID)
	assert.Equal(t, "visitor-42", *stored.VisitorID)
}

func TestSubmitCommentValidation(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)
	ctx := context.Background()

	_, err := s.SubmitComment(ctx, 1, "   ", nil)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, ErrClassNotNull, writeErr.Class)
	assert.Equal(t, "评论内容不能为空", writeErr.Error())

	_, err = s.SubmitComment(ctx, 0, "内容", nil)
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, ErrClassCheck, writeErr.Class)
	assert.Equal(t, "无效的视频ID", writeErr.Error())
}

func TestGetCommentsTopLevelOnly(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	parent := uint64(1)
	rows := []Comment{
		{ID: 1, VideoID: 7, Content: "第一条", VisitorID: strPtr("v1"), CreatedAt: base},
		{ID: 2, VideoID: 7, Content: "第二条", CreatedAt: base.Add(time.Hour)},
		{ID: 3, VideoID: 7, ParentID: &parent, Content: "楼中楼", CreatedAt: base.Add(2 * time.Hour)},
		{ID: 4, VideoID: 8, Content: "别的视频", CreatedAt: base},
	}
	require.NoError(t, db.Create(&rows).Error)

	got := s.GetComments(context.Background(), 7)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].ID)
	assert.Equal(t, uint64(1), got[1].ID)
	for _, comment := range got {
		assert.Equal(t, "匿名用户", comment.UserName)
		assert.Nil(t, comment.AvatarURL)
	}

	assert.Empty(t, s.GetComments(context.Background(), 999))
}

func TestLikeComment(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&Comment{ID: 1, VideoID: 1, Content: "好"}).Error)

	require.NoError(t, s.LikeComment(ctx, 1))
	require.NoError(t, s.LikeComment(ctx, 1))
	assert.ErrorIs(t, s.LikeComment(ctx, 999), ErrLikeFailed)

	var stored Comment
	require.NoError(t, db.First(&stored, "id = ?", 1).Error)
	assert.Equal(t, uint64(2), stored.LikesCount)
}

func TestDeleteCommentScopedToVisitor(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)
	ctx := context.Background()

	rows := []Comment{
		{ID: 1, VideoID: 1, Content: "我的", VisitorID: strPtr("v1")},
		{ID: 2, VideoID: 1, Content: "别人的", VisitorID: strPtr("v2")},
	}
	require.NoError(t, db.Create(&rows).Error)

	assert.False(t, s.DeleteComment(ctx, 1, strPtr("v2")))
	assert.True(t, s.DeleteComment(ctx, 1, strPtr("v1")))

	// 不带访客标识时不加归属过滤。
	assert.True(t, s.DeleteComment(ctx, 2, nil))

	var count int64
	require.NoError(t, db.Model(&Comment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestClassifyWriteError(t *testing.T) {
	assert.Equal(t, ErrClassCheck, classifyWriteError(gorm.ErrCheckConstraintViolated))
	assert.Equal(t, ErrClassNotNull, classifyWriteError(gorm.ErrInvalidValue))
	assert.Equal(t, ErrClassUnknown, classifyWriteError(errors.New("boom")))

	denied := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgInsufficientPrivilege})
	assert.Equal(t, ErrClassPermission, classifyWriteError(denied))
	assert.Equal(t, "评论功能暂时不可用，请稍后重试", newWriteError(classifyWriteError(denied), denied).Error())
	assert.Equal(t, ErrClassUnknown, classifyWriteError(&pgconn.PgError{Code: "23505"}))
}
