package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
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

	require.NoError(t, db.AutoMigrate(
		&Category{}, &Representative{}, &Video{},
		&SearchKeyword{}, &Event{}, &CarouselSlide{},
	))
	return db
}

func strPtr(v string) *string { return &v }

func uintPtr(v uint64) *uint64 { return &v }

func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	categories := []Category{
		{ID: 1, Name: "相声", SortOrder: 1},
		{ID: 2, Name: "评书", SortOrder: 2},
	}
	require.NoError(t, db.Create(&categories).Error)

	representatives := []Representative{
		{ID: 1, CategoryID: 1, Name: "侯宝林", CreatedAt: base},
		{ID: 2, CategoryID: 1, Name: "马三立", CreatedAt: base.Add(time.Hour)},
	}
	require.NoError(t, db.Create(&representatives).Error)

	videos := []Video{
		{ID: 1, CategoryID: uintPtr(1), Title: "报菜名", Performer: strPtr("侯宝林"), ViewsCount: 500, LikesCount: 10, Tags: datatypes.JSON(`["相声","经典"]`), CreatedAt: base},
		{ID: 2, CategoryID: uintPtr(1), Title: "夜行记", ViewsCount: 300, LikesCount: 40, IsFeatured: true, CreatedAt: base.Add(time.Hour)},
		{ID: 3, CategoryID: uintPtr(1), Title: "关公战秦琼", ViewsCount: 800, LikesCount: 5, Tags: datatypes.JSON(`["经典"]`), CreatedAt: base.Add(2 * time.Hour)},
		{ID: 4, CategoryID: uintPtr(1), Title: "扒马褂", ViewsCount: 100, CreatedAt: base.Add(3 * time.Hour)},
		{ID: 5, CategoryID: uintPtr(1), Title: "黄鹤楼", ViewsCount: 200, CreatedAt: base.Add(4 * time.Hour)},
		{ID: 6, CategoryID: uintPtr(2), Title: "三国演义选段", Description: strPtr("经典评书选段"), ViewsCount: 50, CreatedAt: base.Add(5 * time.Hour)},
	}
	require.NoError(t, db.Create(&videos).Error)
}

func TestGetCategoryVideosOrdersByViews(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)

	videos := s.GetCategoryVideos(context.Background(), 1, 3)
	require.Len(t, videos, 3)
	assert.Equal(t, uint64(3), videos[0].ID)
	assert.Equal(t, uint64(1), videos[1].ID)
	assert.Equal(t, uint64(2), videos[2].ID)
}

func TestGetCategoryStats(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)

	stats := s.GetCategoryStats(context.Background(), 1)
	assert.Equal(t, int64(5), stats.VideoCount)
	assert.Equal(t, int64(2), stats.RepresentativeCount)
	assert.Equal(t, int64(1900), stats.TotalViews)

	assert.Equal(t, CategoryStats{}, s.GetCategoryStats(context.Background(), 99))
}

func TestGetCategoryStatsAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)

	require.NoError(t, db.Migrator().DropTable(&Video{}))

	stats := s.GetCategoryStats(context.Background(), 1)
	assert.Equal(t, CategoryStats{}, stats)
}

func TestListVideosPagination(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)

	page := s.ListVideos(context.Background(), ListVideosOptions{CategoryID: 1, Page: 2, PageSize: 2})
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Videos, 2)
}

func TestListVideosSortWhitelist(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)

	page := s.ListVideos(context.Background(), ListVideosOptions{CategoryID: 1, SortBy: "views_count"})
	require.NotEmpty(t, page.Videos)
	assert.Equal(t, uint64(3), page.Videos[0].ID)

	// 未知排序列回落到 created_at DESC，而不是拼进 SQL。
	page = s.ListVideos(context.Background(), ListVideosOptions{CategoryID: 1, SortBy: "views_count; DROP TABLE videos"})
	require.Len(t, page.Videos, 5)
	assert.Equal(t, uint64(5), page.Videos[0].ID)
}

func TestListVideosFeaturedFilter(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)

	page := s.ListVideos(context.Background(), ListVideosOptions{Featured: true})
	require.Len(t, page.Videos, 1)
	assert.Equal(t, uint64(2), page.Videos[0].ID)
}

func TestSearchVideos(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)

	page := s.SearchVideos(context.Background(), "经典", SearchOptions{})
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Videos, 1)
	assert.Equal(t, uint64(6), page.Videos[0].ID)

	page = s.SearchVideos(context.Background(), "侯宝林", SearchOptions{})
	require.Len(t, page.Videos, 1)
	assert.Equal(t, uint64(1), page.Videos[0].ID)

	page = s.SearchVideos(context.Background(), "   ", SearchOptions{})
	assert.Equal(t, int64(6), page.Total)

	page = s.SearchVideos(context.Background(), "", SearchOptions{CategoryID: 2})
	assert.Equal(t, int64(1), page.Total)
}

func TestIncrementVideoViews(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)

	assert.True(t, s.IncrementVideoViews(context.Background(), 1))
	assert.True(t, s.IncrementVideoViews(context.Background(), 1))
	assert.False(t, s.IncrementVideoViews(context.Background(), 999))

	var video Video
	require.NoError(t, db.First(&video, "id = ?", 1).Error)
	assert.Equal(t, uint64(502), video.ViewsCount)
}

func TestRecordSearchKeyword(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)
	ctx := context.Background()

	s.RecordSearchKeyword(ctx, "   ")
	var count int64
	require.NoError(t, db.Model(&SearchKeyword{}).Count(&count).Error)
	assert.Zero(t, count)

	s.RecordSearchKeyword(ctx, " 相声 ")
	s.RecordSearchKeyword(ctx, "相声")

	var records []SearchKeyword
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, "相声", records[0].Keyword)
	assert.Equal(t, uint64(2), records[0].SearchCount)
}

func TestGetPopularKeywords(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)
	ctx := context.Background()

	s.RecordSearchKeyword(ctx, "相声")
	s.RecordSearchKeyword(ctx, "相声")
	s.RecordSearchKeyword(ctx, "评书")

	stats := s.GetPopularKeywords(ctx, 1)
	require.Len(t, stats, 1)
	assert.Equal(t, "相声", stats[0].Keyword)
	assert.Equal(t, uint64(2), stats[0].SearchCount)
}

func TestGetRelatedVideosByTags(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)

	videos := s.GetRelatedVideosByTags(context.Background(), []string{"经典"}, 10)
	require.Len(t, videos, 2)
	assert.Equal(t, uint64(3), videos[0].ID)
	assert.Equal(t, uint64(1), videos[1].ID)

	assert.Empty(t, s.GetRelatedVideosByTags(context.Background(), nil, 10))
	assert.Empty(t, s.GetRelatedVideosByTags(context.Background(), []string{" ", ""}, 10))
}

func TestGetCategoryDetailWithRepresentatives(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)

	detail := s.GetCategoryDetailWithRepresentatives(context.Background(), 1)
	require.NotNil(t, detail)
	assert.Equal(t, "相声", detail.Category.Name)
	require.Len(t, detail.Representatives, 2)
	assert.Equal(t, "侯宝林", detail.Representatives[0].Name)
	assert.Len(t, detail.Videos, 4)

	// 没有代表人物与视频的门类返回空切片而非 nil。
	detail = s.GetCategoryDetailWithRepresentatives(context.Background(), 2)
	require.NotNil(t, detail)
	assert.NotNil(t, detail.Representatives)
	assert.Len(t, detail.Representatives, 0)

	assert.Nil(t, s.GetCategoryDetailWithRepresentatives(context.Background(), 42))
}

func TestGetVideoDetail(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)

	detail := s.GetVideoDetail(context.Background(), 1)
	require.NotNil(t, detail)
	assert.Equal(t, "报菜名", detail.Title)
	assert.Equal(t, "相声", detail.CategoryName)

	assert.Nil(t, s.GetVideoDetail(context.Background(), 999))
}

func TestCreateVideoAndSetCover(t *testing.T) {
	db := newTestDB(t)
	seedCatalog(t, db)
	s := NewService(db)
	ctx := context.Background()

	created, err := s.CreateVideo(ctx, Video{CategoryID: uintPtr(2), Title: "隋唐演义选段"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	require.NoError(t, s.SetVideoCover(ctx, created.ID, "covers/videos/7/a.png"))

	var video Video
	require.NoError(t, db.First(&video, "id = ?", created.ID).Error)
	require.NotNil(t, video.ThumbnailURL)
	assert.Equal(t, "covers/videos/7/a.png", *video.ThumbnailURL)

	assert.ErrorIs(t, s.SetVideoCover(ctx, 999, "covers/x.png"), gorm.ErrRecordNotFound)
}

func TestGetCarouselSlidesFiltersInactive(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)

	slides := []CarouselSlide{
		{ID: 1, Title: "曲艺荟萃", ImageURL: "a.jpg", IsActive: true, SortOrder: 2},
		{ID: 2, Title: "名家名段", ImageURL: "b.jpg", IsActive: true, SortOrder: 1},
		{ID: 3, Title: "下线位", ImageURL: "c.jpg", IsActive: false, SortOrder: 0},
	}
	require.NoError(t, db.Create(&slides).Error)

	got := s.GetCarouselSlides(context.Background())
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].ID)
	assert.Equal(t, uint64(1), got[1].ID)

	var stored CarouselSlide
	require.NoError(t, db.First(&stored, "id = ?", 3).Error)
	assert.False(t, stored.IsActive)
}

func TestGetRecentEventsOrdering(t *testing.T) {
	db := newTestDB(t)
	s := NewService(db)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: 1, Title: "茶馆专场", EventDate: day, SortOrder: 2},
		{ID: 2, Title: "名家讲座", EventDate: day, SortOrder: 1},
		{ID: 3, Title: "新春晚会", EventDate: day.AddDate(0, 1, 0), SortOrder: 9},
	}
	require.NoError(t, db.Create(&events).Error)

	got := s.GetRecentEvents(context.Background(), 10)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].ID)
	assert.Equal(t, uint64(2), got[1].ID)
	assert.Equal(t, uint64(1), got[2].ID)
}
