package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	defaultCategoryVideoLimit = 4
	defaultPageSize           = 12
	defaultKeywordLimit       = 10
	defaultRecommendedLimit   = 6
	defaultEventLimit         = 6
	defaultRelatedLimit       = 4
)

// Service 聚合曲艺门类与视频的全部读写操作。
// 读路径吞掉远端错误并退化为安全默认值，调用方无法区分“无数据”与“查询失败”。
type Service struct {
	db *gorm.DB
}

// NewService 基于给定的数据库句柄构建目录服务。
func NewService(db *gorm.DB) *Service {
	if db == nil {
		return nil
	}
	return &Service{db: db}
}

// CategoryDetail 聚合门类、代表人物与热门视频。
type CategoryDetail struct {
	Category        Category         `json:"category"`
	Representatives []Representative `json:"representatives"`
	Videos          []Video          `json:"videos"`
}

// CategoryStats 是门类的三项统计汇总。
type CategoryStats struct {
	VideoCount          int64 `json:"video_count"`
	RepresentativeCount int64 `json:"representative_count"`
	TotalViews          int64 `json:"total_views"`
}

// ListVideosOptions 控制视频列表的筛选、排序与分页。
type ListVideosOptions struct {
	CategoryID uint64
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
	Featured   bool
}

// SearchOptions 控制搜索结果的分页与门类过滤。
type SearchOptions struct {
	Page       int
	PageSize   int
	CategoryID uint64
}

// VideoPage 是一页视频结果及其分页元数据。
type VideoPage struct {
	Videos     []Video `json:"videos"`
	Total      int64   `json:"total"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	TotalPages int     `json:"total_pages"`
}

// KeywordStat 表示一个热门搜索词及其次数。
type KeywordStat struct {
	Keyword     string `json:"keyword"`
	SearchCount uint64 `json:"search_count"`
}

// GetCarouselSlides 返回启用中的轮播图，按 sort_order 升序。
func (s *Service) GetCarouselSlides(ctx context.Context) []CarouselSlide {
	if s == nil || s.db == nil {
		return []CarouselSlide{}
	}

	slides := make([]CarouselSlide, 0)
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC").
		Find(&slides).Error
	if err != nil {
		log.Printf("catalog: list carousel slides: %v", err)
		return []CarouselSlide{}
	}
	return slides
}

// ListCategories 返回全部门类，按 sort_order 升序，失败时返回空列表。
func (s *Service) ListCategories(ctx context.Context) []Category {
	if s == nil || s.db == nil {
		return []Category{}
	}

	categories := make([]Category, 0)
	err := s.db.WithContext(ctx).
		Order("sort_order ASC").
		Find(&categories).Error
	if err != nil {
		log.Printf("catalog: list categories: %v", err)
		return []Category{}
	}
	return categories
}

// GetCategoryDetail 返回单个门类，未找到或出错时返回 nil。
func (s *Service) GetCategoryDetail(ctx context.Context, categoryID uint64) *Category {
	if s == nil || s.db == nil || categoryID == 0 {
		return nil
	}

	var category Category
	err := s.db.WithContext(ctx).First(&category, "id = ?", categoryID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("catalog: load category %d: %v", categoryID, err)
		}
		return nil
	}
	return &category
}

// GetCategoryDetailWithRepresentatives 聚合门类、代表人物（按创建时间升序）
// 与观看量最高的四条视频。任一子查询失败则整体返回 nil。
func (s *Service) GetCategoryDetailWithRepresentatives(ctx context.Context, categoryID uint64) *CategoryDetail {
	if s == nil || s.db == nil || categoryID == 0 {
		return nil
	}

	var category Category
	if err := s.db.WithContext(ctx).First(&category, "id = ?", categoryID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("catalog: load category %d: %v", categoryID, err)
		}
		return nil
	}

	representatives := make([]Representative, 0)
	if err := s.db.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("created_at ASC").
		Find(&representatives).Error; err != nil {
		log.Printf("catalog: load representatives for category %d: %v", categoryID, err)
		return nil
	}

	videos := make([]Video, 0)
	if err := s.db.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("views_count DESC").
		Limit(defaultCategoryVideoLimit).
		Find(&videos).Error; err != nil {
		log.Printf("catalog: load videos for category %d: %v", categoryID, err)
		return nil
	}

	return &CategoryDetail{
		Category:        category,
		Representatives: representatives,
		Videos:          videos,
	}
}

// GetCategoryRepresentatives 返回门类下的代表人物，按创建时间升序。
func (s *Service) GetCategoryRepresentatives(ctx context.Context, categoryID uint64) []Representative {
	if s == nil || s.db == nil || categoryID == 0 {
		return []Representative{}
	}

	representatives := make([]Representative, 0)
	err := s.db.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("created_at ASC").
		Find(&representatives).Error
	if err != nil {
		log.Printf("catalog: list representatives for category %d: %v", categoryID, err)
		return []Representative{}
	}
	return representatives
}

// GetCategoryVideos 返回门类下观看量最高的若干视频。
func (s *Service) GetCategoryVideos(ctx context.Context, categoryID uint64, limit int) []Video {
	if s == nil || s.db == nil || categoryID == 0 {
		return []Video{}
	}
	if limit <= 0 {
		limit = defaultCategoryVideoLimit
	}

	videos := make([]Video, 0, limit)
	err := s.db.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("views_count DESC").
		Limit(limit).
		Find(&videos).Error
	if err != nil {
		log.Printf("catalog: list videos for category %d: %v", categoryID, err)
		return []Video{}
	}
	return videos
}

// GetCategoryStats 汇总门类的视频数、代表人物数与总观看量。
// 三项统计要么全部成功，要么整体回退为全零，不返回部分结果。
func (s *Service) GetCategoryStats(ctx context.Context, categoryID uint64) CategoryStats {
	if s == nil || s.db == nil || categoryID == 0 {
		return CategoryStats{}
	}

	var videoCount int64
	if err := s.db.WithContext(ctx).
		Model(&Video{}).
		Where("category_id = ?", categoryID).
		Count(&videoCount).Error; err != nil {
		log.Printf("catalog: count videos for category %d: %v", categoryID, err)
		return CategoryStats{}
	}

	var representativeCount int64
	if err := s.db.WithContext(ctx).
		Model(&Representative{}).
		Where("category_id = ?", categoryID).
		Count(&representativeCount).Error; err != nil {
		log.Printf("catalog: count representatives for category %d: %v", categoryID, err)
		return CategoryStats{}
	}

	var totalViews int64
	if err := s.db.WithContext(ctx).
		Model(&Video{}).
		Where("category_id = ?", categoryID).
		Select("COALESCE(SUM(views_count), 0)").
		Scan(&totalViews).Error; err != nil {
		log.Printf("catalog: sum views for category %d: %v", categoryID, err)
		return CategoryStats{}
	}

	return CategoryStats{
		VideoCount:          videoCount,
		RepresentativeCount: representativeCount,
		TotalViews:          totalViews,
	}
}

// sortableVideoColumns 限定列表排序可用的列，未知值回落到 created_at。
var sortableVideoColumns = map[string]string{
	"created_at":  "created_at",
	"views_count": "views_count",
	"likes_count": "likes_count",
	"title":       "title",
}

// ListVideos 返回一页视频，携带总数与总页数。失败时返回零结果，
// 但保留请求中的页码与页大小。
func (s *Service) ListVideos(ctx context.Context, opts ListVideosOptions) VideoPage {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	empty := VideoPage{Videos: []Video{}, Page: page, PageSize: pageSize}
	if s == nil || s.db == nil {
		return empty
	}

	column, ok := sortableVideoColumns[strings.ToLower(strings.TrimSpace(opts.SortBy))]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(strings.TrimSpace(opts.SortOrder), "asc") {
		direction = "ASC"
	}

	query := s.db.WithContext(ctx).Model(&Video{})
	if opts.CategoryID != 0 {
		query = query.Where("category_id = ?", opts.CategoryID)
	}
	if opts.Featured {
		query = query.Where("is_featured = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		log.Printf("catalog: count videos: %v", err)
		return empty
	}

	videos := make([]Video, 0, pageSize)
	err := query.
		Order(column + " " + direction).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&videos).Error
	if err != nil {
		log.Printf("catalog: list videos: %v", err)
		return empty
	}

	return VideoPage{
		Videos:     videos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

// GetVideoDetail 返回带门类名称的视频详情，未找到或出错时返回 nil。
func (s *Service) GetVideoDetail(ctx context.Context, videoID uint64) *VideoDetail {
	if s == nil || s.db == nil || videoID == 0 {
		return nil
	}

	var video Video
	if err := s.db.WithContext(ctx).First(&video, "id = ?", videoID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("catalog: load video %d: %v", videoID, err)
		}
		return nil
	}

	detail := VideoDetail{Video: video}
	if video.CategoryID != nil {
		var category Category
		if err := s.db.WithContext(ctx).First(&category, "id = ?", *video.CategoryID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("catalog: load category for video %d: %v", videoID, err)
				return nil
			}
		} else {
			detail.CategoryName = category.Name
		}
	}
	return &detail
}

// SearchVideos 在标题、简介与表演者上做不区分大小写的子串匹配，
// 空白关键词不施加文本过滤，结果按创建时间倒序分页。
func (s *Service) SearchVideos(ctx context.Context, keyword string, opts SearchOptions) VideoPage {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	empty := VideoPage{Videos: []Video{}, Page: page, PageSize: pageSize}
	if s == nil || s.db == nil {
		return empty
	}

	query := s.db.WithContext(ctx).Model(&Video{})
	if trimmed := strings.TrimSpace(keyword); trimmed != "" {
		pattern := "%" + strings.ToLower(trimmed) + "%"
		query = query.Where(
			s.db.Where("LOWER(title) LIKE ?", pattern).
				Or("LOWER(description) LIKE ?", pattern).
				Or("LOWER(performer) LIKE ?", pattern),
		)
	}
	if opts.CategoryID != 0 {
		query = query.Where("category_id = ?", opts.CategoryID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		log.Printf("catalog: count search results: %v", err)
		return empty
	}

	videos := make([]Video, 0, pageSize)
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&videos).Error
	if err != nil {
		log.Printf("catalog: search videos: %v", err)
		return empty
	}

	return VideoPage{
		Videos:     videos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

// IncrementVideoViews 以单条原子 UPDATE 增加观看计数，结果只体现在返回值上。
func (s *Service) IncrementVideoViews(ctx context.Context, videoID uint64) bool {
	if s == nil || s.db == nil || videoID == 0 {
		return false
	}

	result := s.db.WithContext(ctx).
		Model(&Video{}).
		Where("id = ?", videoID).
		UpdateColumn("views_count", gorm.Expr("views_count + 1"))
	if result.Error != nil {
		log.Printf("catalog: increment views for video %d: %v", videoID, result.Error)
		return false
	}
	return result.RowsAffected > 0
}

// RecordSearchKeyword 记录一次搜索：已有词累加计数并刷新时间，新词插入。
// 空白关键词不落库。并发首次搜索同一新词时读-改-写会插出重复行，
// 与线上库的行为保持一致，这里不做去重。
func (s *Service) RecordSearchKeyword(ctx context.Context, keyword string) {
	if s == nil || s.db == nil {
		return
	}
	trimmed := strings.TrimSpace(keyword)
	if trimmed == "" {
		return
	}

	now := time.Now().UTC()

	var existing SearchKeyword
	err := s.db.WithContext(ctx).
		Where("keyword = ?", trimmed).
		Take(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"search_count":  gorm.Expr("search_count + 1"),
			"last_searched": now,
		}
		if err := s.db.WithContext(ctx).
			Model(&SearchKeyword{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error; err != nil {
			log.Printf("catalog: bump search keyword %q: %v", trimmed, err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		record := SearchKeyword{Keyword: trimmed, SearchCount: 1, LastSearched: now}
		if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
			log.Printf("catalog: insert search keyword %q: %v", trimmed, err)
		}
	default:
		log.Printf("catalog: lookup search keyword %q: %v", trimmed, err)
	}
}

// GetPopularKeywords 返回搜索次数最多的关键词。
func (s *Service) GetPopularKeywords(ctx context.Context, limit int) []KeywordStat {
	if s == nil || s.db == nil {
		return []KeywordStat{}
	}
	if limit <= 0 {
		limit = defaultKeywordLimit
	}

	stats := make([]KeywordStat, 0, limit)
	err := s.db.WithContext(ctx).
		Model(&SearchKeyword{}).
		Select("keyword, search_count").
		Order("search_count DESC").
		Limit(limit).
		Scan(&stats).Error
	if err != nil {
		log.Printf("catalog: list popular keywords: %v", err)
		return []KeywordStat{}
	}
	return stats
}

// GetRecommendedVideos 按观看量、点赞量倒序返回推荐视频。
func (s *Service) GetRecommendedVideos(ctx context.Context, limit int) []Video {
	if s == nil || s.db == nil {
		return []Video{}
	}
	if limit <= 0 {
		limit = defaultRecommendedLimit
	}

	videos := make([]Video, 0, limit)
	err := s.db.WithContext(ctx).
		Order("views_count DESC").
		Order("likes_count DESC").
		Limit(limit).
		Find(&videos).Error
	if err != nil {
		log.Printf("catalog: list recommended videos: %v", err)
		return []Video{}
	}
	return videos
}

// GetRecentEvents 返回近期动态，按活动日期倒序、sort_order 升序。
func (s *Service) GetRecentEvents(ctx context.Context, limit int) []Event {
	if s == nil || s.db == nil {
		return []Event{}
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}

	events := make([]Event, 0, limit)
	err := s.db.WithContext(ctx).
		Order("event_date DESC").
		Order("sort_order ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		log.Printf("catalog: list recent events: %v", err)
		return []Event{}
	}
	return events
}

// CreateVideo 落库一条新视频。写路径直接向调用方抛出错误。
func (s *Service) CreateVideo(ctx context.Context, video Video) (*Video, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("catalog: service not initialized")
	}

	if err := s.db.WithContext(ctx).Create(&video).Error; err != nil {
		return nil, fmt.Errorf("catalog: create video: %w", err)
	}
	return &video, nil
}

// SetVideoCover 更新视频的封面存储键。
func (s *Service) SetVideoCover(ctx context.Context, videoID uint64, stored string) error {
	if s == nil || s.db == nil {
		return errors.New("catalog: service not initialized")
	}
	if videoID == 0 {
		return errors.New("catalog: video id is required")
	}

	result := s.db.WithContext(ctx).
		Model(&Video{}).
		Where("id = ?", videoID).
		Update("thumbnail_url", strings.TrimSpace(stored))
	if result.Error != nil {
		return fmt.Errorf("catalog: set video cover: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetRelatedVideosByTags 返回标签集合有交集的视频，输入为空时直接返回空列表。
func (s *Service) GetRelatedVideosByTags(ctx context.Context, tags []string, limit int) []Video {
	if s == nil || s.db == nil || len(tags) == 0 {
		return []Video{}
	}
	if limit <= 0 {
		limit = defaultRelatedLimit
	}

	var cond *gorm.DB
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		// tags 列是 JSON 字符串数组，按带引号的成员子串匹配交集。
		pattern := `%"` + strings.ReplaceAll(trimmed, `"`, ``) + `"%`
		if cond == nil {
			cond = s.db.Where("tags LIKE ?", pattern)
		} else {
			cond = cond.Or("tags LIKE ?", pattern)
		}
	}
	if cond == nil {
		return []Video{}
	}

	videos := make([]Video, 0, limit)
	err := s.db.WithContext(ctx).
		Where(cond).
		Order("views_count DESC").
		Limit(limit).
		Find(&videos).Error
	if err != nil {
		log.Printf("catalog: list related videos by tags: %v", err)
		return []Video{}
	}
	return videos
}
