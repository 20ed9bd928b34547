package catalog

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"quyi_back/authorization"
	filestore "quyi_back/storage"
)

// Module 聚合了目录模块的服务与封面存储依赖。
type Module struct {
	s      *Service
	covers *filestore.CoverStorage
}

const coverURLExpiry = 15 * time.Minute

// RegisterRoutes 初始化目录模块并注册全部相关路由。
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard) (*Module, error) {
	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&Category{}, &Representative{}, &Video{},
		&SearchKeyword{}, &Event{}, &CarouselSlide{},
	); err != nil {
		return nil, fmt.Errorf("catalog: migrate models: %w", err)
	}

	pingWithRetry(db)

	covers, err := filestore.NewCoverStorageFromEnv()
	if err != nil {
		return nil, err
	}

	module := &Module{s: NewService(db), covers: covers}

	router.GET("/carousel", module.handleCarousel)
	router.GET("/events", module.handleRecentEvents)
	router.GET("/recommendations", module.handleRecommendedVideos)

	categories := router.Group("/categories")
	categories.GET("", module.handleListCategories)
	categories.GET("/:id", module.handleCategoryDetail)
	categories.GET("/:id/full", module.handleCategoryFull)
	categories.GET("/:id/representatives", module.handleCategoryRepresentatives)
	categories.GET("/:id/videos", module.handleCategoryVideos)
	categories.GET("/:id/stats", module.handleCategoryStats)

	videos := router.Group("/videos")
	videos.GET("", module.handleListVideos)
	videos.GET("/:id", module.handleVideoDetail)
	videos.GET("/:id/related", module.handleRelatedVideos)
	videos.POST("/:id/views", module.handleIncrementViews)

	search := router.Group("/search")
	search.GET("/videos", module.handleSearchVideos)
	search.GET("/keywords", module.handlePopularKeywords)

	adminGroup := router.Group("/admin/videos")
	if guard != nil {
		adminGroup.Use(guard.RequireAuthenticated(), guard.RequireRole("admin"))
	} else {
		adminGroup.Use(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization middleware missing"})
		})
	}
	adminGroup.POST("", module.handleCreateVideo)
	adminGroup.PUT("/:id/cover", module.handleReplaceCover)
	adminGroup.POST("/cover-bundle", module.handleImportCoverBundle)

	return module, nil
}

// parseUintID 解析路径中的数字 ID。
func parseUintID(raw string) (uint64, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return value, nil
}

// parseLimitQuery 解析 limit 查询参数，空值或非法值回落到默认。
func parseLimitQuery(raw string, fallback int) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// handleCarousel godoc
// @Summary 获取轮播图
// @Tags Catalog
// @Produce json
// @Success 200 {object} map[string]interface{} "轮播图列表"
func (m *Module) handleCarousel(c *gin.Context) {
	slides := m.s.GetCarouselSlides(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"slides": slides})
}

// handleListCategories godoc
// @Summary 获取全部曲艺门类
// @Tags Catalog
// @Produce json
// @Success 200 {object} map[string]interface{} "门类列表"
func (m *Module) handleListCategories(c *gin.Context) {
	categories := m.s.ListCategories(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// handleCategoryDetail godoc
// @Summary 获取门类详情
// @Tags Catalog
// @Produce json
// @Param id path int true "门类ID"
// @Success 200 {object} map[string]interface{} "门类详情"
// @Failure 404 {object} map[string]string "未找到"
func (m *Module) handleCategoryDetail(c *gin.Context) {
	id, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category id"})
		return
	}

	category := m.s.GetCategoryDetail(c.Request.Context(), id)
	if category == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category})
}

// handleCategoryFull godoc
// @Summary 获取门类完整数据
// @Description 聚合门类信息、代表人物与热门视频
// @Tags Catalog
// @Produce json
// @Param id path int true "门类ID"
// @Success 200 {object} map[string]interface{} "聚合数据"
// @Failure 404 {object} map[string]string "未找到"
func (m *Module) handleCategoryFull(c *gin.Context) {
	id, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category id"})
		return
	}

	detail := m.s.GetCategoryDetailWithRepresentatives(c.Request.Context(), id)
	if detail == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// handleCategoryRepresentatives godoc
// @Summary 获取门类代表人物
// @Tags Catalog
// @Produce json
// @Param id path int true "门类ID"
// @Success 200 {object} map[string]interface{} "代表人物列表"
func (m *Module) handleCategoryRepresentatives(c *gin.Context) {
	id, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category id"})
		return
	}

	representatives := m.s.GetCategoryRepresentatives(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{"representatives": representatives})
}

// handleCategoryVideos godoc
// @Summary 获取门类热门视频
// @Tags Catalog
// @Produce json
// @Param id path int true "门类ID"
// @Param limit query int false "返回数量，默认 4"
// @Success 200 {object} map[string]interface{} "视频列表"
func (m *Module) handleCategoryVideos(c *gin.Context) {
	id, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category id"})
		return
	}

	limit := parseLimitQuery(c.Query("limit"), defaultCategoryVideoLimit)
	videos := m.s.GetCategoryVideos(c.Request.Context(), id, limit)
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

// handleCategoryStats godoc
// @Summary 获取门类统计数据
// @Tags Catalog
// @Produce json
// @Param id path int true "门类ID"
// @Success 200 {object} map[string]interface{} "统计数据"
func (m *Module) handleCategoryStats(c *gin.Context) {
	id, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category id"})
		return
	}

	stats := m.s.GetCategoryStats(c.Request.Context(), id)
	c.JSON(http.StatusOK, stats)
}

// handleListVideos godoc
// @Summary 获取视频列表
// @Tags Catalog
// @Produce json
// @Param category_id query int false "门类筛选"
// @Param page query int false "页码，默认 1"
// @Param page_size query int false "页大小，默认 12"
// @Param sort_by query string false "排序列，默认 created_at"
// @Param sort_order query string false "排序方向，默认 desc"
// @Param featured query bool false "只看精选"
// @Success 200 {object} map[string]interface{} "分页视频列表"
func (m *Module) handleListVideos(c *gin.Context) {
	opts := ListVideosOptions{
		Page:      parseLimitQuery(c.Query("page"), 1),
		PageSize:  parseLimitQuery(c.Query("page_size"), defaultPageSize),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := strings.TrimSpace(c.Query("category_id")); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			opts.CategoryID = id
		}
	}
	if raw := strings.TrimSpace(c.Query("featured")); raw != "" {
		if featured, err := strconv.ParseBool(raw); err == nil {
			opts.Featured = featured
		}
	}

	page := m.s.ListVideos(c.Request.Context(), opts)
	c.JSON(http.StatusOK, page)
}

// handleVideoDetail godoc
// @Summary 获取视频详情
// @Tags Catalog
// @Produce json
// @Param id path int true "视频ID"
// @Success 200 {object} map[string]interface{} "视频详情"
// @Failure 404 {object} map[string]string "未找到"
func (m *Module) handleVideoDetail(c *gin.Context) {
	id, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	detail := m.s.GetVideoDetail(c.Request.Context(), id)
	if detail == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}

	m.applyCoverURL(c, &detail.Video)
	c.JSON(http.StatusOK, gin.H{"video": detail})
}

// handleRelatedVideos godoc
// @Summary 获取相关视频
// @Description 按当前视频的标签集合做交集匹配
// @Tags Catalog
// @Produce json
// @Param id path int true "视频ID"
// @Param limit query int false "返回数量，默认 4"
// @Success 200 {object} map[string]interface{} "相关视频列表"
func (m *Module) handleRelatedVideos(c *gin.Context) {
	id, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	limit := parseLimitQuery(c.Query("limit"), defaultRelatedLimit)

	detail := m.s.GetVideoDetail(c.Request.Context(), id)
	if detail == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}

	var tags []string
	if len(detail.Tags) > 0 {
		_ = json.Unmarshal(detail.Tags, &tags)
	}

	// 多取一条以剔除视频本身。
	related := m.s.GetRelatedVideosByTags(c.Request.Context(), tags, limit+1)
	filtered := make([]Video, 0, limit)
	for _, video := range related {
		if video.ID == id {
			continue
		}
		filtered = append(filtered, video)
		if len(filtered) == limit {
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{"videos": filtered})
}

// handleIncrementViews godoc
// @Summary 增加视频观看次数
// @Tags Catalog
// @Produce json
// @Param id path int true "视频ID"
// @Success 200 {object} map[string]interface{} "是否成功"
func (m *Module) handleIncrementViews(c *gin.Context) {
	id, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	ok := m.s.IncrementVideoViews(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{"success": ok})
}

// handleSearchVideos godoc
// @Summary 搜索视频
// @Description 标题、简介、表演者子串匹配，空关键词返回全量分页结果
// @Tags Catalog
// @Produce json
// @Param q query string false "搜索关键词"
// @Param page query int false "页码"
// @Param page_size query int false "页大小"
// @Param category_id query int false "门类筛选"
// @Success 200 {object} map[string]interface{} "分页搜索结果"
func (m *Module) handleSearchVideos(c *gin.Context) {
	keyword := c.Query("q")
	opts := SearchOptions{
		Page:     parseLimitQuery(c.Query("page"), 1),
		PageSize: parseLimitQuery(c.Query("page_size"), defaultPageSize),
	}
	if raw := strings.TrimSpace(c.Query("category_id")); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			opts.CategoryID = id
		}
	}

	m.s.RecordSearchKeyword(c.Request.Context(), keyword)
	page := m.s.SearchVideos(c.Request.Context(), keyword, opts)
	c.JSON(http.StatusOK, page)
}

// handlePopularKeywords godoc
// @Summary 获取热门搜索词
// @Tags Catalog
// @Produce json
// @Param limit query int false "返回数量，默认 10"
// @Success 200 {object} map[string]interface{} "热门搜索词列表"
func (m *Module) handlePopularKeywords(c *gin.Context) {
	limit := parseLimitQuery(c.Query("limit"), defaultKeywordLimit)
	keywords := m.s.GetPopularKeywords(c.Request.Context(), limit)
	c.JSON(http.StatusOK, gin.H{"keywords": keywords})
}

// handleRecommendedVideos godoc
// @Summary 获取推荐视频
// @Tags Catalog
// @Produce json
// @Param limit query int false "返回数量，默认 6"
// @Success 200 {object} map[string]interface{} "推荐视频列表"
func (m *Module) handleRecommendedVideos(c *gin.Context) {
	limit := parseLimitQuery(c.Query("limit"), defaultRecommendedLimit)
	videos := m.s.GetRecommendedVideos(c.Request.Context(), limit)
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

// handleRecentEvents godoc
// @Summary 获取近期曲艺动态
// @Tags Catalog
// @Produce json
// @Param limit query int false "返回数量，默认 6"
// @Success 200 {object} map[string]interface{} "动态列表"
func (m *Module) handleRecentEvents(c *gin.Context) {
	limit := parseLimitQuery(c.Query("limit"), defaultEventLimit)
	events := m.s.GetRecentEvents(c.Request.Context(), limit)
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// applyCoverURL 对存储键形式的封面地址生成带时效的签名 URL。
func (m *Module) applyCoverURL(c *gin.Context, video *Video) {
	if m == nil || m.covers == nil || video == nil || video.ThumbnailURL == nil {
		return
	}

	stored := strings.TrimSpace(*video.ThumbnailURL)
	if stored == "" || strings.HasPrefix(stored, "http://") || strings.HasPrefix(stored, "https://") {
		return
	}

	signed, err := m.covers.PresignedURL(c.Request.Context(), stored, coverURLExpiry)
	if err != nil {
		log.Printf("catalog: presign cover url: %v", err)
		return
	}
	*video.ThumbnailURL = signed
}

type createVideoRequest struct {
	Title       string   `form:"title"`
	Description string   `form:"description"`
	Performer   string   `form:"performer"`
	Duration    string   `form:"duration"`
	VideoURL    string   `form:"video_url"`
	CategoryID  uint64   `form:"category_id"`
	Tags        []string `form:"tags"`
	IsFeatured  bool     `form:"is_featured"`
}

// handleCreateVideo godoc
// @Summary 创建视频（管理员）
// @Tags Catalog
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "标题"
// @Param cover formData file false "封面图片"
// @Success 201 {object} map[string]interface{} "创建成功的视频"
// @Failure 400 {object} map[string]string "请求参数错误"
func (m *Module) handleCreateVideo(c *gin.Context) {
	var req createVideoRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	video := Video{Title: title, IsFeatured: req.IsFeatured}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		video.Description = &desc
	}
	if performer := strings.TrimSpace(req.Performer); performer != "" {
		video.Performer = &performer
	}
	if duration := strings.TrimSpace(req.Duration); duration != "" {
		video.Duration = &duration
	}
	if videoURL := strings.TrimSpace(req.VideoURL); videoURL != "" {
		video.VideoURL = &videoURL
	}
	if req.CategoryID != 0 {
		categoryID := req.CategoryID
		video.CategoryID = &categoryID
	}
	if len(req.Tags) > 0 {
		if data, err := json.Marshal(req.Tags); err == nil {
			video.Tags = datatypes.JSON(data)
		}
	}

	ctx := c.Request.Context()
	video.CreatedAt = time.Now().UTC()

	created, err := m.s.CreateVideo(ctx, video)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create video", "details": err.Error()})
		return
	}

	if cover, coverErr := c.FormFile("cover"); coverErr == nil && cover != nil {
		if m.covers == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cover storage not configured"})
			return
		}
		stored, uploadErr := m.covers.Upload(ctx, cover, "videos", fmt.Sprintf("%d", created.ID))
		if uploadErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload cover", "details": uploadErr.Error()})
			return
		}
		if err := m.s.SetVideoCover(ctx, created.ID, stored); err != nil {
			_ = m.covers.Remove(ctx, stored)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist cover", "details": err.Error()})
			return
		}
		created.ThumbnailURL = &stored
	}

	m.applyCoverURL(c, created)
	c.JSON(http.StatusCreated, gin.H{"video": created})
}

// handleReplaceCover godoc
// @Summary 替换视频封面（管理员）
// @Tags Catalog
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "视频ID"
// @Param cover formData file true "封面图片"
// @Success 200 {object} map[string]interface{} "更新后的视频"
func (m *Module) handleReplaceCover(c *gin.Context) {
	if m.covers == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cover storage not configured"})
		return
	}

	id, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	cover, err := c.FormFile("cover")
	if err != nil || cover == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cover file is required"})
		return
	}

	ctx := c.Request.Context()
	detail := m.s.GetVideoDetail(ctx, id)
	if detail == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}

	stored, err := m.covers.Upload(ctx, cover, "videos", fmt.Sprintf("%d", id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload cover", "details": err.Error()})
		return
	}
	if err := m.s.SetVideoCover(ctx, id, stored); err != nil {
		_ = m.covers.Remove(ctx, stored)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist cover", "details": err.Error()})
		return
	}

	if detail.ThumbnailURL != nil {
		old := strings.TrimSpace(*detail.ThumbnailURL)
		if old != "" && old != stored && !strings.HasPrefix(old, "http://") && !strings.HasPrefix(old, "https://") {
			_ = m.covers.Remove(ctx, old)
		}
	}

	video := detail.Video
	video.ThumbnailURL = &stored
	m.applyCoverURL(c, &video)
	c.JSON(http.StatusOK, gin.H{"video": video})
}

// handleImportCoverBundle godoc
// @Summary 批量导入视频封面（管理员）
// @Description 上传 zip/rar 压缩包，按“视频ID.扩展名”匹配封面条目
// @Tags Catalog
// @Accept multipart/form-data
// @Produce json
// @Param archive formData file true "封面压缩包"
// @Success 200 {object} map[string]interface{} "导入统计"
func (m *Module) handleImportCoverBundle(c *gin.Context) {
	if m.covers == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cover storage not configured"})
		return
	}

	archive, err := c.FormFile("archive")
	if err != nil || archive == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "archive file is required"})
		return
	}

	images, err := filestore.ExtractImages(archive)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	updated := 0
	skipped := make([]string, 0)

	for _, image := range images {
		base := image.Name
		if idx := strings.LastIndex(base, "."); idx > 0 {
			base = base[:idx]
		}
		videoID, parseErr := strconv.ParseUint(base, 10, 64)
		if parseErr != nil || videoID == 0 {
			skipped = append(skipped, image.Name)
			continue
		}
		if m.s.GetVideoDetail(ctx, videoID) == nil {
			skipped = append(skipped, image.Name)
			continue
		}

		stored, uploadErr := m.covers.UploadBytes(ctx, image.Data, image.ContentType, "videos", fmt.Sprintf("%d", videoID))
		if uploadErr != nil {
			log.Printf("catalog: upload bundled cover %s: %v", image.Name, uploadErr)
			skipped = append(skipped, image.Name)
			continue
		}
		if err := m.s.SetVideoCover(ctx, videoID, stored); err != nil {
			_ = m.covers.Remove(ctx, stored)
			log.Printf("catalog: persist bundled cover %s: %v", image.Name, err)
			skipped = append(skipped, image.Name)
			continue
		}
		updated++
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated, "skipped": skipped})
}
