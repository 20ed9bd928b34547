package comments

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Module 聚合评论模块的服务依赖。
type Module struct {
	s *Service
}

// RegisterRoutes 初始化评论模块并注册全部相关路由。
func RegisterRoutes(router *gin.Engine) (*Module, error) {
	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Comment{}); err != nil {
		return nil, fmt.Errorf("comments: migrate models: %w", err)
	}

	module := &Module{s: NewService(db)}

	router.GET("/videos/:id/comments", module.handleListComments)
	router.POST("/videos/:id/comments", module.handleSubmitComment)
	router.POST("/comments/:id/like", module.handleLikeComment)
	router.DELETE("/comments/:id", module.handleDeleteComment)

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

// visitorIDFromRequest 提取可选的访客标识。
func visitorIDFromRequest(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// handleListComments godoc
// @Summary 获取视频评论
// @Description 只返回顶级评论，统一匿名展示
// @Tags Comments
// @Produce json
// @Param id path int true "视频ID"
// @Success 200 {object} map[string]interface{} "评论列表"
func (m *Module) handleListComments(c *gin.Context) {
	videoID, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	list := m.s.GetComments(c.Request.Context(), videoID)
	c.JSON(http.StatusOK, gin.H{"comments": list})
}

type submitCommentRequest struct {
	Content   string `json:"content"`
	VisitorID string `json:"visitor_id"`
}

// handleSubmitComment godoc
// @Summary 提交评论
// @Description 无需登录即可评论，内容会做裁剪
// @Tags Comments
// @Accept json
// @Produce json
// @Param id path int true "视频ID"
// @Param request body submitCommentRequest true "评论内容"
// @Success 201 {object} map[string]interface{} "匿名形态的评论"
// @Failure 400 {object} map[string]string "请求参数错误"
func (m *Module) handleSubmitComment(c *gin.Context) {
	videoID, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	var req submitCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	comment, err := m.s.SubmitComment(c.Request.Context(), videoID, req.Content, visitorIDFromRequest(req.VisitorID))
	if err != nil {
		var writeErr *WriteError
		status := http.StatusInternalServerError
		if errors.As(err, &writeErr) && writeErr.Class != ErrClassUnknown {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

// handleLikeComment godoc
// @Summary 点赞评论
// @Tags Comments
// @Produce json
// @Param id path int true "评论ID"
// @Success 200 {object} map[string]interface{} "是否成功"
func (m *Module) handleLikeComment(c *gin.Context) {
	commentID, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return
	}

	if err := m.s.LikeComment(c.Request.Context(), commentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleDeleteComment godoc
// @Summary 删除评论
// @Description 携带访客标识时只能删除本人评论
// @Tags Comments
// @Produce json
// @Param id path int true "评论ID"
// @Param visitor_id query string false "访客标识"
// @Success 200 {object} map[string]interface{} "是否成功"
func (m *Module) handleDeleteComment(c *gin.Context) {
	commentID, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return
	}

	ok := m.s.DeleteComment(c.Request.Context(), commentID, visitorIDFromRequest(c.Query("visitor_id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
