package guestbook

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"quyi_back/authorization"
)

// Module 聚合留言板模块的服务与验证码依赖。
type Module struct {
	s       *Service
	captcha *authorization.CaptchaStore
}

// RegisterRoutes 初始化留言板模块并注册全部相关路由。
// 删除路由挂在管理员守卫之后，普通访客只能读、写、点赞。
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, captcha *authorization.CaptchaStore) (*Module, error) {
	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("guestbook: migrate models: %w", err)
	}

	module := &Module{s: NewService(db), captcha: captcha}

	group := router.Group("/guestbook")
	group.GET("", module.handleListGuestbooks)
	group.GET("/count", module.handleGuestbookCount)
	group.POST("", module.handleSubmitGuestbook)
	group.POST("/:id/like", module.handleLikeGuestbook)

	adminGroup := group.Group("")
	if guard != nil {
		adminGroup.Use(guard.RequireAuthenticated(), guard.RequireRole("admin"))
	} else {
		adminGroup.Use(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization middleware missing"})
		})
	}
	adminGroup.DELETE("/:id", module.handleDeleteGuestbook)

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

// parseNonNegative 解析非负整数查询参数。
func parseNonNegative(raw string, fallback int) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

// handleListGuestbooks godoc
// @Summary 获取公开留言
// @Tags Guestbook
// @Produce json
// @Param limit query int false "返回数量，默认 20"
// @Param offset query int false "偏移量，默认 0"
// @Success 200 {object} map[string]interface{} "留言列表"
func (m *Module) handleListGuestbooks(c *gin.Context) {
	limit := parseNonNegative(c.Query("limit"), defaultPageLimit)
	offset := parseNonNegative(c.Query("offset"), 0)

	entries := m.s.GetGuestbooks(c.Request.Context(), limit, offset)
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// handleGuestbookCount godoc
// @Summary 获取公开留言总数
// @Tags Guestbook
// @Produce json
// @Success 200 {object} map[string]interface{} "留言总数"
func (m *Module) handleGuestbookCount(c *gin.Context) {
	count := m.s.GetGuestbookCount(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"count": count})
}

type submitGuestbookRequest struct {
	ContactName   string `json:"contact_name"`
	ContactInfo   string `json:"contact_info"`
	Content       string `json:"content"`
	CaptchaID     string `json:"captcha_id"`
	CaptchaAnswer string `json:"captcha_answer"`
}

// handleSubmitGuestbook godoc
// @Summary 提交留言
// @Description 空白称呼回落为匿名访客，启用验证码时需先通过校验
// @Tags Guestbook
// @Accept json
// @Produce json
// @Param request body submitGuestbookRequest true "留言内容"
// @Success 201 {object} map[string]interface{} "新留言"
// @Failure 400 {object} map[string]string "请求参数错误"
func (m *Module) handleSubmitGuestbook(c *gin.Context) {
	var req submitGuestbookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	if m.captcha != nil && !m.captcha.Verify(req.CaptchaID, req.CaptchaAnswer) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid captcha"})
		return
	}

	entry, err := m.s.SubmitGuestbook(c.Request.Context(), req.ContactName, req.ContactInfo, req.Content)
	if err != nil {
		var writeErr *WriteError
		status := http.StatusInternalServerError
		if errors.As(err, &writeErr) && writeErr.Class != ErrClassUnknown {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}

// handleLikeGuestbook godoc
// @Summary 点赞留言
// @Tags Guestbook
// @Produce json
// @Param id path int true "留言ID"
// @Success 200 {object} map[string]interface{} "是否成功"
func (m *Module) handleLikeGuestbook(c *gin.Context) {
	entryID, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid guestbook id"})
		return
	}

	if err := m.s.LikeGuestbook(c.Request.Context(), entryID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleDeleteGuestbook godoc
// @Summary 删除留言（管理员）
// @Tags Guestbook
// @Produce json
// @Param id path int true "留言ID"
// @Success 200 {object} map[string]interface{} "是否成功"
// @Failure 404 {object} map[string]string "未找到"
func (m *Module) handleDeleteGuestbook(c *gin.Context) {
	entryID, err := parseUintID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid guestbook id"})
		return
	}

	if !m.s.DeleteGuestbook(c.Request.Context(), entryID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "guestbook entry not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
