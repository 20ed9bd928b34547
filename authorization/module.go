package authorization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	identityKey    = "account_id"
	defaultTimeout = time.Hour

	// RoleAdmin 是后台管理接口要求的角色。
	RoleAdmin = "admin"
)

// Module 聚合管理账号存储、JWT 中间件与验证码存储。
type Module struct {
	db            *gorm.DB
	accounts      *AccountStore
	jwtMiddleware *jwt.GinJWTMiddleware
	captcha       *CaptchaStore
}

// RegisterRoutes 在 /auth 下挂载管理端认证接口。
func RegisterRoutes(router *gin.Engine) (*Module, error) {
	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Account{}); err != nil {
		return nil, fmt.Errorf("authorization: migrate models: %w", err)
	}

	accounts := &AccountStore{db: db}
	if err := seedAdminAccount(context.Background(), accounts); err != nil {
		return nil, err
	}

	captchaStore := NewCaptchaStore(3 * time.Minute)

	middleware, err := buildJWTMiddleware(accounts)
	if err != nil {
		return nil, err
	}

	module := &Module{db: db, accounts: accounts, jwtMiddleware: middleware, captcha: captchaStore}

	authGroup := router.Group("/auth")
	authGroup.GET("/captcha", module.handleCaptcha)
	authGroup.POST("/login", module.handleLogin)
	authGroup.POST("/refresh", middleware.RefreshHandler)

	secured := authGroup.Group("")
	secured.Use(middleware.MiddlewareFunc())
	secured.GET("/me", module.handleMe)

	return module, nil
}

// CaptchaStore 返回模块持有的验证码存储，供其他模块复用。
func (m *Module) CaptchaStore() *CaptchaStore {
	if m == nil {
		return nil
	}
	return m.captcha
}

// seedAdminAccount 依据 ADMIN_USERNAME/ADMIN_PASSWORD 确保初始管理账号存在。
// 账号已存在时仅更新密码留空的场景不做处理，环境变量缺失时记录警告。
func seedAdminAccount(ctx context.Context, accounts *AccountStore) error {
	username := strings.TrimSpace(os.Getenv("ADMIN_USERNAME"))
	password := strings.TrimSpace(os.Getenv("ADMIN_PASSWORD"))
	if username == "" {
		username = "admin"
	}
	if password == "" {
		count, err := accounts.Count(ctx)
		if err != nil {
			return fmt.Errorf("authorization: count accounts: %w", err)
		}
		if count == 0 {
			log.Printf("authorization: ADMIN_PASSWORD not set, no admin account seeded")
		}
		return nil
	}

	existing, err := accounts.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("authorization: lookup admin account: %w", err)
	}
	if existing != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("authorization: hash admin password: %w", err)
	}

	account := &Account{Username: username, PasswordHash: string(hash), Role: RoleAdmin}
	if err := accounts.Create(ctx, account); err != nil {
		return fmt.Errorf("authorization: seed admin account: %w", err)
	}
	return nil
}

// handleCaptcha 下发图形验证码
// @Summary 获取验证码
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]any
// @Router /auth/captcha [get]
func (m *Module) handleCaptcha(c *gin.Context) {
	challenge := m.captcha.Issue()
	expiresIn := int(challenge.TTL.Seconds())
	if expiresIn < 1 {
		expiresIn = 1
	}
	c.JSON(http.StatusOK, gin.H{
		"captcha_id": challenge.ID,
		"image":      challenge.ImageBase64,
		"expires_in": expiresIn,
		"expires_at": challenge.ExpiresAt.UTC(),
	})
}

// handleLogin 校验验证码后交由 JWT 中间件签发令牌
// @Summary 管理端登录
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body LoginRequest true "登录请求"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /auth/login [post]
func (m *Module) handleLogin(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	var req LoginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	if m.captcha != nil && !m.captcha.Verify(req.CaptchaID, req.CaptchaAnswer) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid captcha"})
		return
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	m.jwtMiddleware.LoginHandler(c)
}

// handleMe 返回当前令牌对应的管理账号
// @Summary 当前账号信息
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 401 {object} map[string]string
// @Router /auth/me [get]
func (m *Module) handleMe(c *gin.Context) {
	claims := jwt.ExtractClaims(c)
	accountID := extractAccountID(claims)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	account, err := m.accounts.FindByID(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": account})
}

// LoginRequest 表示登录接口的请求体。
type LoginRequest struct {
	Username      string `json:"username" binding:"required"`
	Password      string `json:"password" binding:"required"`
	CaptchaID     string `json:"captcha_id" binding:"required"`
	CaptchaAnswer string `json:"captcha_answer" binding:"required"`
}

// AuthenticatedAccount 是写入 JWT 声明的最小身份。
type AuthenticatedAccount struct {
	ID       uint64
	Username string
	Role     string
}

func buildJWTMiddleware(accounts *AccountStore) (*jwt.GinJWTMiddleware, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return nil, errors.New("authorization: JWT_SECRET environment variable is required")
	}

	return jwt.New(&jwt.GinJWTMiddleware{
		Realm:       "quyi",
		Key:         []byte(secret),
		Timeout:     defaultTimeout,
		MaxRefresh:  24 * time.Hour,
		IdentityKey: identityKey,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if account, ok := data.(*AuthenticatedAccount); ok {
				return jwt.MapClaims{
					identityKey: account.ID,
					"username":  account.Username,
					"role":      account.Role,
				}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(c *gin.Context) interface{} {
			claims := jwt.ExtractClaims(c)
			username, _ := claims["username"].(string)
			return &AuthenticatedAccount{
				ID:       extractAccountID(claims),
				Username: username,
				Role:     extractRole(claims),
			}
		},
		Authenticator: func(c *gin.Context) (interface{}, error) {
			var req LoginRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}
			return authenticate(c.Request.Context(), accounts, req.Username, req.Password)
		},
		Authorizator: func(data interface{}, c *gin.Context) bool {
			_, ok := data.(*AuthenticatedAccount)
			return ok
		},
		Unauthorized: func(c *gin.Context, code int, message string) {
			c.JSON(code, gin.H{"error": message})
		},
		LoginResponse: func(c *gin.Context, code int, token string, expire time.Time) {
			c.JSON(code, gin.H{"token": token, "expire": expire})
		},
		RefreshResponse: func(c *gin.Context, code int, token string, expire time.Time) {
			c.JSON(code, gin.H{"token": token, "expire": expire})
		},
		TokenLookup:   "header: Authorization, cookie: jwt, cookie: token",
		TokenHeadName: "Bearer",
		TimeFunc:      time.Now,
	})
}

// authenticate 校验账号密码并返回认证身份。
func authenticate(ctx context.Context, accounts *AccountStore, username, password string) (*AuthenticatedAccount, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return nil, jwt.ErrMissingLoginValues
	}

	account, err := accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, jwt.ErrFailedAuthentication
		}
		return nil, fmt.Errorf("authorization: authenticate account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, jwt.ErrFailedAuthentication
	}

	accounts.TouchLastLogin(ctx, account.ID)

	return &AuthenticatedAccount{ID: account.ID, Username: account.Username, Role: account.Role}, nil
}

// AccountStore 提供管理账号的数据访问。
type AccountStore struct {
	db *gorm.DB
}

// FindByID 按主键加载账号。
func (s *AccountStore) FindByID(ctx context.Context, id uint64) (*Account, error) {
	if s == nil {
		return nil, errors.New("authorization: account store not initialized")
	}
	var account Account
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByUsername 按用户名加载账号。
func (s *AccountStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	var account Account
	if err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// Create 插入新账号。
func (s *AccountStore) Create(ctx context.Context, account *Account) error {
	return s.db.WithContext(ctx).Create(account).Error
}

// Count 返回账号总数。
func (s *AccountStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Account{}).Count(&count).Error
	return count, err
}

// TouchLastLogin 更新最近登录时间，失败仅记录日志。
func (s *AccountStore) TouchLastLogin(ctx context.Context, id uint64) {
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).
		Update("last_login_at", now).Error; err != nil {
		log.Printf("authorization: update last login: %v", err)
	}
}

func extractAccountID(claims jwt.MapClaims) uint64 {
	if claims == nil {
		return 0
	}
	idValue, ok := claims[identityKey]
	if !ok {
		return 0
	}

	switch v := idValue.(type) {
	case float64:
		return uint64(v)
	case int64:
		return uint64(v)
	case uint64:
		return v
	case int:
		return uint64(v)
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return uint64(parsed)
		}
	}
	return 0
}

func extractRole(claims jwt.MapClaims) string {
	if claims == nil {
		return ""
	}
	if role, ok := claims["role"].(string); ok {
		return role
	}
	return ""
}
