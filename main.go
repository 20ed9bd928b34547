package main

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"quyi_back/assistant"
	"quyi_back/authorization"
	"quyi_back/catalog"
	"quyi_back/comments"
	"quyi_back/guestbook"
)

func mustLoadEnv() {
	_ = godotenv.Load()
}

// corsConfig 允许前端站点跨域访问，CORS_ALLOW_ORIGINS 逗号分隔。
func corsConfig() cors.Config {
	config := cors.DefaultConfig()
	config.AllowHeaders = append(config.AllowHeaders, "Authorization")
	config.MaxAge = 12 * time.Hour

	raw := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS"))
	if raw == "" {
		config.AllowAllOrigins = true
		return config
	}

	origins := make([]string, 0)
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = origins
	return config
}

func main() {
	mustLoadEnv()

	r := gin.Default()
	r.Use(cors.New(corsConfig()))

	// 单个模块初始化失败只记录警告，站点其余能力继续可用。
	var guard *authorization.Guard
	var captcha *authorization.CaptchaStore
	if authModule, err := authorization.RegisterRoutes(r); err != nil {
		log.Printf("register auth routes: %v (admin endpoints disabled)", err)
	} else {
		guard = authModule.Guard()
		captcha = authModule.CaptchaStore()
	}

	if _, err := catalog.RegisterRoutes(r, guard); err != nil {
		log.Printf("register catalog routes: %v (catalog endpoints disabled)", err)
	}

	if _, err := comments.RegisterRoutes(r); err != nil {
		log.Printf("register comment routes: %v (comment endpoints disabled)", err)
	}

	if _, err := guestbook.RegisterRoutes(r, guard, captcha); err != nil {
		log.Printf("register guestbook routes: %v (guestbook endpoints disabled)", err)
	}

	if _, err := assistant.RegisterRoutes(r); err != nil {
		log.Printf("register assistant routes: %v (assistant endpoints disabled)", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("start server: %v", err)
	}
}
