package catalog

import (
	"time"

	"gorm.io/datatypes"
)

// Category 表示一个曲艺门类，如相声、评书、京剧。
type Category struct {
	ID                  uint64    `gorm:"primaryKey" json:"id"`
	Name                string    `gorm:"size:100;not null" json:"name"`
	Description         *string   `gorm:"type:text" json:"description,omitempty"`
	DetailedDescription *string   `gorm:"type:text" json:"detailed_description,omitempty"`
	Origin              *string   `gorm:"size:255" json:"origin,omitempty"`
	Characteristics     *string   `gorm:"type:text" json:"characteristics,omitempty"`
	SortOrder           int       `gorm:"not null;default:0;index" json:"sort_order"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName 指定 Category 模型对应的数据库表名。
func (Category) TableName() string {
	return "categories"
}

// Representative 记录某个门类下的代表人物。
type Representative struct {
	ID                  uint64    `gorm:"primaryKey" json:"id"`
	CategoryID          uint64    `gorm:"not null;index" json:"category_id"`
	Name                string    `gorm:"size:100;not null" json:"name"`
	BirthPeriod         *string   `gorm:"size:50" json:"birth_period,omitempty"`
	Biography           *string   `gorm:"type:text" json:"biography,omitempty"`
	Masterpiece         *string   `gorm:"size:255" json:"masterpiece,omitempty"`
	ArtisticAchievement *string   `gorm:"type:text" json:"artistic_achievement,omitempty"`
	StatusText          *string   `gorm:"size:50" json:"status_text,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName 指定 Representative 模型的存储表。
func (Representative) TableName() string {
	return "representatives"
}

// Video 表示一条曲艺视频记录。
type Video struct {
	ID           uint64         `gorm:"primaryKey" json:"id"`
	CategoryID   *uint64        `gorm:"index" json:"category_id,omitempty"`
	Title        string         `gorm:"size:255;not null" json:"title"`
	Description  *string        `gorm:"type:text" json:"description,omitempty"`
	Performer    *string        `gorm:"size:100" json:"performer,omitempty"`
	Duration     *string        `gorm:"size:20" json:"duration,omitempty"`
	VideoURL     *string        `gorm:"size:512" json:"video_url,omitempty"`
	ThumbnailURL *string        `gorm:"size:512" json:"thumbnail_url,omitempty"`
	ViewsCount   uint64         `gorm:"not null;default:0" json:"views_count"`
	LikesCount   uint64         `gorm:"not null;default:0" json:"likes_count"`
	Tags         datatypes.JSON `gorm:"type:json" json:"tags,omitempty"`
	IsFeatured   bool           `gorm:"not null;default:false;index" json:"is_featured"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName 指定 Video 模型对应的数据库表名。
func (Video) TableName() string {
	return "videos"
}

// VideoDetail 在视频基础上补充门类名称，对应原 video_details 视图。
type VideoDetail struct {
	Video
	CategoryName string `gorm:"-" json:"category_name,omitempty"`
}

// SearchKeyword 统计站内搜索词的出现次数。
type SearchKeyword struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	Keyword      string    `gorm:"size:100;not null;index" json:"keyword"`
	SearchCount  uint64    `gorm:"not null;default:0" json:"search_count"`
	LastSearched time.Time `json:"last_searched"`
}

// TableName 指定 SearchKeyword 模型的存储表。
func (SearchKeyword) TableName() string {
	return "search_keywords"
}

// Event 表示一条近期曲艺动态。
type Event struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	Location    *string   `gorm:"size:255" json:"location,omitempty"`
	EventDate   time.Time `gorm:"index" json:"event_date"`
	SortOrder   int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName 指定 Event 模型的存储表。
func (Event) TableName() string {
	return "events"
}

// CarouselSlide 表示首页轮播图配置。
type CarouselSlide struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Subtitle  *string   `gorm:"size:255" json:"subtitle,omitempty"`
	ImageURL  string    `gorm:"size:512;not null" json:"image_url"`
	LinkURL   *string   `gorm:"size:512" json:"link_url,omitempty"`
	IsActive  bool      `gorm:"not null;index" json:"is_active"`
	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定 CarouselSlide 模型的存储表。
func (CarouselSlide) TableName() string {
	return "carousel_slides"
}
