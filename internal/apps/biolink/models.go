package biolink

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	BlockProfile    = "profile"
	BlockLink       = "link"
	BlockGroup      = "group"
	BlockVideo      = "video"
	BlockSocial     = "social"
	BlockContact    = "contact"
	BlockAction     = "action"
	BlockDivider    = "divider"
	BlockText       = "text"
	BlockNewsletter = "newsletter"

	HitView       = "view"
	HitClick      = "click"
	HitImpression = "impression"

	VariantA = "A"
	VariantB = "B"

	MaxBlocksPerPage = 100
)

var BlockTypes = []string{
	BlockProfile, BlockLink, BlockGroup, BlockVideo, BlockSocial,
	BlockContact, BlockAction, BlockDivider, BlockText, BlockNewsletter,
}

// BioPage is a public profile addressable by slug or custom domain.
type BioPage struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Slug         string         `gorm:"size:40;uniqueIndex;not null" json:"slug"`
	CustomDomain *string        `gorm:"size:253;uniqueIndex" json:"custom_domain,omitempty"`
	Title        string         `gorm:"size:120;not null" json:"title"`
	Description  string         `gorm:"size:500" json:"description"`
	AvatarURL    string         `gorm:"size:500" json:"avatar_url,omitempty"`
	Theme        datatypes.JSON `gorm:"type:jsonb" json:"theme"`
	Settings     datatypes.JSON `gorm:"type:jsonb" json:"settings"`
	Published    bool           `gorm:"not null;index" json:"published"`
	PublishedAt  *time.Time     `json:"published_at,omitempty"`
	Blocks       []Block        `gorm:"foreignKey:PageID;constraint:OnDelete:CASCADE" json:"blocks,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (BioPage) TableName() string { return "bio_pages" }

// Block is one content unit on a page. Config is shaped by Type; VariantB,
// when set, replaces Config for SplitPercent percent of visitors.
type Block struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PageID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"page_id"`
	Type         string         `gorm:"size:20;not null" json:"type"`
	Title        string         `gorm:"size:120" json:"title"`
	Config       datatypes.JSON `gorm:"type:jsonb" json:"config"`
	VariantB     datatypes.JSON `gorm:"type:jsonb" json:"variant_b,omitempty"`
	SplitPercent int            `gorm:"not null" json:"split_percent"`
	SortOrder    int            `gorm:"column:sort_order;not null;index" json:"order"`
	Visible      bool           `gorm:"not null" json:"visible"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Block) TableName() string { return "bio_blocks" }

// HasVariant reports whether the block runs an A/B split.
func (b *Block) HasVariant() bool {
	return hasConfig(b.VariantB) && b.SplitPercent > 0
}

func hasConfig(j datatypes.JSON) bool {
	return len(j) > 0 && string(j) != "null"
}

// AnalyticsHit is an immutable view, click or variant impression.
type AnalyticsHit struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PageID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_hits_page_time,priority:1" json:"page_id"`
	BlockID   *uuid.UUID `gorm:"type:uuid;index" json:"block_id,omitempty"`
	Kind      string     `gorm:"size:12;not null" json:"kind"`
	Variant   string     `gorm:"size:1" json:"variant,omitempty"`
	Device    string     `gorm:"size:10" json:"device"`
	Country   string     `gorm:"size:2" json:"country,omitempty"`
	Referrer  string     `gorm:"size:255" json:"referrer,omitempty"`
	VisitorID string     `gorm:"size:64" json:"-"`
	CreatedAt time.Time  `gorm:"index:idx_hits_page_time,priority:2" json:"created_at"`
}

func (AnalyticsHit) TableName() string { return "analytics_hits" }

// --- Public payloads ---

// PublicBlock is a block as served to a visitor with the variant resolved.
type PublicBlock struct {
	ID      uuid.UUID      `json:"id"`
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Config  datatypes.JSON `json:"config"`
	Variant string         `json:"variant"`
	Order   int            `json:"order"`
}

type PublicPage struct {
	ID          uuid.UUID      `json:"id"`
	Slug        string         `json:"slug"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Theme       datatypes.JSON `json:"theme"`
	Blocks      []PublicBlock  `json:"blocks"`
}

// cachedPage is what the page cache stores: both variants of every visible
// block, so the variant can be picked per visitor after a cache hit.
type cachedPage struct {
	ID          uuid.UUID      `json:"id"`
	UserID      uuid.UUID      `json:"user_id"`
	Slug        string         `json:"slug"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Theme       datatypes.JSON `json:"theme"`
	Blocks      []Block        `json:"blocks"`
}

// Visitor identifies who is looking at a page.
type Visitor struct {
	Key      string
	Device   string
	Country  string
	Referrer string
}

// --- DTOs ---

type PageRequest struct {
	Slug        string                 `json:"slug" validate:"required,min=3,max=40,slug"`
	Title       string                 `json:"title" validate:"required,max=120"`
	Description string                 `json:"description" validate:"max=500"`
	AvatarURL   string                 `json:"avatar_url" validate:"omitempty,url,max=500"`
	Theme       map[string]interface{} `json:"theme"`
	Settings    map[string]interface{} `json:"settings"`
}

type UpdatePageRequest struct {
	Slug        *string                `json:"slug" validate:"omitempty,min=3,max=40,slug"`
	Title       *string                `json:"title" validate:"omitempty,max=120"`
	Description *string                `json:"description" validate:"omitempty,max=500"`
	AvatarURL   *string                `json:"avatar_url" validate:"omitempty,max=500"`
	Theme       map[string]interface{} `json:"theme"`
	Settings    map[string]interface{} `json:"settings"`
}

type PublishRequest struct {
	Published bool `json:"published"`
}

type DomainRequest struct {
	Domain string `json:"domain" validate:"required,fqdn,max=253"`
}

type BlockRequest struct {
	Type         string                 `json:"type" validate:"required"`
	Title        string                 `json:"title" validate:"max=120"`
	Config       map[string]interface{} `json:"config"`
	VariantB     map[string]interface{} `json:"variant_b"`
	SplitPercent int                    `json:"split_percent" validate:"gte=0,lte=100"`
	Visible      *bool                  `json:"visible"`
	Order        *int                   `json:"order"`
}

type UpdateBlockRequest struct {
	Title        *string                `json:"title" validate:"omitempty,max=120"`
	Config       map[string]interface{} `json:"config"`
	VariantB     map[string]interface{} `json:"variant_b"`
	ClearVariant bool                   `json:"clear_variant"`
	SplitPercent *int                   `json:"split_percent" validate:"omitempty,gte=0,lte=100"`
	Visible      *bool                  `json:"visible"`
}

type ReorderRequest struct {
	BlockIDs []uuid.UUID `json:"block_ids" validate:"required,min=1"`
}

type ClickRequest struct {
	BlockID uuid.UUID `json:"block_id" validate:"required"`
}

type ContactRequest struct {
	BlockID uuid.UUID         `json:"block_id" validate:"required"`
	Fields  map[string]string `json:"fields" validate:"required,min=1,max=20"`
}

type ClickResponse struct {
	URL     string `json:"url,omitempty"`
	Variant string `json:"variant"`
}

// --- Analytics ---

type DayCount struct {
	Date   string `json:"date"`
	Views  int64  `json:"views"`
	Clicks int64  `json:"clicks"`
}

type Bucket struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

type BlockClicks struct {
	BlockID uuid.UUID `json:"block_id"`
	Title   string    `json:"title"`
	Type    string    `json:"type"`
	Clicks  int64     `json:"clicks"`
}

type VariantStats struct {
	BlockID     uuid.UUID `json:"block_id"`
	Variant     string    `json:"variant"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	CTR         float64   `json:"ctr"`
}

type Summary struct {
	PageID    uuid.UUID      `json:"page_id"`
	Days      int            `json:"days"`
	Views     int64          `json:"views"`
	Clicks    int64          `json:"clicks"`
	Visitors  int64          `json:"unique_visitors"`
	CTR       float64        `json:"ctr"`
	PerDay    []DayCount     `json:"per_day"`
	Devices   []Bucket       `json:"devices"`
	Countries []Bucket       `json:"countries"`
	Referrers []Bucket       `json:"referrers"`
	Blocks    []BlockClicks  `json:"blocks"`
	Variants  []VariantStats `json:"variants"`
}

type AdminStats struct {
	Pages          int64 `json:"pages"`
	PublishedPages int64 `json:"published_pages"`
	Blocks         int64 `json:"blocks"`
	Views          int64 `json:"views"`
	Clicks         int64 `json:"clicks"`
	ViewsLast7d    int64 `json:"views_last_7d"`
}
