package biolink

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidRange = errors.New("days must be between 1 and 365")

const topBuckets = 10

type AnalyticsService struct {
	db    *gorm.DB
	pages *PageService
	now   func() time.Time
}

func NewAnalyticsService(db *gorm.DB, pages *PageService) *AnalyticsService {
	return &AnalyticsService{db: db, pages: pages, now: time.Now}
}

// dayExpr buckets created_at by UTC calendar day.
func dayExpr(db *gorm.DB) string {
	if db.Dialector.Name() == "postgres" {
		return "to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}
	return "DATE(created_at)"
}

type labelCount struct {
	Label string
	Count int64
}

// countBy groups the page's views by column.
func countBy(q *gorm.DB, column string, fallback func(string) string) (map[string]int64, error) {
	var rows []labelCount
	err := q.Select("COALESCE(" + column + ", '') AS label, COUNT(*) AS count").Group(column).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[fallback(r.Label)] += r.Count
	}
	return out, nil
}

// Summary aggregates the page's hits over the last days days, today included.
func (s *AnalyticsService) Summary(userID, pageID uuid.UUID, days int) (*Summary, error) {
	if days < 1 || days > 365 {
		return nil, ErrInvalidRange
	}
	if _, err := s.pages.owned(s.db, userID, pageID); err != nil {
		return nil, err
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))
	hits := func() *gorm.DB {
		return s.db.Model(&AnalyticsHit{}).Where("page_id = ? AND created_at >= ?", pageID, since)
	}

	sum := &Summary{PageID: pageID, Days: days}

	// Per day and kind
	var dayRows []struct {
		Day   string
		Kind  string
		Count int64
	}
	day := dayExpr(s.db)
	err := hits().Where("kind IN ?", []string{HitView, HitClick}).
		Select(day + " AS day, kind, COUNT(*) AS count").
		Group(day + ", kind").
		Scan(&dayRows).Error
	if err != nil {
		return nil, err
	}
	perDay := make(map[string]*DayCount, days)
	sum.PerDay = make([]DayCount, days)
	for i := range sum.PerDay {
		d := since.AddDate(0, 0, i).Format("2006-01-02")
		sum.PerDay[i] = DayCount{Date: d}
		perDay[d] = &sum.PerDay[i]
	}
	for _, r := range dayRows {
		dc := perDay[r.Day[:min(len(r.Day), 10)]]
		switch r.Kind {
		case HitView:
			sum.Views += r.Count
			if dc != nil {
				dc.Views += r.Count
			}
		case HitClick:
			sum.Clicks += r.Count
			if dc != nil {
				dc.Clicks += r.Count
			}
		}
	}
	sum.CTR = ratio(sum.Clicks, sum.Views)

	if err := hits().Where("kind = ? AND visitor_id <> ''", HitView).
		Distinct("visitor_id").Count(&sum.Visitors).Error; err != nil {
		return nil, err
	}

	views := func() *gorm.DB { return hits().Where("kind = ?", HitView) }
	devices, err := countBy(views(), "device", orUnknown)
	if err != nil {
		return nil, err
	}
	countries, err := countBy(views(), "country", orUnknown)
	if err != nil {
		return nil, err
	}
	referrers, err := countBy(views(), "referrer", orDirect)
	if err != nil {
		return nil, err
	}
	sum.Devices = buckets(devices, 0)
	sum.Countries = buckets(countries, topBuckets)
	sum.Referrers = buckets(referrers, topBuckets)

	if sum.Blocks, err = s.blockClicks(hits(), pageID); err != nil {
		return nil, err
	}
	if sum.Variants, err = variantStats(hits()); err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *AnalyticsService) blockClicks(q *gorm.DB, pageID uuid.UUID) ([]BlockClicks, error) {
	var rows []struct {
		BlockID uuid.UUID
		Count   int64
	}
	err := q.Where("kind = ? AND block_id IS NOT NULL", HitClick).
		Select("block_id, COUNT(*) AS count").
		Group("block_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var blocks []Block
	if err := s.db.Select("id", "title", "type").Where("page_id = ?", pageID).Find(&blocks).Error; err != nil {
		return nil, err
	}
	info := make(map[uuid.UUID]*Block, len(blocks))
	for i := range blocks {
		info[blocks[i].ID] = &blocks[i]
	}

	out := make([]BlockClicks, 0, len(rows))
	for _, r := range rows {
		bc := BlockClicks{BlockID: r.BlockID, Clicks: r.Count}
		if b := info[r.BlockID]; b != nil {
			bc.Title, bc.Type = b.Title, b.Type
		}
		out = append(out, bc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Clicks != out[j].Clicks {
			return out[i].Clicks > out[j].Clicks
		}
		return out[i].BlockID.String() < out[j].BlockID.String()
	})
	return out, nil
}

func variantStats(q *gorm.DB) ([]VariantStats, error) {
	var rows []struct {
		BlockID uuid.UUID
		Variant string
		Kind    string
		Count   int64
	}
	err := q.Where("kind IN ? AND block_id IS NOT NULL AND variant <> ''", []string{HitImpression, HitClick}).
		Select("block_id, variant, kind, COUNT(*) AS count").
		Group("block_id, variant, kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	type key struct {
		block   uuid.UUID
		variant string
	}
	byKey := map[key]*VariantStats{}
	out := make([]VariantStats, 0, len(rows))
	for _, r := range rows {
		k := key{r.BlockID, r.Variant}
		v := byKey[k]
		if v == nil {
			v = &VariantStats{BlockID: r.BlockID, Variant: r.Variant}
			byKey[k] = v
		}
		if r.Kind == HitImpression {
			v.Impressions += r.Count
		} else {
			v.Clicks += r.Count
		}
	}
	for _, v := range byKey {
		v.CTR = ratio(v.Clicks, v.Impressions)
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockID != out[j].BlockID {
			return out[i].BlockID.String() < out[j].BlockID.String()
		}
		return out[i].Variant < out[j].Variant
	})
	return out, nil
}

// AdminStats returns platform-wide bio-link counters.
func (s *AnalyticsService) AdminStats() (*AdminStats, error) {
	stats := &AdminStats{}
	if err := s.db.Model(&BioPage{}).Count(&stats.Pages).Error; err != nil {
		return nil, err
	}
	counts := []struct {
		q    *gorm.DB
		dest *int64
	}{
		{s.db.Model(&BioPage{}).Where("published = ?", true), &stats.PublishedPages},
		{s.db.Model(&Block{}), &stats.Blocks},
		{s.db.Model(&AnalyticsHit{}).Where("kind = ?", HitView), &stats.Views},
		{s.db.Model(&AnalyticsHit{}).Where("kind = ?", HitClick), &stats.Clicks},
		{s.db.Model(&AnalyticsHit{}).Where("kind = ? AND created_at >= ?", HitView, s.now().UTC().AddDate(0, 0, -7)), &stats.ViewsLast7d},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dest).Error; err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(int64(float64(a)/float64(b)*10000+0.5)) / 10000
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func orDirect(s string) string {
	if s == "" {
		return "direct"
	}
	return s
}

func buckets(m map[string]int64, limit int) []Bucket {
	out := make([]Bucket, 0, len(m))
	for k, v := range m {
		out = append(out, Bucket{Label: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
