package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrReportNotFound  = errors.New("report not found")
	ErrDuplicateReport = errors.New("you have already reported this content")
)

var BannedWords = []string{
	"fuck", "fucking", "fucker", "shit", "shitty", "bullshit",
	"asshole", "bastard", "bitch", "cunt",
	"nigger", "nigga", "chink", "spic", "kike", "faggot", "fag",
	"retard", "retarded", "tranny",
	"porn", "porno", "nude", "nudes",
	"scam", "scammer", "phishing", "malware",
}

// Rejection reasons returned by CheckListing.
const (
	ReasonLanguage      = "inappropriate_language"
	ReasonSpam          = "spam_detected"
	ReasonExcessiveCaps = "excessive_caps"
)

// ModerationService filters listing text and manages user reports.
type ModerationService struct {
	db                  *gorm.DB
	bannedWordRegexps   []*regexp.Regexp
	repeatedCharPattern *regexp.Regexp
	allCapsPattern      *regexp.Regexp
}

func NewModerationService(db *gorm.DB) *ModerationService {
	ms := &ModerationService{db: db}
	ms.bannedWordRegexps = make([]*regexp.Regexp, 0, len(BannedWords))
	for _, word := range BannedWords {
		ms.bannedWordRegexps = append(ms.bannedWordRegexps, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(word)+`\b`))
	}
	// RE2 has no backreferences; (.)\1{4,} is spelled out per character class.
	ms.repeatedCharPattern = regexp.MustCompile(`(?i)(a{5,}|e{5,}|i{5,}|o{5,}|u{5,}|z{5,}|!{5,}|\?{5,}|\${5,})`)
	ms.allCapsPattern = regexp.MustCompile(`\b[A-Z]{5,}\b`)
	return ms
}

func (ms *ModerationService) ContainsProfanity(text string) bool {
	for _, re := range ms.bannedWordRegexps {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// CheckListing reports whether product or store text is acceptable, and the
// rejection reason when it is not.
func (ms *ModerationService) CheckListing(text string) (bool, string) {
	if strings.TrimSpace(text) == "" {
		return true, ""
	}
	if ms.ContainsProfanity(text) {
		return false, ReasonLanguage
	}
	if ms.repeatedCharPattern.MatchString(text) {
		return false, ReasonSpam
	}
	if len(ms.allCapsPattern.FindAllString(text, -1)) > 3 {
		return false, ReasonExcessiveCaps
	}
	return true, ""
}

func (ms *ModerationService) GetRejectionMessage(reason string) string {
	messages := map[string]string{
		ReasonLanguage:      "The text contains inappropriate language.",
		ReasonSpam:          "The text appears to be spam.",
		ReasonExcessiveCaps: "Please avoid using excessive capital letters.",
	}
	if msg, ok := messages[reason]; ok {
		return msg
	}
	return "The text does not meet our marketplace guidelines."
}

func (s *ModerationService) CreateReport(reporterID uuid.UUID, req *dto.CreateReportRequest) (*models.Report, error) {
	var existing int64
	s.db.Model(&models.Report{}).
		Where("reporter_id = ? AND content_type = ? AND content_id = ? AND status = ?",
			reporterID, req.ContentType, req.ContentID, models.ReportPending).
		Count(&existing)
	if existing > 0 {
		return nil, ErrDuplicateReport
	}

	report := models.Report{
		ID:          uuid.New(),
		ReporterID:  reporterID,
		ContentType: req.ContentType,
		ContentID:   req.ContentID,
		Reason:      strings.TrimSpace(req.Reason),
		Status:      models.ReportPending,
	}

	if err := s.db.Create(&report).Error; err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	return &report, nil
}

func (s *ModerationService) ListReports(status string, limit, offset int) ([]models.Report, int64, error) {
	var reports []models.Report
	var total int64

	query := s.db.Model(&models.Report{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Scopes(tenant.Paginate(limit, offset)).Find(&reports).Error; err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

func (s *ModerationService) ActionReport(reportID uuid.UUID, req *dto.ActionReportRequest) error {
	result := s.db.Model(&models.Report{}).
		Where("id = ?", reportID).
		Updates(map[string]interface{}{
			"status":     req.Status,
			"admin_note": req.AdminNote,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReportNotFound
	}
	return nil
}
