package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/mail"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/storage"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidForm        = errors.New("invalid intake form")
	ErrTooManyFiles       = errors.New("too many files")
	ErrFileTooLarge       = errors.New("file too large")
	ErrFileType           = errors.New("file type not allowed")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrPreviewTooLarge    = errors.New("image too large to preview")
)

// allowedTypes maps accepted upload extensions to the content type stored
// with the object.
var allowedTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".zip":  "application/zip",
}

// previewable lists the raster formats that get a JPEG preview.
var previewable = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

const (
	previewSize      = 320
	maxPreviewPixels = 40_000_000
)

// Upload is one file from the multipart request.
type Upload struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

type Limits struct {
	MaxFiles     int
	MaxFileBytes int64
}

func LimitsFrom(cfg *config.Config) Limits {
	return Limits{
		MaxFiles:     cfg.MaxUploadFiles,
		MaxFileBytes: int64(cfg.MaxUploadMB) << 20,
	}
}

type Service struct {
	db       *gorm.DB
	store    storage.Store
	mailer   mail.Mailer
	notifyTo string
	limits   Limits
	now      func() time.Time
}

func NewService(db *gorm.DB, store storage.Store, mailer mail.Mailer, cfg *config.Config) *Service {
	return &Service{
		db:       db,
		store:    store,
		mailer:   mailer,
		notifyTo: cfg.IntakeNotifyEmail,
		limits:   LimitsFrom(cfg),
		now:      time.Now,
	}
}

// FolderName returns "<date>_<business-slug>_<short-id>".
func FolderName(at time.Time, businessName string, id uuid.UUID) string {
	slug := validation.Slugify(businessName, 40)
	if slug == "" {
		slug = "client"
	}
	return at.UTC().Format("2006-01-02") + "_" + slug + "_" + id.String()[:8]
}

// SafeFileName strips directories from name and slugifies its stem. The
// extension is lowercased.
func SafeFileName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(path.Ext(base))
	stem := validation.Slugify(strings.TrimSuffix(base, path.Ext(base)), 60)
	if stem == "" {
		stem = "file"
	}
	return stem + ext
}

func (s *Service) checkUploads(uploads []Upload) error {
	if s.limits.MaxFiles > 0 && len(uploads) > s.limits.MaxFiles {
		return fmt.Errorf("%w: at most %d allowed", ErrTooManyFiles, s.limits.MaxFiles)
	}
	for _, u := range uploads {
		if _, ok := allowedTypes[strings.ToLower(path.Ext(u.Name))]; !ok {
			return fmt.Errorf("%w: %s", ErrFileType, SafeFileName(u.Name))
		}
		if s.limits.MaxFileBytes > 0 && u.Size > s.limits.MaxFileBytes {
			return fmt.Errorf("%w: %s exceeds %d MB", ErrFileTooLarge, SafeFileName(u.Name), s.limits.MaxFileBytes>>20)
		}
	}
	return nil
}

func trimForm(f *Form) {
	for _, p := range []*string{
		&f.BusinessName, &f.ContactName, &f.Email, &f.Phone, &f.Website,
		&f.Package, &f.Budget, &f.Timeline, &f.Description,
	} {
		*p = strings.TrimSpace(*p)
	}
}

// Submit validates the form and files, writes the submission folder to the
// store, records the submission and sends the notification email. Email
// failures are logged and kept on the row; they do not fail the submission.
func (s *Service) Submit(ctx context.Context, form Form, uploads []Upload) (*Submission, error) {
	trimForm(&form)
	if err := validation.Struct(form); err != nil {
		metrics.IntakeSubmissions.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrInvalidForm, err.Error())
	}
	if err := s.checkUploads(uploads); err != nil {
		metrics.IntakeSubmissions.WithLabelValues("rejected").Inc()
		return nil, err
	}

	now := s.now().UTC()
	sub := &Submission{
		ID:           uuid.New(),
		BusinessName: form.BusinessName,
		ContactName:  form.ContactName,
		Email:        strings.ToLower(form.Email),
		Phone:        form.Phone,
		Website:      form.Website,
		Package:      form.Package,
		Budget:       form.Budget,
		Timeline:     form.Timeline,
		Description:  form.Description,
		Status:       StatusNew,
		Files:        []string{},
		Previews:     []string{},
		CreatedAt:    now,
	}
	sub.Folder = FolderName(now, sub.BusinessName, sub.ID)
	sub.Location = s.store.Location(sub.Folder)

	if err := s.writeFolder(ctx, sub, uploads); err != nil {
		metrics.IntakeSubmissions.WithLabelValues("failed").Inc()
		s.discardFolder(sub.Folder)
		return nil, fmt.Errorf("write intake folder: %w", err)
	}
	if err := s.db.Create(sub).Error; err != nil {
		metrics.IntakeSubmissions.WithLabelValues("failed").Inc()
		s.discardFolder(sub.Folder)
		return nil, fmt.Errorf("save intake submission: %w", err)
	}
	metrics.IntakeSubmissions.WithLabelValues("accepted").Inc()
	slog.Info("intake submission received", "component", "intake", "id", sub.ID, "folder", sub.Folder, "files", len(sub.Files))

	s.notify(ctx, sub)
	return sub, nil
}

// discardFolder removes a half-written folder. It runs on a fresh context so
// a cancelled request still cleans up.
func (s *Service) discardFolder(folder string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, folder); err != nil {
		slog.Error("failed to remove intake folder", "component", "intake", "folder", folder, "error", err)
	}
}

func (s *Service) writeFolder(ctx context.Context, sub *Submission, uploads []Upload) error {
	used := make(map[string]bool, len(uploads))
	usedPreviews := make(map[string]bool)
	for _, u := range uploads {
		name := uniqueName(SafeFileName(u.Name), used)
		if err := s.putUpload(ctx, sub.Folder+"/uploads/"+name, u); err != nil {
			return err
		}
		sub.Files = append(sub.Files, name)

		if !previewable[path.Ext(name)] {
			continue
		}
		preview := uniqueName(strings.TrimSuffix(name, path.Ext(name))+".jpg", usedPreviews)
		if err := s.putPreview(ctx, sub.Folder+"/previews/"+preview, u); err != nil {
			slog.Warn("intake preview skipped", "component", "intake", "file", name, "error", err)
			continue
		}
		sub.Previews = append(sub.Previews, preview)
	}

	if err := s.store.Put(ctx, sub.Folder+"/README.md", strings.NewReader(Readme(sub)), "text/markdown"); err != nil {
		return err
	}
	snapshot, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return err
	}
	return s.store.Put(ctx, sub.Folder+"/submission.json", bytes.NewReader(snapshot), "application/json")
}

func (s *Service) putUpload(ctx context.Context, key string, u Upload) error {
	r, err := u.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", u.Name, err)
	}
	defer r.Close()

	var body io.Reader = r
	if s.limits.MaxFileBytes > 0 {
		body = io.LimitReader(r, s.limits.MaxFileBytes)
	}
	contentType := allowedTypes[strings.ToLower(path.Ext(key))]
	return s.store.Put(ctx, key, body, contentType)
}

// putPreview stores a JPEG thumbnail that fits in previewSize squared.
// Images above maxPreviewPixels are skipped before any pixel data is decoded.
func (s *Service) putPreview(ctx context.Context, key string, u Upload) error {
	if err := checkPreviewSize(u); err != nil {
		return err
	}

	r, err := u.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Fit(img, previewSize, previewSize, imaging.Lanczos), imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return s.store.Put(ctx, key, &buf, "image/jpeg")
}

func checkPreviewSize(u Upload) error {
	r, err := u.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPreviewPixels {
		return fmt.Errorf("%w: %dx%d", ErrPreviewTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	used[candidate] = true
	return candidate
}

// Readme renders the human-readable summary stored next to the uploads.
func Readme(sub *Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", sub.BusinessName)
	fmt.Fprintf(&b, "Submitted %s\n\n", sub.CreatedAt.UTC().Format(time.RFC1123))
	b.WriteString("## Contact\n\n")
	rows := [][2]string{
		{"Name", sub.ContactName},
		{"Email", sub.Email},
		{"Phone", sub.Phone},
		{"Website", sub.Website},
	}
	for _, r := range rows {
		if r[1] != "" {
			fmt.Fprintf(&b, "- **%s:** %s\n", r[0], r[1])
		}
	}
	b.WriteString("\n## Project\n\n")
	for _, r := range [][2]string{{"Package", sub.Package}, {"Budget", sub.Budget}, {"Timeline", sub.Timeline}} {
		if r[1] != "" {
			fmt.Fprintf(&b, "- **%s:** %s\n", r[0], r[1])
		}
	}
	b.WriteString("\n")
	b.WriteString(sub.Description)
	b.WriteString("\n")
	if len(sub.Files) > 0 {
		b.WriteString("\n## Files\n\n")
		for _, f := range sub.Files {
			fmt.Fprintf(&b, "- [%s](uploads/%s)\n", f, f)
		}
	}
	if len(sub.Previews) > 0 {
		b.WriteString("\n## Previews\n\n")
		for _, f := range sub.Previews {
			fmt.Fprintf(&b, "![%s](previews/%s)\n", f, f)
		}
	}
	fmt.Fprintf(&b, "\n---\nSubmission ID: %s\n", sub.ID)
	return b.String()
}

func (s *Service) notify(ctx context.Context, sub *Submission) {
	if s.notifyTo == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	msg := mail.Message{
		To:      []string{s.notifyTo},
		ReplyTo: sub.Email,
		Subject: "New intake: " + sub.BusinessName,
		Body: fmt.Sprintf("%s\nFolder: %s\nFiles: %d\n",
			Readme(sub), sub.Location, len(sub.Files)),
	}
	updates := map[string]interface{}{"notified": true, "notify_error": ""}
	if err := s.mailer.Send(ctx, msg); err != nil {
		slog.Warn("intake notification failed", "component", "intake", "id", sub.ID, "error", err)
		metrics.IntakeSubmissions.WithLabelValues("notify_failed").Inc()
		updates = map[string]interface{}{"notified": false, "notify_error": truncate(err.Error(), 500)}
	}
	if err := s.db.Model(sub).Updates(updates).Error; err != nil {
		slog.Error("failed to record intake notification", "component", "intake", "id", sub.ID, "error", err)
		return
	}
	sub.Notified = updates["notified"].(bool)
	sub.NotifyError = updates["notify_error"].(string)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// --- Staff ---

type Filter struct {
	Status string
	Query  string
	Limit  int
	Offset int
}

func (s *Service) List(f Filter) (*dto.ListResponse[Submission], error) {
	limit, offset := tenant.ClampPage(f.Limit, f.Offset)
	q := s.db.Model(&Submission{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		q = q.Where("LOWER(business_name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}
	items := []Submission{}
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return &dto.ListResponse[Submission]{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *Service) Get(id uuid.UUID) (*Submission, error) {
	var sub Submission
	if err := s.db.First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (s *Service) SetStatus(id uuid.UUID, status string) (*Submission, error) {
	sub, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(sub).Update("status", status).Error; err != nil {
		return nil, err
	}
	sub.Status = status
	return sub, nil
}
