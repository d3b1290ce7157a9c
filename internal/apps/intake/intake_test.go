package intake

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/mail"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/storage"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fixture struct {
	db      *gorm.DB
	root    string
	mailer  *recordingMailer
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t, New(nil, nil).Models()...)
	root := t.TempDir()
	store, err := storage.NewLocal(root)
	require.NoError(t, err)

	cfg := testutil.Config()
	cfg.IntakeNotifyEmail = "studio@linkmarket.test"
	mailer := &recordingMailer{}
	svc := NewService(db, store, mailer, cfg)
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC) }
	return &fixture{db: db, root: root, mailer: mailer, service: svc}
}

func validForm() Form {
	return Form{
		BusinessName: "Kasi Coffee Co.",
		ContactName:  "Naledi",
		Email:        "Naledi@KasiCoffee.co.za",
		Phone:        "+27 82 000 0000",
		Package:      "growth",
		Budget:       "R15k-R25k",
		Timeline:     "6 weeks",
		Description:  "We need a storefront and a bio page for our roastery.",
	}
}

func upload(name, body string) Upload {
	return Upload{
		Name: name,
		Size: int64(len(body)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
	}
}

func TestFolderAndFileNames(t *testing.T) {
	id := uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	at := time.Date(2026, 5, 4, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-05-04_kasi-coffee-co_1b4e28ba", FolderName(at, "Kasi Coffee Co.", id))
	assert.Equal(t, "2026-05-04_client_1b4e28ba", FolderName(at, "!!!", id))

	assert.Equal(t, "brand-guide.pdf", SafeFileName("../../Brand Guide.PDF"))
	assert.Equal(t, "logo.png", SafeFileName(`C:\Users\naledi\logo.png`))
	assert.Equal(t, "file.txt", SafeFileName("???.txt"))
}

func TestSubmitWritesFolderAndNotifies(t *testing.T) {
	f := newFixture(t)

	sub, err := f.service.Submit(context.Background(), validForm(), []Upload{
		upload("brief.pdf", "%PDF-1.4"),
		upload("Brief.pdf", "%PDF-1.4 v2"),
		upload("logo.PNG", "png"),
	})
	require.NoError(t, err)

	assert.Equal(t, "naledi@kasicoffee.co.za", sub.Email)
	assert.Equal(t, StatusNew, sub.Status)
	assert.True(t, strings.HasPrefix(sub.Folder, "2026-05-04_kasi-coffee-co_"))
	assert.Equal(t, []string{"brief.pdf", "brief-2.pdf", "logo.png"}, []string(sub.Files))
	assert.Empty(t, sub.Previews, "undecodable images are stored without a preview")

	dir := filepath.Join(f.root, sub.Folder)
	data, err := os.ReadFile(filepath.Join(dir, "uploads", "brief-2.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 v2", string(data))

	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "# Kasi Coffee Co.")
	assert.Contains(t, string(readme), "- [logo.png](uploads/logo.png)")

	raw, err := os.ReadFile(filepath.Join(dir, "submission.json"))
	require.NoError(t, err)
	var snapshot Submission
	require.NoError(t, json.Unmarshal(raw, &snapshot))
	assert.Equal(t, sub.ID, snapshot.ID)
	assert.Equal(t, "growth", snapshot.Package)

	var stored Submission
	require.NoError(t, f.db.First(&stored, "id = ?", sub.ID).Error)
	assert.True(t, stored.Notified)
	assert.Len(t, stored.Files, 3)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, []string{"studio@linkmarket.test"}, msg.To)
	assert.Equal(t, "naledi@kasicoffee.co.za", msg.ReplyTo)
	assert.Contains(t, msg.Subject, "Kasi Coffee Co.")
}

func TestSubmitRejectsBadInputWithoutWriting(t *testing.T) {
	f := newFixture(t)

	form := validForm()
	form.Email = "not-an-email"
	_, err := f.service.Submit(context.Background(), form, nil)
	assert.ErrorIs(t, err, ErrInvalidForm)

	_, err = f.service.Submit(context.Background(), validForm(), []Upload{upload("payload.exe", "MZ")})
	assert.ErrorIs(t, err, ErrFileType)

	tooMany := []Upload{upload("a.txt", "a"), upload("b.txt", "b"), upload("c.txt", "c"), upload("d.txt", "d")}
	_, err = f.service.Submit(context.Background(), validForm(), tooMany)
	assert.ErrorIs(t, err, ErrTooManyFiles)

	big := Upload{Name: "huge.zip", Size: 2 << 20, Open: func() (io.ReadCloser, error) { return nil, errors.New("unreachable") }}
	_, err = f.service.Submit(context.Background(), validForm(), []Upload{big})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	var count int64
	f.db.Model(&Submission{}).Count(&count)
	assert.Zero(t, count)
	assert.Empty(t, f.mailer.sent)
}

func TestMailFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp: connection refused")

	sub, err := f.service.Submit(context.Background(), validForm(), nil)
	require.NoError(t, err)
	assert.False(t, sub.Notified)
	assert.Contains(t, sub.NotifyError, "connection refused")

	var stored Submission
	require.NoError(t, f.db.First(&stored, "id = ?", sub.ID).Error)
	assert.Equal(t, "smtp: connection refused", stored.NotifyError)
}

func TestStaffListingAndStatus(t *testing.T) {
	f := newFixture(t)
	first, err := f.service.Submit(context.Background(), validForm(), nil)
	require.NoError(t, err)
	other := validForm()
	other.BusinessName = "Umoya Studio"
	other.Email = "hello@umoya.test"
	_, err = f.service.Submit(context.Background(), other, nil)
	require.NoError(t, err)

	resp, err := f.service.List(Filter{Query: "umoya"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.Total)
	assert.Equal(t, "Umoya Studio", resp.Items[0].BusinessName)

	_, err = f.service.SetStatus(first.ID, StatusReviewed)
	require.NoError(t, err)
	resp, err = f.service.List(Filter{Status: StatusNew})
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.Total)

	_, err = f.service.Get(uuid.New())
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestSubmitEndpoint(t *testing.T) {
	f := newFixture(t)
	app := fiber.New()
	h := NewHandler(f.service)
	app.Post("/intake", h.Submit)

	fields := map[string]string{
		"business_name": "Soweto Sneakers",
		"contact_name":  "Tumi",
		"email":         "tumi@sneakers.test",
		"description":   "Online store for limited sneaker drops.",
	}
	body, contentType := multipartBody(t, fields, map[string]string{"moodboard.jpg": "jpeg-bytes"})
	req := httptest.NewRequest("POST", "/intake", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Files)
	_, err = os.Stat(filepath.Join(f.root, out.Folder, "uploads", "moodboard.jpg"))
	assert.NoError(t, err)

	body, contentType = multipartBody(t, fields, map[string]string{"script.sh": "#!/bin/sh"})
	req = httptest.NewRequest("POST", "/intake", body)
	req.Header.Set("Content-Type", contentType)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)

	req = httptest.NewRequest("POST", "/intake", strings.NewReader(`{"business_name":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSubmitWritesImagePreviews(t *testing.T) {
	f := newFixture(t)

	img := image.NewNRGBA(image.Rect(0, 0, 800, 400))
	for x := 0; x < 800; x++ {
		img.Set(x, x%400, color.NRGBA{R: 200, G: 120, B: 40, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	sub, err := f.service.Submit(context.Background(), validForm(), []Upload{
		upload("Shop Front.png", buf.String()),
		upload("menu.pdf", "%PDF-1.4"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"shop-front.jpg"}, []string(sub.Previews))

	file, err := os.Open(filepath.Join(f.root, sub.Folder, "previews", "shop-front.jpg"))
	require.NoError(t, err)
	defer file.Close()
	cfg, format, err := image.DecodeConfig(file)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 160, cfg.Height)

	readme, err := os.ReadFile(filepath.Join(f.root, sub.Folder, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "![shop-front.jpg](previews/shop-front.jpg)")
}

// pngHeader returns a 1x1 grayscale PNG whose IHDR claims w by h pixels.
func pngHeader(t *testing.T, w, h uint32) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	b := buf.Bytes()
	binary.BigEndian.PutUint32(b[16:20], w)
	binary.BigEndian.PutUint32(b[20:24], h)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return string(b)
}

func TestOversizedImageGetsNoPreview(t *testing.T) {
	f := newFixture(t)
	huge := upload("billboard.png", pngHeader(t, 10000, 5000))

	assert.ErrorIs(t, checkPreviewSize(huge), ErrPreviewTooLarge)
	assert.NoError(t, checkPreviewSize(upload("small.png", pngHeader(t, 4000, 3000))))

	sub, err := f.service.Submit(context.Background(), validForm(), []Upload{huge})
	require.NoError(t, err)
	assert.Equal(t, []string{"billboard.png"}, []string(sub.Files))
	assert.Empty(t, sub.Previews)

	_, err = os.Stat(filepath.Join(f.root, sub.Folder, "uploads", "billboard.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(f.root, sub.Folder, "previews"))
	assert.True(t, os.IsNotExist(err))
}

func TestFailedSubmitRemovesPartialFolder(t *testing.T) {
	f := newFixture(t)

	broken := Upload{Name: "b.txt", Size: 1, Open: func() (io.ReadCloser, error) { return nil, errors.New("client went away") }}
	_, err := f.service.Submit(context.Background(), validForm(), []Upload{upload("a.txt", "a"), broken})
	require.Error(t, err)
	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload failure")

	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.service.Submit(context.Background(), validForm(), []Upload{upload("a.txt", "a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save intake submission")
	entries, err = os.ReadDir(f.root)
	require.NoError(t, err)
	assert.Empty(t, entries, "database failure")
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := "x" + strings.Repeat("é", 300)
	out := truncate(s, 500)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, 499, len(out))
	assert.Equal(t, "abc", truncate("abc", 500))
}
