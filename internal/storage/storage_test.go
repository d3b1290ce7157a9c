package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"2026-03-01_acme_1/README.md", "2026-03-01_acme_1/README.md", true},
		{"a/./b/../c.txt", "a/c.txt", true},
		{"", "", false},
		{"/etc/passwd", "", false},
		{"../escape.txt", "", false},
		{"a/../../escape.txt", "", false},
		{"a\\b", "", false},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.key)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidKey, tt.key)
			continue
		}
		require.NoError(t, err, tt.key)
		assert.Equal(t, tt.want, got)
	}
}

func TestLocalPut(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)

	err = store.Put(context.Background(), "folder/uploads/logo.png", strings.NewReader("png"), "image/png")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "folder", "uploads", "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, filepath.Join(root, "folder", "uploads", "logo.png"), store.Location("folder/uploads/logo.png"))

	assert.ErrorIs(t, store.Put(context.Background(), "../x", strings.NewReader(""), ""), ErrInvalidKey)
}

func TestNewDriverSelection(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, &config.Config{StorageDriver: "local", IntakeDir: t.TempDir()})
	require.NoError(t, err)
	_, ok := s.(*Local)
	assert.True(t, ok)

	_, err = New(ctx, &config.Config{StorageDriver: "s3"})
	assert.Error(t, err)

	_, err = New(ctx, &config.Config{StorageDriver: "ftp"})
	assert.Error(t, err)

	s, err = New(ctx, &config.Config{
		StorageDriver: "s3",
		S3Bucket:      "intake",
		S3Region:      "af-south-1",
		S3Endpoint:    "http://localhost:9000",
		S3AccessKey:   "key",
		S3SecretKey:   "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://intake/a/b.txt", s.Location("a/b.txt"))
}

func TestLocalDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "gone/uploads/a.txt", strings.NewReader("a"), "text/plain"))
	require.NoError(t, store.Put(ctx, "gone/README.md", strings.NewReader("#"), "text/markdown"))
	require.NoError(t, store.Put(ctx, "kept/README.md", strings.NewReader("#"), "text/markdown"))

	require.NoError(t, store.Delete(ctx, "gone"))
	_, err = os.Stat(filepath.Join(root, "gone"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "kept", "README.md"))
	assert.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "never-written"))
	assert.ErrorIs(t, store.Delete(ctx, "../"), ErrInvalidKey)
}

func TestS3DeleteRemovesListedKeys(t *testing.T) {
	var (
		mu         sync.Mutex
		listPrefix string
		deleteBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/xml")
		switch {
		case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
			listPrefix = r.URL.Query().Get("prefix")
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
<Name>intake</Name><Prefix>folder/</Prefix><KeyCount>2</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>
<Contents><Key>folder/README.md</Key><Size>1</Size></Contents>
<Contents><Key>folder/uploads/a.txt</Key><Size>1</Size></Contents>
</ListBucketResult>`)
		case r.Method == http.MethodPost && r.URL.Query().Has("delete"):
			b, _ := io.ReadAll(r.Body)
			deleteBody = string(b)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	defer srv.Close()

	store, err := NewS3(context.Background(), &config.Config{
		S3Bucket:    "intake",
		S3Region:    "af-south-1",
		S3Endpoint:  srv.URL,
		S3AccessKey: "key",
		S3SecretKey: "secret",
	})
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), "folder"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "folder/", listPrefix)
	assert.Contains(t, deleteBody, "<Key>folder/README.md</Key>")
	assert.Contains(t, deleteBody, "<Key>folder/uploads/a.txt</Key>")
}
