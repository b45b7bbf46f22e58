package media

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeMediaNotFound   = "MEDIA_NOT_FOUND"
	TextCodeInvalidUpload   = "INVALID_UPLOAD"
	TextCodeUnsupportedType = "UNSUPPORTED_MEDIA_TYPE"

	DefaultMaxFileSize = 10 << 20
)

// File describes an uploaded file. Filename is the name on disk.
type File struct {
	ID           int        `json:"id"`
	Filename     string     `json:"filename"`
	OriginalName string     `json:"original_name"`
	MimeType     string     `json:"mime_type"`
	Size         int64      `json:"file_size"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	UploadedBy   *uuid.UUID `json:"uploaded_by,omitempty"`
	AltText      string     `json:"alt_text,omitempty"`
}

// URL is where the file is served from.
func (f File) URL() string {
	return "/uploads/" + f.Filename
}

func ErrMediaNotFound(ref string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("media %s not found", ref), goerrors.CategoryNotFound).
		WithTextCode(TextCodeMediaNotFound).
		WithCode(goerrors.CodeNotFound)
}

func ErrInvalidUpload(reason string) *goerrors.Error {
	return goerrors.New("invalid upload: "+reason, goerrors.CategoryBadInput).
		WithTextCode(TextCodeInvalidUpload).
		WithCode(goerrors.CodeBadRequest)
}

func ErrUnsupportedType(mimeType string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("media type %q is not accepted", mimeType), goerrors.CategoryBadInput).
		WithTextCode(TextCodeUnsupportedType).
		WithCode(http.StatusUnsupportedMediaType).
		WithMetadata(map[string]any{
			"mime_type": mimeType,
		})
}

var acceptedPrefixes = []string{"image/", "video/", "audio/"}

var acceptedTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// Accepted reports whether mimeType can be uploaded.
func Accepted(mimeType string) bool {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	for _, prefix := range acceptedPrefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return acceptedTypes[base]
}

// StoredName returns a unique file name whose extension matches mimeType.
// The extension of original is kept only when it maps to the same type.
func StoredName(original, mimeType string) string {
	return uuid.NewString() + extensionFor(original, mimeType)
}

func extensionFor(original, mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if ext != "" {
		if guessed, _, err := mime.ParseMediaType(mime.TypeByExtension(ext)); err == nil && guessed == base {
			return ext
		}
	}

	exts, err := mime.ExtensionsByType(base)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// Store keeps media metadata in memory.
type Store struct {
	mu     sync.RWMutex
	files  map[int]File
	nextID int
}

func NewStore() *Store {
	return &Store{files: map[int]File{}, nextID: 1}
}

func (s *Store) Add(f File) File {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.ID = s.nextID
	s.nextID++
	s.files[f.ID] = f
	return f
}

func (s *Store) ByID(id int) (File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return File{}, ErrMediaNotFound(fmt.Sprint(id))
	}
	return f, nil
}

// ByFilename finds a file by its name on disk.
func (s *Store) ByFilename(name string) (File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.files {
		if f.Filename == name {
			return f, nil
		}
	}
	return File{}, ErrMediaNotFound(fmt.Sprintf("%q", name))
}

func (s *Store) Delete(id int) (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return File{}, ErrMediaNotFound(fmt.Sprint(id))
	}
	delete(s.files, id)
	return f, nil
}

// SetAltText updates the alternative text of a file.
func (s *Store) SetAltText(id int, alt string) (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return File{}, ErrMediaNotFound(fmt.Sprint(id))
	}
	f.AltText = strings.TrimSpace(alt)
	s.files[id] = f
	return f, nil
}

// List returns all files, newest first.
func (s *Store) List() []File {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]File, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
