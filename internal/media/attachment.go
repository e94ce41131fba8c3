// Package media classifies and validates files before they may be attached
// to an outgoing chat message. Every check is local: nothing here touches the
// network.
package media

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Category is the coarse media class of an attachment or a received file.
type Category string

const (
	CategoryUnknown Category = ""
	CategoryImage   Category = "image"
	CategoryVideo   Category = "video"
	CategoryAudio   Category = "audio"
)

// allowedTypes maps every accepted MIME type to its category.
var allowedTypes = map[string]Category{
	"image/jpeg": CategoryImage,
	"image/png":  CategoryImage,
	"image/gif":  CategoryImage,
	"image/webp": CategoryImage,
	"video/mp4":  CategoryVideo,
	"video/avi":  CategoryVideo,
	"video/webm": CategoryVideo,
	"audio/mp3":  CategoryAudio,
	"audio/mpeg": CategoryAudio,
	"audio/wav":  CategoryAudio,
}

// extensionTypes resolves the MIME type of the extensions the picker offers.
// mime.TypeByExtension is consulted only for anything not listed here since
// its answers depend on the host's mime tables.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".avi":  "video/avi",
	".webm": "video/webm",
	".mp3":  "audio/mp3",
	".wav":  "audio/wav",
}

// CategoryOf returns the category of an allowed MIME type, or
// CategoryUnknown when the type is not accepted.
func CategoryOf(mimeType string) Category {
	return allowedTypes[baseType(mimeType)]
}

// baseType strips parameters from a MIME type and lowercases it.
func baseType(mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return base
}

// CategoryFromURL derives the category of a server-hosted file from its
// extension. Video and audio extensions are recognised; anything else
// renders as an image.
func CategoryFromURL(u string) Category {
	if u == "" {
		return CategoryUnknown
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch strings.ToLower(path.Ext(u)) {
	case ".mp4", ".avi", ".webm":
		return CategoryVideo
	case ".mp3", ".wav":
		return CategoryAudio
	default:
		return CategoryImage
	}
}

// Attachment is a file picked by the user. Size is the declared size and is
// trusted by the size checks without reading the content.
type Attachment interface {
	Name() string
	ContentType() string
	Size() int64
	Open() (io.ReadSeekCloser, error)
}

type localFile struct {
	path        string
	contentType string
	size        int64
}

// OpenFile stats a file on disk and returns it as an Attachment. The MIME
// type comes from the extension, falling back to content sniffing.
func OpenFile(p string) (Attachment, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("media: stat %s: %w", p, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("media: %s is a directory", p)
	}

	ct := typeByExtension(p)
	if ct == "" {
		ct, err = sniff(p)
		if err != nil {
			return nil, err
		}
	}
	return &localFile{path: p, contentType: ct, size: info.Size()}, nil
}

func (f *localFile) Name() string        { return filepath.Base(f.path) }
func (f *localFile) ContentType() string { return f.contentType }
func (f *localFile) Size() int64         { return f.size }

func (f *localFile) Open() (io.ReadSeekCloser, error) {
	return os.Open(f.path)
}

func typeByExtension(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		base, _, err := mime.ParseMediaType(ct)
		if err == nil {
			return base
		}
	}
	return ""
}

func sniff(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("media: open %s: %w", p, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("media: read %s: %w", p, err)
	}
	base, _, _ := mime.ParseMediaType(http.DetectContentType(head[:n]))
	return base, nil
}

type bytesAttachment struct {
	name        string
	contentType string
	data        []byte
}

// NewBytesAttachment wraps in-memory content as an Attachment.
func NewBytesAttachment(name, contentType string, data []byte) Attachment {
	return &bytesAttachment{name: name, contentType: contentType, data: data}
}

func (b *bytesAttachment) Name() string        { return b.name }
func (b *bytesAttachment) ContentType() string { return b.contentType }
func (b *bytesAttachment) Size() int64         { return int64(len(b.data)) }

func (b *bytesAttachment) Open() (io.ReadSeekCloser, error) {
	return nopCloser{bytes.NewReader(b.data)}, nil
}

type nopCloser struct {
	io.ReadSeeker
}

func (nopCloser) Close() error { return nil }
