// Package models defines types shared across internal packages.
package models

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// previewTypes are the MIME types a presentation layer can render inline.
var previewTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"application/pdf": true,
}

// FileEntry is a pending local file. Entries are compared by pointer:
// two entries may carry the same name while a conflict is being resolved.
type FileEntry struct {
	Name     string
	Size     int64
	MIMEType string
	Content  []byte
}

// NewFileEntry builds an entry from a name and its content. The name is
// NFC-normalized so lookups against the remote index match regardless
// of how the local filesystem composed it.
func NewFileEntry(name string, content []byte) *FileEntry {
	name = NormalizeName(name)

	return &FileEntry{
		Name:     name,
		Size:     int64(len(content)),
		MIMEType: detectMIME(name, content),
		Content:  content,
	}
}

// Rename returns a new entry with the same content and MIME type under a
// different name. The receiver is left untouched.
func (f *FileEntry) Rename(name string) *FileEntry {
	return &FileEntry{
		Name:     NormalizeName(name),
		Size:     f.Size,
		MIMEType: f.MIMEType,
		Content:  f.Content,
	}
}

// Previewable reports whether the entry's MIME type can be previewed.
func (f *FileEntry) Previewable() bool {
	return previewTypes[f.MIMEType]
}

// NormalizeName trims surrounding whitespace and applies Unicode NFC.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// SplitExt splits a file name into base and extension. The extension
// includes the leading dot. Dotfiles without a further dot (".env") have
// no extension.
func SplitExt(name string) (base, ext string) {
	ext = path.Ext(name)
	if ext == name {
		return name, ""
	}

	return strings.TrimSuffix(name, ext), ext
}

func detectMIME(name string, content []byte) string {
	_, ext := SplitExt(name)
	if ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			if mt, _, err := mime.ParseMediaType(t); err == nil {
				return mt
			}

			return t
		}
	}

	t := http.DetectContentType(content)
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}

	return t
}
