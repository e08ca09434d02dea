package model

import "strings"

const fallbackFileName = "file"

// markupRunes are characters with special meaning in the rich-text renderer.
// Stored names must never be able to inject markup when referenced from text.
const markupRunes = "*_[]()!"

// SanitizeFileName cleans an incoming attachment name. Path components and
// traversal sequences are stripped so only a bare filename remains, control
// characters and markup characters are replaced with '-', and a name that
// sanitizes to empty becomes a fixed fallback. Deterministic and total.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "." || name == ".." {
		name = ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteByte('-')
		case strings.ContainsRune(markupRunes, r):
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	if cleaned == "" {
		return fallbackFileName
	}
	return cleaned
}
