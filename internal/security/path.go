package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal  = errors.New("path traversal detected")
	ErrAbsolutePath   = errors.New("absolute paths are not allowed")
	ErrReservedName   = errors.New("reserved filename not allowed")
	ErrHyphenFilename = errors.New("filename cannot start with hyphen")
	ErrEmptyPath      = errors.New("path cannot be empty")

	windowsReservedNames = map[string]bool{
		"con": true, "prn": true, "aux": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true,
		"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
		"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
		"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	}
)

// ValidateExportPath checks a destination for an exported book. Absolute
// paths are accepted only when allowAbsolute is set; a relative path may
// never climb out of the working directory.
func ValidateExportPath(path string, allowAbsolute bool) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyPath
	}

	if filepath.IsAbs(path) {
		if !allowAbsolute {
			return ErrAbsolutePath
		}
	} else {
		cleaned := filepath.Clean(path)
		if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			return ErrPathTraversal
		}
	}

	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return ErrPathTraversal
		}
	}

	base := filepath.Base(path)
	nameWithoutExt := strings.TrimSuffix(strings.ToLower(base), filepath.Ext(base))
	if windowsReservedNames[nameWithoutExt] {
		return fmt.Errorf("%w: %s", ErrReservedName, base)
	}

	if strings.HasPrefix(base, "-") {
		return ErrHyphenFilename
	}

	return nil
}

// SanitizeFilename makes name safe to use as a single path element or as
// a download filename.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "",
		"<", "", ">", "", "|", "", "\x00", "",
		"\r", "", "\n", "",
	)
	sanitized := replacer.Replace(name)
	sanitized = strings.TrimLeft(sanitized, ".- ")
	sanitized = strings.TrimRight(sanitized, ". ")

	nameWithoutExt := strings.TrimSuffix(strings.ToLower(sanitized), filepath.Ext(sanitized))
	if windowsReservedNames[nameWithoutExt] {
		sanitized = sanitized + "_"
	}

	if sanitized == "" {
		sanitized = "file"
	}

	return sanitized
}
