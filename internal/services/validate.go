package services

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

func validatePassphrase(field string, p []byte) error {
	if len(p) == 0 {
		return common.NewValidationError(field, "cannot be empty")
	}
	return nil
}

// validateName trims name and checks it. Folder names additionally reject
// path separators.
func validateName(name string, folder bool) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", common.NewValidationError("name", "cannot be empty")
	case utf8.RuneCountInString(name) > common.MaxNameLength:
		return "", common.NewValidationError("name", "too long")
	case hasControl(name):
		return "", common.NewValidationError("name", "contains invalid characters")
	case folder && strings.ContainsAny(name, `/\`):
		return "", common.NewValidationError("name", "folder name cannot contain path separators")
	}
	return name, nil
}

// validateTags trims every tag, drops duplicates and checks the limits.
func validateTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t, err := validateTag("tags", t)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	if len(out) > common.MaxTagsPerItem {
		return nil, common.NewValidationError("tags", "too many tags")
	}
	return out, nil
}

func validateTag(field, tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	switch {
	case tag == "":
		return "", common.NewValidationError(field, "tag cannot be empty")
	case utf8.RuneCountInString(tag) > common.MaxTagLength:
		return "", common.NewValidationError(field, "tag too long")
	case hasControl(tag):
		return "", common.NewValidationError(field, "tag contains invalid characters")
	}
	return tag, nil
}

func validateContent(content []byte) error {
	switch {
	case len(content) == 0:
		return common.NewValidationError("content", "cannot be empty")
	case len(content) > common.MaxContentLength:
		return common.NewValidationError("content", "too large")
	}
	return nil
}

// validateSourcePath rejects traversal sequences and home shortcuts before
// the path is resolved.
func validateSourcePath(p string) error {
	switch {
	case strings.TrimSpace(p) == "":
		return common.NewValidationError("path", "cannot be empty")
	case strings.Contains(p, ".."), strings.Contains(p, "~"):
		return common.NewValidationError("path", "contains invalid characters")
	}
	return nil
}

func validateTheme(theme string) (string, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" || hasControl(theme) || utf8.RuneCountInString(theme) > common.MaxTagLength {
		return "", common.NewValidationError("theme", "invalid theme name")
	}
	return theme, nil
}
