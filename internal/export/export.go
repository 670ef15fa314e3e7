// Package export renders decrypted vault items in portable formats and
// parses password-manager CSV files for import. It works on plain values
// only and never touches the store or the key.
package export

import (
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatText, FormatMarkdown:
		return f, nil
	}
	return "", common.NewValidationError("format", fmt.Sprintf("unsupported export format %q", s))
}

// Write renders items to w in format f.
func Write(w io.Writer, f Format, items []models.ExportedItem) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, items)
	case FormatCSV:
		return writeCSV(w, items)
	case FormatText:
		return writeText(w, items)
	case FormatMarkdown:
		return writeMarkdown(w, items)
	}
	return common.NewValidationError("format", fmt.Sprintf("unsupported export format %q", f))
}

// jsonItem is an item with its payload as standard base64.
type jsonItem struct {
	models.VaultItem
	Content string `json:"content,omitempty"`
}

func writeJSON(w io.Writer, items []models.ExportedItem) error {
	out := make([]jsonItem, 0, len(items))
	for _, it := range items {
		ji := jsonItem{VaultItem: it.Item}
		if it.Content != nil {
			ji.Content = base64.StdEncoding.EncodeToString(it.Content)
		}
		out = append(out, ji)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func text(b []byte) string {
	return strings.ToValidUTF8(string(b), "\ufffd")
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

var csvHeader = []string{"Name", "Type", "Content", "Tags", "Created At", "Updated At"}

func writeCSV(w io.Writer, items []models.ExportedItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, it := range items {
		rec := []string{
			it.Item.Name,
			it.Item.ItemType,
			text(it.Content),
			strings.Join(it.Item.Tags, ";"),
			stamp(it.Item.CreatedAt),
			stamp(it.Item.UpdatedAt),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeText(w io.Writer, items []models.ExportedItem) error {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "=== %s ===\n", it.Item.Name)
		fmt.Fprintf(&b, "Type: %s\n", it.Item.ItemType)
		if len(it.Item.Tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(it.Item.Tags, ", "))
		}
		fmt.Fprintf(&b, "Created: %s\n", stamp(it.Item.CreatedAt))
		fmt.Fprintf(&b, "Updated: %s\n", stamp(it.Item.UpdatedAt))
		if it.Content != nil {
			b.WriteString("\nContent:\n")
			b.WriteString(text(it.Content))
		}
		b.WriteString("\n\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeMarkdown(w io.Writer, items []models.ExportedItem) error {
	var b strings.Builder
	b.WriteString("# Vault Export\n\n")
	for _, it := range items {
		fmt.Fprintf(&b, "## %s\n\n", it.Item.Name)
		fmt.Fprintf(&b, "**Type:** %s\n\n", it.Item.ItemType)
		if len(it.Item.Tags) > 0 {
			quoted := make([]string, len(it.Item.Tags))
			for i, t := range it.Item.Tags {
				quoted[i] = "`" + t + "`"
			}
			fmt.Fprintf(&b, "**Tags:** %s\n\n", strings.Join(quoted, ", "))
		}
		fmt.Fprintf(&b, "**Created:** %s\n\n", stamp(it.Item.CreatedAt))
		fmt.Fprintf(&b, "**Updated:** %s\n\n", stamp(it.Item.UpdatedAt))
		if it.Content != nil {
			b.WriteString("### Content\n\n```\n")
			b.WriteString(text(it.Content))
			b.WriteString("\n```\n\n")
		}
		b.WriteString("---\n\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
