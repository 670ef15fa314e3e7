package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

// Column names understood by ParseCSV, per field in order of preference.
// Matching is exact: browser exports use lower-case headers and password
// managers use title case.
var (
	titleColumns    = []string{"Account", "Title", "name", "hostname"}
	usernameColumns = []string{"Login Name", "Username", "username"}
	passwordColumns = []string{"Password", "password"}
	urlColumns      = []string{"Web Site", "URL", "url"}
	notesColumns    = []string{"Comments", "Notes"}
	tagsColumns     = []string{"Tags"}
)

// ImportResult summarises a CSV parse.
type ImportResult struct {
	Items   []models.NewTextItem
	Rows    int
	Skipped int
}

// ParseCSV reads a password-manager or browser CSV export with a header row
// and turns each usable row into a key item. Rows without a title (or a URL
// to derive one from) or without any content are skipped. Rows may have
// fewer or more fields than the header.
func ParseCSV(r io.Reader) (*ImportResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &ImportResult{}, nil
	}
	if err != nil {
		return nil, common.NewValidationError("csv", fmt.Sprintf("error parsing header: %v", err))
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		if _, ok := idx[h]; !ok {
			idx[h] = i
		}
	}

	res := &ImportResult{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		res.Rows++
		if err != nil {
			return nil, common.NewValidationError("csv", fmt.Sprintf("error parsing row %d: %v", res.Rows, err))
		}

		get := func(cols []string) string {
			for _, c := range cols {
				if i, ok := idx[c]; ok && i < len(rec) {
					if v := strings.TrimSpace(rec[i]); v != "" {
						return v
					}
				}
			}
			return ""
		}

		url := get(urlColumns)
		title := get(titleColumns)
		if title == "" {
			title = hostFromURL(url)
		}
		if title == "" {
			res.Skipped++
			continue
		}

		content := buildContent(get(usernameColumns), get(passwordColumns), url, get(notesColumns))
		if content == "" {
			res.Skipped++
			continue
		}

		res.Items = append(res.Items, models.NewTextItem{
			Name:     title,
			ItemType: models.ItemTypeKey,
			Content:  []byte(content),
			Tags:     splitTags(get(tagsColumns)),
		})
	}
	return res, nil
}

// hostFromURL drops the scheme and everything from the first slash.
func hostFromURL(u string) string {
	u = strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
	host, _, _ := strings.Cut(u, "/")
	return strings.TrimSpace(host)
}

func buildContent(username, password, url, notes string) string {
	var parts []string
	for _, f := range []struct{ label, value string }{
		{"Username", username},
		{"Password", password},
		{"URL", url},
		{"Notes", notes},
	} {
		if f.value != "" {
			parts = append(parts, f.label+": "+f.value)
		}
	}
	return strings.Join(parts, "\n\n")
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
