package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/kura/internal/models"
)

var (
	slidePathRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	atTag       = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
)

// extractPPTX returns one page per slide, ordered by slide number.
func extractPPTX(content []byte) ([]models.Page, error) {
	zr, err := openZip(content)
	if err != nil {
		return nil, fmt.Errorf("extract PPTX: %w", err)
	}
	var pages []models.Page
	for _, f := range zr.File {
		m := slidePathRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		var parts []string
		for _, t := range atTag.FindAllSubmatch(data, -1) {
			if s := strings.TrimSpace(string(t[1])); s != "" {
				parts = append(parts, s)
			}
		}
		pages = append(pages, models.Page{Number: n, Text: strings.Join(parts, "\n")})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}
