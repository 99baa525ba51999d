package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const (
	docxDefaultBody  = "word/document.xml"
	docxContentTypes = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// Override elements name the main part; attribute order varies between producers.
	docxPartBefore = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"`)
	docxPartAfter  = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"[^>]+PartName="([^"]+)"`)

	docxText      = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	docxParagraph = regexp.MustCompile(`</w:p>`)
	// Explicit page breaks and section breaks starting a new page.
	docxPageBreak = regexp.MustCompile(`<w:br[^>]*w:type="page"[^>]*/>|<w:pageBreakBefore\s*/>`)
)

// extractDOCX returns one part per explicitly broken page of the main document body. A
// document with no page breaks is a single unnumbered part. Runs are joined with spaces and
// paragraphs with newlines. lu4p/cat is not used for DOCX because it misses paragraphs that
// carry attributes.
func extractDOCX(content []byte) ([]Part, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}
	body := docxBodyPath(zr)
	raw, err := readZipFile(zr, body)
	if err != nil {
		return nil, err
	}

	pages := docxPageBreak.Split(string(raw), -1)
	if len(pages) == 1 {
		return []Part{{Text: docxPlainText(pages[0])}}, nil
	}
	parts := make([]Part, len(pages))
	for i, p := range pages {
		parts[i] = Part{Number: i + 1, Label: strconv.Itoa(i + 1), Text: docxPlainText(p)}
	}
	return parts, nil
}

func docxPlainText(xml string) string {
	var lines []string
	for _, para := range docxParagraph.Split(xml, -1) {
		runs := docxText.FindAllStringSubmatch(para, -1)
		if len(runs) == 0 {
			continue
		}
		words := make([]string, 0, len(runs))
		for _, r := range runs {
			if t := strings.TrimSpace(r[1]); t != "" {
				words = append(words, t)
			}
		}
		if len(words) > 0 {
			lines = append(lines, strings.Join(words, " "))
		}
	}
	return strings.Join(lines, "\n")
}

// docxBodyPath finds the main document part from [Content_Types].xml, falling back to
// word/document.xml.
func docxBodyPath(zr *zip.Reader) string {
	raw, err := readZipFile(zr, docxContentTypes)
	if err != nil {
		return docxDefaultBody
	}
	for _, re := range []*regexp.Regexp{docxPartBefore, docxPartAfter} {
		if m := re.FindSubmatch(raw); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDefaultBody
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
