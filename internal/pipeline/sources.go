package pipeline

import (
	"bytes"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"finstat/internal"
	"finstat/internal/util"
)

// PageSource turns raw document bytes into one text string per page, in
// page order. Lines within a page are separated by "\n".
type PageSource func(content []byte) ([]string, error)

// ErrUnsupportedKind is returned for document kinds without a page source.
var ErrUnsupportedKind = eris.New("unsupported document kind")

func PagesFor(kind internal.DocumentKind) (PageSource, error) {
	switch kind {
	case internal.DocPDF:
		return PDFPages, nil
	case internal.DocHTML:
		return HTMLPages, nil
	case internal.DocXLSX:
		return XLSXPages, nil
	case internal.DocText:
		return TextPages, nil
	default:
		return nil, eris.Wrapf(ErrUnsupportedKind, "kind %q", kind)
	}
}

// LoadPages reads a file from disk and splits it into pages.
func LoadPages(kind internal.DocumentKind, path string) ([]string, error) {
	source, err := PagesFor(kind)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return source(blob)
}

// PDFPages keeps one entry per physical page. Pages without a text layer
// yield an empty string so page numbers stay aligned.
func PDFPages(content []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, eris.Wrap(err, "open pdf")
	}

	out := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			out = append(out, "")
			continue
		}
		out = append(out, pdfPageText(p))
	}
	return out, nil
}

func pdfPageText(p pdf.Page) string {
	rows, err := p.GetTextByRow()
	if err != nil || len(rows) == 0 {
		text, err := p.GetPlainText(nil)
		if err != nil {
			return ""
		}
		return strings.Join(util.SplitLines(text), "\n")
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		prevEnd := -1.0
		for _, word := range row.Content {
			// Words placed apart without a space glyph still need a separator.
			if prevEnd >= 0 && word.W > 0 && word.X-prevEnd > word.FontSize*0.25 {
				b.WriteByte(' ')
			}
			b.WriteString(word.S)
			prevEnd = word.X + word.W
		}
		if line := util.NormalizeSpaces(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

const htmlBlocks = "h1,h2,h3,h4,h5,h6,p,li,tr,caption,dt,dd"

// HTMLPages renders an HTML report as text. Elements marked as pages
// (class "page" or a data-page attribute) become separate pages; otherwise
// the whole document is one page. Table rows become single lines with their
// cells separated by spaces.
func HTMLPages(content []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, eris.Wrap(err, "parse html")
	}
	doc.Find("script,style,noscript").Remove()

	pages := doc.Find(".page,[data-page]")
	if pages.Length() == 0 {
		return []string{htmlText(doc.Selection)}, nil
	}

	out := make([]string, 0, pages.Length())
	pages.Each(func(_ int, page *goquery.Selection) {
		out = append(out, htmlText(page))
	})
	return out, nil
}

func htmlText(root *goquery.Selection) string {
	lines := []string{}
	root.Find(htmlBlocks).Each(func(_ int, block *goquery.Selection) {
		if block.ParentsFiltered("tr,li,p").Length() > 0 {
			return
		}
		if goquery.NodeName(block) == "tr" {
			cells := []string{}
			block.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				if text := util.NormalizeSpaces(cell.Text()); text != "" {
					cells = append(cells, text)
				}
			})
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " "))
			}
			return
		}
		if text := util.NormalizeSpaces(block.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		return strings.Join(util.SplitLines(root.Text()), "\n")
	}
	return strings.Join(lines, "\n")
}

// XLSXPages treats each worksheet as a page. The sheet name is the first line
// so headings such as "Balance sheet ($m)" reach the context window.
func XLSXPages(content []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, eris.Wrap(err, "open xlsx")
	}
	defer f.Close()

	out := []string{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			out = append(out, "")
			continue
		}
		lines := []string{sheet}
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				if c = util.NormalizeSpaces(c); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " "))
			}
		}
		out = append(out, strings.Join(lines, "\n"))
	}
	return out, nil
}

// TextPages splits plain text on form feeds.
func TextPages(content []byte) ([]string, error) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	return strings.Split(text, "\f"), nil
}
