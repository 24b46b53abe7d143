package pipeline

import (
	"bytes"
	"testing"

	"github.com/jhillyerd/enmime"

	"finstat/internal"
)

func mkMail(t *testing.T) []byte {
	t.Helper()
	part, err := enmime.Builder().
		From("Investor Relations", "ir@bank.test").
		To("Analyst", "analyst@example.test").
		Subject("FY24 annual report").
		Text([]byte("Please find the report attached.")).
		AddAttachment([]byte("Total assets 1,000"), "text/plain", "summary.txt").
		AddAttachment([]byte{0x89, 0x50, 0x4e, 0x47}, "image/png", "logo.png").
		AddAttachment([]byte("%PDF-1.4"), "application/octet-stream", "report.PDF").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseMail(t *testing.T) {
	content, err := ParseMail(mkMail(t))
	if err != nil {
		t.Fatal(err)
	}
	if content.Subject != "FY24 annual report" {
		t.Fatalf("subject=%q", content.Subject)
	}
	if len(content.Attachments) != 2 {
		t.Fatalf("attachments=%+v", content.Attachments)
	}
	if content.Attachments[0].Kind != internal.DocText || content.Attachments[1].Kind != internal.DocPDF {
		t.Fatalf("kinds=%s %s", content.Attachments[0].Kind, content.Attachments[1].Kind)
	}
	if len(content.Skipped) != 1 || content.Skipped[0] != "logo.png" {
		t.Fatalf("skipped=%v", content.Skipped)
	}
}

func TestKindFromName(t *testing.T) {
	cases := []struct {
		name, ctype string
		want        internal.DocumentKind
		ok          bool
	}{
		{"report.pdf", "", internal.DocPDF, true},
		{"figures.XLSX", "", internal.DocXLSX, true},
		{"page", "text/html; charset=utf-8", internal.DocHTML, true},
		{"notes.docx", "application/msword", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := KindFromName(tc.name, tc.ctype)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("got %s %v", got, ok)
			}
		})
	}
}
