package pipeline

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/rotisserie/eris"

	"finstat/internal"
)

type MailAttachment struct {
	FileName    string
	ContentType string
	Kind        internal.DocumentKind
	Content     []byte
}

type MailContent struct {
	Subject     string
	From        string
	Attachments []MailAttachment
	// Skipped lists attachment names that are not report documents.
	Skipped []string
}

// ParseMail reads a raw RFC 822 message and keeps the attachments that can be
// processed as reports.
func ParseMail(raw []byte) (MailContent, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return MailContent{}, eris.Wrap(err, "parse mail")
	}

	out := MailContent{Subject: env.GetHeader("Subject"), From: env.GetHeader("From")}
	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	for _, att := range parts {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			name = "attachment"
		}
		kind, ok := KindFromName(name, att.ContentType)
		if !ok {
			out.Skipped = append(out.Skipped, name)
			continue
		}
		out.Attachments = append(out.Attachments, MailAttachment{
			FileName:    name,
			ContentType: att.ContentType,
			Kind:        kind,
			Content:     att.Content,
		})
	}
	return out, nil
}

// KindFromName picks a document kind from a file extension, falling back to
// the MIME type.
func KindFromName(name, contentType string) (internal.DocumentKind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return internal.DocPDF, true
	case ".xlsx", ".xlsm":
		return internal.DocXLSX, true
	case ".html", ".htm":
		return internal.DocHTML, true
	case ".txt", ".text":
		return internal.DocText, true
	}

	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "application/pdf":
		return internal.DocPDF, true
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return internal.DocXLSX, true
	case "text/html":
		return internal.DocHTML, true
	case "text/plain":
		return internal.DocText, true
	}
	return "", false
}
