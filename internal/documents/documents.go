package documents

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"finstat/internal"
	"finstat/internal/pipeline"
	"finstat/internal/storage"
)

var (
	// ErrUnsupported is returned for files that are not a report format the
	// pipeline can read.
	ErrUnsupported = eris.New("unsupported document")
	// ErrInvalidPDF is returned when a file claims to be a PDF but does not
	// validate.
	ErrInvalidPDF = eris.New("invalid pdf")
)

var disableConfigDir sync.Once

type PDFInfo struct {
	Pages     int
	Encrypted bool
}

// Inspect validates a PDF and reports its page count.
func Inspect(content []byte) (PDFInfo, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(content, "\x00\t\r\n "), []byte("%PDF-")) {
		return PDFInfo{}, eris.Wrap(ErrInvalidPDF, "missing %PDF header")
	}
	disableConfigDir.Do(api.DisableConfigDir)

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), model.NewDefaultConfiguration())
	if err != nil {
		return PDFInfo{}, eris.Wrap(ErrInvalidPDF, err.Error())
	}
	return PDFInfo{Pages: ctx.PageCount, Encrypted: ctx.Encrypt != nil}, nil
}

type Service struct {
	db  *storage.DB
	dir string
	log *zap.Logger
}

func NewService(db *storage.DB, dataDir string) *Service {
	return &Service{db: db, dir: filepath.Join(dataDir, "docs"), log: zap.L().Named("documents")}
}

type AddInput struct {
	Name        string
	ContentType string
	Content     []byte
	Bank        *string
	Period      *string
	Source      string
}

// Add registers a document. Content already in the index is not stored twice;
// the existing document is returned with created=false.
func (s *Service) Add(ctx context.Context, in AddInput) (internal.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return internal.Document{}, false, err
	}
	if len(in.Content) == 0 {
		return internal.Document{}, false, eris.Wrap(ErrUnsupported, "empty file")
	}
	kind, ok := pipeline.KindFromName(in.Name, in.ContentType)
	if !ok {
		return internal.Document{}, false, eris.Wrapf(ErrUnsupported, "%s", in.Name)
	}

	sum := sha256.Sum256(in.Content)
	hash := hex.EncodeToString(sum[:])
	existing, err := s.db.GetDocumentByHash(hash)
	if err != nil {
		return internal.Document{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	pages := 0
	if kind == internal.DocPDF {
		info, err := Inspect(in.Content)
		if err != nil {
			return internal.Document{}, false, err
		}
		if info.Encrypted {
			return internal.Document{}, false, eris.Wrap(ErrUnsupported, "encrypted pdf")
		}
		pages = info.Pages
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return internal.Document{}, false, err
	}
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+extFor(kind))
	if err := os.WriteFile(path, in.Content, 0o644); err != nil {
		return internal.Document{}, false, eris.Wrap(err, "store document")
	}

	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = "upload"
	}
	doc, err := s.db.InsertDocument(internal.Document{
		ID:     id,
		Name:   filepath.Base(in.Name),
		Kind:   kind,
		Path:   path,
		Hash:   hash,
		Size:   int64(len(in.Content)),
		Pages:  pages,
		Bank:   trimmed(in.Bank),
		Period: trimmed(in.Period),
		Source: source,
		Status: internal.StatusPending,
	})
	if err != nil {
		_ = os.Remove(path)
		// A concurrent Add of the same bytes won the unique hash.
		if existing, lookupErr := s.db.GetDocumentByHash(hash); lookupErr == nil && existing != nil {
			return *existing, false, nil
		}
		return internal.Document{}, false, err
	}

	s.log.Info("document added", zap.String("document_id", doc.ID), zap.String("name", doc.Name), zap.String("kind", string(kind)), zap.Int("pages", pages))
	return doc, true, nil
}

// AddFile registers a file from disk.
func (s *Service) AddFile(ctx context.Context, path string, bank, period *string, source string) (internal.Document, bool, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return internal.Document{}, false, eris.Wrapf(err, "read %s", path)
	}
	return s.Add(ctx, AddInput{Name: filepath.Base(path), Content: blob, Bank: bank, Period: period, Source: source})
}

func (s *Service) Get(id string) (internal.Document, error) {
	return s.db.GetDocument(id)
}

func (s *Service) List() ([]internal.Document, error) {
	return s.db.ListDocuments()
}

func extFor(kind internal.DocumentKind) string {
	switch kind {
	case internal.DocPDF:
		return ".pdf"
	case internal.DocXLSX:
		return ".xlsx"
	case internal.DocHTML:
		return ".html"
	default:
		return ".txt"
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
