// Package export turns the chapter history into downloadable books.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/manash/novelgen/internal/security"
	"github.com/manash/novelgen/internal/session"
	"github.com/manash/novelgen/pkg/models"
)

var (
	ErrNoChapters  = errors.New("no chapters generated yet")
	ErrUnknownKind = errors.New("unknown export format")
	ErrNoRenderer  = errors.New("PDF export needs a renderer")
)

const (
	bom             = "\uFEFF"
	separator       = "----------------------------------------"
	defaultAuthor   = "Assistant"
	defaultBasename = "Generated_AI_Book"
)

type Kind string

const (
	KindHTML    Kind = "html"
	KindText    Kind = "txt"
	KindPDF     Kind = "pdf"
	KindPDFHTML Kind = "pdf-html"
)

func ValidKinds() []Kind {
	return []Kind{KindHTML, KindText, KindPDF, KindPDFHTML}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "html", "htm":
		return KindHTML, nil
	case "txt", "text":
		return KindText, nil
	case "pdf":
		return KindPDF, nil
	case "pdf-html", "pdfhtml":
		return KindPDFHTML, nil
	default:
		return "", fmt.Errorf("%w %q: must be one of %v", ErrUnknownKind, s, ValidKinds())
	}
}

func (k Kind) Extension() string {
	switch k {
	case KindText:
		return ".txt"
	case KindPDF:
		return ".pdf"
	default:
		return ".html"
	}
}

func (k Kind) ContentType() string {
	switch k {
	case KindText:
		return "text/plain; charset=utf-8"
	case KindPDF:
		return "application/pdf"
	default:
		return "text/html; charset=utf-8"
	}
}

func DefaultFilename(k Kind) string {
	if k == KindPDFHTML {
		return defaultBasename + "_pdf.html"
	}
	return defaultBasename + k.Extension()
}

// Book is the snapshot of a record that exports read from.
type Book struct {
	Format   models.StoryFormat
	Author   string
	Chapters []session.Chapter
}

func FromRecord(rec *session.Record) Book {
	return Book{
		Format:   rec.Format,
		Author:   rec.Author,
		Chapters: append([]session.Chapter(nil), rec.GeneratedChapters...),
	}
}

func (b Book) Title() string {
	return "My AI Generated " + b.Format.Title()
}

var (
	md = goldmark.New(goldmark.WithExtensions(extension.GFM, extension.Typographer))

	policy = bluemonday.UGCPolicy()
)

// RenderMarkdown converts chapter markdown to sanitised HTML.
func RenderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}

type chapterView struct {
	Number int
	Body   template.HTML
	Last   bool
}

type pageView struct {
	Title    string
	Chapters []chapterView
}

const styles = `<style>
    .kindle-page {
        background-color: #f4ecd8;
        color: #333333;
        font-family: 'Georgia', serif;
        line-height: 1.6;
        padding: 40px;
        max-width: 800px;
        margin: auto;
        text-align: justify;
    }
    .kindle-page h1, .kindle-page h2, .kindle-page h3 {
        font-family: 'Merriweather', 'Georgia', serif;
        text-align: center;
        color: #111;
    }
    .kindle-page h1 { margin-bottom: 50px; border-bottom: 2px solid #ccc; padding-bottom: 20px; }
    .kindle-page h2 { margin-top: 60px; margin-bottom: 20px; }
    .kindle-page .chapter-break {
        text-align: center;
        margin: 40px 0;
        font-size: 24px;
        color: #888;
    }
    .kindle-page .content { font-size: 18px; }
</style>`

var pageTmpl = template.Must(template.New("page").Parse(`{{define "styles"}}` + styles + `{{end}}
{{- define "container"}}<div class="kindle-page">
<h1>{{.Title}}</h1>
<div class="content">
{{range .Chapters}}<h2>Chapter {{.Number}}</h2>
{{.Body}}
{{if not .Last}}<div class="chapter-break">***</div>
{{end}}{{end}}</div></div>{{end}}
{{- define "document"}}<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
{{template "styles"}}
<style>
    body { margin: 0; padding: 0; background-color: #f4ecd8; }
</style>
</head>
<body>
{{template "container" .}}
</body>
</html>
{{end}}
{{- define "fragment"}}{{template "styles"}}
{{template "container" .}}{{end}}`))

func (b Book) view() (pageView, error) {
	v := pageView{Title: b.Title()}
	for i, ch := range b.Chapters {
		body, err := RenderMarkdown(ch.Content)
		if err != nil {
			return v, fmt.Errorf("chapter %d: %w", i+1, err)
		}
		v.Chapters = append(v.Chapters, chapterView{
			Number: i + 1,
			Body:   template.HTML(body),
			Last:   i == len(b.Chapters)-1,
		})
	}
	return v, nil
}

func (b Book) execute(name string) (string, error) {
	if len(b.Chapters) == 0 {
		return "", ErrNoChapters
	}
	v, err := b.view()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := pageTmpl.ExecuteTemplate(&buf, name, v); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// HTML returns a complete styled document with one section per chapter.
func HTML(b Book) (string, error) {
	return b.execute("document")
}

// PDFMarkup returns only the style block and page container, the input a
// PDF rasteriser expects.
func PDFMarkup(b Book) (string, error) {
	return b.execute("fragment")
}

// Text returns the plain text book. It starts with a UTF-8 byte order mark
// and keeps chapter markdown as written.
func Text(b Book) (string, error) {
	if len(b.Chapters) == 0 {
		return "", ErrNoChapters
	}

	author := b.Author
	if author == "" {
		author = defaultAuthor
	}

	var sb strings.Builder
	sb.WriteString(bom)
	fmt.Fprintf(&sb, "%s (Style: %s)\n\n", b.Title(), author)
	for i, ch := range b.Chapters {
		fmt.Fprintf(&sb, "Chapter %d\n\n", i+1)
		sb.WriteString(ch.Content)
		sb.WriteString("\n\n")
		sb.WriteString(separator)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// Build renders b as kind. renderer is only used for KindPDF.
func Build(ctx context.Context, kind Kind, b Book, renderer Renderer) ([]byte, error) {
	var (
		out string
		err error
	)
	switch kind {
	case KindHTML:
		out, err = HTML(b)
	case KindText:
		out, err = Text(b)
	case KindPDFHTML:
		out, err = PDFMarkup(b)
	case KindPDF:
		if renderer == nil {
			return nil, ErrNoRenderer
		}
		markup, err := PDFMarkup(b)
		if err != nil {
			return nil, err
		}
		return renderer.RenderPDF(ctx, markup)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// WriteFile writes an export to path, creating parent directories.
func WriteFile(path string, data []byte) error {
	if err := security.ValidateExportPath(path, true); err != nil {
		return fmt.Errorf("invalid export path: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
