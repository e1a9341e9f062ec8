package fileextract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Pages extracts plain text per page from a PDF. An encrypted file with a
// missing or wrong password maps to ErrPasswordRequired.
func Pages(data []byte, password string) ([]string, error) {
	reader := bytes.NewReader(data)

	var r *pdf.Reader
	var err error
	if password != "" {
		asked := false
		r, err = pdf.NewReaderEncrypted(reader, int64(len(data)), func() string {
			if asked {
				return ""
			}
			asked = true
			return password
		})
	} else {
		r, err = pdf.NewReader(reader, int64(len(data)))
	}
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, ErrPasswordRequired
		}
		return nil, fmt.Errorf("fileextract: open pdf: %w", err)
	}

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			f := page.Font(name)
			fonts[name] = &f
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			// One unreadable page is not fatal; the model sees the rest.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	if strings.TrimSpace(strings.Join(pages, "")) == "" {
		return nil, ErrEmptyDocument
	}
	return pages, nil
}
