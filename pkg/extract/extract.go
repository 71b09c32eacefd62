// Package extract turns uploaded script files into plain text.
package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupportedFormat is returned for files that are not pdf, fdx or plain text
	ErrUnsupportedFormat = errors.New("unsupported file type, use .pdf, .txt, .fountain or .fdx")
	// ErrNoText is returned when a file yields no text
	ErrNoText = errors.New("could not extract text from that file, paste the script or try another format")
)

// Format is a declared upload format
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatFDX   Format = "fdx"
	FormatPlain Format = "plain"
)

// ParseFormat validates a format name given on the command line
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatPDF, FormatFDX, FormatPlain:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFromFilename picks the format from the file extension, falling back
// to the declared content type for plain text.
func FormatFromFilename(name, contentType string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF, nil
	case ".fdx":
		return FormatFDX, nil
	case ".txt", ".fountain":
		return FormatPlain, nil
	}
	if strings.HasPrefix(contentType, "text/plain") {
		return FormatPlain, nil
	}
	return "", ErrUnsupportedFormat
}

// Extract returns the text of data read as format. The result is never blank.
func Extract(data []byte, format Format) (string, error) {
	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = pdfText(data)
	case FormatFDX:
		text, err = fdxText(data)
	case FormatPlain:
		text = string(data)
	default:
		return "", ErrUnsupportedFormat
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

func pdfText(data []byte) (text string, err error) {
	// the reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// fdxText keeps the Text runs of a Final Draft file, one Paragraph per line.
func fdxText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	var (
		b      strings.Builder
		inText int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse fdx: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Paragraph":
				b.WriteByte('\n')
			case "Text":
				inText++
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "Paragraph":
				b.WriteByte('\n')
			case "Text":
				if inText > 0 {
					inText--
				}
			}
		case xml.CharData:
			if inText > 0 {
				b.Write(t)
			}
		}
	}

	text := blankRuns.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(text), nil
}
