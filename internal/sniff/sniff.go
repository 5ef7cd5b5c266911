package sniff

import (
	"bufio"
	"context"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"

	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/utils"
)

const (
	MaxTitleLength = 1024
	sniffLength    = 1024
	maxLineLength  = 1 << 20
)

var (
	xmlEncodingRegex = regexp.MustCompile(`(?i)<\?xml[^>]*encoding\s*=\s*["']([^"']+)["']`)
	tagRegex         = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex  = regexp.MustCompile(`\s+`)
)

// DetectXMLEncoding returns the encoding declared by the XML prolog in head,
// or an empty string.
func DetectXMLEncoding(head string) string {
	match := xmlEncodingRegex.FindStringSubmatch(head)
	if match == nil {
		return ""
	}
	return NormalizeEncoding(match[1])
}

func NormalizeEncoding(encoding string) string {
	encoding = strings.TrimSpace(encoding)
	if strings.EqualFold(encoding, "utf-8") || strings.EqualFold(encoding, "utf8") {
		return "UTF-8"
	}
	return encoding
}

// NewDecodingReader converts r from encoding to UTF-8. Unknown encodings
// are reported as *errors.EncodingError.
func NewDecodingReader(r io.Reader, encoding string) (io.Reader, error) {
	if encoding == "" || NormalizeEncoding(encoding) == "UTF-8" {
		return r, nil
	}
	decoded, err := charset.NewReaderLabel(encoding, r)
	if err != nil {
		return nil, &feedErrors.EncodingError{Cause: errors.Wrapf(err, "encoding %q", encoding)}
	}
	return decoded, nil
}

// ScanTitle reads r line by line until it finds the first <title> element
// and returns its text. fallbackEncoding is used when the document declares
// an encoding that cannot be decoded. The context is checked between lines.
func ScanTitle(ctx context.Context, r io.Reader, fallbackEncoding string) (string, error) {
	buffered := bufio.NewReaderSize(r, sniffLength)
	head, _ := buffered.Peek(sniffLength)

	decoded, err := NewDecodingReader(buffered, DetectXMLEncoding(string(head)))
	if err != nil {
		decoded, err = NewDecodingReader(buffered, fallbackEncoding)
		if err != nil {
			return "", err
		}
	}

	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	var collected strings.Builder
	inTitle := false
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line := scanner.Text()

		if !inTitle {
			start := indexFold(line, "<title")
			if start < 0 {
				continue
			}
			end := strings.IndexByte(line[start:], '>')
			if end < 0 {
				continue
			}
			line = line[start+end+1:]
			inTitle = true
		}

		if stop := indexFold(line, "</title"); stop >= 0 {
			collected.WriteString(line[:stop])
			return CleanTitle(collected.String()), nil
		}
		collected.WriteString(line)
		collected.WriteByte(' ')
		if collected.Len() > maxLineLength {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(err, "failed to scan for title")
	}
	if inTitle {
		return CleanTitle(collected.String()), nil
	}
	return "", nil
}

// CleanTitle strips CDATA markers and tags, unescapes entities, collapses
// whitespace and truncates to MaxTitleLength runes.
func CleanTitle(raw string) string {
	title := strings.ReplaceAll(raw, "<![CDATA[", "")
	title = strings.ReplaceAll(title, "]]>", "")
	title = tagRegex.ReplaceAllString(title, "")
	title = html.UnescapeString(title)
	title = whitespaceRegex.ReplaceAllString(title, " ")
	return utils.TruncateRunes(strings.TrimSpace(title), MaxTitleLength)
}

// indexFold finds an ASCII substr case-insensitively without changing the
// byte offsets of s.
func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}
