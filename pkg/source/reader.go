// pkg/source/reader.go
package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names reported by Reader.Encoding
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF8BOM = "utf-8-bom"
	EncodingUTF16   = "utf-16"
	EncodingLatin1  = "latin-1"
)

// ErrEmptySource is returned when a file has no header row
var ErrEmptySource = errors.New("source file has no header row")

const sniffSize = 64 * 1024

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Reader streams a comma separated export as text rows of the header's width
type Reader struct {
	file     *os.File
	csv      *csv.Reader
	header   []string
	encoding string
	adjusted int
}

// Open detects the text encoding, reads the header row and positions the
// reader on the first data row. Header labels are trimmed.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	text, encoding, err := decode(bufio.NewReaderSize(f, sniffSize))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to detect encoding of %s: %w", path, err)
	}

	cr := csv.NewReader(text)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptySource
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	return &Reader{file: f, csv: cr, header: header, encoding: encoding}, nil
}

// decode wraps the stream with the decoder matching its byte order mark, or
// with Latin-1 when the first block is not valid UTF-8.
func decode(br *bufio.Reader) (io.Reader, string, error) {
	prefix, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, "", err
	}

	switch {
	case bytes.HasPrefix(prefix, bomUTF8):
		if _, err := br.Discard(len(bomUTF8)); err != nil {
			return nil, "", err
		}
		return br, EncodingUTF8BOM, nil
	case bytes.HasPrefix(prefix, bomUTF16LE), bytes.HasPrefix(prefix, bomUTF16BE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		return transform.NewReader(br, dec), EncodingUTF16, nil
	case validUTF8Prefix(prefix, len(prefix) == sniffSize):
		return br, EncodingUTF8, nil
	default:
		return transform.NewReader(br, charmap.ISO8859_1.NewDecoder()), EncodingLatin1, nil
	}
}

// validUTF8Prefix ignores a multi-byte sequence cut by the end of a full
// sniffed block
func validUTF8Prefix(b []byte, truncated bool) bool {
	end := len(b)
	if truncated {
		for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
			if utf8.RuneStart(b[len(b)-i]) {
				if !utf8.FullRune(b[len(b)-i:]) {
					end = len(b) - i
				}
				break
			}
		}
	}
	return utf8.Valid(b[:end])
}

// Header returns the trimmed header labels
func (r *Reader) Header() []string {
	return append([]string(nil), r.header...)
}

// Encoding reports the detected text encoding
func (r *Reader) Encoding() string {
	return r.encoding
}

// Adjusted is the number of rows padded or truncated to the header width so far
func (r *Reader) Adjusted() int {
	return r.adjusted
}

// Next returns up to n rows in file order. It returns io.EOF once no rows remain.
func (r *Reader) Next(n int) ([][]string, error) {
	width := len(r.header)
	rows := make([][]string, 0, n)
	for len(rows) < n {
		rec, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read row: %w", err)
		}

		switch {
		case len(rec) < width:
			rec = append(rec, make([]string, width-len(rec))...)
			r.adjusted++
		case len(rec) > width:
			rec = rec[:width]
			r.adjusted++
		}
		rows = append(rows, rec)
	}

	if len(rows) == 0 {
		return nil, io.EOF
	}
	return rows, nil
}

// Close releases the underlying file
func (r *Reader) Close() error {
	return r.file.Close()
}

// CountLines returns the number of data lines (newlines minus the header).
// Quoted fields with embedded newlines make this an estimate.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	count := 0
	for {
		n, err := f.Read(buf)
		count += bytes.Count(buf[:n], []byte{'\n'})
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if count > 0 {
		count--
	}
	return count, nil
}
