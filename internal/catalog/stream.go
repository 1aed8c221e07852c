package catalog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/menurag/internal/models"
	"go.uber.org/zap"
)

var nullLiteral = []byte("null")

// decoder walks the elements of a top-level JSON array one at a time.
type decoder struct {
	dec   *json.Decoder
	index int // running index over non-null records
}

func newDecoder(r io.Reader) (*decoder, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("catalog must be a JSON array, got %v", tok)
	}
	return &decoder{dec: dec}, nil
}

// next returns the raw bytes of the next non-null record. It returns io.EOF after the closing bracket.
func (d *decoder) next() (json.RawMessage, error) {
	for d.dec.More() {
		var raw json.RawMessage
		if err := d.dec.Decode(&raw); err != nil {
			return nil, err
		}
		if bytes.Equal(bytes.TrimSpace(raw), nullLiteral) {
			continue
		}
		d.index++
		return raw, nil
	}
	if _, err := d.dec.Token(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// decodeRecord decodes one record and logs every value that had to be coerced.
func decodeRecord(logger *zap.Logger, path string, index int, raw json.RawMessage) (models.Restaurant, error) {
	r, notes, err := models.DecodeRestaurant(raw)
	if err != nil {
		return r, fmt.Errorf("record %d: %v", index, err)
	}
	for _, note := range notes {
		logger.Warn("catalog record value coerced",
			zap.String("path", path),
			zap.Int("record", index),
			zap.String("restaurant", r.Name),
			zap.String("issue", note))
	}
	return r, nil
}

// streamWindow decodes only the records whose running index falls in page and stops reading
// as soon as the page is exhausted.
func streamWindow(logger *zap.Logger, path string, page models.CatalogPage) ([]models.Restaurant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := newDecoder(f)
	if err != nil {
		return nil, err
	}
	out := []models.Restaurant{}
	for i := 0; !page.Exhausted(i); i++ {
		raw, err := d.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if !page.Contains(i) {
			continue
		}
		rec, err := decodeRecord(logger, path, i, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// countRecords counts non-null records without decoding them into structs.
func countRecords(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d, err := newDecoder(f)
	if err != nil {
		return 0, err
	}
	for {
		_, err := d.next()
		if errors.Is(err, io.EOF) {
			return d.index, nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// errorOffset extracts the byte offset carried by encoding/json errors.
func errorOffset(err error) (int64, bool) {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return syntaxErr.Offset, true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Offset, true
	}
	return 0, false
}

// position converts a byte offset in path into a 1-based line and column.
func position(path string, offset int64) (line, col int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	line, col = 1, 1
	r := bufio.NewReader(io.LimitReader(f, offset))
	for {
		b, err := r.ReadByte()
		if errors.Is(err, io.EOF) {
			return line, col, nil
		}
		if err != nil {
			return 0, 0, err
		}
		if b == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
}
