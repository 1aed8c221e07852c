package catalog

import (
	"errors"
	"io"
	"os"

	"github.com/hyperjump/menurag/internal/models"
	"go.uber.org/zap"
)

// BatchReader yields fixed-size batches of records from one source. It reads lazily, cannot be
// restarted, and must be closed.
type BatchReader struct {
	file   *os.File
	dec    *decoder
	size   int
	done   bool
	err    error
	logger *zap.Logger
	path   string
}

// Batches opens source for batch streaming. A missing or unreadable source yields a reader that is
// immediately exhausted; the diagnostic is logged like Load does.
func (l *Loader) Batches(source string, size int) *BatchReader {
	if size <= 0 {
		size = DefaultBatchSize
	}
	path := l.Path(source)
	br := &BatchReader{size: size, logger: l.logger, path: path}
	if !l.exists(path) {
		br.done = true
		return br
	}
	f, err := os.Open(path)
	if err != nil {
		l.logger.Error("open catalog source failed", zap.String("path", path), zap.Error(err))
		br.done = true
		return br
	}
	dec, err := newDecoder(f)
	if err != nil {
		_ = f.Close()
		l.logParseError(path, err)
		br.done = true
		br.err = err
		return br
	}
	br.file = f
	br.dec = dec
	return br
}

// Next returns the next batch, or io.EOF once the source is exhausted. The last batch may be
// shorter than the batch size. A parse error ends the stream; records decoded before the error
// in the same batch are returned with it.
func (b *BatchReader) Next() ([]models.Restaurant, error) {
	if b.done {
		return nil, io.EOF
	}
	batch := make([]models.Restaurant, 0, b.size)
	for len(batch) < b.size {
		raw, err := b.dec.next()
		if errors.Is(err, io.EOF) {
			b.finish(nil)
			break
		}
		if err == nil {
			var rec models.Restaurant
			rec, err = decodeRecord(b.logger, b.path, b.dec.index-1, raw)
			if err == nil {
				batch = append(batch, rec)
				continue
			}
		}
		b.finish(err)
		b.logger.Error("catalog batch stream stopped", zap.String("path", b.path),
			zap.Int("records_read", b.dec.index), zap.Error(err))
		return batch, err
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// Err returns the parse error that ended the stream, if any.
func (b *BatchReader) Err() error {
	return b.err
}

// Close releases the underlying file. It is safe to call more than once.
func (b *BatchReader) Close() error {
	b.done = true
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}

func (b *BatchReader) finish(err error) {
	b.done = true
	b.err = err
	if b.file != nil {
		_ = b.file.Close()
		b.file = nil
	}
}
