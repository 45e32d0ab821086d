// Package output streams items into size-rotated JSON array files.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrClosed is returned when writing to a closed Writer.
var ErrClosed = errors.New("output writer closed")

// Writer appends items to a JSON array, rotating to a new sequence-numbered
// shard before any write that would push the open shard past maxLines.
// A shard holding n items of l_i lines each spans 2 + sum(l_i) lines.
type Writer struct {
	root     string
	stem     string
	ext      string
	maxLines int

	file      *os.File
	shard     int
	items     int
	itemLines int
	paths     []string
	closed    bool
}

// New creates root if needed and opens the first shard. maxLines <= 0 writes
// a single unbounded file named base.
func New(root, base string, maxLines int) (*Writer, error) {
	if strings.TrimSpace(base) == "" {
		return nil, fmt.Errorf("base name is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	ext := filepath.Ext(base)
	w := &Writer{
		root:     root,
		stem:     strings.TrimSuffix(base, ext),
		ext:      ext,
		maxLines: maxLines,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// WriteItem serializes item and appends it to the open shard.
func (w *Writer) WriteItem(item any) error {
	if w.closed {
		return ErrClosed
	}
	data, err := encode(item)
	if err != nil {
		return err
	}
	lines := bytes.Count(data, []byte{'\n'}) + 1

	if w.maxLines > 0 && w.items > 0 && 2+w.itemLines+lines > w.maxLines {
		if err := w.finalize(); err != nil {
			return err
		}
		if err := w.open(); err != nil {
			return err
		}
	}

	if w.items > 0 {
		data = append([]byte(",\n"), data...)
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", w.file.Name(), err)
	}
	w.items++
	w.itemLines += lines
	return nil
}

// Close finalizes the open shard. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.finalize()
}

// Paths lists every shard opened so far, in sequence order.
func (w *Writer) Paths() []string {
	return append([]string(nil), w.paths...)
}

func (w *Writer) open() error {
	w.shard++
	name := w.stem + w.ext
	if w.maxLines > 0 {
		name = fmt.Sprintf("%s_part_%d%s", w.stem, w.shard, w.ext)
	}
	path := filepath.Join(w.root, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create shard: %w", err)
	}
	if _, err := f.WriteString("[\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write shard header: %w", err)
	}
	w.file = f
	w.items = 0
	w.itemLines = 0
	w.paths = append(w.paths, path)
	return nil
}

func (w *Writer) finalize() error {
	tail := "]\n"
	if w.items > 0 {
		tail = "\n]\n"
	}
	_, werr := w.file.WriteString(tail)
	cerr := w.file.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return fmt.Errorf("finalize %s: %w", w.file.Name(), err)
	}
	return nil
}

func encode(item any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(item); err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
