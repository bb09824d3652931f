package pack

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Faultbox/nifbridge/pkg/encoding"
)

// Writer collects files and serializes them as a pack.
type Writer struct {
	files map[string][]byte
}

// NewWriter creates an empty pack writer.
func NewWriter() *Writer {
	return &Writer{files: make(map[string][]byte)}
}

// Add stages a file. Adding the same normalized path twice replaces it.
func (w *Writer) Add(path string, data []byte) {
	w.files[encoding.NormalizePath(path)] = data
}

// Len returns the number of staged files.
func (w *Writer) Len() int {
	return len(w.files)
}

// WriteTo writes the pack to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	names := make([]string, 0, len(w.files))
	for name := range w.files {
		names = append(names, name)
	}
	sort.Strings(names)

	var body bytes.Buffer
	var table bytes.Buffer
	for _, name := range names {
		content := w.files[name]

		compressed, err := deflate(content)
		if err != nil {
			return 0, fmt.Errorf("compressing %s: %w", name, err)
		}

		aligned := len(compressed)
		if aligned%8 != 0 {
			aligned += 8 - aligned%8
		}

		offset := uint32(body.Len())
		body.Write(compressed)
		body.Write(make([]byte, aligned-len(compressed)))

		table.Write(encoding.UTF8ToLatin1(name))
		table.WriteByte(0)
		var rec [entrySize]byte
		binary.LittleEndian.PutUint32(rec[0:], uint32(len(compressed)))
		binary.LittleEndian.PutUint32(rec[4:], uint32(aligned))
		binary.LittleEndian.PutUint32(rec[8:], uint32(len(content)))
		rec[12] = FlagFile
		binary.LittleEndian.PutUint32(rec[13:], offset)
		table.Write(rec[:])
	}

	compressedTable, err := deflate(table.Bytes())
	if err != nil {
		return 0, fmt.Errorf("compressing file table: %w", err)
	}

	header := Header{
		TableOffset: uint32(body.Len()),
		FileCount:   uint32(len(names)) + countBias,
		Version:     packVersion,
	}
	copy(header.Magic[:], packMagic)

	var buf bytes.Buffer
	buf.Grow(headerSize + body.Len() + 8 + len(compressedTable))
	// bytes.Buffer writes cannot fail
	_ = binary.Write(&buf, binary.LittleEndian, &header)
	buf.Write(body.Bytes())
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(compressedTable)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(table.Len()))
	buf.Write(compressedTable)

	return buf.WriteTo(out)
}

// Bytes returns the serialized pack.
func (w *Writer) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the pack to path.
func (w *Writer) Save(path string) error {
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing pack: %w", err)
	}
	return nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
