package s3parquet

import (
	"bytes"
	"errors"
	"io"

	"github.com/xitongsys/parquet-go/source"
)

// memFile adapts an in-memory object to source.ParquetFile. A file built
// from bytes is read-only; Open hands out independent readers over the same
// bytes because the parquet reader opens one handle per column.
type memFile struct {
	data   []byte
	reader *bytes.Reader
	buffer *bytes.Buffer
}

func newReadFile(data []byte) *memFile {
	return &memFile{data: data, reader: bytes.NewReader(data)}
}

func newWriteFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }

func (m *memFile) Open(string) (source.ParquetFile, error) {
	if m.buffer != nil {
		return newReadFile(m.buffer.Bytes()), nil
	}
	return newReadFile(m.data), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	if m.reader == nil {
		return int64(m.buffer.Len()), nil
	}
	return m.reader.Seek(offset, whence)
}

func (m *memFile) Read(p []byte) (int, error) {
	if m.reader == nil {
		return 0, io.EOF
	}
	return m.reader.Read(p)
}

func (m *memFile) Write(p []byte) (int, error) {
	if m.buffer == nil {
		return 0, errors.New("parquet memfile is read-only")
	}
	return m.buffer.Write(p)
}

func (m *memFile) Close() error  { return nil }
func (m *memFile) Bytes() []byte { return m.buffer.Bytes() }
