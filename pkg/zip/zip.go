package zip

import (
	"archive/zip"
	"bytes"
)

// Entry is one file inside an archive.
type Entry struct {
	Name string
	Data []byte
}

// Archive bundles the entries into an in-memory zip. Returns nil when a
// write fails.
func Archive(entries []Entry) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.Name)
		if err != nil {
			continue
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil
		}
	}
	if err := zw.Close(); err != nil {
		return nil
	}
	return buf.Bytes()
}
