package output

import (
	"encoding/json"
	"io"

	"github.com/jmylchreest/docsift/pkg/docsift"
)

// jsonWriter buffers documents and writes one object, or an array when
// more than one document was written.
type jsonWriter struct {
	w    io.Writer
	cfg  *writerConfig
	docs []*docsift.Document
}

func (w *jsonWriter) Write(doc *docsift.Document) error {
	w.docs = append(w.docs, w.cfg.prepare(doc))
	return nil
}

func (w *jsonWriter) Close() error {
	if len(w.docs) == 0 {
		return nil
	}
	enc := json.NewEncoder(w.w)
	enc.SetEscapeHTML(false)
	if w.cfg.pretty {
		enc.SetIndent("", w.cfg.indent)
	}
	if len(w.docs) == 1 {
		return enc.Encode(w.docs[0])
	}
	return enc.Encode(w.docs)
}

// jsonlWriter writes one compact document per line as it arrives.
type jsonlWriter struct {
	w   io.Writer
	cfg *writerConfig
}

func (w *jsonlWriter) Write(doc *docsift.Document) error {
	enc := json.NewEncoder(w.w)
	enc.SetEscapeHTML(false)
	return enc.Encode(w.cfg.prepare(doc))
}

func (w *jsonlWriter) Close() error { return nil }
