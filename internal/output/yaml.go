package output

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/docsift/pkg/docsift"
)

// yamlWriter streams each document as a separate YAML document.
type yamlWriter struct {
	enc *yaml.Encoder
	cfg *writerConfig
}

func newYAMLWriter(w io.Writer, cfg *writerConfig) *yamlWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &yamlWriter{enc: enc, cfg: cfg}
}

func (w *yamlWriter) Write(doc *docsift.Document) error {
	return w.enc.Encode(w.cfg.prepare(doc))
}

func (w *yamlWriter) Close() error {
	return w.enc.Close()
}
