// Package cleaner transforms extracted HTML into other representations.
// docsift uses it to render pages as Markdown alongside the plain text.
package cleaner

// Cleaner transforms HTML content.
type Cleaner interface {
	// Clean transforms the input HTML. The output format depends on the
	// implementation.
	Clean(html string) (string, error)

	// Name returns the cleaner type for logging.
	Name() string
}
