package catalog

import (
	_ "embed"
	"sync"
)

//go:embed seed/sql_joins.yaml
var seedYAML []byte

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Parse(seedYAML, FormatYAML)
})

// Default returns the built-in SQL joins catalog. It is parsed once per
// process.
func Default() (*Catalog, error) {
	return loadDefault()
}
