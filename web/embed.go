// Package web holds the embedded upload form served at the root path.
package web

import _ "embed"

// IndexHTML is the static upload form page.
//
//go:embed index.html
var IndexHTML []byte
