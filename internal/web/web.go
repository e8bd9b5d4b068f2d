// Package web embeds the dashboard page.
package web

import _ "embed"

// Index is the single-page dashboard. It renders the option documents served
// under /api/charts and follows state over /api/ws.
//
//go:embed index.html
var Index []byte
