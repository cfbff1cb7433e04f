// Package assets carries the embedded web content for the monitor server.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed web
var assets embed.FS

type Config struct {
	DebugTemplates bool `help:"Enable template debugging"`
}

func Assets() fs.FS {
	return assets
}
