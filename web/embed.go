// Package web embeds the run history dashboard served at the daemon's root.
package web

import (
	"embed"
	"io/fs"
)

//go:embed dist/*
var content embed.FS

// Assets returns the embedded dashboard assets as an fs.FS
func Assets() (fs.FS, error) {
	return fs.Sub(content, "dist")
}
