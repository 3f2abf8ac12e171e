// Package assets embeds the preview client JavaScript and CSS
package assets

import (
	"embed"
	"io/fs"
)

//go:embed client/*
var clientFS embed.FS

// ClientFS returns the embedded client files
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetClientJS returns the preview client script
func GetClientJS() ([]byte, error) {
	return clientFS.ReadFile("client/preview.js")
}

// GetClientCSS returns the preview stylesheet
func GetClientCSS() ([]byte, error) {
	return clientFS.ReadFile("client/preview.css")
}
