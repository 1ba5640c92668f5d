// Package web embeds the server-rendered page templates.
package web

import "embed"

//go:embed templates/*.html
var TemplateFiles embed.FS
