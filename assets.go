// Package tracksys2 embeds the admin front end's templates and static assets.
package tracksys2

import "embed"

// StaticFS holds web/static. Dev mode serves the directory from disk instead.
//
//go:embed all:web/static
var StaticFS embed.FS

// TemplateFS holds web/templates. Dev mode parses the directory from disk instead.
//
//go:embed all:web/templates
var TemplateFS embed.FS
