// Package migrations embebe el esquema SQL del trail de auditoría.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
