package appfs

import "embed"

// FS holds the SQL migrations (one directory per dialect) and the email templates.
// Templates prefixed with "_" are layouts, hence "all:".
//go:embed migrations all:assets
var FS embed.FS
