package data

import "embed"

// FS holds the starter catalog loaded by elevenlab-data-loader.
//
//go:embed foods.csv
var FS embed.FS
