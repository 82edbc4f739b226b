// Package content embeds the default game definitions and loads them into
// the engine registries.
package content

import "embed"

// FS holds the default definitions. Each top-level directory feeds one
// loader: effects, abilities, sustained, combos, hazards, classes, enemies
// and ai hold YAML; scripts/effects and scripts/ai hold Lua.
//
//go:embed effects abilities sustained combos hazards classes enemies ai scripts
var FS embed.FS
