// Package dashboard embeds the web UI served by the signalsync dashboard
// server at "/". The page reads /api/tasks once and then follows /api/sse.
package dashboard

import "embed"

// Assets holds assets/index.html. The server substitutes the {{.Title}}
// placeholder before serving it.
//
//go:embed assets/*
var Assets embed.FS
