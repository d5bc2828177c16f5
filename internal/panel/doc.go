// Package panel serves the operator console, a small web page for
// answering access prompts and stopping running captures.
//
// The console is embedded into the binary with go:embed. It talks to the
// REST API under /api/v1 with an operator token and follows the "prompt"
// and "stream" WebSocket channels, so it needs no build step and no
// runtime files.
//
// Handler serves the assets with SPA fallback: unknown paths get
// index.html. When a directory is configured (api.panel_dir) and exists,
// assets come from disk instead so the page can be edited without a
// rebuild.
package panel
