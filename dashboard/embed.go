// Package dashboard provides the embedded web UI assets for statecast.
//
// The page subscribes to /api/sse and re-renders the users table, the
// statistics and the message log from every event it receives, so it is
// just another observer of the store.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
