// Package app holds the per-browser workspaces and the shared caches the HTTP layer works with.
//
// A Registry maps workspace ids from the browser cookie to Workspaces. Each Workspace owns an
// API client, the session store built on it and the job collection for the dashboard.
package app
