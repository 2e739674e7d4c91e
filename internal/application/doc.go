// Package application provides application initialization and dependency wiring.
// It loads the region dataset, builds storage, handlers, routers, metrics and
// the optional data watcher, and owns the HTTP server lifecycle, keeping the
// main package focused on CLI parsing and signal handling.
package application
