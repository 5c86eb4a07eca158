// Package cli provides the interactive kopfkino command-line client.
//
// It drives a workspace.Workspace from a simple REPL: pick or create a
// project, list the ordered collections of the active project, open records
// in a nested edit loop that autosaves in the background, reorder records
// and change the tenant settings.
//
// Destructive actions go through a confirmation prompt. When stdin is not a
// terminal they are refused unless the -y flag was given.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
