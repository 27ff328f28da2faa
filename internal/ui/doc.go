// Package ui implements the terminal status viewer: a bubbletea program that
// subscribes to the service's /status event stream and renders live pipeline
// progress.
package ui
