// Package tasks implements the conversion pipeline.
//
// The core abstraction is [ConvertEngine], which sequences identifier
// extraction, duplicate lookup, metadata probe, audio download, source
// separation, and record persistence for one request. Every stage emits a
// [StatusUpdate] through a process-wide [Broadcaster] consumed by the SSE
// endpoint and the terminal status viewer.
package tasks
