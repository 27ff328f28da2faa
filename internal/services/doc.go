// Package services drives the external tools the conversion pipeline depends
// on: yt-dlp for metadata and audio download, demucs for two-stem source
// separation. Both are invoked as subprocesses; their stdout/stderr is the
// only integration surface.
//
// The package also provides [ExtractVideoID], the pure URL-to-identifier
// extractor, and [CheckBinaries] for reporting tool availability.
package services
