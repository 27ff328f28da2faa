// Package server implements the HTTP surface of the karaoke conversion
// service: conversion and playlist endpoints, the /status SSE stream, static
// media file serving, and the CORS / logging / rate-limit middleware stack.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with
// method-qualified patterns.
package server
