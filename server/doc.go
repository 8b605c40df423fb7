// Package server exposes the toolchain to other processes: Connect and
// gRPC services for compiling and running programs, and a language server.
package server
