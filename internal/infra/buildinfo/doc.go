// Package buildinfo reports the version of the running respkv binary.
//
// Version, Commit and BuildTime are injected at build time:
//
//	go build -ldflags "-X github.com/yndnr/respkv/internal/infra/buildinfo.Version=v1.0.0"
//
// Anything not injected falls back to the VCS stamp recorded by the Go
// toolchain, then to the placeholder defaults.
package buildinfo
