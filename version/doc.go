// Package version reports the framepipe build.
//
// Version, commit, branch and build time are set at link time and fall back
// to the VCS stamp the Go toolchain embeds:
//
//	go build -ldflags "-X github.com/kbukum/framepipe/version.Version=1.0.0" ./cmd/framepipe
package version
