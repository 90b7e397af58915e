// Package buildinfo carries release metadata stamped in by the linker:
//
//	go build -ldflags "-X github.com/m3rciful/topicrelay/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/m3rciful/topicrelay/core/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/m3rciful/topicrelay/core/buildinfo.Date=$(date -u +%FT%TZ)"
package buildinfo

var (
	Version = "dev"
	Commit  = "local"
	// Date is RFC 3339; empty for local builds.
	Date = ""
)
