package ioexec

import "fmt"

// Populated at build time via -ldflags.
var (
	gitSHA1   string = "unknown"
	gitDirty  string = "unknown"
	buildDate string = "unknown"
)

func Version() string {
	return fmt.Sprintf("go-ioexec (git:%s dirty:%s built:%s)", gitSHA1, gitDirty, buildDate)
}
