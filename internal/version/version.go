package version

import (
	"fmt"
	"io"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/MrSnakeDoc/s1lag/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

func Print(w io.Writer) {
	_, _ = fmt.Fprintln(w, "s1lag - CVMFS Stratum-1 replication lag sampler")
	_, _ = fmt.Fprintf(w, "  %-12s %s\n", "Version:", Version)
	_, _ = fmt.Fprintf(w, "  %-12s %s\n", "Go Version:", GoVersion)
	_, _ = fmt.Fprintf(w, "  %-12s %s\n", "Git Commit:", Commit)
	_, _ = fmt.Fprintf(w, "  %-12s %s\n", "Built:", Date)
	_, _ = fmt.Fprintf(w, "  %-12s %s/%s\n", "OS/Arch:", runtime.GOOS, runtime.GOARCH)
}
