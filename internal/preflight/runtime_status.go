package preflight

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// Below this many inotify watches per root, deep libraries exhaust the limit.
const minWatchesPerRoot = 8192

var readSysctlInts = func(name string) ([]int, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	return fs.SysctlInts(name)
}

// CheckInotifyLimit reports fs.inotify.max_user_watches. The check is
// advisory: a low limit only means some directories fall back to the
// periodic rescan.
func CheckInotifyLimit(roots int) Result {
	const name = "inotify watches"
	values, err := readSysctlInts("fs.inotify.max_user_watches")
	if err != nil || len(values) == 0 {
		return Result{Name: name, Optional: true, Detail: "unable to read fs.inotify.max_user_watches"}
	}
	limit := values[0]
	if roots < 1 {
		roots = 1
	}
	if limit < roots*minWatchesPerRoot {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("max_user_watches=%d is low; raise it if directories go unwatched", limit)}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: fmt.Sprintf("max_user_watches=%d", limit)}
}
