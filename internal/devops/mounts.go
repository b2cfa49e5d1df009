package devops

import "strings"

// containsMountSource reports whether /proc/mounts content mounts lists
// path as a mount source (first whitespace-separated field of some line).
func containsMountSource(mounts, path string) bool {
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == path {
			return true
		}
	}
	return false
}
