package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// IDPrefix is the prefix for generated task IDs.
const IDPrefix = "TASK"

var idPattern = regexp.MustCompile(`^TASK-(\d+)$`)

// NextID returns the next sequential task ID given the existing ones.
// IDs that do not match the TASK-NNN pattern are ignored.
func NextID(existing []string) string {
	max := 0
	for _, id := range existing {
		m := idPattern.FindStringSubmatch(strings.TrimSpace(id))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s-%03d", IDPrefix, max+1)
}

// ValidID reports whether the string is a well-formed task ID.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
