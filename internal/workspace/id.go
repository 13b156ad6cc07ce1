package workspace

import (
	"fmt"
	"os"
	"regexp"
	"sync/atomic"
	"time"
)

// idCounter disambiguates submissions from the same process in the same
// microsecond. Time alone is insufficient across processes and a counter
// alone does not survive restarts; the concatenation of all three is the
// minimum that keeps IDs unique across concurrent submitters.
var idCounter atomic.Uint64

var idPattern = regexp.MustCompile(`^[0-9]+_[0-9]+_[0-9]+$`)

// NewJobID generates a filesystem-safe job ID of the form
// <microseconds>_<pid>_<counter>. Lexicographic ordering of IDs from a
// single process matches submission order.
func NewJobID() string {
	micros := time.Now().UnixMicro()
	n := idCounter.Add(1) - 1
	return fmt.Sprintf("%d_%d_%d", micros, os.Getpid(), n)
}

// ValidJobID reports whether s has the canonical ID shape.
func ValidJobID(s string) bool {
	return idPattern.MatchString(s)
}
