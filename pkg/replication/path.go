// Package replication talks to the OSM changeset replication feed: it
// maps sequence numbers to file URLs, reads the remote state file, and
// fetches gzipped replication files with throttling and retries.
package replication

import (
	"fmt"
	"strings"
)

// SequencePath converts a sequence number to its location in the
// replication tree: the number is zero-padded to 9 digits aaabbbccc and
// split into "aaa/bbb/ccc".
func SequencePath(seq int64) string {
	s := fmt.Sprintf("%09d", seq)
	return s[0:3] + "/" + s[3:6] + "/" + s[6:9]
}

// FileURL returns the URL of the replication file for a sequence number.
func FileURL(baseURL string, seq int64) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + SequencePath(seq) + ".osm.gz"
}

// StateFileURL returns the URL of the feed's state file.
func StateFileURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + "/state.yaml"
}
