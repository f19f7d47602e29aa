// Package partition maps site ids onto a fixed partition space.
package partition

import "hash/fnv"

// Count is the number of logical partitions. Changing it remaps every site.
const Count = 256

// For returns the site's partition in [0, Count), using FNV-32a.
func For(siteID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(siteID))
	return int(h.Sum32() % Count)
}

// Shard maps a site onto one of n shards through its partition, so that
// sites sharing a partition always share a shard.
func Shard(siteID string, n int) int {
	if n <= 1 {
		return 0
	}
	return For(siteID) % n
}
