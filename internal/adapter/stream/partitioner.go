package stream

import "github.com/cespare/xxhash/v2"

// Partitioner maps a partition key to one of n partitions. Every producer and consumer of a
// log must agree on n.
type Partitioner struct {
	n int
}

func NewPartitioner(n int) Partitioner {
	if n <= 0 {
		n = 1
	}
	return Partitioner{n: n}
}

func (p Partitioner) For(key string) int {
	return int(xxhash.Sum64String(key) % uint64(p.n))
}

func (p Partitioner) Partitions() int {
	return p.n
}
