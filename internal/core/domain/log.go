package domain

import "fmt"

// LogPosition locates an appended entry within a partition.
type LogPosition struct {
	Partition int    `json:"partition"`
	Sequence  string `json:"sequence"`
}

func (p LogPosition) String() string {
	return fmt.Sprintf("%d/%s", p.Partition, p.Sequence)
}

type LogEntry struct {
	Position LogPosition
	Payload  []byte
}
