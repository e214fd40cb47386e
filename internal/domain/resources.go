package domain

import "fmt"

// ResourceRequirements is a multi-dimensional resource quantity
type ResourceRequirements struct {
	CPUMillis   int64 `json:"cpu_millis" yaml:"cpu_millis"`
	MemoryMB    int64 `json:"memory_mb" yaml:"memory_mb"`
	DiskMB      int64 `json:"disk_mb" yaml:"disk_mb"`
	NetworkMbps int64 `json:"network_mbps" yaml:"network_mbps"`
}

// IsZero reports whether no dimension is requested
func (r ResourceRequirements) IsZero() bool {
	return r == ResourceRequirements{}
}

// Add returns the dimension-wise sum
func (r ResourceRequirements) Add(o ResourceRequirements) ResourceRequirements {
	return ResourceRequirements{
		CPUMillis:   r.CPUMillis + o.CPUMillis,
		MemoryMB:    r.MemoryMB + o.MemoryMB,
		DiskMB:      r.DiskMB + o.DiskMB,
		NetworkMbps: r.NetworkMbps + o.NetworkMbps,
	}
}

// Sub returns the dimension-wise difference
func (r ResourceRequirements) Sub(o ResourceRequirements) ResourceRequirements {
	return ResourceRequirements{
		CPUMillis:   r.CPUMillis - o.CPUMillis,
		MemoryMB:    r.MemoryMB - o.MemoryMB,
		DiskMB:      r.DiskMB - o.DiskMB,
		NetworkMbps: r.NetworkMbps - o.NetworkMbps,
	}
}

// FitsWithin reports whether every dimension is <= the same dimension of limit
func (r ResourceRequirements) FitsWithin(limit ResourceRequirements) bool {
	return r.CPUMillis <= limit.CPUMillis &&
		r.MemoryMB <= limit.MemoryMB &&
		r.DiskMB <= limit.DiskMB &&
		r.NetworkMbps <= limit.NetworkMbps
}

// Negative reports whether any dimension dropped below zero
func (r ResourceRequirements) Negative() bool {
	return r.CPUMillis < 0 || r.MemoryMB < 0 || r.DiskMB < 0 || r.NetworkMbps < 0
}

func (r ResourceRequirements) String() string {
	return fmt.Sprintf("cpu=%dm mem=%dMB disk=%dMB net=%dMbps", r.CPUMillis, r.MemoryMB, r.DiskMB, r.NetworkMbps)
}
