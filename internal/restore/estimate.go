package restore

import "github.com/drorchestrator/backend-go/internal/domain"

const mb = 1 << 20

var baseEstimates = map[domain.ComponentType]domain.ResourceRequirements{
	domain.ComponentDatabase:      {CPUMillis: 2000, MemoryMB: 4096, NetworkMbps: 500},
	domain.ComponentStorage:       {CPUMillis: 1000, MemoryMB: 1024, NetworkMbps: 1000},
	domain.ComponentApplication:   {CPUMillis: 500, MemoryMB: 512, NetworkMbps: 100},
	domain.ComponentCache:         {CPUMillis: 500, MemoryMB: 2048, NetworkMbps: 200},
	domain.ComponentConfiguration: {CPUMillis: 100, MemoryMB: 64, NetworkMbps: 10},
	domain.ComponentSecrets:       {CPUMillis: 100, MemoryMB: 64, NetworkMbps: 10},
}

// DefaultEstimate sizes a restore from its type, with disk scratch space
// equal to the backup size
func DefaultEstimate(comp domain.RecoveryComponent) domain.ResourceRequirements {
	est, ok := baseEstimates[comp.Type]
	if !ok {
		est = domain.ResourceRequirements{CPUMillis: 500, MemoryMB: 512, NetworkMbps: 100}
	}
	if comp.SizeBytes > 0 {
		est.DiskMB = (comp.SizeBytes + mb - 1) / mb
	}
	return est
}
