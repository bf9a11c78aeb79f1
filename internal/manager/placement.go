package manager

import (
	"fmt"

	"github.com/shaiso/circle/internal/domain"
)

// Placer выбирает узел для новой VM.
type Placer interface {
	Place(spec domain.InstanceSpec, nodes []domain.Node, usage map[string]domain.Usage) (string, error)
}

// LeastLoaded — узел с наибольшим объёмом свободной памяти.
//
// Рассматриваются только включённые узлы, где хватает памяти и vCPU.
// При равной свободной памяти побеждает узел с меньшим именем,
// чтобы выбор был детерминированным.
type LeastLoaded struct{}

// Place реализует Placer.
func (LeastLoaded) Place(spec domain.InstanceSpec, nodes []domain.Node, usage map[string]domain.Usage) (string, error) {
	best := ""
	bestFree := 0

	for _, n := range nodes {
		if !n.Enabled || !n.Fits(usage[n.Name], spec) {
			continue
		}
		free := n.Free(usage[n.Name]).Memory
		if best == "" || free > bestFree || (free == bestFree && n.Name < best) {
			best = n.Name
			bestFree = free
		}
	}

	if best == "" {
		return "", fmt.Errorf("%w: %d MiB, %d vcpus", ErrNoCapacity, spec.Memory, spec.VCPUs)
	}
	return best, nil
}
