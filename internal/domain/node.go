package domain

// Node — гипервизор из пула.
type Node struct {
	// Name — имя узла; совпадает с hostname в именах очередей.
	Name string `json:"name" yaml:"name" validate:"required,hostname_rfc1123"`

	// Enabled — узел принимает новые VM.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// CPUs — количество vCPU, доступных для VM.
	CPUs int `json:"cpus" yaml:"cpus" validate:"gt=0"`

	// Memory — память для VM в MiB.
	Memory int `json:"memory" yaml:"memory" validate:"gt=0"`
}

// Usage — занятые на узле ресурсы.
type Usage struct {
	CPUs   int `json:"cpus"`
	Memory int `json:"memory"`
}

// Free возвращает свободные ресурсы узла при занятости u.
func (n Node) Free(u Usage) Usage {
	return Usage{
		CPUs:   n.CPUs - u.CPUs,
		Memory: n.Memory - u.Memory,
	}
}

// Fits проверяет, помещается ли VM на узел.
func (n Node) Fits(u Usage, spec InstanceSpec) bool {
	free := n.Free(u)
	return free.Memory >= spec.Memory && free.CPUs >= spec.VCPUs
}
