package manager

import (
	"errors"
	"testing"

	"github.com/shaiso/circle/internal/domain"
)

func TestLeastLoaded_Place(t *testing.T) {
	spec := domain.InstanceSpec{Name: "cloud-1", Memory: 1024, VCPUs: 2}

	tests := []struct {
		name    string
		nodes   []domain.Node
		usage   map[string]domain.Usage
		want    string
		wantErr error
	}{
		{
			name: "most free memory",
			nodes: []domain.Node{
				{Name: "node01", Enabled: true, CPUs: 8, Memory: 8192},
				{Name: "node02", Enabled: true, CPUs: 8, Memory: 8192},
			},
			usage: map[string]domain.Usage{"node01": {Memory: 4096}},
			want:  "node02",
		},
		{
			name: "tie broken by name",
			nodes: []domain.Node{
				{Name: "node02", Enabled: true, CPUs: 8, Memory: 4096},
				{Name: "node01", Enabled: true, CPUs: 8, Memory: 4096},
			},
			want: "node01",
		},
		{
			name: "disabled node skipped",
			nodes: []domain.Node{
				{Name: "node01", Enabled: false, CPUs: 64, Memory: 65536},
				{Name: "node02", Enabled: true, CPUs: 4, Memory: 2048},
			},
			want: "node02",
		},
		{
			name: "not enough cpus",
			nodes: []domain.Node{
				{Name: "node01", Enabled: true, CPUs: 4, Memory: 65536},
				{Name: "node02", Enabled: true, CPUs: 8, Memory: 2048},
			},
			usage: map[string]domain.Usage{"node01": {CPUs: 3}},
			want:  "node02",
		},
		{
			name: "no capacity",
			nodes: []domain.Node{
				{Name: "node01", Enabled: true, CPUs: 8, Memory: 1024},
			},
			usage:   map[string]domain.Usage{"node01": {Memory: 512}},
			wantErr: ErrNoCapacity,
		},
		{
			name:    "empty pool",
			wantErr: ErrNoCapacity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LeastLoaded{}.Place(spec, tt.nodes, tt.usage)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
