package job

import (
	"fmt"
	"sync"
	"testing"

	"github.com/arkilian/shardplan/pkg/types"
)

func TestDescriptor_AddInputPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		format  types.InputFormat
		wantErr bool
	}{
		{"plain path", "/data/2024/*.json", types.FormatText, false},
		{"s3 url", "s3://logs/2024/01/part-*", types.FormatCombineText, false},
		{"parquet", "gs://lake/events/*.parquet", types.FormatParquet, false},
		{"escaped comma", `/data/a\,b/*`, types.FormatText, false},
		{"class with comma", "/data/[,_]x", types.FormatText, false},
		{"empty", "", types.FormatText, true},
		{"blank", "   ", types.FormatText, true},
		{"unset format", "/data/x", types.FormatUnset, true},
		{"unknown format", "/data/x", types.InputFormat("orc"), true},
		{"alternation group", "/data/{a,b}", types.FormatText, true},
		{"comma path set", "/a,/b", types.FormatText, true},
		{"bad url", "s3://bucket%zz/x", types.FormatText, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDescriptor("index")
			err := d.AddInputPath(tt.path, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("AddInputPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if tt.wantErr && len(d.Inputs()) != 0 {
				t.Error("rejected path was registered")
			}
		})
	}
}

func TestDescriptor_InputsInOrder(t *testing.T) {
	d := NewDescriptor("index")
	paths := []string{"/a/*", "/b/*", "/c/*"}
	for _, p := range paths {
		if err := d.AddInputPath(p, types.FormatText); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	inputs := d.Inputs()
	if len(inputs) != len(paths) {
		t.Fatalf("expected %d inputs, got %d", len(paths), len(inputs))
	}
	for i, in := range inputs {
		if in.Path != paths[i] {
			t.Errorf("inputs[%d].Path = %q, want %q", i, in.Path, paths[i])
		}
		if want := fmt.Sprintf("input-%d", i); in.Alias != want {
			t.Errorf("inputs[%d].Alias = %q, want %q", i, in.Alias, want)
		}
	}

	// Returned slice is a copy
	inputs[0].Path = "mutated"
	if d.Inputs()[0].Path != "/a/*" {
		t.Error("Inputs exposed internal state")
	}
	if d.Name() != "index" {
		t.Errorf("Name() = %q", d.Name())
	}
}

func TestDescriptor_ConcurrentRegistration(t *testing.T) {
	d := NewDescriptor("index")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = d.AddInputPath(fmt.Sprintf("/p/%d/*", i), types.FormatText)
		}(i)
	}
	wg.Wait()

	inputs := d.Inputs()
	if len(inputs) != 50 {
		t.Fatalf("expected 50 inputs, got %d", len(inputs))
	}
	seen := make(map[string]bool)
	for _, in := range inputs {
		if seen[in.Alias] {
			t.Errorf("duplicate alias %s", in.Alias)
		}
		seen[in.Alias] = true
	}
}
