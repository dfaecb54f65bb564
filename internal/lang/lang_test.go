package lang

import (
	"context"
	"testing"
)

func TestLanguageRegistered(t *testing.T) {
	t.Parallel()

	if C.lang == nil {
		t.Fatal("c language is nil")
	}
	if C.Name != "c" {
		t.Errorf("name = %q", C.Name)
	}
}

func TestIsHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{"starpu.h", true},
		{"include/starpu/1.4/starpu_task.h", true},
		{"starpu.c", false},
		{"starpu.hpp", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			if got := C.IsHeader(tt.path); got != tt.want {
				t.Errorf("IsHeader(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestNewParser(t *testing.T) {
	t.Parallel()

	p := C.NewParser()
	if p == nil {
		t.Fatal("NewParser returned nil")
	}
	src := []byte("struct starpu_task;\n")
	tree, err := p.ParseCtx(context.Background(), nil, src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	defer tree.Close()
	if tree.RootNode().HasError() {
		t.Errorf("unexpected syntax error: %s", tree.RootNode().String())
	}
}

func TestGetRefQuery(t *testing.T) {
	t.Parallel()

	q, err := C.GetRefQuery()
	if err != nil {
		t.Fatalf("GetRefQuery: %v", err)
	}
	if q == nil {
		t.Fatal("query is nil")
	}

	// Second call returns the cached query.
	q2, err := C.GetRefQuery()
	if err != nil {
		t.Fatalf("GetRefQuery (2nd): %v", err)
	}
	if q != q2 {
		t.Error("expected same query pointer on second call")
	}
}

func TestCollapseWhitespace(t *testing.T) {
	t.Parallel()

	if got := CollapseWhitespace("  unsigned \n long\tint "); got != "unsigned long int" {
		t.Errorf("got %q", got)
	}
}
