package detect

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"pagewatch/internal/model"
)

func ptr(s string) *string { return &s }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		previous *string
		current  string
		want     Result
	}{
		{
			name:    "first extraction",
			current: "Hello",
			want:    Result{Event: model.EventInitial},
		},
		{
			name:     "first extraction stored empty",
			previous: ptr(""),
			current:  "",
			want:     Result{Event: model.EventUnchanged},
		},
		{
			name:     "same content",
			previous: ptr("Hello"),
			current:  "Hello",
			want:     Result{Event: model.EventUnchanged},
		},
		{
			name:     "single line edited",
			previous: ptr("Hello"),
			current:  "Hello World",
			want:     Result{Event: model.EventChanged, Diff: []string{"-Hello", "+Hello World"}},
		},
		{
			name:     "line appended",
			previous: ptr("Hello"),
			current:  "Hello\nWorld",
			want:     Result{Event: model.EventChanged, Diff: []string{"+World"}},
		},
		{
			name:     "middle line replaced",
			previous: ptr("a\nb\nc"),
			current:  "a\nx\nc",
			want:     Result{Event: model.EventChanged, Diff: []string{"-b", "+x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.previous, tt.current)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Classify mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDiffSeparateHunks(t *testing.T) {
	prev := "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\n12"
	cur := "1\nTWO\n3\n4\n5\n6\n7\n8\n9\n10\n11\n12\n13"

	want := []string{"-2", "+TWO", "+13"}
	if diff := cmp.Diff(want, Diff(prev, cur)); diff != "" {
		t.Errorf("Diff mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffKeepsMarkerLikeContent(t *testing.T) {
	got := Diff("+ keep\n- keep\nold", "+ keep\n- keep\nnew")
	if diff := cmp.Diff([]string{"-old", "+new"}, got); diff != "" {
		t.Errorf("Diff mismatch (-want +got):\n%s", diff)
	}
}

func TestNeedsFallback(t *testing.T) {
	// Only the line endings differ, so the line diff is empty.
	res := Classify(ptr("a\nb\n"), "a\r\nb")
	if res.Event != model.EventChanged {
		t.Fatalf("expected changed, got %s", res.Event)
	}
	if !res.NeedsFallback() {
		t.Errorf("expected fallback for empty diff, got %v", res.Diff)
	}

	if Classify(ptr("a"), "b").NeedsFallback() {
		t.Error("non-empty diff must not need fallback")
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "a", want: []string{"a"}},
		{in: "a\n", want: []string{"a"}},
		{in: "a\r\nb\rc", want: []string{"a", "b", "c"}},
		{in: "a\n\nb", want: []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, SplitLines(tt.in)); diff != "" {
				t.Errorf("SplitLines mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
