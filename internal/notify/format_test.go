package notify

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pagewatch/internal/model"
)

const testURL = "https://shop.example.com/bags"

func TestCompose(t *testing.T) {
	tests := []struct {
		name   string
		in     Input
		want   string
		wantOK bool
	}{
		{
			name: "initial silent",
			in:   Input{Event: model.EventInitial, URL: testURL, Mode: model.ModeProduct},
		},
		{
			name:   "initial notify",
			in:     Input{Event: model.EventInitial, URL: testURL, Mode: model.ModeProduct, NotifyOnCheck: true},
			want:   "【監視開始】\nサイト「shop.example.com」の監視を開始しました。\n" + testURL,
			wantOK: true,
		},
		{
			name: "initial with content",
			in: Input{
				Event: model.EventInitial, URL: testURL, Mode: model.ModeProduct,
				NotifyOnCheck: true, AttachContent: true, Current: "Bag A\nBag B",
			},
			want:   "【監視開始】\nサイト「shop.example.com」の監視を開始しました。\n" + testURL + "\n\n--- 取得内容 ---\nBag A\nBag B",
			wantOK: true,
		},
		{
			name: "initial default mode never attaches",
			in: Input{
				Event: model.EventInitial, URL: testURL, Mode: model.ModeDefault,
				NotifyOnCheck: true, AttachContent: true, Current: "whole page",
			},
			want:   "【監視開始】\nサイト「shop.example.com」の監視を開始しました。\n" + testURL,
			wantOK: true,
		},
		{
			name: "unchanged silent",
			in:   Input{Event: model.EventUnchanged, URL: testURL, AttachContent: true, Current: "x"},
		},
		{
			name: "unchanged preview",
			in: Input{
				Event: model.EventUnchanged, URL: testURL, Mode: model.ModeDefault,
				NotifyOnCheck: true, AttachContent: true, Current: "1\n2\n3\n4\n5\n6\n7",
			},
			want:   "【定期チェック完了】\nサイト「shop.example.com」をチェックしました (変更なし)。\n" + testURL + "\n\n--- 現在の内容 (先頭5行) ---\n1\n2\n3\n4\n5",
			wantOK: true,
		},
		{
			name:   "changed always sent",
			in:     Input{Event: model.EventChanged, URL: testURL, Diff: []string{"-a", "+b"}},
			want:   "【更新通知】\nサイト「shop.example.com」で変化を検知しました！\nすぐに確認してください！\n" + testURL,
			wantOK: true,
		},
		{
			name: "changed with diff",
			in: Input{
				Event: model.EventChanged, URL: testURL, AttachContent: true,
				Previous: "a", Current: "b", Diff: []string{"-a", "+b"},
			},
			want:   "【更新通知】\nサイト「shop.example.com」で変化を検知しました！\nすぐに確認してください！\n" + testURL + "\n\n--- 変更点 ---\n-a\n+b",
			wantOK: true,
		},
		{
			name: "changed fallback",
			in: Input{
				Event: model.EventChanged, URL: testURL, AttachContent: true,
				Previous: "a\n", Current: "a",
			},
			want:   "【更新通知】\nサイト「shop.example.com」で変化を検知しました！\nすぐに確認してください！\n" + testURL + "\n\n--- 変更前 ---\na\n\n\n--- 変更後 ---\na",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compose(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Compose mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSiteName(t *testing.T) {
	tests := map[string]string{
		"https://example.com/a/b":  "example.com",
		"http://example.com:8080/": "example.com:8080",
		"not a url":                "not a url",
	}
	for in, want := range tests {
		if got := SiteName(in); got != want {
			t.Errorf("SiteName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "empty", text: "", limit: 5, want: nil},
		{name: "fits", text: "abcde", limit: 5, want: []string{"abcde"}},
		{
			name:  "split",
			text:  "abcdefghijkl",
			limit: 5,
			want:  []string{"[1/3]\nabcde", "[2/3]\nfghij", "[3/3]\nkl"},
		},
		{
			name:  "counts characters not bytes",
			text:  "あいうえおか",
			limit: 3,
			want:  []string{"[1/2]\nあいう", "[2/2]\nえおか"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Chunk(tt.text, tt.limit)); diff != "" {
				t.Errorf("Chunk mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChunkDefaultLimit(t *testing.T) {
	text := strings.Repeat("x", DefaultMessageLimit*2+1)
	chunks := Chunk(text, DefaultMessageLimit)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if !strings.HasPrefix(chunks[2], "[3/3]\n") {
		t.Errorf("last chunk prefix = %q", chunks[2][:6])
	}
}

func TestChunkReassembles(t *testing.T) {
	text := strings.Repeat("0123456789", 1000)
	chunks := Chunk(text, DefaultMessageLimit)

	var prefixes []string
	var body strings.Builder
	for _, c := range chunks {
		prefix, rest, ok := strings.Cut(c, "\n")
		if !ok {
			t.Fatalf("chunk without marker line: %q", c[:20])
		}
		prefixes = append(prefixes, prefix)
		body.WriteString(rest)
	}

	if diff := cmp.Diff([]string{"[1/3]", "[2/3]", "[3/3]"}, prefixes); diff != "" {
		t.Errorf("markers mismatch (-want +got):\n%s", diff)
	}
	if body.String() != text {
		t.Error("chunk bodies do not concatenate to the input text")
	}
}
