package notify

import (
	"fmt"
	"net/url"
	"strings"

	"pagewatch/internal/detect"
	"pagewatch/internal/model"
)

// previewLines is how many lines of current content an unchanged-check
// notification carries.
const previewLines = 5

// Input carries everything the composer needs about one check.
type Input struct {
	Event         model.Event
	URL           string
	Mode          model.Mode
	NotifyOnCheck bool
	AttachContent bool
	Previous      string
	Current       string
	Diff          []string
}

// Compose builds the notification text for one check. The boolean is false
// when the check must not produce a notification.
func Compose(in Input) (string, bool) {
	site := SiteName(in.URL)
	var b strings.Builder

	switch in.Event {
	case model.EventInitial:
		if !in.NotifyOnCheck {
			return "", false
		}
		fmt.Fprintf(&b, "【監視開始】\nサイト「%s」の監視を開始しました。\n%s", site, in.URL)
		if in.AttachContent && in.Mode != model.ModeDefault {
			b.WriteString("\n\n--- 取得内容 ---\n")
			b.WriteString(in.Current)
		}

	case model.EventUnchanged:
		if !in.NotifyOnCheck {
			return "", false
		}
		fmt.Fprintf(&b, "【定期チェック完了】\nサイト「%s」をチェックしました (変更なし)。\n%s", site, in.URL)
		if in.AttachContent {
			lines := detect.SplitLines(in.Current)
			if len(lines) > previewLines {
				lines = lines[:previewLines]
			}
			b.WriteString("\n\n--- 現在の内容 (先頭5行) ---\n")
			b.WriteString(strings.Join(lines, "\n"))
		}

	case model.EventChanged:
		fmt.Fprintf(&b, "【更新通知】\nサイト「%s」で変化を検知しました！\nすぐに確認してください！\n%s", site, in.URL)
		if in.AttachContent {
			if len(in.Diff) > 0 {
				b.WriteString("\n\n--- 変更点 ---\n")
				b.WriteString(strings.Join(in.Diff, "\n"))
			} else {
				b.WriteString("\n\n--- 変更前 ---\n")
				b.WriteString(in.Previous)
				b.WriteString("\n\n--- 変更後 ---\n")
				b.WriteString(in.Current)
			}
		}

	default:
		return "", false
	}

	return b.String(), true
}

// SiteName returns the host part of rawURL, or rawURL itself when it does
// not parse.
func SiteName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// Chunk splits text into pieces of at most limit characters. When more than
// one piece is needed each is prefixed with an "[i/N]" marker line.
func Chunk(text string, limit int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	n := (len(runes) + limit - 1) / limit
	chunks := make([]string, 0, n)
	for i := 0; i < n; i++ {
		end := min((i+1)*limit, len(runes))
		chunks = append(chunks, fmt.Sprintf("[%d/%d]\n%s", i+1, n, string(runes[i*limit:end])))
	}
	return chunks
}
