package classify

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        Kind
	}{
		{"pdf header", "application/pdf", "anything", KindPDF},
		{"pdf header with params", "Application/PDF; qs=0.001", "", KindPDF},
		{"pdf magic overrides html header", "text/html; charset=utf-8", "%PDF-1.7\n...", KindPDF},
		{"pdf magic without header", "", "%PDF-1.4", KindPDF},
		{"html header", "text/html; charset=utf-8", "<p>hi</p>", KindHTML},
		{"plain text header", "text/plain", "just words", KindHTML},
		{"xhtml header", "application/xhtml+xml", "<html/>", KindHTML},
		{"sniffed html", "", "<!DOCTYPE html><html><head><title>x</title></head><body><p>y</p></body></html>", KindHTML},
		{"sniffed fragment", "application/octet-stream", "<div><span>fragment</span></div>", KindHTML},
		{"json", "application/json", `{"a":1}`, KindOther},
		{"image", "image/png", "\x89PNG\r\n\x1a\n", KindOther},
		{"unknown binary", "", "\x00\x01\x02\x03\x04", KindOther},
		{"empty", "", "", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.contentType, []byte(tt.body)); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
