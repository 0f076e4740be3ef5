package pii

import (
	"strings"
	"testing"
)

func TestScanEmail(t *testing.T) {
	f := NewFilter(false)

	clean, detections := f.Scan("Reach us at test@example.com for details.")

	if len(detections) != 1 {
		t.Fatalf("detections = %d, want 1", len(detections))
	}
	if detections[0].Kind != KindEmail {
		t.Errorf("kind = %q, want %q", detections[0].Kind, KindEmail)
	}
	if detections[0].Match != "test@example.com" {
		t.Errorf("match = %q, want test@example.com", detections[0].Match)
	}
	if clean != "Reach us at "+Placeholder+" for details." {
		t.Errorf("clean = %q", clean)
	}
}

func TestScanPhone(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"separated", "Call 555-867-5309 anytime."},
		{"dotted", "Call 555.867.5309 anytime."},
		{"parenthesized", "Call (555) 867-5309 anytime."},
		{"international", "Call +1 555 867 5309 anytime."},
		{"bare ten digits", "Call 5558675309 anytime."},
	}

	f := NewFilter(false)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clean, detections := f.Scan(tt.text)
			if len(detections) == 0 {
				t.Fatalf("no detection in %q", tt.text)
			}
			for _, d := range detections {
				if d.Kind != KindPhone {
					t.Errorf("kind = %q, want %q", d.Kind, KindPhone)
				}
			}
			if !strings.Contains(clean, Placeholder) {
				t.Errorf("clean = %q, missing placeholder", clean)
			}
		})
	}
}

func TestScanIgnoresPrices(t *testing.T) {
	tests := []string{
		"Plans run $500-1000 per month.",
		"The Growth plan is $1,200 per month.",
		"Projects start at $500.",
	}

	f := NewFilter(false)

	for _, text := range tests {
		if clean, detections := f.Scan(text); len(detections) != 0 {
			t.Errorf("Scan(%q) flagged %d spans, clean = %q", text, len(detections), clean)
		}
	}
}

func TestScanCleanTextUnchanged(t *testing.T) {
	f := NewFilter(false)

	text := "We offer branding and web design. Any other questions?"
	clean, detections := f.Scan(text)

	if detections != nil {
		t.Errorf("detections = %v, want nil", detections)
	}
	if clean != text {
		t.Errorf("clean = %q, want input unchanged", clean)
	}
}

func TestScanMultipleSpans(t *testing.T) {
	f := NewFilter(false)

	text := "Email a@b.com or b@c.org, or call 555-867-5309."
	clean, detections := f.Scan(text)

	if len(detections) != 3 {
		t.Fatalf("detections = %d, want 3", len(detections))
	}
	if strings.Count(clean, Placeholder) != 3 {
		t.Errorf("clean = %q, want 3 placeholders", clean)
	}
	for i := 1; i < len(detections); i++ {
		if detections[i].Start < detections[i-1].End {
			t.Errorf("detections out of order or overlapping: %v", detections)
		}
	}
}

func TestDetectionOffsetsMatchOriginal(t *testing.T) {
	f := NewFilter(false)

	text := "Write to help@agency.io today."
	_, detections := f.Scan(text)

	if len(detections) != 1 {
		t.Fatalf("detections = %d, want 1", len(detections))
	}
	d := detections[0]
	if text[d.Start:d.End] != d.Match {
		t.Errorf("text[%d:%d] = %q, want %q", d.Start, d.End, text[d.Start:d.End], d.Match)
	}
}

func TestOverlaps(t *testing.T) {
	existing := []Detection{{Start: 5, End: 10}}

	tests := []struct {
		start, end int
		want       bool
	}{
		{0, 5, false},
		{10, 15, false},
		{4, 6, true},
		{9, 12, true},
		{6, 9, true},
	}

	for _, tt := range tests {
		if got := overlaps(existing, tt.start, tt.end); got != tt.want {
			t.Errorf("overlaps(%d, %d) = %v, want %v", tt.start, tt.end, got, tt.want)
		}
	}
}
