package pii

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/concierge-agent/backend/pkg/logger"
)

const Placeholder = "[redacted]"

const (
	KindEmail  = "email"
	KindPhone  = "phone"
	KindPerson = "person_name"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// North-American separated form, international form with country code, and
	// bare ten-digit runs. Separators are required in the first form so that
	// price ranges like 500-1000 do not trip the detector.
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}`),
		regexp.MustCompile(`\+\d{1,3}[\s.\-]?\d{2,4}[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}`),
		regexp.MustCompile(`\b\d{10}\b`),
	}
)

type Detection struct {
	Kind  string
	Start int
	End   int
	Match string
}

type Filter struct {
	detectNames bool
}

// NewFilter builds a scanner for personal data. Name detection runs the
// prose NER model and is noticeably slower than the regex passes, so it is
// opt-in.
func NewFilter(detectNames bool) *Filter {
	return &Filter{detectNames: detectNames}
}

// Scan returns text with every detected span replaced by Placeholder, plus
// the detections themselves. Offsets refer to the original text.
func (f *Filter) Scan(text string) (string, []Detection) {
	detections := f.detect(text)
	if len(detections) == 0 {
		return text, nil
	}

	clean := redact(text, detections)

	logger.Info("PII detected and redacted", zap.Int("detections", len(detections)))

	return clean, detections
}

func (f *Filter) detect(text string) []Detection {
	var detections []Detection

	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		detections = append(detections, Detection{
			Kind:  KindEmail,
			Start: loc[0],
			End:   loc[1],
			Match: text[loc[0]:loc[1]],
		})
	}

	for _, pattern := range phonePatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			if overlaps(detections, loc[0], loc[1]) {
				continue
			}
			detections = append(detections, Detection{
				Kind:  KindPhone,
				Start: loc[0],
				End:   loc[1],
				Match: text[loc[0]:loc[1]],
			})
		}
	}

	if f.detectNames {
		detections = append(detections, f.detectPersonNames(text, detections)...)
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Start < detections[j].Start
	})

	return detections
}

func (f *Filter) detectPersonNames(text string, existing []Detection) []Detection {
	doc, err := prose.NewDocument(text)
	if err != nil {
		logger.Warn("NER pass failed, skipping name detection", zap.Error(err))
		return nil
	}

	var detections []Detection
	offset := 0

	for _, ent := range doc.Entities() {
		if ent.Label != "PERSON" {
			continue
		}

		idx := strings.Index(text[offset:], ent.Text)
		if idx < 0 {
			continue
		}

		start := offset + idx
		end := start + len(ent.Text)
		offset = end

		if overlaps(existing, start, end) {
			continue
		}

		detections = append(detections, Detection{
			Kind:  KindPerson,
			Start: start,
			End:   end,
			Match: ent.Text,
		})
	}

	return detections
}

func redact(text string, detections []Detection) string {
	// Replace back to front so earlier offsets stay valid.
	ordered := make([]Detection, len(detections))
	copy(ordered, detections)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	for _, d := range ordered {
		text = text[:d.Start] + Placeholder + text[d.End:]
	}

	return text
}

func overlaps(detections []Detection, start, end int) bool {
	for _, d := range detections {
		if start < d.End && end > d.Start {
			return true
		}
	}
	return false
}
