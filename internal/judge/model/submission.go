package model

import (
	"bufio"
	"strings"

	"github.com/google/uuid"
)

// JudgeID names a supported judge variant.
type JudgeID string

const (
	JudgeCodeforces JudgeID = "codeforces"
	JudgeSpoj       JudgeID = "spoj"
)

// SubmissionID is the identifier a judge assigns to a submission.
type SubmissionID string

// Marker is the per-attempt token embedded in submitted content.
type Marker string

const markerPrefix = "// UUID: "

// NewMarker returns a fresh random marker.
func NewMarker() Marker {
	return Marker(uuid.New().String())
}

// EmbedMarker returns a copy of content with the marker appended as a trailing comment line.
func EmbedMarker(content string, m Marker) string {
	var b strings.Builder
	b.Grow(len(content) + len(markerPrefix) + len(m) + 2)
	b.WriteString(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(markerPrefix)
	b.WriteString(string(m))
	b.WriteByte('\n')
	return b.String()
}

// ExtractMarker finds the last marker line in a submitted source listing.
func ExtractMarker(source string) (Marker, bool) {
	var found Marker
	ok := false
	scanner := bufio.NewScanner(strings.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, has := strings.CutPrefix(line, markerPrefix); has {
			found = Marker(strings.TrimSpace(rest))
			ok = found != ""
		}
	}
	return found, ok
}

// Attempt is one submission try of a test file. It is immutable once built.
type Attempt struct {
	judge        JudgeID
	problemURL   string
	content      string
	marker       Marker
	number       int
	artifactPath string
}

// NewAttempt builds an attempt whose content is the marked copy of source.
func NewAttempt(judge JudgeID, problemURL, source string, marker Marker, number int, artifactPath string) Attempt {
	return Attempt{
		judge:        judge,
		problemURL:   problemURL,
		content:      EmbedMarker(source, marker),
		marker:       marker,
		number:       number,
		artifactPath: artifactPath,
	}
}

func (a Attempt) Judge() JudgeID { return a.judge }
func (a Attempt) ProblemURL() string { return a.problemURL }
func (a Attempt) Content() string { return a.content }
func (a Attempt) Marker() Marker { return a.marker }
func (a Attempt) Number() int { return a.number }
func (a Attempt) ArtifactPath() string { return a.artifactPath }

// SubmissionRecord binds a judge submission id to the attempt marker that produced it.
type SubmissionRecord struct {
	Judge  JudgeID
	ID     SubmissionID
	Marker Marker
}

// Verdict is the judged state of one submission.
type Verdict int

const (
	VerdictPending Verdict = iota
	VerdictAccepted
	VerdictRejected
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// IsFinal reports whether the judge finished with the submission.
func (v Verdict) IsFinal() bool {
	return v == VerdictAccepted || v == VerdictRejected
}
