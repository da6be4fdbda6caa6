package adapter

import (
	"context"
	"net/http"
	"os"

	"reftester/internal/judge/model"
	appErr "reftester/pkg/errors"
)

// Credentials holds the login of one judge account.
type Credentials struct {
	Username string
	Password string
}

// Source is the marked solution handed to Submit.
type Source struct {
	// Content is the marked solution text.
	Content string
	// Path is the scratch artifact holding Content; empty when uploading from memory.
	Path string
	// FileName is the upload name shown to the judge.
	FileName string
}

// Bytes returns the upload payload, preferring the scratch artifact on disk.
func (s Source) Bytes() ([]byte, error) {
	if s.Path == "" {
		return []byte(s.Content), nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalError, "read scratch artifact failed")
	}
	return data, nil
}

// Adapter drives one remote judge. Operations return coded errors: transient
// codes are a retry signal for the caller, everything else is fatal.
// SessionExpired reports that the judge no longer accepts the login.
type Adapter interface {
	Judge() model.JudgeID
	// Authenticate logs in. Calling it on a live session re-asserts the login.
	Authenticate(ctx context.Context, creds Credentials) error
	// Submit uploads src for the problem and triggers judging.
	Submit(ctx context.Context, problemURL string, src Source) error
	// ListRecentSubmissionIDs returns the account's submissions, most recent first.
	ListRecentSubmissionIDs(ctx context.Context) ([]model.SubmissionID, error)
	// FetchSubmissionMarker returns the marker embedded in a submission's source, if visible.
	FetchSubmissionMarker(ctx context.Context, id model.SubmissionID) (model.Marker, bool, error)
	// PollVerdict checks the judged state once.
	PollVerdict(ctx context.Context, id model.SubmissionID) (model.Verdict, error)
}

// Resumable is implemented by adapters whose login lives in cookies that can
// be persisted and restored across runs.
type Resumable interface {
	Cookies() []*http.Cookie
	// Restore seeds the session cookies and reports whether the judge still accepts them.
	Restore(ctx context.Context, creds Credentials, cookies []*http.Cookie) (bool, error)
}
