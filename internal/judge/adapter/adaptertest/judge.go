package adaptertest

import (
	"context"
	"strconv"
	"sync"

	"reftester/internal/judge/adapter"
	"reftester/internal/judge/model"
	appErr "reftester/pkg/errors"
)

// Judge is an in-memory judge shared by concurrent attempts. Every submission gets
// the next numeric id and the listing is most recent first.
type Judge struct {
	ID model.JudgeID
	// PendingPolls is how many polls of a submission report Pending before its verdict.
	PendingPolls int
	// Verdict is the final verdict of every submission; zero means Accepted.
	Verdict model.Verdict
	// SubmitBarrier holds each Submit until that many submissions arrived, forcing
	// all of them to be listed together.
	SubmitBarrier int
	// SubmitErrs are returned by successive Submit calls; a nil entry lets that call through.
	SubmitErrs []error

	mu      sync.Mutex
	cond    *sync.Cond
	nextID  int
	order   []model.SubmissionID
	markers map[model.SubmissionID]model.Marker
	polls   map[model.SubmissionID]int
	calls   map[string]int
}

func (j *Judge) init() {
	if j.markers == nil {
		j.markers = make(map[model.SubmissionID]model.Marker)
		j.polls = make(map[model.SubmissionID]int)
		j.calls = make(map[string]int)
		j.cond = sync.NewCond(&j.mu)
	}
}

// Calls returns how often op was invoked.
func (j *Judge) Calls(op string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.init()
	return j.calls[op]
}

// MarkerOf returns the marker a stored submission carries.
func (j *Judge) MarkerOf(id model.SubmissionID) model.Marker {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.init()
	return j.markers[id]
}

func (j *Judge) Judge() model.JudgeID {
	if j.ID == "" {
		return "memory"
	}
	return j.ID
}

func (j *Judge) Authenticate(ctx context.Context, creds adapter.Credentials) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.init()
	j.calls[OpAuthenticate]++
	return nil
}

func (j *Judge) Submit(ctx context.Context, problemURL string, src adapter.Source) error {
	data, err := src.Bytes()
	if err != nil {
		return err
	}
	marker, _ := model.ExtractMarker(string(data))

	j.mu.Lock()
	defer j.mu.Unlock()
	j.init()
	j.calls[OpSubmit]++
	if len(j.SubmitErrs) > 0 {
		next := j.SubmitErrs[0]
		j.SubmitErrs = j.SubmitErrs[1:]
		if next != nil {
			return next
		}
	}
	j.nextID++
	id := model.SubmissionID(strconv.Itoa(j.nextID))
	j.order = append(j.order, id)
	j.markers[id] = marker
	j.cond.Broadcast()

	for len(j.order) < j.SubmitBarrier {
		if ctx.Err() != nil {
			return appErr.Wrap(ctx.Err(), appErr.Canceled)
		}
		j.cond.Wait()
	}
	return nil
}

func (j *Judge) ListRecentSubmissionIDs(ctx context.Context) ([]model.SubmissionID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.init()
	j.calls[OpList]++
	out := make([]model.SubmissionID, 0, len(j.order))
	for i := len(j.order) - 1; i >= 0; i-- {
		out = append(out, j.order[i])
	}
	return out, nil
}

func (j *Judge) FetchSubmissionMarker(ctx context.Context, id model.SubmissionID) (model.Marker, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.init()
	j.calls[OpFetchMarker]++
	m, ok := j.markers[id]
	return m, ok && m != "", nil
}

func (j *Judge) PollVerdict(ctx context.Context, id model.SubmissionID) (model.Verdict, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.init()
	j.calls[OpPollVerdict]++
	j.polls[id]++
	if j.polls[id] <= j.PendingPolls {
		return model.VerdictPending, nil
	}
	if j.Verdict == model.VerdictPending {
		return model.VerdictAccepted, nil
	}
	return j.Verdict, nil
}

func errNotSupported(id model.JudgeID) error {
	return appErr.Newf(appErr.JudgeNotSupported, "judge not supported: %s", id)
}
