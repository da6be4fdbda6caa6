package service

import (
	"context"
	"path/filepath"

	"reftester/internal/judge/adapter"
	"reftester/internal/judge/model"
	"reftester/internal/judge/session"
	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/logger"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
)

// Correlator submits an attempt and finds the judge submission carrying its marker.
type Correlator struct {
	// inflight maps every registered marker to its judge.
	inflight cmap.ConcurrentMap[string, model.JudgeID]
	// bound maps judge/submission id to the marker it was bound to.
	bound cmap.ConcurrentMap[string, model.Marker]
}

func NewCorrelator() *Correlator {
	return &Correlator{
		inflight: cmap.New[model.JudgeID](),
		bound:    cmap.New[model.Marker](),
	}
}

// Correlate submits the attempt and binds the most recent submission whose
// fetched marker equals the attempt marker.
func (c *Correlator) Correlate(ctx context.Context, sess *session.Session, attempt model.Attempt) (model.SubmissionRecord, error) {
	marker := attempt.Marker()
	if !c.inflight.SetIfAbsent(string(marker), attempt.Judge()) {
		return model.SubmissionRecord{}, appErr.Newf(appErr.MarkerConflict, "marker %s already in flight", marker)
	}
	defer c.inflight.Remove(string(marker))

	src := adapter.Source{
		Content:  attempt.Content(),
		Path:     attempt.ArtifactPath(),
		FileName: string(marker) + artifactExt,
	}
	if attempt.ArtifactPath() != "" {
		src.FileName = filepath.Base(attempt.ArtifactPath())
	}
	if err := sess.Use(ctx, func(a adapter.Adapter) error {
		return a.Submit(ctx, attempt.ProblemURL(), src)
	}); err != nil {
		return model.SubmissionRecord{}, err
	}

	// The listing is taken only after the submit went through.
	var ids []model.SubmissionID
	if err := sess.Use(ctx, func(a adapter.Adapter) error {
		var err error
		ids, err = a.ListRecentSubmissionIDs(ctx)
		return err
	}); err != nil {
		return model.SubmissionRecord{}, err
	}

	for _, id := range ids {
		var (
			got   model.Marker
			found bool
		)
		err := sess.Use(ctx, func(a adapter.Adapter) error {
			var err error
			got, found, err = a.FetchSubmissionMarker(ctx, id)
			return err
		})
		if err != nil {
			if appErr.IsTransient(err) && !appErr.Is(err, appErr.SessionExpired) {
				logger.Debug(ctx, "skip submission with unreadable marker", zap.String("id", string(id)), zap.Error(err))
				continue
			}
			return model.SubmissionRecord{}, err
		}
		if !found || got != marker {
			continue
		}
		return c.bind(attempt, id)
	}
	return model.SubmissionRecord{}, appErr.Newf(appErr.CorrelationNotFound,
		"no submission with marker %s among %d recent submissions", marker, len(ids))
}

// InFlight returns the number of registered markers.
func (c *Correlator) InFlight() int {
	return c.inflight.Count()
}

func (c *Correlator) bind(attempt model.Attempt, id model.SubmissionID) (model.SubmissionRecord, error) {
	key := string(attempt.Judge()) + "/" + string(id)
	marker := attempt.Marker()
	if !c.bound.SetIfAbsent(key, marker) {
		if prev, _ := c.bound.Get(key); prev != marker {
			return model.SubmissionRecord{}, appErr.Newf(appErr.BindingConflict,
				"submission %s already bound to marker %s", id, prev)
		}
	}
	return model.SubmissionRecord{Judge: attempt.Judge(), ID: id, Marker: marker}, nil
}
