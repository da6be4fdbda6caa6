package adapter

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"reftester/internal/judge/model"
	"reftester/internal/judge/transport"
	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	spojBaseURL         = "https://www.spoj.com"
	spojDefaultLanguage = "44"
)

var spojHosts = []string{"spoj.com"}

// SpojOptions are the config options of the Spoj judge.
type SpojOptions struct {
	// Language is the lang id of the submit form, 44 is C++14.
	Language string `mapstructure:"lang"`
}

// Spoj drives www.spoj.com through its web forms.
type Spoj struct {
	client *transport.Client
	opts   SpojOptions

	mu   sync.RWMutex
	user string
}

// NewSpoj creates the adapter on top of a judge client.
func NewSpoj(client *transport.Client, opts SpojOptions) *Spoj {
	if opts.Language == "" {
		opts.Language = spojDefaultLanguage
	}
	return &Spoj{client: client, opts: opts}
}

func newSpojFromConfig(cfg JudgeConfig, tcfg transport.Config) (Adapter, error) {
	var opts SpojOptions
	if err := decodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	client, err := clientFor(cfg.BaseURL, spojBaseURL, tcfg)
	if err != nil {
		return nil, err
	}
	return NewSpoj(client, opts), nil
}

func (s *Spoj) Judge() model.JudgeID {
	return model.JudgeSpoj
}

func (s *Spoj) Authenticate(ctx context.Context, creds Credentials) error {
	resp, err := s.client.PostForm(ctx, "/login/", url.Values{
		"next_raw":   {"/"},
		"autologin":  {"1"},
		"login_user": {creds.Username},
		"password":   {creds.Password},
	})
	if err != nil {
		return err
	}
	doc, err := resp.Document()
	if err != nil {
		return err
	}
	if !spojLoggedIn(doc) {
		return appErr.Newf(appErr.AuthFailed, "spoj login failed for %s", creds.Username)
	}
	s.setUser(creds.Username)
	logger.Info(ctx, "spoj login succeeded", zap.String("user", creds.Username))
	return nil
}

func (s *Spoj) Submit(ctx context.Context, problemURL string, src Source) error {
	code, err := spojProblemCode(problemURL)
	if err != nil {
		return err
	}
	if s.currentUser() == "" {
		return appErr.New(appErr.SessionExpired)
	}
	data, err := src.Bytes()
	if err != nil {
		return err
	}

	resp, err := s.client.PostMultipart(ctx, "/submit/complete/", url.Values{
		"problemcode": {code},
		"lang":        {s.opts.Language},
		"file":        {""},
	}, transport.FilePart{Field: "subm_file", FileName: src.FileName, Content: data})
	if err != nil {
		return err
	}
	if resp.PathIs("/login") {
		return appErr.New(appErr.SessionExpired)
	}
	doc, err := resp.Document()
	if err != nil {
		return err
	}
	if !spojLoggedIn(doc) {
		return appErr.New(appErr.SessionExpired)
	}
	if transport.Find(doc, transport.AttrEquals("name", "newSubmissionId")) != nil {
		return nil
	}
	if n := transport.Find(doc, transport.Class("alert-danger")); n != nil {
		return appErr.Newf(appErr.SubmissionRejected, "spoj refused the submission: %s", transport.Text(n))
	}
	return appErr.New(appErr.SubmitFailed).WithMessage("spoj did not confirm the submission")
}

func (s *Spoj) ListRecentSubmissionIDs(ctx context.Context) ([]model.SubmissionID, error) {
	doc, err := s.statusPage(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var ids []model.SubmissionID
	for _, n := range transport.FindAll(doc, transport.HasAttr("data-sid")) {
		sid := strings.TrimSpace(transport.Attr(n, "data-sid"))
		if sid == "" || seen[sid] {
			continue
		}
		seen[sid] = true
		ids = append(ids, model.SubmissionID(sid))
	}
	return ids, nil
}

func (s *Spoj) FetchSubmissionMarker(ctx context.Context, id model.SubmissionID) (model.Marker, bool, error) {
	resp, err := s.client.Get(ctx, "/files/src/plain/"+url.PathEscape(string(id))+"/")
	if err != nil {
		return "", false, err
	}
	if resp.PathIs("/login") {
		return "", false, appErr.New(appErr.SessionExpired)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusForbidden:
		return "", false, nil
	default:
		return "", false, appErr.Newf(appErr.PageNotReady, "spoj source page answered %d", resp.StatusCode)
	}
	marker, ok := model.ExtractMarker(string(resp.Body))
	return marker, ok, nil
}

func (s *Spoj) PollVerdict(ctx context.Context, id model.SubmissionID) (model.Verdict, error) {
	doc, err := s.statusPage(ctx)
	if err != nil {
		return model.VerdictPending, err
	}
	cell := transport.Find(doc, transport.ID("statusres_"+string(id)))
	if cell == nil || transport.Attr(cell, "final") != "1" {
		return model.VerdictPending, nil
	}
	if strings.Contains(strings.ToLower(transport.Text(cell)), "accepted") {
		return model.VerdictAccepted, nil
	}
	return model.VerdictRejected, nil
}

func (s *Spoj) Cookies() []*http.Cookie {
	return s.client.Cookies()
}

func (s *Spoj) Restore(ctx context.Context, creds Credentials, cookies []*http.Cookie) (bool, error) {
	s.client.SetCookies(cookies)
	resp, err := s.client.Get(ctx, "/")
	if err != nil {
		return false, err
	}
	doc, err := resp.Document()
	if err != nil {
		return false, err
	}
	if !spojLoggedIn(doc) {
		return false, nil
	}
	s.setUser(creds.Username)
	return true, nil
}

func (s *Spoj) statusPage(ctx context.Context) (*html.Node, error) {
	user := s.currentUser()
	if user == "" {
		return nil, appErr.New(appErr.SessionExpired)
	}
	resp, err := s.client.Get(ctx, "/status/"+url.PathEscape(user)+"/")
	if err != nil {
		return nil, err
	}
	if resp.PathIs("/login") {
		return nil, appErr.New(appErr.SessionExpired)
	}
	return resp.Document()
}

func (s *Spoj) setUser(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

func (s *Spoj) currentUser() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func spojProblemCode(problemURL string) (string, error) {
	u, err := url.Parse(problemURL)
	if err != nil {
		return "", appErr.Newf(appErr.MalformedProblemURL, "malformed problem url %q", problemURL)
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 2 || parts[0] != "problems" {
		return "", appErr.Newf(appErr.MalformedProblemURL, "not a spoj problem url: %q", problemURL)
	}
	return parts[1], nil
}

func spojLoggedIn(doc *html.Node) bool {
	return transport.Find(doc, transport.Class("username_dropdown")) != nil
}
