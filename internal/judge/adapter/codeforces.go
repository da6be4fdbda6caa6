package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
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
	codeforcesBaseURL         = "https://codeforces.com"
	codeforcesDefaultLanguage = "54"
	codeforcesDefaultCount    = 30
)

var codeforcesHosts = []string{"codeforces.com"}

// CodeforcesOptions are the config options of the Codeforces judge.
type CodeforcesOptions struct {
	// Language is the programTypeId of the submit form.
	Language string `mapstructure:"language"`
	// StatusCount is how many recent submissions are scanned.
	StatusCount int `mapstructure:"statusCount"`
}

// Codeforces drives codeforces.com through its web forms and the public JSON API.
type Codeforces struct {
	client *transport.Client
	opts   CodeforcesOptions

	mu     sync.RWMutex
	handle string
	csrf   string
}

type cfStatusResponse struct {
	Status  string         `json:"status"`
	Comment string         `json:"comment"`
	Result  []cfSubmission `json:"result"`
}

type cfSubmission struct {
	ID      int64  `json:"id"`
	Verdict string `json:"verdict"`
}

type cfSourceResponse struct {
	Source string `json:"source"`
}

// NewCodeforces creates the adapter on top of a judge client.
func NewCodeforces(client *transport.Client, opts CodeforcesOptions) *Codeforces {
	if opts.Language == "" {
		opts.Language = codeforcesDefaultLanguage
	}
	if opts.StatusCount <= 0 {
		opts.StatusCount = codeforcesDefaultCount
	}
	return &Codeforces{client: client, opts: opts}
}

func newCodeforcesFromConfig(cfg JudgeConfig, tcfg transport.Config) (Adapter, error) {
	var opts CodeforcesOptions
	if err := decodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	client, err := clientFor(cfg.BaseURL, codeforcesBaseURL, tcfg)
	if err != nil {
		return nil, err
	}
	return NewCodeforces(client, opts), nil
}

func (c *Codeforces) Judge() model.JudgeID {
	return model.JudgeCodeforces
}

func (c *Codeforces) Authenticate(ctx context.Context, creds Credentials) error {
	page, err := c.client.Get(ctx, "/enter")
	if err != nil {
		return err
	}
	doc, err := page.Document()
	if err != nil {
		return err
	}
	if cfLoggedIn(doc) {
		c.remember(creds.Username, cfCSRF(doc))
		return nil
	}
	token := cfCSRF(doc)
	if token == "" {
		return appErr.New(appErr.PageNotReady).WithMessage("codeforces login form has no csrf token")
	}

	resp, err := c.client.PostForm(ctx, "/enter", url.Values{
		"csrf_token":    {token},
		"action":        {"enter"},
		"handleOrEmail": {creds.Username},
		"password":      {creds.Password},
		"remember":      {"on"},
	})
	if err != nil {
		return err
	}
	doc, err = resp.Document()
	if err != nil {
		return err
	}
	if !cfLoggedIn(doc) {
		return appErr.Newf(appErr.AuthFailed, "codeforces login failed for %s", creds.Username)
	}
	c.remember(creds.Username, cfCSRF(doc))
	logger.Info(ctx, "codeforces login succeeded", zap.String("handle", creds.Username))
	return nil
}

func (c *Codeforces) Submit(ctx context.Context, problemURL string, src Source) error {
	path, fields, err := codeforcesSubmitTarget(problemURL)
	if err != nil {
		return err
	}
	if handle, _ := c.session(); handle == "" {
		return appErr.New(appErr.SessionExpired)
	}

	page, err := c.client.Get(ctx, path)
	if err != nil {
		return err
	}
	doc, err := page.Document()
	if err != nil {
		return err
	}
	if !cfLoggedIn(doc) {
		return appErr.New(appErr.SessionExpired)
	}
	token := cfCSRF(doc)
	if token == "" {
		return appErr.New(appErr.PageNotReady).WithMessage("codeforces submit form has no csrf token")
	}
	c.setCSRF(token)

	data, err := src.Bytes()
	if err != nil {
		return err
	}
	fields.Set("csrf_token", token)
	fields.Set("action", "submitSolutionFormSubmitted")
	fields.Set("programTypeId", c.opts.Language)
	fields.Set("source", "")
	fields.Set("tabSize", "4")

	resp, err := c.client.PostMultipart(ctx, path+"?csrf_token="+url.QueryEscape(token), fields,
		transport.FilePart{Field: "sourceFile", FileName: src.FileName, Content: data})
	if err != nil {
		return err
	}
	if resp.PathIs("/enter") {
		return appErr.New(appErr.SessionExpired)
	}
	if strings.HasSuffix(resp.URL.Path, "/my") || strings.Contains(resp.URL.Path, "/status") {
		return nil
	}
	doc, err = resp.Document()
	if err != nil {
		return err
	}
	for _, n := range transport.FindAll(doc, transport.Class("error")) {
		if msg := transport.Text(n); msg != "" {
			return appErr.Newf(appErr.SubmissionRejected, "codeforces refused the submission: %s", msg)
		}
	}
	return appErr.New(appErr.SubmitFailed).WithMessage("codeforces did not confirm the submission")
}

func (c *Codeforces) ListRecentSubmissionIDs(ctx context.Context) ([]model.SubmissionID, error) {
	subs, err := c.status(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]model.SubmissionID, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, model.SubmissionID(strconv.FormatInt(s.ID, 10)))
	}
	return ids, nil
}

func (c *Codeforces) FetchSubmissionMarker(ctx context.Context, id model.SubmissionID) (model.Marker, bool, error) {
	_, token := c.session()
	if token == "" {
		return "", false, appErr.New(appErr.SessionExpired)
	}
	resp, err := c.client.PostForm(ctx, "/data/submitSource", url.Values{
		"submissionId": {string(id)},
		"csrf_token":   {token},
	})
	if err != nil {
		return "", false, err
	}
	if resp.PathIs("/enter") {
		return "", false, appErr.New(appErr.SessionExpired)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return "", false, nil
	}
	var body cfSourceResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", false, appErr.Wrapf(err, appErr.PageNotReady, "decode codeforces source failed")
	}
	marker, ok := model.ExtractMarker(body.Source)
	return marker, ok, nil
}

func (c *Codeforces) PollVerdict(ctx context.Context, id model.SubmissionID) (model.Verdict, error) {
	subs, err := c.status(ctx)
	if err != nil {
		return model.VerdictPending, err
	}
	for _, s := range subs {
		if strconv.FormatInt(s.ID, 10) == string(id) {
			return cfVerdict(s.Verdict), nil
		}
	}
	return model.VerdictPending, nil
}

func (c *Codeforces) Cookies() []*http.Cookie {
	return c.client.Cookies()
}

func (c *Codeforces) Restore(ctx context.Context, creds Credentials, cookies []*http.Cookie) (bool, error) {
	c.client.SetCookies(cookies)
	page, err := c.client.Get(ctx, "/")
	if err != nil {
		return false, err
	}
	doc, err := page.Document()
	if err != nil {
		return false, err
	}
	if !cfLoggedIn(doc) {
		return false, nil
	}
	c.remember(creds.Username, cfCSRF(doc))
	return true, nil
}

func (c *Codeforces) status(ctx context.Context) ([]cfSubmission, error) {
	handle, _ := c.session()
	if handle == "" {
		return nil, appErr.New(appErr.SessionExpired)
	}
	path := fmt.Sprintf("/api/user.status?handle=%s&from=1&count=%d", url.QueryEscape(handle), c.opts.StatusCount)
	resp, err := c.client.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	var body cfStatusResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeUnavailable, "decode codeforces status failed")
	}
	if body.Status != "OK" {
		return nil, appErr.Newf(appErr.JudgeUnavailable, "codeforces api: %s", body.Comment)
	}
	return body.Result, nil
}

func (c *Codeforces) remember(handle, csrf string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handle = handle
	if csrf != "" {
		c.csrf = csrf
	}
}

func (c *Codeforces) setCSRF(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.csrf = token
}

func (c *Codeforces) session() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle, c.csrf
}

// codeforcesSubmitTarget maps a problem page to its submit form and problem fields.
func codeforcesSubmitTarget(problemURL string) (string, url.Values, error) {
	u, err := url.Parse(problemURL)
	if err != nil {
		return "", nil, appErr.Newf(appErr.MalformedProblemURL, "malformed problem url %q", problemURL)
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	switch {
	case len(parts) == 4 && (parts[0] == "contest" || parts[0] == "gym") && parts[2] == "problem":
		return fmt.Sprintf("/%s/%s/submit", parts[0], parts[1]), url.Values{"submittedProblemIndex": {parts[3]}}, nil
	case len(parts) == 4 && parts[0] == "problemset" && parts[1] == "problem":
		return "/problemset/submit", url.Values{"submittedProblemCode": {parts[2] + parts[3]}}, nil
	}
	return "", nil, appErr.Newf(appErr.MalformedProblemURL, "not a codeforces problem url: %q", problemURL)
}

// cfFinalVerdicts lists the API verdicts that end judging. Queue states such as
// SUBMITTED and TESTING, and any value not listed here, keep the submission pending.
var cfFinalVerdicts = map[string]bool{
	"FAILED":                    true,
	"PARTIAL":                   true,
	"COMPILATION_ERROR":         true,
	"RUNTIME_ERROR":             true,
	"WRONG_ANSWER":              true,
	"PRESENTATION_ERROR":        true,
	"TIME_LIMIT_EXCEEDED":       true,
	"MEMORY_LIMIT_EXCEEDED":     true,
	"IDLENESS_LIMIT_EXCEEDED":   true,
	"SECURITY_VIOLATED":         true,
	"CRASHED":                   true,
	"INPUT_PREPARATION_CRASHED": true,
	"CHALLENGED":                true,
	"SKIPPED":                   true,
	"REJECTED":                  true,
}

func cfVerdict(v string) model.Verdict {
	switch {
	case v == "OK":
		return model.VerdictAccepted
	case cfFinalVerdicts[v]:
		return model.VerdictRejected
	default:
		return model.VerdictPending
	}
}

func cfLoggedIn(doc *html.Node) bool {
	return transport.Find(doc, transport.All(transport.Tag("a"), transport.AttrContains("href", "/logout"))) != nil
}

func cfCSRF(doc *html.Node) string {
	if n := transport.Find(doc, transport.All(transport.Tag("meta"), transport.AttrEquals("name", "X-Csrf-Token"))); n != nil {
		return transport.Attr(n, "content")
	}
	if n := transport.Find(doc, transport.All(transport.Tag("input"), transport.AttrEquals("name", "csrf_token"))); n != nil {
		return transport.Attr(n, "value")
	}
	return ""
}
