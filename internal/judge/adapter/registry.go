package adapter

import (
	"net/url"
	"sort"
	"strings"

	"reftester/internal/judge/model"
	"reftester/internal/judge/transport"
	appErr "reftester/pkg/errors"

	"github.com/mitchellh/mapstructure"
)

// JudgeConfig configures one judge variant.
type JudgeConfig struct {
	BaseURL string
	Hosts   []string
	// Options are variant specific and decoded with mapstructure.
	Options map[string]any
}

type entry struct {
	id      model.JudgeID
	hosts   []string
	adapter Adapter
}

// Registry is the closed set of judges of a run, one adapter per judge.
type Registry struct {
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an adapter answering for the given hosts.
// Hosts match exactly or as a parent domain.
func (r *Registry) Register(a Adapter, hosts ...string) {
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			normalized = append(normalized, h)
		}
	}
	r.entries = append(r.entries, entry{id: a.Judge(), hosts: normalized, adapter: a})
}

// Identify resolves the judge serving problemURL.
func (r *Registry) Identify(problemURL string) (model.JudgeID, error) {
	u, err := url.Parse(strings.TrimSpace(problemURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", appErr.Newf(appErr.MalformedProblemURL, "malformed problem url %q", problemURL)
	}
	host := strings.ToLower(u.Hostname())
	for _, e := range r.entries {
		for _, h := range e.hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return e.id, nil
			}
		}
	}
	return "", appErr.Newf(appErr.JudgeNotSupported, "judge not supported: %s", host)
}

// Adapter returns the adapter of a registered judge.
func (r *Registry) Adapter(id model.JudgeID) (Adapter, error) {
	for _, e := range r.entries {
		if e.id == id {
			return e.adapter, nil
		}
	}
	return nil, appErr.Newf(appErr.JudgeNotSupported, "judge not supported: %s", id)
}

// Judges lists the registered judges in name order.
func (r *Registry) Judges() []model.JudgeID {
	ids := make([]model.JudgeID, 0, len(r.entries))
	for _, e := range r.entries {
		ids = append(ids, e.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Build creates the built-in judge variants. Judges missing from cfgs use their defaults.
func Build(cfgs map[model.JudgeID]JudgeConfig, tcfg transport.Config) (*Registry, error) {
	reg := NewRegistry()
	for _, id := range []model.JudgeID{model.JudgeCodeforces, model.JudgeSpoj} {
		cfg := cfgs[id]
		var (
			a     Adapter
			hosts []string
			err   error
		)
		switch id {
		case model.JudgeCodeforces:
			a, err = newCodeforcesFromConfig(cfg, tcfg)
			hosts = codeforcesHosts
		case model.JudgeSpoj:
			a, err = newSpojFromConfig(cfg, tcfg)
			hosts = spojHosts
		}
		if err != nil {
			return nil, err
		}
		if len(cfg.Hosts) > 0 {
			hosts = cfg.Hosts
		}
		reg.Register(a, hosts...)
	}
	return reg, nil
}

func decodeOptions(raw map[string]any, out any) error {
	if len(raw) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalError, "create options decoder failed")
	}
	if err := dec.Decode(raw); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "invalid judge options")
	}
	return nil
}

func clientFor(baseURL, fallback string, tcfg transport.Config) (*transport.Client, error) {
	if baseURL == "" {
		baseURL = fallback
	}
	tcfg.BaseURL = baseURL
	return transport.New(tcfg)
}
