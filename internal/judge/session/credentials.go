package session

import (
	"os"

	"reftester/internal/judge/adapter"
	"reftester/internal/judge/model"
	appErr "reftester/pkg/errors"
)

// CredentialsProvider supplies the account used to log into a judge.
type CredentialsProvider interface {
	Credentials(judge model.JudgeID) (adapter.Credentials, error)
}

// EnvVars names the environment variables holding one judge's login.
type EnvVars struct {
	User     string
	Password string
}

// DefaultEnvVars returns the variable names of the built-in judges.
func DefaultEnvVars() map[model.JudgeID]EnvVars {
	return map[model.JudgeID]EnvVars{
		model.JudgeCodeforces: {User: "CF_USER", Password: "CF_PASSWORD"},
		model.JudgeSpoj:       {User: "SPOJ_USER", Password: "SPOJ_PASSWORD"},
	}
}

// EnvCredentials reads judge logins from the environment.
type EnvCredentials struct {
	vars   map[model.JudgeID]EnvVars
	lookup func(string) (string, bool)
}

// NewEnvCredentials creates a provider. A nil lookup reads the process environment.
func NewEnvCredentials(vars map[model.JudgeID]EnvVars, lookup func(string) (string, bool)) *EnvCredentials {
	if vars == nil {
		vars = DefaultEnvVars()
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvCredentials{vars: vars, lookup: lookup}
}

func (p *EnvCredentials) Credentials(judge model.JudgeID) (adapter.Credentials, error) {
	names, ok := p.vars[judge]
	if !ok {
		return adapter.Credentials{}, appErr.Newf(appErr.CredentialsMissing, "no credential variables configured for %s", judge)
	}
	user, okUser := p.lookup(names.User)
	password, okPassword := p.lookup(names.Password)
	if !okUser || !okPassword || user == "" || password == "" {
		return adapter.Credentials{}, appErr.Newf(appErr.CredentialsMissing,
			"credentials for %s are not configured, set %s and %s", judge, names.User, names.Password)
	}
	return adapter.Credentials{Username: user, Password: password}, nil
}

// StaticCredentials is a fixed set of logins.
type StaticCredentials map[model.JudgeID]adapter.Credentials

func (s StaticCredentials) Credentials(judge model.JudgeID) (adapter.Credentials, error) {
	creds, ok := s[judge]
	if !ok {
		return adapter.Credentials{}, appErr.Newf(appErr.CredentialsMissing, "credentials for %s are not configured", judge)
	}
	return creds, nil
}
