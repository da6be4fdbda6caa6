package adapter_test

import (
	"testing"

	"reftester/internal/judge/adapter"
	"reftester/internal/judge/model"
	"reftester/internal/judge/transport"
	appErr "reftester/pkg/errors"
)

func TestRegistryIdentify(t *testing.T) {
	reg, err := adapter.Build(nil, transport.Config{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	tests := []struct {
		name    string
		url     string
		want    model.JudgeID
		wantErr appErr.ErrorCode
	}{
		{name: "codeforces contest", url: "https://codeforces.com/contest/1/problem/A", want: model.JudgeCodeforces},
		{name: "codeforces mirror subdomain", url: "https://m1.codeforces.com/problemset/problem/1/A", want: model.JudgeCodeforces},
		{name: "spoj", url: "https://www.spoj.com/problems/TEST/", want: model.JudgeSpoj},
		{name: "unknown host", url: "https://judge.example/p/1", wantErr: appErr.JudgeNotSupported},
		{name: "host suffix only", url: "https://notspoj.com/problems/TEST/", wantErr: appErr.JudgeNotSupported},
		{name: "no scheme", url: "codeforces.com/contest/1/problem/A", wantErr: appErr.MalformedProblemURL},
		{name: "garbage", url: "://", wantErr: appErr.MalformedProblemURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Identify(tt.url)
			if tt.wantErr != 0 {
				if !appErr.Is(err, tt.wantErr) {
					t.Fatalf("Identify() error = %v, want code %d", err, tt.wantErr)
				}
				if !appErr.IsFatal(err) {
					t.Fatal("judge selection errors must be fatal")
				}
				return
			}
			if err != nil {
				t.Fatalf("Identify() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Identify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRegistryAdapter(t *testing.T) {
	reg, err := adapter.Build(nil, transport.Config{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	a, err := reg.Adapter(model.JudgeSpoj)
	if err != nil || a.Judge() != model.JudgeSpoj {
		t.Fatalf("Adapter(spoj) = %v, %v", a, err)
	}
	if _, err := reg.Adapter("atcoder"); !appErr.Is(err, appErr.JudgeNotSupported) {
		t.Fatalf("expected JudgeNotSupported, got %v", err)
	}
	judges := reg.Judges()
	if len(judges) != 2 || judges[0] != model.JudgeCodeforces || judges[1] != model.JudgeSpoj {
		t.Fatalf("Judges() = %v", judges)
	}
}

func TestBuildOptions(t *testing.T) {
	_, err := adapter.Build(map[model.JudgeID]adapter.JudgeConfig{
		model.JudgeCodeforces: {Options: map[string]any{"language": 73, "statusCount": "10"}},
		model.JudgeSpoj:       {Hosts: []string{"spoj.pl"}, Options: map[string]any{"lang": "41"}},
	}, transport.Config{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	_, err = adapter.Build(map[model.JudgeID]adapter.JudgeConfig{
		model.JudgeSpoj: {Options: map[string]any{"langauge": "41"}},
	}, transport.Config{})
	if !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams for unknown option, got %v", err)
	}
}

func TestBuildHostOverride(t *testing.T) {
	reg, err := adapter.Build(map[model.JudgeID]adapter.JudgeConfig{
		model.JudgeSpoj: {Hosts: []string{"spoj.pl"}},
	}, transport.Config{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got, err := reg.Identify("https://www.spoj.pl/problems/TEST/"); err != nil || got != model.JudgeSpoj {
		t.Fatalf("Identify() = %s, %v", got, err)
	}
}
