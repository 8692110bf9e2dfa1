package config

import "testing"

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	if v != "0.1.0" {
		t.Errorf("expected default version 0.1.0, got %s", v)
	}
}

func TestGetBuild(t *testing.T) {
	b := GetBuild()
	if b != "unknown" {
		t.Errorf("expected default build unknown, got %s", b)
	}
}

func TestGetGitCommit(t *testing.T) {
	gc := GetGitCommit()
	if gc != "unknown" {
		t.Errorf("expected default git commit unknown, got %s", gc)
	}
}

func TestGetFullVersion(t *testing.T) {
	fv := GetFullVersion()
	expected := "0.1.0 (build: unknown, commit: unknown)"
	if fv != expected {
		t.Errorf("expected full version %q, got %q", expected, fv)
	}
}
