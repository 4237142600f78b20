package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const doctorYAML = `
scenario: "Plumbing company"
phone_number: "+15550100"
webhook:
  public_url: https://tunnel.example.net
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runDoctorCmd(t *testing.T, configPath string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"doctor", "-c", configPath})
	err := root.Execute()
	return buf.String(), err
}

func TestDoctor_AllPass(t *testing.T) {
	t.Setenv("VOICE_API_KEY", "v")
	t.Setenv("DEEPGRAM_API_KEY", "d")
	t.Setenv("OPENAI_API_KEY", "o")

	out, err := runDoctorCmd(t, writeConfig(t, doctorYAML))
	if err != nil {
		t.Fatalf("doctor failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "All checks passed.") {
		t.Errorf("output:\n%s", out)
	}
}

func TestDoctor_MissingCredentials(t *testing.T) {
	t.Setenv("VOICE_API_KEY", "")
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	out, err := runDoctorCmd(t, writeConfig(t, doctorYAML))
	if err == nil {
		t.Fatalf("expected failure, output:\n%s", out)
	}
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "VOICE_API_KEY") {
		t.Errorf("output:\n%s", out)
	}
}

func TestDoctor_BadConfig(t *testing.T) {
	out, err := runDoctorCmd(t, writeConfig(t, "scenario: only\n"))
	if err == nil {
		t.Fatalf("expected failure, output:\n%s", out)
	}
	if !strings.Contains(out, "FAIL") {
		t.Errorf("output:\n%s", out)
	}
}

func TestDoctor_WarnsOnLocalhostWebhook(t *testing.T) {
	t.Setenv("VOICE_API_KEY", "v")
	t.Setenv("DEEPGRAM_API_KEY", "d")
	t.Setenv("OPENAI_API_KEY", "o")

	cfg := strings.Replace(doctorYAML, "https://tunnel.example.net", "http://localhost:8081", 1)
	out, err := runDoctorCmd(t, writeConfig(t, cfg))
	if err != nil {
		t.Fatalf("warnings must not fail doctor: %v\n%s", err, out)
	}
	if !strings.Contains(out, "WARN") {
		t.Errorf("output:\n%s", out)
	}
}
