package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMergeMaps_SrcWinsOnScalars(t *testing.T) {
	dst := map[string]interface{}{"a": 1, "b": 2}
	src := map[string]interface{}{"b": 3, "c": 4}

	got := mergeMaps(dst, src)

	if got["a"] != 1 || got["b"] != 3 || got["c"] != 4 {
		t.Errorf("mergeMaps = %v, want a=1 b=3 c=4", got)
	}
}

func TestMergeMaps_RecursesIntoNestedMaps(t *testing.T) {
	dst := map[string]interface{}{"triage": map[string]interface{}{"addonName": "Base", "unreadOnly": true}}
	src := map[string]interface{}{"triage": map[string]interface{}{"addonName": "Override"}}

	got := mergeMaps(dst, src)
	triage := got["triage"].(map[string]interface{})
	if triage["addonName"] != "Override" {
		t.Errorf("addonName = %v, want Override", triage["addonName"])
	}
	if triage["unreadOnly"] != true {
		t.Errorf("unreadOnly = %v, want true (preserved from base)", triage["unreadOnly"])
	}
}

func TestMergeMaps_DoesNotMutateInputs(t *testing.T) {
	dst := map[string]interface{}{"a": 1}
	src := map[string]interface{}{"a": 2}

	_ = mergeMaps(dst, src)

	if dst["a"] != 1 {
		t.Errorf("mergeMaps mutated dst: %v", dst)
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	cfg := map[string]interface{}{
		"smtp": map[string]interface{}{
			"password": "${SMTP_PASSWORD}",
			"host":     "smtp.example.com",
		},
	}
	env := map[string]string{"SMTP_PASSWORD": "secret123"}

	got := substituteEnvVars(cfg, env)
	smtp := got["smtp"].(map[string]interface{})
	if smtp["password"] != "secret123" {
		t.Errorf("password = %v, want secret123", smtp["password"])
	}
	if smtp["host"] != "smtp.example.com" {
		t.Errorf("host = %v, want unchanged", smtp["host"])
	}
}

func TestSubstituteString_NoPlaceholderUnchanged(t *testing.T) {
	got := substituteString("plain value", map[string]string{"X": "y"})
	if got != "plain value" {
		t.Errorf("substituteString = %q, want unchanged", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.env")
	content := "# a comment\nSMTP_PASSWORD=\"secret123\"\n\nSMTP_USERNAME='bob'\nMALFORMED_LINE\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp env file: %v", err)
	}

	got, err := loadEnvFile(path)
	if err != nil {
		t.Fatalf("loadEnvFile error: %v", err)
	}
	if got["SMTP_PASSWORD"] != "secret123" {
		t.Errorf("SMTP_PASSWORD = %q, want secret123", got["SMTP_PASSWORD"])
	}
	if got["SMTP_USERNAME"] != "bob" {
		t.Errorf("SMTP_USERNAME = %q, want bob", got["SMTP_USERNAME"])
	}
	if _, ok := got["MALFORMED_LINE"]; ok {
		t.Error("malformed line without '=' should be skipped")
	}
}

func TestLoadYAMLFile_MissingFileReturnsEmptyMap(t *testing.T) {
	got, err := loadYAMLFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadYAMLFile error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("loadYAMLFile(missing) = %v, want empty map", got)
	}
}

func TestLoadYAMLFile_ParsesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "base.yaml")
	content := "triage:\n  addonName: Triager\n  unreadOnly: true\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp yaml: %v", err)
	}

	got, err := loadYAMLFile(path)
	if err != nil {
		t.Fatalf("loadYAMLFile error: %v", err)
	}
	triage, ok := got["triage"].(map[string]interface{})
	if !ok {
		t.Fatalf("loadYAMLFile = %v, missing triage section", got)
	}
	if triage["addonName"] != "Triager" {
		t.Errorf("addonName = %v, want Triager", triage["addonName"])
	}
}

func TestLoadRaw_LayersEnvOverBase(t *testing.T) {
	dir := t.TempDir()
	base := "triage:\n  addonName: Base\n  unreadOnly: true\n"
	prod := "triage:\n  addonName: Prod\n"
	if err := os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "prod.yaml"), []byte(prod), 0o600); err != nil {
		t.Fatal(err)
	}

	merged, err := loadRaw("prod", dir)
	if err != nil {
		t.Fatalf("loadRaw error: %v", err)
	}
	triage := merged["triage"].(map[string]interface{})
	if triage["addonName"] != "Prod" {
		t.Errorf("addonName = %v, want Prod (env override)", triage["addonName"])
	}
	if triage["unreadOnly"] != true {
		t.Errorf("unreadOnly = %v, want true (preserved from base)", triage["unreadOnly"])
	}
}

func TestLoadRaw_SubstitutesSecrets(t *testing.T) {
	dir := t.TempDir()
	base := "smtp:\n  password: \"${SMTP_PASSWORD}\"\n"
	if err := os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "secrets.env"), []byte("SMTP_PASSWORD=topsecret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	merged, err := loadRaw("base", dir)
	if err != nil {
		t.Fatalf("loadRaw error: %v", err)
	}
	smtp := merged["smtp"].(map[string]interface{})
	if smtp["password"] != "topsecret" {
		t.Errorf("password = %v, want topsecret", smtp["password"])
	}
}

func TestGetEnv_DefaultsWhenUnset(t *testing.T) {
	key := "MAILTRIAGE_TEST_UNSET_VAR"
	os.Unsetenv(key)
	if got := GetEnv(key, "fallback"); got != "fallback" {
		t.Errorf("GetEnv = %q, want fallback", got)
	}
}

func TestEnv_DefaultsToLocal(t *testing.T) {
	os.Unsetenv("MAILTRIAGE_ENV")
	if got := Env(); got != "local" {
		t.Errorf("Env() = %q, want local", got)
	}
}
