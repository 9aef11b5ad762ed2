package config

import "testing"

func rawWith(sec string, kv map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{sec: kv}
}

func TestGetString_DefaultsOnAbsentKey(t *testing.T) {
	raw := rawWith("triage", map[string]interface{}{})
	if got := getString(raw, "triage", "addonName", "fallback"); got != "fallback" {
		t.Errorf("getString = %q, want %q", got, "fallback")
	}
}

func TestGetString_DefaultsOnEmptyValue(t *testing.T) {
	raw := rawWith("triage", map[string]interface{}{"addonName": ""})
	if got := getString(raw, "triage", "addonName", "fallback"); got != "fallback" {
		t.Errorf("getString on empty string = %q, want default %q", got, "fallback")
	}
}

func TestGetString_UsesPresentValue(t *testing.T) {
	raw := rawWith("triage", map[string]interface{}{"addonName": "Triager"})
	if got := getString(raw, "triage", "addonName", "fallback"); got != "Triager" {
		t.Errorf("getString = %q, want %q", got, "Triager")
	}
}

func TestGetInt_DefaultsOnAbsentOrWrongType(t *testing.T) {
	raw := rawWith("smtp", map[string]interface{}{"port": "not-a-number"})
	if got := getInt(raw, "smtp", "port", 587); got != 587 {
		t.Errorf("getInt with wrong type = %d, want default 587", got)
	}
	if got := getInt(map[string]interface{}{}, "smtp", "port", 587); got != 587 {
		t.Errorf("getInt on absent section = %d, want default 587", got)
	}
}

func TestGetInt_UsesPresentValue(t *testing.T) {
	raw := rawWith("smtp", map[string]interface{}{"port": 2525})
	if got := getInt(raw, "smtp", "port", 587); got != 2525 {
		t.Errorf("getInt = %d, want 2525", got)
	}
}

func TestGetBool_DefaultsOnAbsent(t *testing.T) {
	if got := getBool(map[string]interface{}{}, "triage", "unreadOnly", true); got != true {
		t.Errorf("getBool on absent key = %v, want default true", got)
	}
}

func TestGetBool_UsesPresentValue(t *testing.T) {
	raw := rawWith("triage", map[string]interface{}{"unreadOnly": false})
	if got := getBool(raw, "triage", "unreadOnly", true); got != false {
		t.Errorf("getBool = %v, want false", got)
	}
}

func TestGetStringList(t *testing.T) {
	raw := rawWith("triage", map[string]interface{}{
		"mustDoTopics": []interface{}{"billing", "", "  ", "security"},
	})
	got := getStringList(raw, "triage", "mustDoTopics")
	want := []string{"billing", "security"}
	if len(got) != len(want) {
		t.Fatalf("getStringList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("getStringList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGetStringList_AbsentReturnsNil(t *testing.T) {
	if got := getStringList(map[string]interface{}{}, "triage", "mustDoTopics"); got != nil {
		t.Errorf("getStringList on absent key = %v, want nil", got)
	}
}

func TestTriageConfig_IsComplete(t *testing.T) {
	if (TriageConfig{}).IsComplete() {
		t.Error("empty TriageConfig should not be complete")
	}
	if !(TriageConfig{OpenAIAPIKey: "sk-test"}).IsComplete() {
		t.Error("TriageConfig with an API key should be complete")
	}
	if (TriageConfig{OpenAIAPIKey: "   "}).IsComplete() {
		t.Error("whitespace-only API key should not count as complete")
	}
}
