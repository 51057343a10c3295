package queue

import (
	"encoding/json"
	"testing"
	"time"
)

func TestJob_Structure(t *testing.T) {
	job := Job{
		Type:      JobSyncProfiles,
		Usernames: []string{"alice", "bob"},
	}

	if job.Type != "sync_profiles" {
		t.Errorf("expected type sync_profiles, got %s", job.Type)
	}
	if len(job.Usernames) != 2 {
		t.Errorf("expected 2 usernames, got %d", len(job.Usernames))
	}
}

func TestJob_WireFormatOmitsEmptyPayloadFields(t *testing.T) {
	job := Job{
		Type:       JobPullTimeline,
		AccountID:  "100",
		EnqueuedAt: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}

	if m["type"] != "pull_timeline" || m["account_id"] != "100" {
		t.Errorf("unexpected wire shape: %s", data)
	}
	// the unused payload fields must not appear on the wire
	if _, ok := m["usernames"]; ok {
		t.Error("empty usernames should be omitted")
	}
	if _, ok := m["username"]; ok {
		t.Error("empty username should be omitted")
	}
}

func TestJob_RoundTripPreservesAttempts(t *testing.T) {
	job := Job{Type: JobBackfillHistory, Username: "alice", Attempts: 3}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}

	var decoded Job
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	if decoded.Username != "alice" || decoded.Attempts != 3 {
		t.Errorf("round trip lost fields: %+v", decoded)
	}
}
