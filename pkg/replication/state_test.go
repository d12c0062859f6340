package replication

import "testing"

func TestParseState(t *testing.T) {
	body := []byte("---\nlast_run: 2024-03-01 10:00:00.000000000 +00:00\nsequence: 6543217\n")

	seq, err := ParseState(body)
	if err != nil {
		t.Fatalf("ParseState() returned error: %v", err)
	}
	if seq != 6543217 {
		t.Errorf("ParseState() = %d, want 6543217", seq)
	}
}

func TestParseState_MissingSequence(t *testing.T) {
	if _, err := ParseState([]byte("---\nlast_run: whenever\n")); err == nil {
		t.Error("Expected error for state file without sequence")
	}
}

func TestParseState_Malformed(t *testing.T) {
	if _, err := ParseState([]byte("{{not yaml")); err == nil {
		t.Error("Expected error for malformed state file")
	}
}
