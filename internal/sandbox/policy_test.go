package sandbox

import (
	"os"
	"testing"
)

func TestExpandPlaceholdersCWD(t *testing.T) {
	got := expandPlaceholders("$CWD/sub", "/home/user/proj", "/home/user")
	if got != "/home/user/proj/sub" {
		t.Fatalf("expected CWD expanded, got %q", got)
	}
}

func TestExpandPlaceholdersHOME(t *testing.T) {
	got := expandPlaceholders("$HOME/.config", "/home/user/proj", "/home/user")
	if got != "/home/user/.config" {
		t.Fatalf("expected HOME expanded, got %q", got)
	}
}

func TestExpandPlaceholdersNoPlaceholder(t *testing.T) {
	got := expandPlaceholders("/etc/passwd", "/cwd", "/home")
	if got != "/etc/passwd" {
		t.Fatalf("expected unchanged path, got %q", got)
	}
}

func TestResolveAllDeduplicates(t *testing.T) {
	out, err := resolveAll([]string{"/tmp", "/tmp", "$CWD"})
	if err != nil {
		t.Fatalf("resolveAll: %v", err)
	}
	seen := map[string]int{}
	for _, p := range out {
		seen[p]++
	}
	for p, n := range seen {
		if n > 1 {
			t.Fatalf("expected %q to appear once, got %d", p, n)
		}
	}
}

func TestResolveAllSkipsEmptyEntries(t *testing.T) {
	out, err := resolveAll([]string{"", "/tmp", ""})
	if err != nil {
		t.Fatalf("resolveAll: %v", err)
	}
	for _, p := range out {
		if p == "" {
			t.Fatalf("expected no empty entries in resolved list, got %v", out)
		}
	}
}

func TestFromConfigBuildsAllThreeLists(t *testing.T) {
	p, err := FromConfig([]string{"/tmp"}, []string{"/usr"}, []string{"/etc/shadow"})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if len(p.Writable) == 0 || len(p.Readable) == 0 || len(p.Denied) == 0 {
		t.Fatalf("expected all three lists populated, got %+v", p)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Policy{Writable: []string{"/tmp"}, Readable: []string{"/usr"}, Denied: []string{"/etc/shadow"}}
	encoded, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Writable) != 1 || got.Writable[0] != "/tmp" {
		t.Fatalf("unexpected writable list: %v", got.Writable)
	}
	if len(got.Denied) != 1 || got.Denied[0] != "/etc/shadow" {
		t.Fatalf("unexpected denied list: %v", got.Denied)
	}
}

func TestDecodeInvalidJSONErrors(t *testing.T) {
	if _, err := Decode("not json"); err == nil {
		t.Fatalf("expected an error decoding invalid JSON")
	}
}

func TestStringProducesValidIndentedJSON(t *testing.T) {
	p := Policy{Writable: []string{"/tmp"}}
	s := p.String()
	if s == "" {
		t.Fatalf("expected non-empty string representation")
	}
	got, err := Decode(s)
	if err != nil {
		t.Fatalf("expected String() output to round-trip through Decode: %v", err)
	}
	if len(got.Writable) != 1 || got.Writable[0] != "/tmp" {
		t.Fatalf("unexpected round-trip: %+v", got)
	}
}

func TestEnvVarNameMatchesTrampolineContract(t *testing.T) {
	if EnvVar != "__UA_SANDBOX_POLICY" {
		t.Fatalf("expected stable env var name, got %q", EnvVar)
	}
	if os.Getenv(EnvVar) != "" {
		t.Skip("ambient env var set in test environment")
	}
}
