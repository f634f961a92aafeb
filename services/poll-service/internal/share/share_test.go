package share

import (
	"strings"
	"testing"
)

func TestNewShareCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := NewShareCode()
		if err != nil {
			t.Fatalf("NewShareCode failed: %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("unexpected length %d", len(code))
		}
		for _, r := range code {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("unexpected rune %q in %s", r, code)
			}
		}
		if seen[code] {
			t.Fatalf("duplicate code %s", code)
		}
		seen[code] = true
	}
}

func TestTokens(t *testing.T) {
	tok, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken failed: %v", err)
	}
	if len(tok) != tokenLength {
		t.Fatalf("unexpected token length %d", len(tok))
	}
	hash := HashToken(tok)
	if hash == tok || !TokenMatches(hash, tok) {
		t.Fatalf("hash must verify its token")
	}
	if TokenMatches(hash, tok+"x") || TokenMatches("", tok) || TokenMatches(hash, "") {
		t.Fatalf("mismatched tokens must not verify")
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Team Sync: Q1 Planning!": "team-sync-q1-planning",
		"Café déjà vu":            "cafe-deja-vu",
		"!!!":                     "poll",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
	long := Slug(strings.Repeat("word ", 40))
	if len(long) > maxSlugLen || strings.HasSuffix(long, "-") {
		t.Fatalf("slug not truncated cleanly: %q", long)
	}
	if Path("abc", "team-sync") != "/p/abc/team-sync" {
		t.Fatalf("unexpected path")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !CheckPassword(hash, "hunter22") {
		t.Fatal("CheckPassword should succeed")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("CheckPassword should fail for wrong password")
	}
	if !CheckPassword("", "anything") {
		t.Fatal("polls without a password admit everyone")
	}
}
