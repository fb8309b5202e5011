package passwords

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// cheap work factors keep the suite fast; production defaults are exercised
// only through MustUpdate.
func testChain(t *testing.T, names ...string) *Chain {
	t.Helper()
	chain, err := NewChain(names,
		WithPBKDF2Iterations(1000),
		WithBCryptCost(bcrypt.MinCost),
		WithArgon2Params(1, 64, 1),
	)
	if err != nil {
		t.Fatalf("NewChain returned error: %v", err)
	}
	return chain
}

func TestPBKDF2KnownVectors(t *testing.T) {
	cases := []struct {
		name   string
		hasher *pbkdf2Hasher
		want   string
	}{
		{"sha1", newPBKDF2SHA1(1), "pbkdf2_sha1$1$salt$DGDID5YfDnHzqbUkr2ASBi/gN6Y="},
		{"sha256", newPBKDF2SHA256(1), "pbkdf2_sha256$1$salt$Eg+2z/z4syxD5yJSVsT4N6hlSMkszDVICAWYfLcL4Xs="},
		{"sha256 two rounds", newPBKDF2SHA256(2), "pbkdf2_sha256$2$salt$rk0Mla9rRtMtCt/5KPBt0CowP47zwlHf1uLYWpVHTEM="},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.hasher.encode("password", "salt", tc.hasher.iterations)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
			if !tc.hasher.Verify("password", tc.want) {
				t.Fatalf("expected known vector to verify")
			}
			if tc.hasher.Verify("Password", tc.want) {
				t.Fatalf("expected wrong password to fail")
			}
		})
	}
}

func TestChainMakeUsesPreferredHasher(t *testing.T) {
	chain := testChain(t, PBKDF2SHA256, PBKDF2SHA1, Argon2, BCrypt)

	encoded, err := chain.Make("lètmein")
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}
	if !strings.HasPrefix(encoded, "pbkdf2_sha256$1000$") {
		t.Fatalf("unexpected encoding %s", encoded)
	}
	if parts := strings.Split(encoded, "$"); len(parts[2]) != saltLength {
		t.Fatalf("expected %d character salt, got %q", saltLength, parts[2])
	}

	ok, rehash, err := chain.Check("lètmein", encoded)
	if err != nil || !ok || rehash {
		t.Fatalf("expected match without rehash, got ok=%v rehash=%v err=%v", ok, rehash, err)
	}

	ok, _, err = chain.Check("letmein", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestChainRoundTripEveryHasher(t *testing.T) {
	for _, algo := range Algorithms() {
		t.Run(algo, func(t *testing.T) {
			chain := testChain(t, algo)
			encoded, err := chain.Make("correct horse battery staple")
			if err != nil {
				t.Fatalf("Make returned error: %v", err)
			}
			if !strings.HasPrefix(encoded, algo+"$") {
				t.Fatalf("expected %s prefix, got %s", algo, encoded)
			}
			ok, rehash, err := chain.Check("correct horse battery staple", encoded)
			if err != nil || !ok || rehash {
				t.Fatalf("expected clean match, got ok=%v rehash=%v err=%v", ok, rehash, err)
			}
			ok, _, _ = chain.Check("wrong", encoded)
			if ok {
				t.Fatalf("expected wrong password to fail")
			}
		})
	}
}

func TestChainFallbackHasherRequestsRehash(t *testing.T) {
	legacy := testChain(t, BCrypt)
	encoded, err := legacy.Make("hunter22")
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}

	chain := testChain(t, PBKDF2SHA256, PBKDF2SHA1, Argon2, BCrypt)
	ok, rehash, err := chain.Check("hunter22", encoded)
	if err != nil || !ok {
		t.Fatalf("expected fallback hasher to verify, got ok=%v err=%v", ok, err)
	}
	if !rehash {
		t.Fatalf("expected non-preferred hasher to request a rehash")
	}
}

func TestChainLegacyBareBCrypt(t *testing.T) {
	raw, err := bcrypt.GenerateFromPassword([]byte("terrapin!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}

	chain := testChain(t, PBKDF2SHA256, BCrypt)
	ok, rehash, err := chain.Check("terrapin!", string(raw))
	if err != nil || !ok || !rehash {
		t.Fatalf("expected legacy bcrypt to verify and request rehash, got ok=%v rehash=%v err=%v", ok, rehash, err)
	}
}

func TestChainRejectsUnconfiguredAlgorithm(t *testing.T) {
	argonOnly := testChain(t, Argon2)
	encoded, err := argonOnly.Make("secret-value")
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}

	chain := testChain(t, PBKDF2SHA256)
	_, _, err = chain.Check("secret-value", encoded)
	if !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestChainParameterChangeRequestsRehash(t *testing.T) {
	old := testChain(t, PBKDF2SHA256)
	encoded, err := old.Make("pa55word-long")
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}

	stronger, err := NewChain([]string{PBKDF2SHA256}, WithPBKDF2Iterations(2000))
	if err != nil {
		t.Fatalf("NewChain returned error: %v", err)
	}
	ok, rehash, err := stronger.Check("pa55word-long", encoded)
	if err != nil || !ok || !rehash {
		t.Fatalf("expected rehash after iteration change, got ok=%v rehash=%v err=%v", ok, rehash, err)
	}
}

func TestPBKDF2ShortSaltRequestsRehash(t *testing.T) {
	h := newPBKDF2SHA256(1000)
	encoded := h.encode("password", "seasalt", 1000)
	if !h.Verify("password", encoded) {
		t.Fatalf("expected short-salt hash to verify")
	}
	if !h.MustUpdate(encoded) {
		t.Fatalf("expected short salt to request rehash")
	}
}

func TestArgon2MustUpdate(t *testing.T) {
	h := &argon2Hasher{params: argon2Params{time: 1, memory: 64, threads: 1}}
	encoded, err := h.Encode("x")
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if h.MustUpdate(encoded) {
		t.Fatalf("fresh hash should not need an update")
	}
	h.params.time = 2
	if !h.MustUpdate(encoded) {
		t.Fatalf("expected parameter change to request update")
	}
	if !h.MustUpdate("argon2$garbage") {
		t.Fatalf("expected malformed value to request update")
	}
}

func TestBCryptTruncatesLongPasswords(t *testing.T) {
	chain := testChain(t, BCrypt)
	long := strings.Repeat("a", 80)
	encoded, err := chain.Make(long)
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}
	ok, _, _ := chain.Check(strings.Repeat("a", 72)+"different", encoded)
	if !ok {
		t.Fatalf("expected bytes past 72 to be ignored")
	}
}

func TestUnusablePasswords(t *testing.T) {
	chain := testChain(t, PBKDF2SHA256)
	encoded, err := chain.MakeUnusable()
	if err != nil {
		t.Fatalf("MakeUnusable returned error: %v", err)
	}
	if IsUsable(encoded) || len(encoded) != unusableLength+1 {
		t.Fatalf("unexpected unusable value %q", encoded)
	}
	for _, value := range []string{encoded, ""} {
		ok, rehash, err := chain.Check("", value)
		if ok || rehash || err != nil {
			t.Fatalf("unusable value %q must never verify", value)
		}
	}
}

func TestNewChainErrors(t *testing.T) {
	if _, err := NewChain(nil); !errors.Is(err, ErrEmptyChain) {
		t.Fatalf("expected ErrEmptyChain, got %v", err)
	}
	if _, err := NewChain([]string{"md5"}); !errors.Is(err, ErrUnknownHasher) {
		t.Fatalf("expected ErrUnknownHasher, got %v", err)
	}
}

func TestNewChainDeduplicates(t *testing.T) {
	chain := testChain(t, BCrypt, PBKDF2SHA256, BCrypt)
	if len(chain.hashers) != 2 || chain.Preferred().Algorithm() != BCrypt {
		t.Fatalf("unexpected chain %v", chain.hashers)
	}
}
