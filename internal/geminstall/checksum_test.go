package geminstall

import "testing"

func TestHashFileKnownVectors(t *testing.T) {
	cases := []struct {
		algo string
		want string
	}{
		{"sha256", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{"SHA256", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
	}
	for _, c := range cases {
		got, err := hashFile(c.algo, []byte("hello"))
		if err != nil {
			t.Fatalf("hashFile(%s): %v", c.algo, err)
		}
		if got != c.want {
			t.Errorf("hashFile(%s) = %s, want %s", c.algo, got, c.want)
		}
	}
}

func TestHashFileRejectsUnknownAlgo(t *testing.T) {
	if _, err := hashFile("crc32", []byte("x")); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}
