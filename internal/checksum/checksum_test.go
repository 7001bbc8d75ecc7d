package checksum

import "testing"

func TestSum_Known(t *testing.T) {
	got := Sum([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Sum = %q, want %q", got, want)
	}
}

func TestShort(t *testing.T) {
	if got := Short("abc", 8); got != "ba7816bf" {
		t.Errorf("Short = %q", got)
	}
	if got := Short("abc", 0); len(got) != 64 {
		t.Errorf("Short with n=0 should return full digest, got %q", got)
	}
}
