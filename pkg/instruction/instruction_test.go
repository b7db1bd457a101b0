package instruction

import (
	"net/http"
	"strings"
	"testing"
)

func TestNewRejectsEmptyHost(t *testing.T) {
	t.Parallel()
	if _, err := New("", "/index"); err != ErrEmptyHost {
		t.Fatalf("expected ErrEmptyHost, got %v", err)
	}
}

func TestPathNormalization(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", "index", "/index"},
		{"already-prefixed", "/index", "/index"},
		{"double-slash", "//index", "/index"},
		{"many-slashes", "////index", "/index"},
		{"empty", "", "/"},
		{"internal-slash-untouched", "/a//b", "/a//b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			instr, err := New("example.test", tt.in)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := instr.Path(); got != tt.want {
				t.Errorf("Path() = %q, want %q", got, tt.want)
			}
			if got := instr.Path(); !strings.HasPrefix(got, "/") || strings.HasPrefix(got, "//") {
				t.Errorf("path invariant violated: %q", got)
			}
		})
	}
}

func TestSetPortValidatesRange(t *testing.T) {
	t.Parallel()
	instr, err := New("example.test", "/")
	if err != nil {
		t.Fatal(err)
	}
	if err := instr.SetPort(0); err != ErrInvalidPort {
		t.Errorf("SetPort(0) = %v, want ErrInvalidPort", err)
	}
	if err := instr.SetPort(65536); err != ErrInvalidPort {
		t.Errorf("SetPort(65536) = %v, want ErrInvalidPort", err)
	}
	if err := instr.SetPort(8443); err != nil {
		t.Errorf("SetPort(8443) = %v, want nil", err)
	}
	if instr.Port != 8443 {
		t.Errorf("Port = %d, want 8443", instr.Port)
	}
}

func TestAddHeaderPreservesOrderAndDuplicates(t *testing.T) {
	t.Parallel()
	instr, err := New("example.test", "/")
	if err != nil {
		t.Fatal(err)
	}
	instr.AddHeader("X-Foo: 1")
	instr.AddHeader("X-Foo: 2")
	instr.AddHeader("X-Bar: 3")

	got := instr.Headers()
	if len(got) != 3 {
		t.Fatalf("len(Headers()) = %d, want 3", len(got))
	}
	wantNames := []string{"X-Foo", "X-Foo", "X-Bar"}
	wantValues := []string{"1", "2", "3"}
	for i, h := range got {
		name, value, ok := h.Split()
		if !ok {
			t.Fatalf("Split() failed for %q", h)
		}
		if name != wantNames[i] || value != wantValues[i] {
			t.Errorf("header %d = %q:%q, want %q:%q", i, name, value, wantNames[i], wantValues[i])
		}
	}
}

func TestAcceptsResponseCode(t *testing.T) {
	t.Parallel()
	instr, err := New("example.test", "/")
	if err != nil {
		t.Fatal(err)
	}
	if !instr.AcceptsResponseCode(404) {
		t.Error("ExpectedResponseCode 0 should accept any code")
	}
	instr.ExpectedResponseCode = 200
	if instr.AcceptsResponseCode(404) {
		t.Error("ExpectedResponseCode 200 should reject 404")
	}
	if !instr.AcceptsResponseCode(200) {
		t.Error("ExpectedResponseCode 200 should accept 200")
	}
}

func TestResponseBodyFreedOnDiscard(t *testing.T) {
	t.Parallel()
	instr, err := New("example.test", "/")
	if err != nil {
		t.Fatal(err)
	}
	resp := instr.Response()
	resp.AppendBody([]byte("hello"))
	resp.AppendBody([]byte(" world"))
	if got := string(resp.Body()); got != "hello world" {
		t.Errorf("Body() = %q", got)
	}
	if resp.Len() != 11 {
		t.Errorf("Len() = %d, want 11", resp.Len())
	}
	resp.Discard()
	if resp.Len() != 0 {
		t.Errorf("Len() after Discard = %d, want 0", resp.Len())
	}
}

func TestResponseHeaderLookup(t *testing.T) {
	t.Parallel()
	instr, err := New("example.test", "/")
	if err != nil {
		t.Fatal(err)
	}
	resp := instr.Response()
	h := http.Header{}
	h.Set("X-Powered-By", "swarmreq")
	resp.SetHeader(h)

	if v, ok := resp.Header("x-powered-by"); !ok || v != "swarmreq" {
		t.Errorf("Header lookup = %q, %v", v, ok)
	}
	if _, ok := resp.Header("X-Missing"); ok {
		t.Error("expected missing header to report ok=false")
	}
}

func TestExtraFlagsTokenization(t *testing.T) {
	t.Parallel()
	instr, err := New("example.test", "/")
	if err != nil {
		t.Fatal(err)
	}
	instr.ExtraClientFlags = `--insecure --header "X-Trace: 1"`
	flags, err := instr.ExtraFlags()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"--insecure", "--header", "X-Trace: 1"}
	if len(flags) != len(want) {
		t.Fatalf("ExtraFlags() = %v, want %v", flags, want)
	}
	for i := range want {
		if flags[i] != want[i] {
			t.Errorf("flags[%d] = %q, want %q", i, flags[i], want[i])
		}
	}
}

func TestNewBatchSharesHost(t *testing.T) {
	t.Parallel()
	instrs, err := NewBatch("example.test", []string{"a", "/b", "//c"}, func(i *Instruction) {
		i.Proxy = "127.0.0.1"
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(instrs) != 3 {
		t.Fatalf("len = %d, want 3", len(instrs))
	}
	wantPaths := []string{"/a", "/b", "/c"}
	for i, instr := range instrs {
		if instr.Host != "example.test" {
			t.Errorf("Host = %q", instr.Host)
		}
		if instr.Path() != wantPaths[i] {
			t.Errorf("Path() = %q, want %q", instr.Path(), wantPaths[i])
		}
		if instr.Proxy != "127.0.0.1" {
			t.Errorf("Proxy not applied by configure callback")
		}
	}
}

func TestLoadPathListSkipsBlankAndComments(t *testing.T) {
	t.Parallel()
	wordlist := "admin\n# a comment\n\nbackup.zip\n  \n.git/config\n"
	instrs, err := LoadPathList(strings.NewReader(wordlist), "example.test", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/admin", "/backup.zip", "/.git/config"}
	if len(instrs) != len(want) {
		t.Fatalf("len = %d, want %d", len(instrs), len(want))
	}
	for i, instr := range instrs {
		if instr.Path() != want[i] {
			t.Errorf("Path() = %q, want %q", instr.Path(), want[i])
		}
	}
}
