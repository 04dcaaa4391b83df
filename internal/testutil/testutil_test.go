package testutil

import (
	"io"
	"net/http"
	"net/url"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

func TestLocalHostRequest(t *testing.T) {
	req := LocalHostRequest(http.MethodGet, "/debug/", nil)
	if req.RemoteAddr != "127.0.0.1:12345" {
		t.Errorf("RemoteAddr = %q", req.RemoteAddr)
	}
}

func TestFormRequest(t *testing.T) {
	req := FormRequest(http.MethodPost, "/debug/x", url.Values{"hex": {"aa01"}})
	if got := req.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := req.FormValue("hex"); got != "aa01" {
		t.Errorf("FormValue(hex) = %q, want aa01", got)
	}
}

func TestServe(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, "short and stout")
	})
	w := Serve(h, LocalHostRequest(http.MethodGet, "/", nil))
	AssertStatusCode(t, w.Code, http.StatusTeapot)
	if w.Body.String() != "short and stout" {
		t.Errorf("body = %q", w.Body.String())
	}
}
