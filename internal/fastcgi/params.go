package fastcgi

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/christianparpart/x0-sub009/internal/header"
	"github.com/christianparpart/x0-sub009/internal/http1"
)

var errShortParams = errors.New("fastcgi: truncated name-value pair stream")

// buildRequest turns a fully-decoded CGI parameter set into an http1.Request,
// the same in-flight request type a Channel exposes to handlers regardless
// of wire protocol (Request is protocol-agnostic; only the wire
// that fills it differs between internal/http1 and internal/fastcgi).
func buildRequest(params map[string]string) *http1.Request {
	req := &http1.Request{}
	req.RawMethod = params["REQUEST_METHOD"]
	req.Method = http1.LookupMethod(req.RawMethod)

	req.RawTarget = params["REQUEST_URI"]
	if req.RawTarget == "" {
		req.RawTarget = params["SCRIPT_NAME"] + params["PATH_INFO"]
	}
	req.Path = params["SCRIPT_NAME"] + params["PATH_INFO"]
	if req.Path == "" {
		req.Path = params["DOCUMENT_URI"]
	}
	req.Query = params["QUERY_STRING"]

	req.VersionMaj, req.VersionMin = parseServerProtocol(params["SERVER_PROTOCOL"])

	for k, v := range params {
		switch {
		case k == "HTTP_HOST":
			req.Host = v
			req.Headers.Add(header.Host, v)
		case strings.HasPrefix(k, "HTTP_"):
			req.Headers.Add(cgiNameToHeader(k), v)
		}
	}
	if req.Host == "" {
		req.Host = params["SERVER_NAME"]
	}

	if ct := params["CONTENT_TYPE"]; ct != "" {
		req.Headers.Set(header.ContentType, ct)
	}
	if cl, ok := params["CONTENT_LENGTH"]; ok && cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			req.ContentLength = n
			req.Headers.Set(header.ContentLength, cl)
		}
	}

	req.Body = http1.NewBodyReader()
	return req
}

// cgiNameToHeader reverses the CGI "HTTP_FOO_BAR" convention back into the
// "Foo-Bar" wire header name.
func cgiNameToHeader(cgiName string) string {
	name := strings.TrimPrefix(cgiName, "HTTP_")
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if len(p) == 0 {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}

func parseServerProtocol(s string) (maj, min int) {
	maj, min = 1, 0
	i := strings.IndexByte(s, '/')
	if i < 0 {
		return
	}
	rest := s[i+1:]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return
	}
	if m, err := strconv.Atoi(rest[:dot]); err == nil {
		maj = m
	}
	if n, err := strconv.Atoi(rest[dot+1:]); err == nil {
		min = n
	}
	return
}
