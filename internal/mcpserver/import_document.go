package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	maxDocumentSize = 200 << 20 // 200 MB
	pdfContentType  = "application/pdf"
)

var (
	pdfMagic      = []byte("%PDF-")
	safeSegmentRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

type importResult struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Replaced bool   `json:"replaced"`
}

func (s *Server) importDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target := req.GetString("path", "")
	replace := req.GetBool("replace", false)

	var data []byte
	if strings.HasPrefix(rawURL, "data:") {
		data, err = decodeDataURI(rawURL)
	} else {
		data, err = fetchHTTP(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return mcp.NewToolResultError(fmt.Sprintf("content is not a PDF (detected: %s)", http.DetectContentType(data))), nil
	}

	if target == "" {
		target = filenameFromURL(rawURL)
	}
	target = sanitizePath(target)
	if !s.Documents.IsDocument(target) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported document path: %s", target)), nil
	}

	_, statErr := s.Documents.Stat(target)
	exists := statErr == nil
	if exists && !replace {
		return mcp.NewToolResultError(fmt.Sprintf("document already exists: %s (pass replace=true to overwrite)", target)), nil
	}

	if err := s.Documents.Write(target, bytes.NewReader(data)); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save document: %v", err)), nil
	}
	if s.DocumentSync != nil {
		if err := s.DocumentSync.Apply(ctx, target); err != nil {
			slog.Warn("document sync after import failed", slog.String("path", target), slog.String("error", err.Error()))
		}
	}
	meta, err := s.Documents.Stat(target)
	if err != nil {
		return toolError(err), nil
	}

	out, _ := json.Marshal(importResult{Path: meta.Path, Checksum: meta.Checksum, Replaced: exists})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:application/pdf;base64,<data> URI.
func decodeDataURI(uri string) ([]byte, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("invalid data URI: missing comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, fmt.Errorf("only base64 data URIs are supported")
	}
	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	if mime != pdfContentType {
		return nil, fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", len(data), maxDocumentSize)
	}
	return data, nil
}

// fetchHTTP downloads a document from an HTTP/HTTPS URL with security checks.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout:   60 * time.Second,
		Transport: guardedTransport(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("file too large: exceeds %d bytes", maxDocumentSize)
	}
	return data, nil
}

// checkBlockedHost rejects metadata hosts and literal addresses that are not
// public. Names are checked again at dial time against every address they
// resolve to.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil && blockedIP(ip) {
		return fmt.Errorf("blocked host: non-public address %s", host)
	}
	return nil
}

// blockedIP reports addresses a download must never reach: loopback,
// private ranges (including IPv6 ULA), link-local (including the cloud
// metadata endpoint), multicast and the unspecified address.
func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

// dialGuard runs on the resolved address of every connection, so a name that
// resolves to a private address, or is rebound to one, cannot be reached.
func dialGuard(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("blocked dial: %w", err)
	}
	ip := net.ParseIP(host)
	if ip == nil || blockedIP(ip) {
		return fmt.Errorf("blocked dial: non-public address %s", host)
	}
	return nil
}

// guardedTransport dials directly, without environment proxies, through
// dialGuard.
func guardedTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialGuard,
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = dialer.DialContext
	return t
}

// filenameFromURL takes the file name from a URL, falling back to a UUID.
func filenameFromURL(rawURL string) string {
	if !strings.HasPrefix(rawURL, "data:") {
		if parsed, err := url.Parse(rawURL); err == nil {
			base := path.Base(parsed.Path)
			if strings.HasSuffix(strings.ToLower(base), ".pdf") {
				return base
			}
		}
	}
	return uuid.NewString() + ".pdf"
}

// sanitizePath keeps folder structure but strips traversal and unsafe
// characters from every segment.
func sanitizePath(p string) string {
	var segs []string
	for _, seg := range strings.Split(strings.ReplaceAll(p, `\`, "/"), "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		segs = append(segs, safeSegmentRe.ReplaceAllString(seg, "_"))
	}
	if len(segs) == 0 {
		return uuid.NewString() + ".pdf"
	}
	return strings.Join(segs, "/")
}
