// Package whitelist holds the SHA-256 hashes of assemblies that are skipped
// because they are known to trigger false positives.
package whitelist

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/modscan/pkg/shared/config"
	"github.com/scan-io-git/modscan/pkg/shared/httpclient"
)

// builtin are popular mods that are flagged although they are safe.
var builtin = []string{
	// CustomTV
	"3918e1454e05de4dd3ace100d8f4d53936c9b93694dbff5bcc0293d689cb0ab7",
	"8e6dd1943c80e2d1472a9dc2c6722226d961027a7ec20aab9ad8f1184702d138",
	// UnityExplorer
	"d47eb6eabd3b6e3b742c7d9693651bc3a61a90dcbe838f9a4276953089ee4951",
	"cfe43c0d285867a5701d96de1edd25cb02725fe2629b88386351dc07b11a08b5",
}

// Builtin returns a copy of the built-in hash list.
func Builtin() []string {
	return append([]string(nil), builtin...)
}

// Set is a case-insensitive set of SHA-256 hex digests. It is read-only
// after construction and safe for concurrent lookups.
type Set struct {
	hashes map[string]struct{}
}

// New returns a set holding the built-in hashes plus extra.
func New(extra ...string) *Set {
	s := &Set{hashes: make(map[string]struct{}, len(builtin)+len(extra))}
	s.Add(builtin...)
	s.Add(extra...)
	return s
}

// Add inserts hashes, ignoring blanks.
func (s *Set) Add(hashes ...string) {
	for _, h := range hashes {
		h = normalize(h)
		if h == "" {
			continue
		}
		s.hashes[h] = struct{}{}
	}
}

// Contains reports whether hash is whitelisted.
func (s *Set) Contains(hash string) bool {
	if s == nil {
		return false
	}
	_, ok := s.hashes[normalize(hash)]
	return ok
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.hashes)
}

func normalize(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Load builds the set from the built-in list, the configured hashes and,
// when a remote URL is configured, the remote list. A remote failure is
// returned together with the usable local set.
func Load(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*Set, error) {
	if cfg == nil {
		return New(), nil
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := New(cfg.Whitelist.Hashes...)
	if cfg.Whitelist.RemoteURL == "" {
		return s, nil
	}

	client := httpclient.InitializeRestyClient(logger, cfg)
	remote, err := Fetch(ctx, client, cfg.Whitelist.RemoteURL)
	if err != nil {
		return s, fmt.Errorf("failed to fetch remote whitelist: %w", err)
	}
	s.Add(remote...)
	logger.Debug("remote whitelist loaded", "url", cfg.Whitelist.RemoteURL, "hashes", len(remote))
	return s, nil
}

// Fetch downloads a hash list. The body is either a JSON array of strings or
// plain text with one hash per line; '#' starts a comment.
func Fetch(ctx context.Context, client *resty.Client, url string) ([]string, error) {
	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode(), url)
	}
	return Parse(resp.Body())
}

// Parse decodes a hash list and validates every entry.
func Parse(body []byte) ([]string, error) {
	trimmed := strings.TrimSpace(string(body))
	var entries []string

	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
			return nil, fmt.Errorf("invalid JSON hash list: %w", err)
		}
	} else {
		sc := bufio.NewScanner(strings.NewReader(trimmed))
		for sc.Scan() {
			line := sc.Text()
			if i := strings.IndexByte(line, '#'); i >= 0 {
				line = line[:i]
			}
			if line = strings.TrimSpace(line); line != "" {
				entries = append(entries, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := config.ValidateSHA256(strings.TrimSpace(e)); err != nil {
			return nil, err
		}
		out = append(out, normalize(e))
	}
	return out, nil
}
