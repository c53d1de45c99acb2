package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/modscan/internal/analyzer"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/internal/whitelist"
	"github.com/scan-io-git/modscan/pkg/shared"
	"github.com/scan-io-git/modscan/pkg/shared/config"
	"github.com/scan-io-git/modscan/pkg/shared/errors"
	"github.com/scan-io-git/modscan/pkg/shared/files"
)

// assemblyExts are the file extensions collected from directories.
var assemblyExts = []string{"dll"}

// Scanner hashes, filters and scans assemblies. It is safe for concurrent
// use: every assembly gets its own analyzer.AssemblyScanner.
type Scanner struct {
	rules          []rules.Rule
	cfg            config.ScanConfig
	whitelist      *whitelist.Set
	concurrentJobs int
	logger         hclog.Logger
}

// New creates a Scanner. A nil whitelist means the built-in list.
func New(ruleSet []rules.Rule, cfg config.ScanConfig, wl *whitelist.Set, concurrentJobs int, logger hclog.Logger) (*Scanner, error) {
	if ruleSet == nil {
		return nil, analyzer.ErrNilRules
	}
	if wl == nil {
		wl = whitelist.New(cfg.WhitelistedHashes...)
	}
	if concurrentJobs < 1 {
		concurrentJobs = 1
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Scanner{
		rules:          ruleSet,
		cfg:            cfg,
		whitelist:      wl,
		concurrentJobs: concurrentJobs,
		logger:         logger,
	}, nil
}

// HashBytes returns the lowercase hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ScanBytes scans an in-memory assembly. Whitelisted inputs are reported
// without findings.
func (s *Scanner) ScanBytes(data []byte, path string) findings.Result {
	res := findings.Result{
		FileName: filepath.Base(path),
		Path:     path,
		SHA256:   HashBytes(data),
		Findings: []findings.Finding{},
	}
	if s.whitelist.Contains(res.SHA256) {
		s.logger.Info("skipping whitelisted assembly", "path", path, "sha256", res.SHA256)
		res.Whitelisted = true
		res.Skipped = true
		return res
	}

	engine, err := analyzer.NewAssemblyScanner(s.rules, &s.cfg, s.logger.Named("analyzer").With("path", path))
	if err != nil {
		res.Skipped = true
		res.Error = err.Error()
		return res
	}
	report := engine.ScanReport(data, path)
	if report.Findings != nil {
		res.Findings = report.Findings
	}
	res.ILDumps = report.ILDumps
	return res
}

// ScanFile reads and scans the file at path.
func (s *Scanner) ScanFile(path string) (findings.Result, error) {
	if err := files.ValidatePath(path); err != nil {
		return failedResult(path, err), errors.NewScanError(path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return failedResult(path, err), errors.NewScanError(path, err)
	}
	return s.ScanBytes(data, path), nil
}

func failedResult(path string, err error) findings.Result {
	return findings.Result{
		FileName: filepath.Base(path),
		Path:     path,
		Skipped:  true,
		Error:    err.Error(),
		Findings: []findings.Finding{},
	}
}

// Discover expands targets into assembly files. A file target is used as is.
// A directory target is searched recursively; with gameRoot set only the
// configured scan directories below it are searched.
func (s *Scanner) Discover(targets []string, gameRoot bool) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(paths ...string) {
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}

	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, errors.NewScanError(target, err)
		}
		if !info.IsDir() {
			add(target)
			continue
		}
		if !gameRoot {
			found, err := files.FindByExt(target, assemblyExts)
			if err != nil {
				return nil, errors.NewScanError(target, err)
			}
			add(found...)
			continue
		}
		for _, dir := range s.cfg.ScanDirectories {
			sub, err := files.EnsureWithinRoot(target, filepath.Join(target, dir))
			if err != nil {
				return nil, err
			}
			if info, err := os.Stat(sub); err != nil || !info.IsDir() {
				s.logger.Debug("scan directory not present", "dir", sub)
				continue
			}
			found, err := files.FindByExt(sub, assemblyExts)
			if err != nil {
				return nil, errors.NewScanError(sub, err)
			}
			add(found...)
		}
	}
	return out, nil
}

// ScanPaths discovers and scans assemblies concurrently. Results keep the
// discovery order. Files that cannot be read are reported in their result
// and do not stop the others; a cancelled ctx stops scheduling new files.
func (s *Scanner) ScanPaths(ctx context.Context, targets []string, gameRoot bool) ([]findings.Result, error) {
	if gameRoot && !s.cfg.EnableAutoScan {
		s.logger.Info("automatic scanning is disabled, nothing to do")
		return nil, nil
	}

	paths, err := s.Discover(targets, gameRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to discover assemblies: %w", err)
	}
	s.logger.Info("scanning assemblies", "count", len(paths), "jobs", s.concurrentJobs)

	results := make([]findings.Result, len(paths))
	err = shared.ForEveryValueWithBoundedGoroutines(ctx, s.concurrentJobs, paths, func(i int, path string) {
		res, err := s.ScanFile(path)
		if err != nil {
			s.logger.Warn("failed to scan file", "path", path, "error", err)
		}
		results[i] = res
		s.logger.Debug("scan finished", "path", path, "findings", len(res.Findings))
	})
	if err != nil {
		return results, err
	}
	return results, nil
}

// ShouldDisable reports whether a mod with this result must be disabled:
// auto-disable is on and at least SuspiciousThreshold findings reach
// MinSeverityForDisable.
func ShouldDisable(res findings.Result, cfg config.ScanConfig) bool {
	if !cfg.EnableAutoDisable || res.Whitelisted {
		return false
	}
	threshold := cfg.SuspiciousThreshold
	if threshold < 1 {
		threshold = 1
	}
	return res.CountAtOrAbove(cfg.MinSeverityForDisable) >= threshold
}
