package analyzer

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/rules"
	"github.com/scan-io-git/modscan/internal/signals"
	"github.com/scan-io-git/modscan/pkg/shared/config"
)

// Report is the outcome of one assembly scan. ILDumps maps "Type.Method" to
// the full IL listing of methods with findings when full IL reports are on.
type Report struct {
	Findings []findings.Finding
	ILDumps  map[string]string
}

// AssemblyScanner is the entry point of the engine. It owns the signal
// tracker of its scans, so concurrent scans need separate scanners.
type AssemblyScanner struct {
	*env
	metadata *MetadataScanner
	pinvoke  *PInvokeScanner
	types    *TypeScanner
}

func NewAssemblyScanner(ruleSet []rules.Rule, cfg *config.ScanConfig, logger hclog.Logger) (*AssemblyScanner, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	e, err := newEnv(ruleSet, cfg, signals.NewTracker(cfg.EnableMultiSignalDetection), logger)
	if err != nil {
		return nil, err
	}
	metadata, err := NewMetadataScanner(ruleSet)
	if err != nil {
		return nil, err
	}
	pinvoke, err := NewPInvokeScanner(ruleSet, e.logger)
	if err != nil {
		return nil, err
	}
	return &AssemblyScanner{
		env:      e,
		metadata: metadata,
		pinvoke:  pinvoke,
		types:    newTypeScanner(e),
	}, nil
}

// Scan decodes data and returns its findings in discovery order. virtualPath
// only names the input in the advisory reported for undecodable parts.
func (s *AssemblyScanner) Scan(data []byte, virtualPath string) []findings.Finding {
	return s.ScanReport(data, virtualPath).Findings
}

// ScanReport is Scan with the IL dumps of flagged methods. The advisory for
// undecodable parts is only kept next to other findings.
func (s *AssemblyScanner) ScanReport(data []byte, virtualPath string) Report {
	var rep Report
	err := s.scan(data, &rep)
	if err == nil {
		return rep
	}
	s.logger.Debug("assembly could not be fully scanned", "path", virtualPath, "err", err)
	if len(rep.Findings) == 0 {
		return Report{}
	}
	loc := virtualPath
	if loc == "" {
		loc = advisoryLocation
	}
	rep.Findings = append(rep.Findings, findings.New(loc, scanAdvisory, findings.Low))
	return rep
}

func (s *AssemblyScanner) scan(data []byte, rep *Report) (err error) {
	defer recoverScope(&err)

	asm, err := dotnet.ReadAssembly(data)
	if err != nil {
		return fmt.Errorf("read assembly: %w", err)
	}
	s.logger.Trace("assembly decoded", "name", asm.Name, "runtime", asm.RuntimeVersion, "modules", len(asm.Modules))

	if s.cfg.DetectAssemblyMetadata {
		fs, err := s.metadata.Scan(asm)
		if err != nil {
			s.logger.Debug("skipping assembly metadata", "err", err)
		}
		rep.Findings = append(rep.Findings, fs...)
	}

	var types TypeResult
	for _, module := range asm.Modules {
		rep.Findings = append(rep.Findings, s.pinvoke.Scan(module)...)

		for _, t := range module.Types {
			tr, err := s.types.Scan(t)
			if err != nil {
				s.logger.Debug("skipping type", "type", t.FullName(), "err", err)
				continue
			}
			rep.Findings = append(rep.Findings, tr.Findings...)
			for k, v := range tr.ILDumps {
				types.addDump(k, v)
			}
		}
	}
	rep.ILDumps = types.ILDumps
	return nil
}
