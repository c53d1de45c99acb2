package rules

import (
	"regexp"
	"strings"

	"github.com/scan-io-git/modscan/internal/dotnet"
	"github.com/scan-io-git/modscan/internal/findings"
	"github.com/scan-io-git/modscan/internal/signals"
)

var (
	bareIPURL  = regexp.MustCompile(`(?i)https?://\d{1,3}(?:\.\d{1,3}){3}`)
	urlPattern = regexp.MustCompile(`(?i)(https?://[^\s"'<>]+)`)
	urlScheme  = regexp.MustCompile(`(?i)https?://`)

	networkTypeMarkers = []string{
		"UnityEngine.Networking.UnityWebRequest", "HttpClient", "WebClient",
		"WebRequest", "Sockets", "TcpClient", "UdpClient",
	}
	readOperations = []string{
		"GetStringAsync", "GetAsync", "GetByteArrayAsync", "DownloadString", "DownloadData",
	}
	downloadOperations = []string{
		"GetStringAsync", "GetAsync", "GetByteArrayAsync", "DownloadString", "DownloadData", "DownloadFile",
	}
	sendOperations = []string{
		"PostAsync", "PutAsync", "SendAsync", "UploadString", "UploadData",
	}
	githubHosts  = []string{"github.com", "githubusercontent.com", "github.io"}
	modHosts     = []string{"modrinth.com", "curseforge.com", "nexusmods.com"}
	cdnHosts     = []string{"cdn.jsdelivr.net", "unpkg.com", "cdnjs.cloudflare.com", "gstatic.com", "googleapis.com"}
	trustedHosts = []string{
		"github.com/releases", "github.com/release", "api.github.com/repos",
		"raw.githubusercontent.com", "githubusercontent.com", "github.io",
		"modrinth.com", "curseforge.com", "nexusmods.com",
		"cdn.jsdelivr.net", "unpkg.com", "cdnjs.cloudflare.com", "gstatic.com", "googleapis.com",
	}
)

// isNetworkType matches the declaring types of network APIs.
func isNetworkType(typeName string) bool {
	return hasPrefixFold(typeName, "System.Net") || containsAnyFold(typeName, networkTypeMarkers...)
}

// endpointEvidence summarises the literals found around a network call.
type endpointEvidence struct {
	discordWebhook bool
	suspicious     bool // raw paste site, bare IP URL, ngrok or telegram
	trusted        bool
	sourceType     string
	urls           string
}

func collectEvidence(literals []string) endpointEvidence {
	var ev endpointEvidence
	var github, mod, cdn bool
	for _, s := range literals {
		notDiscord := !containsFold(s, "discord.com")
		if containsFold(s, "discord.com/api/webhooks") {
			ev.discordWebhook = true
		}
		if containsAnyFold(s, "pastebin.com/raw", "hastebin.com/raw", "ngrok", "telegram") || bareIPURL.MatchString(s) {
			ev.suspicious = true
		}
		if notDiscord && containsAnyFold(s, trustedHosts...) {
			ev.trusted = true
		}
		if notDiscord && containsAnyFold(s, githubHosts...) {
			github = true
		}
		if containsAnyFold(s, modHosts...) {
			mod = true
		}
		if containsAnyFold(s, cdnHosts...) {
			cdn = true
		}
	}
	switch {
	case github:
		ev.sourceType = "GitHub"
	case mod:
		ev.sourceType = "mod hosting site"
	case cdn:
		ev.sourceType = "CDN"
	default:
		ev.sourceType = "unknown source"
	}
	if urls := extractURLs(literals); len(urls) > 0 {
		ev.urls = " URL(s): " + strings.Join(urls, ", ")
	}
	return ev
}

// extractURLs returns the distinct URLs found in literals in order of appearance.
func extractURLs(literals []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, lit := range literals {
		switch {
		case hasPrefixFold(lit, "http://") || hasPrefixFold(lit, "https://"):
			if m := urlPattern.FindStringSubmatch(lit); m != nil {
				add(m[1])
			}
		case urlScheme.MatchString(lit):
			for _, m := range urlPattern.FindAllStringSubmatch(lit, -1) {
				add(m[1])
			}
		}
	}
	return out
}

// DataExfiltrationRule correlates network calls with exfiltration endpoints.
// Operations are classified by method name: a wrapper named differently from
// the framework methods is treated as an unknown operation.
type DataExfiltrationRule struct {
	Base
	window  int
	snippet int
}

func NewDataExfiltrationRule(window, snippet int) *DataExfiltrationRule {
	return &DataExfiltrationRule{
		Base: Base{
			id:          DataExfiltrationRuleID,
			description: "Detected potential data exfiltration endpoints (Discord webhooks, raw paste sites, IP URLs).",
			severity:    findings.Critical,
		},
		window:  window,
		snippet: snippet,
	}
}

func (r *DataExfiltrationRule) AnalyzeContextualPattern(target *dotnet.MethodRef, instrs []dotnet.Instruction, index int, _ *signals.Signals) []findings.Finding {
	if target == nil || target.DeclaringType == "" || !isNetworkType(target.DeclaringType) {
		return nil
	}
	literals := literalsAround(instrs, index, r.window)
	if len(literals) == 0 {
		return nil
	}

	read := containsAnyFold(target.Name, readOperations...)
	send := containsAnyFold(target.Name, sendOperations...)
	ev := collectEvidence(literals)
	loc := location(target.DeclaringType, target.Name, instrs[index].Offset)
	snippet := dotnet.Snippet(instrs, index, r.snippet)

	var out []findings.Finding
	switch {
	case ev.discordWebhook:
		out = append(out, r.finding(loc, "Discord webhook endpoint near network call (potential data exfiltration)."+ev.urls, findings.Critical, snippet))
	case send && ev.suspicious:
		out = append(out, r.finding(loc, "Data-sending operation (POST/PUT) to suspicious endpoint (potential data exfiltration)."+ev.urls, findings.Critical, snippet))
	case read && !ev.trusted && ev.suspicious:
		out = append(out, r.finding(loc, "Read-only operation to suspicious endpoint (potential payload download)."+ev.urls, findings.High, snippet))
	case !read && !send && ev.suspicious:
		out = append(out, r.finding(loc, "Potential payload download endpoint near network call (raw paste/code host/IP)."+ev.urls, findings.High, snippet))
	}

	if !ev.trusted {
		return out
	}
	switch {
	case read:
		out = append(out, r.finding(loc, "Read-only network operation to "+ev.sourceType+" (likely legitimate - version check or resource download)."+ev.urls, findings.Low, snippet))
	case send:
		out = append(out, r.finding(loc, "Data-sending operation to "+ev.sourceType+" (unusual but potentially legitimate - API interaction)."+ev.urls, findings.Low, snippet))
	default:
		out = append(out, r.finding(loc, "Network operation to "+ev.sourceType+" (likely legitimate)."+ev.urls, findings.Low, snippet))
	}
	return out
}

// DataInfiltrationRule flags downloads from suspicious endpoints. Non-Low
// findings need a companion finding from another rule.
type DataInfiltrationRule struct {
	Base
	window  int
	snippet int
}

func NewDataInfiltrationRule(window, snippet int) *DataInfiltrationRule {
	return &DataInfiltrationRule{
		Base: Base{
			id:          DataInfiltrationRuleID,
			description: "Detected data download from suspicious endpoint (potential payload infiltration).",
			severity:    findings.High,
			companion:   true,
		},
		window:  window,
		snippet: snippet,
	}
}

func (r *DataInfiltrationRule) AnalyzeContextualPattern(target *dotnet.MethodRef, instrs []dotnet.Instruction, index int, _ *signals.Signals) []findings.Finding {
	if target == nil || target.DeclaringType == "" || !isNetworkType(target.DeclaringType) {
		return nil
	}
	if !containsAnyFold(target.Name, downloadOperations...) {
		return nil
	}
	literals := literalsAround(instrs, index, r.window)
	if len(literals) == 0 {
		return nil
	}

	ev := collectEvidence(literals)
	loc := location(target.DeclaringType, target.Name, instrs[index].Offset)
	switch {
	case ev.trusted:
		return []findings.Finding{r.finding(loc,
			"Read-only network operation to "+ev.sourceType+" (likely legitimate - version check or resource download)."+ev.urls,
			findings.Low, dotnet.Snippet(instrs, index, r.snippet))}
	case ev.suspicious:
		return []findings.Finding{r.finding(loc,
			"Read-only operation to suspicious endpoint (potential payload download)."+ev.urls,
			findings.High, dotnet.Snippet(instrs, index, r.snippet))}
	}
	return nil
}
