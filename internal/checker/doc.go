// Package checker holds the built-in network probes.
//
// Architecture overview:
//
//   - Every probe implements probe.Probe (Name + Execute) and never returns
//     an error: faults are classified and folded into the probe.Result.
//   - HTTPProbe fetches the target once and feeds the response through the
//     header, cookie and CORS analysers.
//   - DNSProbe queries A, AAAA, MX, TXT, NS and SOA through miekg/dns and
//     reviews SPF and DMARC.
//   - TLSProbe handshakes without verification, verifies the chain on its
//     own and grades expiry, protocol version and cipher strength.
//   - Helper utilities (ParseTarget, AnalyzeSecurityHeaders,
//     AnalyzeTLSCompliance, and so on) are factored here so they can be
//     tested without a network.
//
// Builtin wires all three probes from a single Config so callers in cmd/
// and the API server register the same catalog.
package checker
