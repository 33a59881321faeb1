// Package ledger builds links to ledger transactions on a block explorer.
package ledger

import (
	"sort"
	"strings"
)

// explorerBaseURLs maps supported networks to their transaction explorer.
var explorerBaseURLs = map[string]string{
	"sepolia": "https://sepolia.etherscan.io/tx/",
	"goerli":  "https://goerli.etherscan.io/tx/",
	"mainnet": "https://etherscan.io/tx/",
}

// Explorer renders transaction hashes as explorer links.
type Explorer struct {
	base string
}

// NewExplorer returns an explorer rooted at base. A trailing slash is
// added when missing.
func NewExplorer(base string) Explorer {
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}

	return Explorer{base: base}
}

// ExplorerFor returns the explorer for a named network.
func ExplorerFor(network string) (Explorer, bool) {
	base, ok := explorerBaseURLs[strings.ToLower(network)]
	if !ok {
		return Explorer{}, false
	}

	return NewExplorer(base), true
}

// KnownNetwork reports whether network has a built-in explorer.
func KnownNetwork(network string) bool {
	_, ok := explorerBaseURLs[strings.ToLower(network)]
	return ok
}

// Networks lists the built-in network names.
func Networks() []string {
	out := make([]string, 0, len(explorerBaseURLs))
	for n := range explorerBaseURLs {
		out = append(out, n)
	}

	sort.Strings(out)

	return out
}

// TxURL returns the explorer link for a transaction hash, or "" when the
// hash is empty or no explorer is configured.
func (e Explorer) TxURL(txHash string) string {
	if txHash == "" || e.base == "" {
		return ""
	}

	return e.base + txHash
}
