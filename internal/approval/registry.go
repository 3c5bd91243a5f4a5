package approval

import (
	"sort"
	"strings"
)

// knownSpenders are the router contracts checked when no spender list is
// given. Labels are for display only.
var knownSpenders = []struct {
	address string
	label   string
}{
	{"0x7a250d5630b4cf539739df2c5dacb4c659f2488d", "Uniswap V2 Router"},
	{"0xe592427a0aece92de3edee1f18e0157c05861564", "Uniswap V3 Router"},
	{"0xd9e1ce17f2641f24ae83637ab66a2cca9c378b9f", "SushiSwap Router"},
	{"0x1111111254fb6c44bac0bed2854e76f90643097d", "1inch Router"},
	{"0x881d40237659c251811cec9c364ef91dc08d300c", "Metamask Swap"},
	{"0xdef1c0ded9bec7f1a1670819833240f027b25eff", "0x Protocol"},
}

// Registry maps lower-case spender addresses to display names.
type Registry struct {
	labels map[string]string
	order  []string
}

// NewRegistry returns the built-in spenders plus extra (address → label).
// Extra entries override built-in labels.
func NewRegistry(extra map[string]string) *Registry {
	r := &Registry{labels: make(map[string]string, len(knownSpenders)+len(extra))}
	for _, s := range knownSpenders {
		r.add(s.address, s.label)
	}

	keys := make([]string, 0, len(extra))
	for addr := range extra {
		keys = append(keys, addr)
	}
	sort.Strings(keys)
	for _, addr := range keys {
		r.add(addr, extra[addr])
	}
	return r
}

func (r *Registry) add(address, label string) {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return
	}
	if _, ok := r.labels[key]; !ok {
		r.order = append(r.order, key)
	}
	r.labels[key] = label
}

// Addresses returns every registered spender, built-ins first.
func (r *Registry) Addresses() []string {
	return append([]string(nil), r.order...)
}

// Label returns the display name of spender, or its shortened address.
func (r *Registry) Label(spender string) string {
	if label, ok := r.labels[strings.ToLower(spender)]; ok && label != "" {
		return label
	}
	return ShortAddress(spender)
}

// ShortAddress formats an address as first6...last4.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
