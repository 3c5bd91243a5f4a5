// Package nft loads the NFTs owned by a wallet from Alchemy, with OpenSea as
// fallback, and derives collection views from them.
package nft

import (
	"math/big"
	"regexp"
	"sort"
	"strings"
)

// Placeholder is served when an NFT has no image.
const Placeholder = "/assets/images/placeholder-nft.png"

// DefaultGateway hosts IPFS content.
const DefaultGateway = "ipfs.io"

// UnknownCollection names NFTs whose contract has no name.
const UnknownCollection = "Unknown Collection"

// NFT is one token owned by a wallet.
type NFT struct {
	ID                 string   `json:"id"`
	TokenID            string   `json:"token_id"`
	ContractAddress    string   `json:"contract_address"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	ImageURL           string   `json:"image_url"`
	CollectionName     string   `json:"collection_name"`
	CollectionSlug     string   `json:"collection_slug,omitempty"`
	FloorPrice         *float64 `json:"floor_price,omitempty"`
	FloorPriceCurrency string   `json:"floor_price_currency,omitempty"`
	Network            string   `json:"network"`
	Owner              string   `json:"owner"`
}

// Collection groups the NFTs of one collection name.
type Collection struct {
	Name       string   `json:"name"`
	Slug       string   `json:"slug"`
	ImageURL   string   `json:"image_url,omitempty"`
	Count      int      `json:"count"`
	FloorPrice *float64 `json:"floor_price,omitempty"`
}

// Sort orders.
const (
	SortPriceHigh = "price-high"
	SortPriceLow  = "price-low"
	SortRecent    = "recent"
)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeImageURL makes an image reference loadable: empty values become
// the placeholder, ipfs:// URIs and /ipfs/ paths are served from gateway
// (DefaultGateway when empty). Other URLs are returned unchanged.
func NormalizeImageURL(raw, gateway string) string {
	if gateway == "" {
		gateway = DefaultGateway
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Placeholder
	}
	if cid, ok := strings.CutPrefix(raw, "ipfs://"); ok {
		cid = strings.TrimPrefix(cid, "ipfs/")
		return "https://" + gateway + "/ipfs/" + cid
	}
	if _, path, ok := strings.Cut(raw, "/ipfs/"); ok && strings.HasPrefix(raw, "http") {
		return "https://" + gateway + "/ipfs/" + path
	}
	return raw
}

// Slug derives a collection slug from its name.
func Slug(name string) string {
	return whitespace.ReplaceAllString(strings.ToLower(name), "-")
}

// GroupByCollection groups nfts by collection name in first-seen order. The
// first NFT of a group supplies the image, floor price and slug.
func GroupByCollection(nfts []NFT) []Collection {
	collections := []Collection{}
	index := make(map[string]int)
	for _, n := range nfts {
		if i, ok := index[n.CollectionName]; ok {
			collections[i].Count++
			continue
		}
		slug := n.CollectionSlug
		if slug == "" {
			slug = Slug(n.CollectionName)
		}
		index[n.CollectionName] = len(collections)
		collections = append(collections, Collection{
			Name:       n.CollectionName,
			Slug:       slug,
			ImageURL:   n.ImageURL,
			Count:      1,
			FloorPrice: n.FloorPrice,
		})
	}
	return collections
}

// TotalFloorValue sums floor prices converted with prices, keyed by
// upper-case currency symbol. NFTs without a floor price or with an unknown
// currency count as zero.
func TotalFloorValue(nfts []NFT, prices map[string]float64) float64 {
	var total float64
	for _, n := range nfts {
		if n.FloorPrice == nil || *n.FloorPrice == 0 {
			continue
		}
		total += *n.FloorPrice * prices[strings.ToUpper(n.FloorPriceCurrency)]
	}
	return total
}

// FilterByCollection returns the NFTs of one collection; "" or "all" keeps
// everything.
func FilterByCollection(nfts []NFT, collection string) []NFT {
	out := make([]NFT, 0, len(nfts))
	for _, n := range nfts {
		if collection == "" || collection == "all" || n.CollectionName == collection {
			out = append(out, n)
		}
	}
	return out
}

// Sort returns a sorted copy of nfts. Unknown orders sort by price, highest
// first.
func Sort(nfts []NFT, order string) []NFT {
	out := append([]NFT(nil), nfts...)
	switch order {
	case SortPriceLow:
		sort.SliceStable(out, func(i, j int) bool { return floor(out[i]) < floor(out[j]) })
	case SortRecent:
		sort.SliceStable(out, func(i, j int) bool { return tokenNumber(out[i]).Cmp(tokenNumber(out[j])) > 0 })
	default:
		sort.SliceStable(out, func(i, j int) bool { return floor(out[i]) > floor(out[j]) })
	}
	return out
}

func floor(n NFT) float64 {
	if n.FloorPrice == nil {
		return 0
	}
	return *n.FloorPrice
}

// tokenNumber parses decimal and 0x-prefixed token ids; anything else is 0.
func tokenNumber(n NFT) *big.Int {
	v, ok := new(big.Int).SetString(n.TokenID, 0)
	if !ok {
		return new(big.Int)
	}
	return v
}
