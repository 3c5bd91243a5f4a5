package nft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/matrixise/walletfolio/internal/fallback"
	"github.com/matrixise/walletfolio/internal/httpclient"
)

// Default provider endpoints.
const (
	DefaultAlchemyURL = "https://eth-mainnet.g.alchemy.com/nft/v2"
	DefaultOpenSeaURL = "https://api.opensea.io/api/v2"
)

var errNoAPIKey = errors.New("alchemy API key not configured")

// itemCodec decodes single NFT items out of a page.
var itemCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Items are decoded one at a time so a malformed NFT is skipped without
// failing the page.
type alchemyResponse struct {
	OwnedNfts []json.RawMessage `json:"ownedNfts"`
}

type alchemyNFT struct {
	Contract struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	} `json:"contract"`
	ID struct {
		TokenID flexString `json:"tokenId"`
	} `json:"id"`
	Metadata         alchemyMetadata `json:"metadata"`
	ContractMetadata struct {
		Name flexString `json:"name"`
	} `json:"contractMetadata"`
}

// alchemyMetadata is creator-supplied; Alchemy sometimes sends it as a
// string instead of an object.
type alchemyMetadata struct {
	Name        flexString `json:"name"`
	Description flexString `json:"description"`
	Image       flexString `json:"image"`
	ImageURL    flexString `json:"image_url"`
}

func (m *alchemyMetadata) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	type plain alchemyMetadata
	return itemCodec.Unmarshal(data, (*plain)(m))
}

type openSeaResponse struct {
	NFTs []json.RawMessage `json:"nfts"`
}

type openSeaNFT struct {
	Identifier     flexString `json:"identifier"`
	Contract       string     `json:"contract"`
	Collection     flexString `json:"collection"`
	CollectionSlug flexString `json:"collection_slug"`
	Name           flexString `json:"name"`
	Description    flexString `json:"description"`
	ImageURL       flexString `json:"image_url"`
	Image          flexString `json:"image"`
	FloorPrice     flexNumber `json:"floor_price"`
}

// flexString accepts a JSON string or number. Anything else reads as empty.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return nil
	}
	switch c := data[0]; {
	case c == '"':
		var s string
		if err := itemCodec.Unmarshal(data, &s); err != nil {
			return nil
		}
		*f = flexString(s)
	case c == '-' || (c >= '0' && c <= '9'):
		*f = flexString(data)
	}
	return nil
}

// flexNumber accepts a JSON number or a numeric string.
type flexNumber struct {
	value *float64
}

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Unparseable floors are treated as absent.
		return nil
	}
	f.value = &v
	return nil
}

var (
	_ json.Unmarshaler = (*flexNumber)(nil)
	_ json.Unmarshaler = (*flexString)(nil)
	_ json.Unmarshaler = (*alchemyMetadata)(nil)
)

func or(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func alchemyProvider(client *httpclient.Client, baseURL, apiKey, gateway, owner, network string) fallback.Provider[[]NFT] {
	return fallback.Provider[[]NFT]{
		Name: "alchemy",
		Fetch: func(ctx context.Context) ([]NFT, error) {
			if apiKey == "" {
				return nil, errNoAPIKey
			}
			query := map[string]string{
				"owner":        owner,
				"withMetadata": "true",
				"pageSize":     "100",
			}
			var resp alchemyResponse
			if err := client.Get(ctx, baseURL+"/"+apiKey+"/getNFTs", query, nil, &resp); err != nil {
				return nil, err
			}
			if len(resp.OwnedNfts) == 0 {
				return nil, fmt.Errorf("alchemy: no NFTs: %w", fallback.ErrEmpty)
			}

			nfts := make([]NFT, 0, len(resp.OwnedNfts))
			for _, item := range resp.OwnedNfts {
				var raw alchemyNFT
				if err := itemCodec.Unmarshal(item, &raw); err != nil {
					continue
				}
				tokenID := string(raw.ID.TokenID)
				md := raw.Metadata
				nfts = append(nfts, NFT{
					ID:                 raw.Contract.Address + "-" + tokenID,
					TokenID:            tokenID,
					ContractAddress:    raw.Contract.Address,
					Name:               or(string(md.Name), "#"+tokenID),
					Description:        string(md.Description),
					ImageURL:           NormalizeImageURL(or(string(md.Image), string(md.ImageURL)), gateway),
					CollectionName:     or(raw.Contract.Name, string(raw.ContractMetadata.Name), UnknownCollection),
					FloorPriceCurrency: "ETH",
					Network:            network,
					Owner:              owner,
				})
			}
			if len(nfts) == 0 {
				return nil, fmt.Errorf("alchemy: no decodable NFTs: %w", fallback.ErrEmpty)
			}
			return nfts, nil
		},
	}
}

func openSeaProvider(client *httpclient.Client, baseURL, apiKey, gateway, owner, network string) fallback.Provider[[]NFT] {
	return fallback.Provider[[]NFT]{
		Name: "opensea",
		Fetch: func(ctx context.Context) ([]NFT, error) {
			url := fmt.Sprintf("%s/chain/%s/account/%s/nfts", baseURL, network, owner)
			headers := map[string]string{"X-API-KEY": apiKey}

			var resp openSeaResponse
			if err := client.Get(ctx, url, nil, headers, &resp); err != nil {
				return nil, err
			}
			if len(resp.NFTs) == 0 {
				return nil, fmt.Errorf("opensea: no NFTs: %w", fallback.ErrEmpty)
			}

			nfts := make([]NFT, 0, len(resp.NFTs))
			for _, item := range resp.NFTs {
				var raw openSeaNFT
				if err := itemCodec.Unmarshal(item, &raw); err != nil {
					continue
				}
				id := string(raw.Identifier)
				nfts = append(nfts, NFT{
					ID:                 raw.Contract + "-" + id,
					TokenID:            id,
					ContractAddress:    raw.Contract,
					Name:               or(string(raw.Name), "#"+id),
					Description:        string(raw.Description),
					ImageURL:           NormalizeImageURL(or(string(raw.ImageURL), string(raw.Image)), gateway),
					CollectionName:     or(string(raw.Collection), UnknownCollection),
					CollectionSlug:     string(raw.CollectionSlug),
					FloorPrice:         raw.FloorPrice.value,
					FloorPriceCurrency: "ETH",
					Network:            network,
					Owner:              owner,
				})
			}
			if len(nfts) == 0 {
				return nil, fmt.Errorf("opensea: no decodable NFTs: %w", fallback.ErrEmpty)
			}
			return nfts, nil
		},
	}
}
