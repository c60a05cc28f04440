// Package chain implements the domain chain interfaces against the Guardians
// marketplace and collection contracts over an Ethereum JSON-RPC endpoint.
package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// marketABIJSON covers the marketplace contract surface the daemon consumes:
// the listing/offer read projections and the mutating entry points.
const marketABIJSON = `[
  {"type":"function","name":"getActiveListings","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getActiveListingsCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"listings","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"seller","type":"address"},{"name":"price","type":"uint256"},{"name":"listedAt","type":"uint256"},{"name":"active","type":"bool"}]},
  {"type":"function","name":"offers","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"},{"name":"offerer","type":"address"}],"outputs":[{"name":"amount","type":"uint256"},{"name":"expiresAt","type":"uint256"},{"name":"active","type":"bool"}]},
  {"type":"function","name":"listNFT","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"delistNFT","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"updatePrice","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"newPrice","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"buyNFT","stateMutability":"payable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"makeOffer","stateMutability":"payable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"expirationDays","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelOffer","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"acceptOffer","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"offerer","type":"address"}],"outputs":[]}
]`

// collectionABIJSON covers the slice of the ERC-721 collection contract used
// for operator approval.
const collectionABIJSON = `[
  {"type":"function","name":"isApprovedForAll","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"setApprovalForAll","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]}
]`

// parseABIs parses both embedded ABI definitions.
func parseABIs() (market abi.ABI, collection abi.ABI, err error) {
	market, err = abi.JSON(strings.NewReader(marketABIJSON))
	if err != nil {
		return abi.ABI{}, abi.ABI{}, fmt.Errorf("chain: parse market ABI: %w", err)
	}
	collection, err = abi.JSON(strings.NewReader(collectionABIJSON))
	if err != nil {
		return abi.ABI{}, abi.ABI{}, fmt.Errorf("chain: parse collection ABI: %w", err)
	}
	return market, collection, nil
}
