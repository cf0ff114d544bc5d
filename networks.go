package checkpoints

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

type Network int

const (
	MainNet Network = iota
	TestNet
)

func (n Network) String() string {
	switch n {
	case MainNet:
		return chaincfg.MainNetParams.Name
	case TestNet:
		return chaincfg.TestNet3Params.Name
	default:
		return fmt.Sprintf("unknown(%d)", int(n))
	}
}

// ParseNetwork accepts the btcd network names and the short forms used in
// config files. An empty name selects the main network.
func ParseNetwork(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "main", chaincfg.MainNetParams.Name:
		return MainNet, nil
	case "test", "testnet", chaincfg.TestNet3Params.Name:
		return TestNet, nil
	default:
		return MainNet, fmt.Errorf("unknown network type %q", name)
	}
}

// What makes a good checkpoint block?
// + Is surrounded by blocks with reasonable timestamps
//   (no blocks before with a timestamp after, none after with timestamp before)
// + Contains no strange transactions
var MainNetRegistry = mustRegistry(chaincfg.MainNetParams.Name, []Checkpoint{
	{0, newHashFromStr("0xd1d5329c28dfd4ee8907ca15584f8245badb7438c4004f5f977143a4fb1a61b9")},
	{99, newHashFromStr("0xc5a49f1ebf31d73dc97d9eba9b5d0e82a25af5beb147220c1397c95b081342b7")},
	{12345, newHashFromStr("0x981a7af4c51f1e6d7fca6b999f9dfc036a79a7fb3981caad39b05fbdb66b0dbd")},
	{22345, newHashFromStr("0x7589086d1f848b6d6b8f8d49204cb9d6b32cceb49675d87e15b35f73a50f8969")},
	{32345, newHashFromStr("0xb165d831f45e13dfe93ba1e7c74bdbbad88dd43eb1b52fcb29cc1fecf95c7057")},
	{42345, newHashFromStr("0x34981cea78ad2a40e01f78181aaf802d751ff48daaa9b151b3c6570b906b2671")},
	{52345, newHashFromStr("0x93f1c96f8e5f526a6e3b15a55e6f3f0ca054b32c79d38144d5334e6624012f5d")},
	{62345, newHashFromStr("0xa13be3a6f2b6a810b4bcc7aa4ec7221f72713e30cc402ecd5123d1f66d70a95b")},
	{72345, newHashFromStr("0xde0b6fdbe44ae3094d4b8a0f6e2353088286a5a9105f1784cd373998056d2a6a")},
	{82345, newHashFromStr("0x62b501431dae787879b007105df825845ebf76c891255f2edf0518b8dbc8ed15")},
	{97384, newHashFromStr("0xa2ec525dd1cb5bde9d1b6c4ab394f2ecba85a55098393f4973cbe8a72317e688")},
	{97385, newHashFromStr("0x0ea11fc1a781b71906b64ccb9fea4954c0223626831334ed8e1af0d8306cbf33")},
	{97765, newHashFromStr("0x3fc29748309707aff625f9195b57d5f6483ffa5113618c24bbc42d1c28a17b61")},
},
	1424789024, // UNIX timestamp of last checkpoint block
	98062,      // total number of transactions between genesis and last checkpoint
	1500.0,     // estimated number of transactions per day after checkpoint
)

var TestNetRegistry = mustRegistry(chaincfg.TestNet3Params.Name, []Checkpoint{
	{0, newHashFromStr("0xb44cc80bfa2a5629c618d5a3c07f2400462d781c1a289379576dbb4fc29618c5")},
},
	1365458829,
	547,
	576,
)

// RegistryFor returns the compiled-in registry of the network. Unknown values
// fall back to the main network.
func RegistryFor(n Network) *Registry {
	if n == TestNet {
		return TestNetRegistry
	}
	return MainNetRegistry
}
