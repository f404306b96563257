// in3cli is a command-line client for talking to an IN3-style node network
// through the in3go request context.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/Klingon-tech/in3go/config"
	"github.com/Klingon-tech/in3go/internal/autoupdate"
	"github.com/Klingon-tech/in3go/internal/log"
	"github.com/Klingon-tech/in3go/internal/nlcache"
	"github.com/Klingon-tech/in3go/internal/nodelist"
	"github.com/Klingon-tech/in3go/internal/nodeselector"
	"github.com/Klingon-tech/in3go/internal/payload"
	"github.com/Klingon-tech/in3go/internal/reqctx"
	"github.com/Klingon-tech/in3go/internal/signer"
	"github.com/Klingon-tech/in3go/internal/transport"
	"github.com/Klingon-tech/in3go/internal/verify"
	"github.com/Klingon-tech/in3go/pkg/types"
	"golang.org/x/term"
)

func main() {
	cfg, flags, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}

	args := flags.Args
	if len(args) == 0 {
		fatal("Usage: in3cli [options] <method> [params-json]\n       in3cli nodes <add|list>\n       in3cli identity <create|import|list|address>")
	}

	switch args[0] {
	case "nodes":
		cmdNodes(cfg, args[1:])
	case "identity":
		cmdIdentity(cfg, args[1:])
	default:
		cmdCall(cfg, args)
	}
}

// ── call ────────────────────────────────────────────────────────────────

func cmdCall(cfg *config.Config, args []string) {
	method := args[0]
	var params json.RawMessage
	if len(args) > 1 {
		params = json.RawMessage(args[1])
		var probe interface{}
		if err := json.Unmarshal(params, &probe); err != nil {
			fatal("params is not valid JSON: %v", err)
		}
	}

	store := openCache(cfg)
	defer store.Close()

	client := nodelist.NewClient(cfg.RequestCount, cfg.MaxAttempts, cfg.SignatureCount, cfg.Timeout)
	chainID := cfg.ParsedChainID()
	chain := client.Chain(chainID)

	cached, lastBlock, err := nlcache.Load(store, chainID, types.Address{})
	if err != nil {
		fatal("load node cache: %v", err)
	}
	if len(cached) == 0 {
		fatal("no known nodes for chain %s — run 'in3cli nodes add' first", chainID)
	}
	chain.SetNodes(cached, lastBlock)

	// Non-goal per spec.md: no chain-specific proof verifier ships with
	// this client, so every chain is registered against the reference
	// no-op verifier regardless of cfg.Verification.
	registry := verify.NewRegistry()
	registry.Register("never", verify.NoopVerifier{})
	chain.VerifierType = "never"

	opts := payload.Options{
		ChainID:      chainID,
		Verification: cfg.Verification,
		Finality:     cfg.Finality,
		LatestBlock:  cfg.LatestBlock,
		IncludeCode:  cfg.IncludeCode,
		UseFullProof: cfg.UseFullProof,
		NoStats:      cfg.NoStats,
		UseBinary:    cfg.UseBinary,
	}

	var drv reqctx.Signer
	if cfg.SignerEnabled {
		if cfg.SignerIdentity == "" {
			fatal("signer.enabled is set but no signer.identity configured")
		}
		ks, err := signer.NewKeystore(cfg.KeystoreDir())
		if err != nil {
			fatal("open keystore: %v", err)
		}
		password, err := readPassword("Signing identity password: ")
		if err != nil {
			fatal("read password: %v", err)
		}
		local, err := ks.Load(cfg.SignerIdentity, password)
		if err != nil {
			fatal("load signing identity %q: %v", cfg.SignerIdentity, err)
		}
		drv = local
	}

	selector := nodeselector.NewStaticSelector()
	trigger := autoupdate.NewTrigger(cfg.ReplaceLatestBlock, cfg.AvgBlockTime)

	rc := reqctx.NewRPCContext(client, chainID, []payload.Call{{Method: method, Params: params}}, opts,
		registry, selector, trigger)
	if drv != nil {
		rc.SignDriver = drv
	}
	rc.Filter = nodeselector.Filter{RequireHTTP: cfg.HTTPOnly}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout*time.Duration(cfg.MaxAttempts+1))
	defer cancel()

	ht := transport.NewHTTPTransport(cfg.Timeout)
	status := reqctx.Send(ctx, rc, ht, time.Now)

	if cfg.AutoUpdateList {
		if d := trigger.Pending(); d != nil && trigger.Due(time.Now()) {
			log.Info().Str("method", method).Msg("node list refresh due; run 'in3cli nodes add' to refresh the cache")
			trigger.Clear()
		}
	}
	if err := nlcache.Save(store, chain); err != nil {
		log.Warn().Err(err).Msg("persist node cache")
	}

	switch status.State {
	case reqctx.StateOK, reqctx.StateIgnore:
		out, err := json.MarshalIndent(rc.Responses(), "", "  ")
		if err != nil {
			fatal("encode responses: %v", err)
		}
		fmt.Println(string(out))
	default:
		fatal("%s: %v", method, status.Err)
	}
}

// ── nodes ───────────────────────────────────────────────────────────────

func cmdNodes(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fatal("Usage: in3cli nodes <add|list>")
	}
	switch args[0] {
	case "add":
		cmdNodesAdd(cfg, args[1:])
	case "list":
		cmdNodesList(cfg)
	default:
		fatal("Unknown nodes command: %s\nUsage: in3cli nodes <add|list>", args[0])
	}
}

func cmdNodesAdd(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("nodes add", flag.ExitOnError)
	url := fs.String("url", "", "Node RPC URL")
	addr := fs.String("address", "", "Node address (20-byte hex)")
	index := fs.Uint64("index", 0, "On-chain registry index")
	capacity := fs.Uint64("capacity", 1, "Advertised capacity")
	props := fs.Uint64("props", nodeselector.PropsData|nodeselector.PropsProof, "Node property bits")
	fs.Parse(args)

	if *url == "" || *addr == "" {
		fatal("Usage: in3cli nodes add --url <url> --address <hex> [--index n] [--capacity n] [--props n]")
	}
	address, err := types.ParseAddress(*addr)
	if err != nil {
		fatal("invalid address: %v", err)
	}

	store := openCache(cfg)
	defer store.Close()

	chainID := cfg.ParsedChainID()
	cached, lastBlock, err := nlcache.Load(store, chainID, types.Address{})
	if err != nil {
		fatal("load node cache: %v", err)
	}

	cached = append(cached, nodelist.Node{
		Address:  address,
		URL:      *url,
		Index:    *index,
		Capacity: *capacity,
		Props:    *props,
	})

	chain := nodelist.NewChain(chainID, types.Address{})
	chain.SetNodes(cached, lastBlock)
	if err := nlcache.Save(store, chain); err != nil {
		fatal("save node cache: %v", err)
	}

	fmt.Printf("Added node %s (%s) to chain %s\n", address, *url, chainID)
}

func cmdNodesList(cfg *config.Config) {
	store := openCache(cfg)
	defer store.Close()

	chainID := cfg.ParsedChainID()
	cached, lastBlock, err := nlcache.Load(store, chainID, types.Address{})
	if err != nil {
		fatal("load node cache: %v", err)
	}
	if len(cached) == 0 {
		fmt.Println("No cached nodes for this chain.")
		return
	}

	fmt.Printf("Chain: %s (last block %d)\n\n", chainID, lastBlock)
	for i, n := range cached {
		fmt.Printf("  [%d] %s\n", i, n.URL)
		fmt.Printf("      Address:  %s\n", n.Address)
		fmt.Printf("      Index:    %d\n", n.Index)
		fmt.Printf("      Capacity: %d\n", n.Capacity)
		fmt.Printf("      Props:    0x%x\n", n.Props)
	}
}

// ── identity ────────────────────────────────────────────────────────────

func cmdIdentity(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fatal("Usage: in3cli identity <create|import|list|address> [flags]")
	}
	switch args[0] {
	case "create":
		cmdIdentityCreate(cfg, args[1:])
	case "import":
		cmdIdentityImport(cfg, args[1:])
	case "list":
		cmdIdentityList(cfg)
	case "address":
		cmdIdentityAddress(cfg, args[1:])
	default:
		fatal("Unknown identity command: %s\nUsage: in3cli identity <create|import|list|address> [flags]", args[0])
	}
}

func cmdIdentityCreate(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("identity create", flag.ExitOnError)
	name := fs.String("name", "", "Signing identity name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: in3cli identity create --name <name>")
	}

	mnemonic, err := signer.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}
	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	createIdentity(cfg, *name, mnemonic)
}

func cmdIdentityImport(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("identity import", flag.ExitOnError)
	name := fs.String("name", "", "Signing identity name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic (24 words)")
	fs.Parse(args)

	if *name == "" || *mnemonic == "" {
		fatal("Usage: in3cli identity import --name <name> --mnemonic \"word1 word2 ...\"")
	}
	if !signer.ValidateMnemonic(*mnemonic) {
		fatal("invalid mnemonic")
	}

	createIdentity(cfg, *name, *mnemonic)
}

func createIdentity(cfg *config.Config, name, mnemonic string) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	seed, err := signer.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}
	defer func() {
		for i := range seed {
			seed[i] = 0
		}
	}()

	ks, err := signer.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	local, err := ks.Create(name, seed, password, signer.DefaultParams())
	if err != nil {
		fatal("create signing identity: %v", err)
	}

	fmt.Printf("Signing identity created: %s\n", name)
	fmt.Printf("Address: %s\n", local.Address())
}

func cmdIdentityList(cfg *config.Config) {
	ks, err := signer.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	names, err := ks.List()
	if err != nil {
		fatal("list signing identities: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No signing identities found.")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func cmdIdentityAddress(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("identity address", flag.ExitOnError)
	name := fs.String("name", "", "Signing identity name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: in3cli identity address --name <name>")
	}

	ks, err := signer.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	addr, err := ks.Address(*name)
	if err != nil {
		fatal("look up signing identity: %v", err)
	}
	fmt.Println(addr)
}

// ── helpers ─────────────────────────────────────────────────────────────

func openCache(cfg *config.Config) *nlcache.BadgerStore {
	store, err := nlcache.NewBadgerStore(cfg.CacheDir())
	if err != nil {
		fatal("open node cache: %v", err)
	}
	return store
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
