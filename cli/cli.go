// Package cli implements the node's command-line surface: starting the
// node itself (listener + miner + network loop), plus the wallet and
// datastore-inspection subcommands needed to exercise it end to end.
package cli

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"syscall"

	"github.com/vrecan/death/v3"

	"github.com/kilimba/chainode/ledger"
	"github.com/kilimba/chainode/miner"
	"github.com/kilimba/chainode/p2p"
	"github.com/kilimba/chainode/store"
	"github.com/kilimba/chainode/wallet"
)

const (
	defaultPort = 9001
	defaultDB   = "./chain.db"
)

// CommandLine dispatches os.Args[1] to the matching subcommand.
type CommandLine struct{}

func New() *CommandLine { return &CommandLine{} }

func (c *CommandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println(" startnode -db PATH [port] - start listening, mining, and gossiping (default port 9001)")
	fmt.Println(" createwallet - create the node's wallet if it does not already exist")
	fmt.Println(" getbalance -address ADDRESS -db PATH - sum the unspent outputs addressed to ADDRESS")
	fmt.Println(" send -to ADDRESS -amount AMOUNT -db PATH - spend the local wallet's unspent outputs")
	fmt.Println(" printchain -db PATH - print every block in the datastore")
}

func (c *CommandLine) validateArgs() {
	if len(os.Args) < 2 {
		c.printUsage()
		runtime.Goexit()
	}
}

// Run parses os.Args and dispatches to the named subcommand.
func (c *CommandLine) Run() {
	c.validateArgs()

	startNodeCMD := flag.NewFlagSet("startnode", flag.ExitOnError)
	createWalletCMD := flag.NewFlagSet("createwallet", flag.ExitOnError)
	getBalanceCMD := flag.NewFlagSet("getbalance", flag.ExitOnError)
	sendCMD := flag.NewFlagSet("send", flag.ExitOnError)
	printChainCMD := flag.NewFlagSet("printchain", flag.ExitOnError)

	startNodeDB := startNodeCMD.String("db", defaultDB, "path to the sqlite datastore")
	getBalanceDB := getBalanceCMD.String("db", defaultDB, "path to the sqlite datastore")
	getBalanceAddress := getBalanceCMD.String("address", "", "address to sum unspent outputs for")
	sendDB := sendCMD.String("db", defaultDB, "path to the sqlite datastore")
	sendTo := sendCMD.String("to", "", "destination address")
	sendAmount := sendCMD.Int64("amount", 0, "amount to send")
	printChainDB := printChainCMD.String("db", defaultDB, "path to the sqlite datastore")

	switch os.Args[1] {
	case "startnode":
		handle(startNodeCMD.Parse(os.Args[2:]))
		port := defaultPort
		if startNodeCMD.NArg() > 0 {
			p, err := strconv.Atoi(startNodeCMD.Arg(0))
			if err != nil {
				log.Fatalf("cli: invalid port %q: %v", startNodeCMD.Arg(0), err)
			}
			port = p
		}
		c.startNode(*startNodeDB, port)
	case "createwallet":
		handle(createWalletCMD.Parse(os.Args[2:]))
		c.createWallet()
	case "getbalance":
		handle(getBalanceCMD.Parse(os.Args[2:]))
		if *getBalanceAddress == "" {
			getBalanceCMD.Usage()
			runtime.Goexit()
		}
		c.getBalance(*getBalanceDB, *getBalanceAddress)
	case "send":
		handle(sendCMD.Parse(os.Args[2:]))
		if *sendTo == "" || *sendAmount <= 0 {
			sendCMD.Usage()
			runtime.Goexit()
		}
		c.send(*sendDB, *sendTo, *sendAmount)
	case "printchain":
		handle(printChainCMD.Parse(os.Args[2:]))
		c.printChain(*printChainDB)
	default:
		c.printUsage()
		runtime.Goexit()
	}
}

func handle(err error) {
	if err != nil {
		log.Panic(err)
	}
}

// startNode wires the wallet, datastore, miner, and network loop
// together and blocks until an OS signal closes quit.
func (c *CommandLine) startNode(dbPath string, port int) {
	w, err := wallet.Load(".")
	if err != nil {
		log.Fatalf("cli: loading wallet: %v", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("cli: opening store %s: %v", dbPath, err)
	}
	defer s.Close()

	newTx := make(chan *ledger.Transaction, 16)
	newBlock := make(chan *ledger.Block, 16)
	mined := make(chan *ledger.Block, 1)

	m := miner.New(s, newTx, newBlock, mined)
	n := p2p.New(s, port, newTx, newBlock, mined)

	quit := make(chan struct{})
	d := death.NewDeath(syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	go d.WaitForDeathWithFunc(func() {
		close(quit)
	})

	go m.Run(quit)

	fmt.Printf("node listening on 127.0.0.1:%d, wallet %s\n", port, w.DisplayAddress())
	if err := n.Start(quit); err != nil {
		log.Fatalf("cli: network loop: %v", err)
	}
}

func (c *CommandLine) createWallet() {
	w, err := wallet.Load(".")
	if err != nil {
		log.Fatalf("cli: creating wallet: %v", err)
	}
	fmt.Printf("wallet address: %s\n", w.DisplayAddress())
}

func decodeAddress(b58 string) ([ledger.AddressSize]byte, error) {
	var addr [ledger.AddressSize]byte
	raw := wallet.Base58Decode([]byte(b58))
	if len(raw) != ledger.AddressSize {
		return addr, fmt.Errorf("cli: address %q decodes to %d bytes, want %d", b58, len(raw), ledger.AddressSize)
	}
	copy(addr[:], raw)
	return addr, nil
}

func (c *CommandLine) getBalance(dbPath, addressB58 string) {
	addr, err := decodeAddress(addressB58)
	if err != nil {
		log.Fatal(err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("cli: opening store %s: %v", dbPath, err)
	}
	defer s.Close()

	balance, err := s.Balance(addr)
	if err != nil {
		log.Fatalf("cli: computing balance: %v", err)
	}
	fmt.Printf("balance of %s: %d\n", addressB58, balance)
}

// send spends enough of the local wallet's unspent outputs to cover
// amount, signs the resulting transaction, and inserts it as pending —
// the running node (sharing the same datastore file) includes it in its
// next mining candidate. It is not sent to peers as an addt message; it
// reaches them only inside the block that mines it.
func (c *CommandLine) send(dbPath, toB58 string, amount int64) {
	to, err := decodeAddress(toB58)
	if err != nil {
		log.Fatal(err)
	}
	w, err := wallet.Load(".")
	if err != nil {
		log.Fatalf("cli: loading wallet: %v", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("cli: opening store %s: %v", dbPath, err)
	}
	defer s.Close()

	from := w.Address()
	refs, err := s.UnspentOutputRefs(from)
	if err != nil {
		log.Fatalf("cli: listing unspent outputs: %v", err)
	}

	var inputs []ledger.TxInput
	var collected int64
	for _, ref := range refs {
		inputs = append(inputs, ledger.TxInput{SrcHash: ref.SrcHash, SrcIdx: ref.SrcIdx})
		collected += ref.Output.Amount
		if collected >= amount {
			break
		}
	}
	if collected < amount {
		log.Fatalf("cli: insufficient balance: have %d, need %d", collected, amount)
	}

	outputs := []ledger.TxOutput{{Amount: amount, Address: to}}
	if change := collected - amount; change > 0 {
		outputs = append(outputs, ledger.TxOutput{Amount: change, Address: from})
	}

	tx := &ledger.Transaction{Inputs: inputs, Outputs: outputs}
	tx.Sign(w.PrivateKey())

	if err := s.InsertTransaction(tx); err != nil {
		log.Fatalf("cli: inserting transaction: %v", err)
	}
	fmt.Printf("sent %d to %s (tx %x)\n", amount, toB58, tx.Hash)
}

func (c *CommandLine) printChain(dbPath string) {
	s, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("cli: opening store %s: %v", dbPath, err)
	}
	defer s.Close()

	headers, err := s.ListHeaders()
	if err != nil {
		log.Fatalf("cli: listing headers: %v", err)
	}
	for _, b := range headers {
		fmt.Printf("Block hash: %x\n", b.BlockHash)
		fmt.Printf("Parent hash: %x\n", b.ParentHash)
		fmt.Printf("Timestamp: %d\n", b.Timestamp)
		fmt.Printf("Nonce: %d\n", b.Nonce)
		fmt.Printf("PoW valid: %s\n", strconv.FormatBool(ledger.Less(b.BlockHash, b.Target)))
		fmt.Println()
	}
}
