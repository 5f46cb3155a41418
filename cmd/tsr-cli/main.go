package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"transfersafe/crypto"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("TSR_RPC_TOKEN")

const walletFile = "wallet.key"

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		printUsage()
		return
	}

	var err error
	switch args[0] {
	case "generate-key":
		err = generateKey()
	case "address":
		err = showAddress()
	case "balance":
		err = requireArgs(args, 2, "balance <address>", func() error {
			return printResult("tsr_getBalance", map[string]interface{}{"address": args[1]}, false)
		})
	case "fee":
		err = printResult("tsr_getFee", nil, false)
	case "set-fee":
		err = requireArgs(args, 2, "set-fee <per-mille rate>", func() error {
			rate, convErr := strconv.ParseUint(args[1], 10, 32)
			if convErr != nil {
				return fmt.Errorf("invalid fee rate %q", args[1])
			}
			caller, keyErr := walletAddress()
			if keyErr != nil {
				return keyErr
			}
			return printResult("tsr_setFee", map[string]interface{}{"caller": caller, "fee": rate}, true)
		})
	case "create-invoice":
		err = requireArgs(args, 3, "create-invoice <id> <amount> [ref]", func() error {
			caller, keyErr := walletAddress()
			if keyErr != nil {
				return keyErr
			}
			invoice := map[string]interface{}{
				"id":            args[1],
				"amount":        args[2],
				"isNativeToken": true,
			}
			if len(args) > 3 {
				invoice["ref"] = args[3]
			}
			return printResult("tsr_createInvoice", map[string]interface{}{"caller": caller, "invoice": invoice}, true)
		})
	case "invoice":
		err = requireArgs(args, 2, "invoice <id>", func() error {
			return printResult("tsr_getInvoice", map[string]interface{}{"id": args[1]}, false)
		})
	case "deposit":
		err = requireArgs(args, 3, "deposit <id> <value> [--instant]", func() error {
			caller, keyErr := walletAddress()
			if keyErr != nil {
				return keyErr
			}
			instant := len(args) > 3 && args[3] == "--instant"
			return printResult("tsr_deposit", map[string]interface{}{
				"caller": caller, "id": args[1], "value": args[2], "instant": instant,
			}, true)
		})
	case "confirm":
		err = requireArgs(args, 2, "confirm <id>", func() error {
			caller, keyErr := walletAddress()
			if keyErr != nil {
				return keyErr
			}
			return printResult("tsr_confirmInvoice", map[string]interface{}{"caller": caller, "id": args[1]}, true)
		})
	case "refund":
		err = requireArgs(args, 2, "refund <id>", func() error {
			caller, keyErr := walletAddress()
			if keyErr != nil {
				return keyErr
			}
			return printResult("tsr_refundInvoice", map[string]interface{}{"caller": caller, "id": args[1]}, true)
		})
	case "fee-balance":
		err = printResult("tsr_getNativeFeeBalance", nil, false)
	case "withdraw-fees":
		err = requireArgs(args, 2, "withdraw-fees <to-address> [token]", func() error {
			caller, keyErr := walletAddress()
			if keyErr != nil {
				return keyErr
			}
			params := map[string]interface{}{"caller": caller, "to": args[1]}
			if len(args) > 2 {
				params["token"] = args[2]
			}
			return printResult("tsr_withdrawFees", params, true)
		})
	case "events":
		err = printResult("tsr_listEvents", map[string]interface{}{"limit": 50}, false)
	default:
		printUsage()
		return
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: tsr-cli <command> [args]

Commands:
  generate-key                      create a wallet key (wallet.key)
  address                           print the wallet address
  balance <address>                 native balance of an address
  fee                               current per-mille fee rate
  set-fee <rate>                    update the fee rate (admin)
  create-invoice <id> <amount> [ref]
  invoice <id>                      fetch an invoice record
  deposit <id> <value> [--instant]  fund an invoice
  confirm <id>                      settle an invoice to its recipient
  refund <id>                       reclaim an escrowed deposit
  fee-balance                       accrued native fee pool
  withdraw-fees <to> [token]        pay out the fee pool (admin)
  events                            recent settlement events

The RPC endpoint defaults to http://localhost:8645 and can be overridden via
RPC_URL. Privileged commands send TSR_RPC_TOKEN as a bearer token.`)
}

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("RPC_URL")); url != "" {
		return url
	}
	return "http://localhost:8645"
}

func requireArgs(args []string, n int, usage string, fn func() error) error {
	if len(args) < n {
		return fmt.Errorf("usage: tsr-cli %s", usage)
	}
	return fn()
}

func generateKey() error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if _, err := os.Stat(walletFile); err == nil {
		return fmt.Errorf("%s already exists; refusing to overwrite", walletFile)
	}
	if err := os.WriteFile(walletFile, key.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to save key to %s: %w", walletFile, err)
	}
	fmt.Printf("Generated new key and saved to %s\n", walletFile)
	fmt.Printf("Your public address is: %s\n", key.PubKey().Address().String())
	return nil
}

func showAddress() error {
	addr, err := walletAddress()
	if err != nil {
		return err
	}
	fmt.Println(addr)
	return nil
}

func walletAddress() (string, error) {
	keyBytes, err := os.ReadFile(walletFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("wallet key %s not found. run tsr-cli generate-key first", walletFile)
		}
		return "", err
	}
	key, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key in %s: %w", walletFile, err)
	}
	return key.PubKey().Address().String(), nil
}

func printResult(method string, param interface{}, requireAuth bool) error {
	result, err := callRPC(method, param, requireAuth)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func callRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	params := []interface{}{}
	if param != nil {
		params = append(params, param)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": method, "params": params,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth && rpcAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}
