package state

// Key layout for the settlement ledger's durable state. Every key is
// namespaced by a short prefix so unrelated records never collide.
const (
	invoicePrefix = "invoice/"
	accountPrefix = "account/"
	rolePrefix    = "role/"
	feePoolPrefix = "feepool/"

	keyFeeRate = "params/feeRate"
	keyChainID = "params/chainId"
	keyGenesis = "genesis/initialized"

	// vaultSeed derives the deterministic module vault address per token.
	vaultSeed = "transfersafe/module-vault/"
)

func invoiceKey(id string) []byte {
	return []byte(invoicePrefix + id)
}

func accountKey(addr []byte) []byte {
	return append([]byte(accountPrefix), addr...)
}

func roleKey(role string) []byte {
	return []byte(rolePrefix + role)
}

func feePoolKey(token string) []byte {
	return []byte(feePoolPrefix + token)
}
