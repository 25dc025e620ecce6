package client

// Identities of the node's operations.
const (
	BlockchainStatus  = "blockchain.status"
	BlockGetByHash    = "block.get_by_hash"
	BlockGetByHeight  = "block.get_by_height"
	TxCommit          = "tx.commit"
	TxGetByHash       = "tx.get_by_hash"
	ContractDeploy    = "contract.deploy"
	ContractCall      = "contract.call"
	AccountState      = "account.state"
	AccountNonce      = "account.nonce"
	ValidatorSnapshot = "validator.snapshot"
)
