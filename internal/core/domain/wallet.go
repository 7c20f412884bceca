package domain

// WalletInfo describes the session an adapter holds for a connected signer.
type WalletInfo struct {
	Address   string  `json:"address"`
	Network   Network `json:"network"`
	Connected bool    `json:"connected"`
	ChainID   string  `json:"chain_id"`
}
