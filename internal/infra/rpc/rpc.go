// Package rpc provides a resilient RPC client for blockchain networks.
//
// A Client holds an ordered list of providers for one network. Each call is
// retried on the current provider with exponential backoff, then failed over
// to the next one when the error points at the provider (throttling, IP
// blocks, quota). JSON-RPC error objects are returned immediately.
//
//	client := rpc.NewHTTPClient("base-mainnet", primaryURL, []string{backupURL}, 15*time.Second)
//	var chainID string
//	err := client.CallInto(ctx, &chainID, "eth_chainId")
//
// REST endpoints (e.g. a Substrate sidecar) use Get and Post:
//
//	var head struct{ Number string `json:"number"` }
//	err := client.Get(ctx, "blocks/head", url.Values{"finalized": {"true"}}, &head)
//
// Sub-packages:
//
//   - provider/ - HTTPProvider and throttle monitoring
//   - routing/  - retry and failover
package rpc
