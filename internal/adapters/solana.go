package adapters

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

const solanaRPCURL = "https://api.mainnet-beta.solana.com"

type solanaRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type solanaAccountInfoResponse struct {
	Result struct {
		Value *struct {
			Data []string `json:"data"`
		} `json:"value"`
	} `json:"result"`
}

// fetchAccountData fetches a Solana account's raw data via
// getAccountInfo with base64 encoding and returns the decoded bytes.
func fetchAccountData(ctx context.Context, venue, address string) ([]byte, error) {
	req := solanaRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getAccountInfo",
		Params:  []interface{}{address, map[string]string{"encoding": "base64"}},
	}

	var resp solanaAccountInfoResponse
	if err := httpPostJSON(ctx, venue, solanaRPCURL, req, &resp); err != nil {
		return nil, err
	}
	if resp.Result.Value == nil || len(resp.Result.Value.Data) == 0 {
		return nil, fetchFailed(venue, fmt.Errorf("account %s not found", address))
	}
	return base64.StdEncoding.DecodeString(resp.Result.Value.Data[0])
}

// readUint64LE reads a little-endian uint64 at the given byte offset,
// the encoding Solana's Anchor/Borsh account layouts use for unsigned
// integer fields.
func readUint64LE(data []byte, offset int) (uint64, error) {
	if offset < 0 || offset+8 > len(data) {
		return 0, fmt.Errorf("offset %d out of range (len %d)", offset, len(data))
	}
	return binary.LittleEndian.Uint64(data[offset : offset+8]), nil
}

// readInt64LE reads a little-endian signed int64 at the given offset.
func readInt64LE(data []byte, offset int) (int64, error) {
	u, err := readUint64LE(data, offset)
	if err != nil {
		return 0, err
	}
	return int64(u), nil
}

// scaleByDecimals converts a raw on-chain integer amount to its
// human-readable float value given the mint's decimal count.
func scaleByDecimals(raw int64, decimals int) float64 {
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return float64(raw) / scale
}
