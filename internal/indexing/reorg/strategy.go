package reorg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/reorgscan/internal/core/domain"
	"github.com/vietddude/reorgscan/internal/infra/rpc/provider"
	"github.com/vietddude/reorgscan/internal/infra/rpc/routing"
)

// Strategy fetches block headers for the Monitor.
// The set of implementations is closed: RPCStrategy, BatchedStrategy and SyntheticStrategy.
type Strategy interface {
	// FetchBlockData returns headers for [start, end] in ascending order.
	// It may return fewer when the tip is not yet stable.
	FetchBlockData(ctx context.Context, start, end uint64) ([]domain.BlockHeader, error)

	// LastLiveBlock returns the current chain height.
	LastLiveBlock(ctx context.Context) (uint64, error)

	sealed()
}

// Requester is the read side of the rpc client.
type Requester interface {
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)
}

// BatchRequester can also send JSON-RPC batches.
type BatchRequester interface {
	Requester
	BatchCall(ctx context.Context, requests []provider.BatchRequest) ([]provider.BatchResponse, error)
}

// RPCStrategy polls one eth_getBlockByNumber per block.
type RPCStrategy struct {
	client Requester
	log    *slog.Logger
}

// NewRPCStrategy creates a polling strategy over client.
func NewRPCStrategy(client Requester) *RPCStrategy {
	return &RPCStrategy{
		client: client,
		log:    slog.Default().With("component", "reorg.rpc"),
	}
}

func (*RPCStrategy) sealed() {}

// FetchBlockData fetches each block in turn. A null block ends the batch.
func (s *RPCStrategy) FetchBlockData(ctx context.Context, start, end uint64) ([]domain.BlockHeader, error) {
	if end < start {
		return nil, nil
	}
	headers := make([]domain.BlockHeader, 0, end-start+1)

	for n := start; n <= end; n++ {
		raw, err := s.client.Call(ctx, "eth_getBlockByNumber", []any{provider.FormatHexUint64(n), false})
		if errors.Is(err, routing.ErrStateNotYetVisible) || (err == nil && provider.IsNullResult(raw)) {
			s.log.Debug("Tip not stable, ending batch", "block", n, "requested_end", end)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetch block %d: %w", n, err)
		}

		h, err := decodeHeader(raw, n)
		if err != nil {
			return nil, fmt.Errorf("decode block %d: %w", n, err)
		}
		headers = append(headers, h)
	}
	return headers, nil
}

// LastLiveBlock returns eth_blockNumber.
func (s *RPCStrategy) LastLiveBlock(ctx context.Context) (uint64, error) {
	return blockNumber(ctx, s.client)
}

// BatchedStrategy fetches a whole range as JSON-RPC batches.
type BatchedStrategy struct {
	client    BatchRequester
	batchSize int
	log       *slog.Logger
}

// NewBatchedStrategy creates a batching strategy. batchSize defaults to 100.
func NewBatchedStrategy(client BatchRequester, batchSize int) *BatchedStrategy {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &BatchedStrategy{
		client:    client,
		batchSize: batchSize,
		log:       slog.Default().With("component", "reorg.batched"),
	}
}

func (*BatchedStrategy) sealed() {}

// FetchBlockData sends ceil((end-start+1)/batchSize) batch requests.
func (s *BatchedStrategy) FetchBlockData(ctx context.Context, start, end uint64) ([]domain.BlockHeader, error) {
	if end < start {
		return nil, nil
	}
	headers := make([]domain.BlockHeader, 0, end-start+1)
	size := uint64(s.batchSize)

	for from := start; from <= end; from += size {
		to := min(from+size-1, end)

		reqs := make([]provider.BatchRequest, 0, to-from+1)
		for n := from; n <= to; n++ {
			reqs = append(reqs, provider.BatchRequest{
				Method: "eth_getBlockByNumber",
				Params: []any{provider.FormatHexUint64(n), false},
			})
		}

		resps, err := s.client.BatchCall(ctx, reqs)
		if errors.Is(err, routing.ErrStateNotYetVisible) {
			s.log.Debug("Tip not stable, ending batch", "block", from)
			return headers, nil
		}
		if err != nil {
			return nil, fmt.Errorf("fetch blocks %d-%d: %w", from, to, err)
		}

		for i, r := range resps {
			n := from + uint64(i)
			if r.Error != nil {
				return nil, fmt.Errorf("fetch block %d: %w", n, r.Error)
			}
			if provider.IsNullResult(r.Result) {
				s.log.Debug("Tip not stable, ending batch", "block", n, "requested_end", end)
				return headers, nil
			}
			h, err := decodeHeader(r.Result, n)
			if err != nil {
				return nil, fmt.Errorf("decode block %d: %w", n, err)
			}
			headers = append(headers, h)
		}
	}
	return headers, nil
}

// LastLiveBlock returns eth_blockNumber.
func (s *BatchedStrategy) LastLiveBlock(ctx context.Context) (uint64, error) {
	return blockNumber(ctx, s.client)
}

type rpcBlock struct {
	Number    string `json:"number"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
}

func decodeHeader(raw json.RawMessage, want uint64) (domain.BlockHeader, error) {
	var b rpcBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return domain.BlockHeader{}, err
	}
	if b.Hash == "" {
		return domain.BlockHeader{}, fmt.Errorf("block has no hash")
	}

	number, err := provider.ParseHexUint64(b.Number)
	if err != nil {
		return domain.BlockHeader{}, fmt.Errorf("number: %w", err)
	}
	if number != want {
		return domain.BlockHeader{}, fmt.Errorf("%w: asked for %d, got %d", ErrUnexpectedBlock, want, number)
	}
	ts, err := provider.ParseHexUint64(b.Timestamp)
	if err != nil {
		return domain.BlockHeader{}, fmt.Errorf("timestamp: %w", err)
	}
	return domain.BlockHeader{Number: number, Hash: b.Hash, Timestamp: ts}, nil
}

func blockNumber(ctx context.Context, client Requester) (uint64, error) {
	raw, err := client.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("decode block number: %w", err)
	}
	return provider.ParseHexUint64(s)
}
