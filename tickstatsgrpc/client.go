package tickstatsgrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/tickstats/tickstats-go"
)

// Client calls a remote Stats service.
//
// This type is concurrency safe.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient returns a Client for the conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Ingest appends the values to the symbol's remote series. Failures are returned as status errors.
func (c *Client) Ingest(ctx context.Context, symbol string, values []float64, opts ...grpc.CallOption) error {
	req := &IngestRequest{Symbol: symbol, Values: values}
	return c.conn.Invoke(ctx, ingestMethod, req, new(IngestResponse), callOptions(opts)...)
}

// Query returns the remote Stats for the symbol's most recent 10^k values. Failures are returned as status errors.
func (c *Client) Query(ctx context.Context, symbol string, k int, opts ...grpc.CallOption) (tickstats.Stats, error) {
	resp := new(QueryResponse)
	if err := c.conn.Invoke(ctx, queryMethod, &QueryRequest{Symbol: symbol, K: k}, resp, callOptions(opts)...); err != nil {
		return tickstats.Stats{}, err
	}
	return resp.Stats, nil
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
