package server

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"flow-validator/internal/model"
)

// Client calls a remote flow validator.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to address, a host:port or a unix socket path. Extra options
// are applied after the defaults.
func Dial(address string, opts ...grpc.DialOption) (*Client, error) {
	target := parseAddress(address)
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

func parseAddress(address string) string {
	if strings.HasPrefix(address, "/") {
		return "unix://" + address
	}
	return address
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Initialize(ctx context.Context, ng model.NetworkGraph) (*model.InitializeInfo, error) {
	out := new(model.InitializeInfo)
	if err := c.conn.Invoke(ctx, initializeMethod, &ng, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ValidatePolicy(ctx context.Context, p model.Policy) (*model.ValidatePolicyInfo, error) {
	out := new(model.ValidatePolicyInfo)
	if err := c.conn.Invoke(ctx, validatePolicyMethod, &p, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTimeToDisconnect(ctx context.Context, req model.TimeToDisconnectRequest) (*model.TimeToDisconnectInfo, error) {
	out := new(model.TimeToDisconnectInfo)
	if err := c.conn.Invoke(ctx, timeToDisconnectMethod, &req, out); err != nil {
		return nil, err
	}
	return out, nil
}
