package execution

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	executionv1 "judgebroker/api/gen/execution/v1"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultDialTimeout = 5 * time.Second

// TLSConfig enables transport security towards the execution endpoint.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CAFile             string `yaml:"caFile"`
	ServerName         string `yaml:"serverName"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// GRPCConfig holds execution endpoint settings.
type GRPCConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	TLS         TLSConfig     `yaml:"tls"`
}

// GRPCBackend reaches the sandbox over the execution service.
type GRPCBackend struct {
	conn        *grpc.ClientConn
	client      executionv1.ExecutionServiceClient
	openTimeout time.Duration
}

// DialGRPC creates a client for cfg.Endpoint. Connecting is lazy; an unreachable
// endpoint surfaces on the first Execute.
func DialGRPC(cfg GRPCConfig) (*GRPCBackend, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("execution endpoint is required")
	}
	creds, err := transportCredentials(cfg.TLS)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create execution client failed: %w", err)
	}
	backend := NewGRPCBackend(conn)
	if cfg.DialTimeout > 0 {
		backend.openTimeout = cfg.DialTimeout
	}
	return backend, nil
}

// NewGRPCBackend wraps an existing connection.
func NewGRPCBackend(conn *grpc.ClientConn) *GRPCBackend {
	return &GRPCBackend{
		conn:        conn,
		client:      executionv1.NewExecutionServiceClient(conn),
		openTimeout: defaultDialTimeout,
	}
}

func (b *GRPCBackend) Execute(ctx context.Context, req *Request) (ResultStream, error) {
	if err := b.waitReady(ctx); err != nil {
		return nil, err
	}
	stream, err := b.client.Execute(ctx, requestToProto(req))
	if err != nil {
		return nil, err
	}
	return &grpcResultStream{stream: stream}, nil
}

// waitReady bounds how long opening a stream may wait for the endpoint,
// including reconnects after a transient failure.
func (b *GRPCBackend) waitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.openTimeout)
	defer cancel()

	b.conn.Connect()
	for {
		state := b.conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("execution client is closed")
		}
		if !b.conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("execution endpoint not ready: %w", ctx.Err())
		}
	}
}

// Close releases the connection.
func (b *GRPCBackend) Close() error {
	return b.conn.Close()
}

type grpcResultStream struct {
	stream executionv1.ExecutionService_ExecuteClient
}

func (s *grpcResultStream) Recv() (*Result, error) {
	pb, err := s.stream.Recv()
	if err != nil {
		return nil, err
	}
	return resultFromProto(pb), nil
}

func transportCredentials(cfg TLSConfig) (credentials.TransportCredentials, error) {
	if !cfg.Enabled {
		return insecure.NewCredentials(), nil
	}
	tlsCfg := &tls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read execution CA failed: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("execution CA contains no certificates")
		}
		tlsCfg.RootCAs = pool
	}
	return credentials.NewTLS(tlsCfg), nil
}
