package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/agentscope-go/core/retry"
)

// Client is a thin gRPC client over the hand-registered serviceDesc,
// grounded on rpc_client.py's RpcClient: one conn per (host, port) pooled
// across calls, an is_alive probe used to disambiguate a dead server from a
// merely failed call, and a download_file helper that saves streamed bytes
// locally.
type Client struct {
	host, port  string
	downloadDir string
}

var (
	connPoolMu sync.Mutex
	connPool   = map[string]*grpc.ClientConn{}
)

// NewClient builds a Client targeting host:port. DownloadFile saves files
// under os.TempDir().
func NewClient(host, port string) *Client {
	return &Client{host: host, port: port, downloadDir: os.TempDir()}
}

func (c *Client) addr() string { return fmt.Sprintf("%s:%s", c.host, c.port) }

func (c *Client) getConn() (*grpc.ClientConn, error) {
	addr := c.addr()
	connPoolMu.Lock()
	defer connPoolMu.Unlock()
	if conn, ok := connPool[addr]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(wireCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	connPool[addr] = conn
	return conn, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	conn, err := c.getConn()
	if err != nil {
		return err
	}
	return conn.Invoke(ctx, fullMethod(method), req, resp)
}

// IsAlive reports whether the server responds to a cheap probe call.
// Mirrors rpc_client.py's is_alive: any error (including "the method
// doesn't exist yet because the server isn't up") is treated as not alive.
func (c *Client) IsAlive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var resp statusResponse
	if err := c.invoke(ctx, methodIsAlive, emptyRequest{}, &resp); err != nil {
		return false
	}
	return resp.OK
}

// wrapTransportError implements the §4.3 failure model: probe is_alive
// first; surface ServerNotAliveError if the server is down, else
// CallFailedError with the original cause.
func (c *Client) wrapTransportError(ctx context.Context, cause error) error {
	if !c.IsAlive(ctx) {
		return &ServerNotAliveError{Host: c.host, Port: c.port, Message: cause.Error()}
	}
	return &CallFailedError{Host: c.host, Port: c.port, Message: cause.Error()}
}

// CreateObject creates a new object of className on the server, optionally
// under a caller-chosen oid, and returns the assigned oid.
func (c *Client) CreateObject(ctx context.Context, className string, initArgs json.RawMessage, oid string) (string, error) {
	var resp createObjectResponse
	err := c.invoke(ctx, methodCreateObject, createObjectRequest{ClassName: className, Oid: oid, InitArgs: initArgs}, &resp)
	if err != nil {
		return "", &CreationFailedError{Host: c.host, Port: c.port, Message: c.wrapTransportError(ctx, err).Error()}
	}
	if !resp.OK {
		return "", &CreationFailedError{Host: c.host, Port: c.port, Message: resp.Message}
	}
	return resp.Oid, nil
}

// CallMethod invokes method on oid with the given JSON-encoded args tuple.
// The response distinguishes a sync result from an async task id.
func (c *Client) CallMethod(ctx context.Context, oid, method string, args json.RawMessage, timeoutSeconds int) (callMethodResponse, error) {
	var resp callMethodResponse
	req := callMethodRequest{Oid: oid, Method: method, Args: args, TimeoutSeconds: timeoutSeconds}
	if err := c.invoke(ctx, methodCallMethod, req, &resp); err != nil {
		return callMethodResponse{}, c.wrapTransportError(ctx, err)
	}
	if !resp.OK {
		return callMethodResponse{}, &CallFailedError{Host: c.host, Port: c.port, Message: resp.Message}
	}
	return resp, nil
}

// DeleteObject removes oid from the server.
func (c *Client) DeleteObject(ctx context.Context, oid string) error {
	var resp statusResponse
	if err := c.invoke(ctx, methodDeleteObject, oidRequest{Oid: oid}, &resp); err != nil {
		return c.wrapTransportError(ctx, err)
	}
	if !resp.OK {
		return &CallFailedError{Host: c.host, Port: c.port, Message: resp.Message}
	}
	return nil
}

// DeleteAll removes every object hosted by the server.
func (c *Client) DeleteAll(ctx context.Context) error {
	var resp statusResponse
	if err := c.invoke(ctx, methodDeleteAll, emptyRequest{}, &resp); err != nil {
		return c.wrapTransportError(ctx, err)
	}
	return nil
}

// Stop asks the server to gracefully shut down.
func (c *Client) Stop(ctx context.Context) error {
	var resp statusResponse
	return c.invoke(ctx, methodStop, emptyRequest{}, &resp)
}

// UpdatePlaceholder polls the task-result pool for taskID under strategy.
// Every failed poll is retried, including a CallFailedError for a task id
// the server reports as unknown/failed; once the retry budget is exhausted
// it returns a *retry.ExhaustedError wrapping the last poll's error.
func (c *Client) UpdatePlaceholder(ctx context.Context, taskID string, strategy retry.Strategy) (json.RawMessage, error) {
	if strategy == nil {
		strategy = retry.Default()
	}
	var value json.RawMessage
	err := retry.Do(ctx, strategy, nil, func(ctx context.Context) error {
		var resp updatePlaceholderResponse
		if err := c.invoke(ctx, methodUpdatePlaceholder, updatePlaceholderRequest{TaskID: taskID}, &resp); err != nil {
			return c.wrapTransportError(ctx, err)
		}
		if !resp.OK {
			return &CallFailedError{Host: c.host, Port: c.port, Message: resp.Message}
		}
		if !resp.Ready {
			return fmt.Errorf("rpc: task %q not ready yet", taskID)
		}
		value = resp.Value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// ListObjects returns every oid/class pair hosted by the server.
func (c *Client) ListObjects(ctx context.Context) ([]objectSummary, error) {
	var resp listObjectsResponse
	if err := c.invoke(ctx, methodListObjects, emptyRequest{}, &resp); err != nil {
		return nil, c.wrapTransportError(ctx, err)
	}
	return resp.Objects, nil
}

// ServerInfo returns basic server resource/usage information.
func (c *Client) ServerInfo(ctx context.Context) (serverInfoResponse, error) {
	var resp serverInfoResponse
	if err := c.invoke(ctx, methodServerInfo, emptyRequest{}, &resp); err != nil {
		return serverInfoResponse{}, c.wrapTransportError(ctx, err)
	}
	return resp, nil
}

// SetModelConfigs pushes a JSON blob of model configuration to the server.
func (c *Client) SetModelConfigs(ctx context.Context, configsJSON json.RawMessage) error {
	var resp statusResponse
	if err := c.invoke(ctx, methodSetModelConfigs, setModelConfigsRequest{ConfigsJSON: configsJSON}, &resp); err != nil {
		return c.wrapTransportError(ctx, err)
	}
	if !resp.OK {
		return &CallFailedError{Host: c.host, Port: c.port, Message: resp.Message}
	}
	return nil
}

// GetObjectMemory returns the JSON-serialized processed memory of oid, if
// the hosted object exposes one.
func (c *Client) GetObjectMemory(ctx context.Context, oid string) (json.RawMessage, error) {
	var resp getObjectMemoryResponse
	if err := c.invoke(ctx, methodGetObjectMemory, getObjectMemoryRequest{Oid: oid}, &resp); err != nil {
		return nil, c.wrapTransportError(ctx, err)
	}
	if !resp.OK {
		return nil, &CallFailedError{Host: c.host, Port: c.port, Message: resp.Message}
	}
	return resp.MemoryJSON, nil
}

// DownloadFile streams path from the server and saves it under c.downloadDir,
// returning the local file's path. Mirrors rpc_client.py's download_file,
// which names the local copy with a short hash of the remote path to avoid
// collisions between same-named files from different remote directories.
func (c *Client) DownloadFile(ctx context.Context, path string) (string, error) {
	conn, err := c.getConn()
	if err != nil {
		return "", err
	}
	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], fullMethod(streamDownloadFile))
	if err != nil {
		return "", c.wrapTransportError(ctx, err)
	}
	if err := stream.SendMsg(&downloadFileRequest{Path: path}); err != nil {
		return "", c.wrapTransportError(ctx, err)
	}
	if err := stream.CloseSend(); err != nil {
		return "", c.wrapTransportError(ctx, err)
	}

	localName := fmt.Sprintf("%s_%s", shortHash(path), filepath.Base(path))
	localPath := filepath.Join(c.downloadDir, localName)
	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("rpc: create local download file: %w", err)
	}
	defer f.Close()

	for {
		var chunk downloadFileChunk
		err := stream.RecvMsg(&chunk)
		if err != nil {
			break
		}
		if chunk.Err != "" {
			return "", &CallFailedError{Host: c.host, Port: c.port, Message: chunk.Err}
		}
		if _, err := f.Write(chunk.Data); err != nil {
			return "", fmt.Errorf("rpc: write downloaded chunk: %w", err)
		}
	}
	return localPath, nil
}
