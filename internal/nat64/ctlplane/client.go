package ctlplane

import (
	"net"

	nerrors "github.com/pierky/nat64d/internal/nat64/errors"
)

// Client is a thin synchronous request/response wrapper over one
// connection to a Server, for the CLI.
type Client struct {
	conn net.Conn
}

// Dial connects to a nat64d control socket at network/address (e.g.
// "unix", "/run/nat64d.sock").
func Dial(network, address string) (*Client, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, nerrors.Wrap(err, nerrors.KindUnavailable, "dialing nat64d control socket")
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends req and returns the Server's response record.
func (c *Client) Do(req Record) (Record, error) {
	if err := req.Encode(c.conn); err != nil {
		return Record{}, err
	}
	return Decode(c.conn)
}

// Display requests a rendered text view of the named target (config,
// pool4, bib, session).
func (c *Client) Display(target string) (string, error) {
	resp, err := c.Do(Record{Type: MsgDisplay, Payload: []byte(target)})
	if err != nil {
		return "", err
	}
	return DecodeDisplayResponse(resp.Payload).Text, nil
}

// Set applies one configuration field.
func (c *Client) Set(field, value string) (string, error) {
	resp, err := c.Do(Record{Type: MsgSet, Payload: EncodeSetRequest(SetRequest{Field: field, Value: value})})
	if err != nil {
		return "", err
	}
	return DecodeDisplayResponse(resp.Payload).Text, nil
}

// Pool4Add/Pool4Rm mutate pool4.
func (c *Client) Pool4Add(req Pool4Request) (string, error) {
	return c.pool4(MsgPool4Add, req)
}

func (c *Client) Pool4Rm(req Pool4Request) (string, error) {
	return c.pool4(MsgPool4Rm, req)
}

func (c *Client) pool4(t MsgType, req Pool4Request) (string, error) {
	resp, err := c.Do(Record{Type: t, Payload: EncodePool4Request(req)})
	if err != nil {
		return "", err
	}
	return DecodeDisplayResponse(resp.Payload).Text, nil
}
