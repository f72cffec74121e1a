package boincrpc

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// DefaultPort is the GUI RPC port a core client listens on.
const DefaultPort = 31416

// replyTerminator frames every GUI RPC message in both directions.
const replyTerminator = 0x03

// ErrUnauthorized is returned when the client rejects the password.
var ErrUnauthorized = fmt.Errorf("boincrpc: unauthorized")

// Client is a connection to one BOINC core client's GUI RPC port.
// It is not safe for concurrent use; the protocol is strictly
// request/reply on a single connection.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial opens a GUI RPC connection. The context deadline, if any,
// bounds the connect and is inherited by subsequent calls through
// per-call SetDeadline.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("boincrpc: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close releases the underlying connection. Safe to call on every exit
// path, including after a failed call.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Authorize runs the two-step nonce/md5 handshake. Must precede any
// data call.
func (c *Client) Authorize(ctx context.Context, password string) error {
	reply, err := c.call(ctx, "<auth1/>")
	if err != nil {
		return err
	}
	nonce, err := extractElement(reply, "nonce")
	if err != nil {
		return fmt.Errorf("boincrpc: auth1 reply missing nonce: %w", err)
	}

	sum := md5.Sum([]byte(nonce + password))
	hash := hex.EncodeToString(sum[:])

	reply, err = c.call(ctx, fmt.Sprintf("<auth2>\n<nonce_hash>%s</nonce_hash>\n</auth2>", hash))
	if err != nil {
		return err
	}
	if !bytes.Contains(reply, []byte("<authorized")) {
		return ErrUnauthorized
	}
	return nil
}

// GetState requests the full client state: host info, projects,
// installed apps, workunits and in-progress results.
func (c *Client) GetState(ctx context.Context) (*ClientState, error) {
	reply, err := c.call(ctx, "<get_state/>")
	if err != nil {
		return nil, err
	}
	state, err := parseClientState(reply)
	if err != nil {
		return nil, fmt.Errorf("boincrpc: parse client state: %w", err)
	}
	return state, nil
}

// call writes one framed request and reads one framed reply.
func (c *Client) call(ctx context.Context, body string) ([]byte, error) {
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("boincrpc: set deadline: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fmt.Sprintf("<boinc_gui_rpc_request>\n%s\n</boinc_gui_rpc_request>\n%c", body, replyTerminator)
	if _, err := io.WriteString(c.conn, req); err != nil {
		return nil, fmt.Errorf("boincrpc: write request: %w", err)
	}

	reply, err := c.reader.ReadBytes(replyTerminator)
	if err != nil {
		return nil, fmt.Errorf("boincrpc: read reply: %w", err)
	}
	return bytes.TrimSuffix(reply, []byte{replyTerminator}), nil
}

// extractElement pulls the character data of the first occurrence of
// the named element out of a reply document.
func extractElement(doc []byte, name string) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != name {
			continue
		}
		var value string
		if err := dec.DecodeElement(&value, &start); err != nil {
			return "", err
		}
		return strings.TrimSpace(value), nil
	}
}

// parseClientState walks the client_state document token by token.
// Apps, workunits and results carry no project_url of their own; the
// document nests them after their owning <project> element, so the
// walk tracks the most recently seen master URL and assigns it.
func parseClientState(doc []byte) (*ClientState, error) {
	state := &ClientState{}
	currentURL := ""

	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "host_info":
			if err := dec.DecodeElement(&state.HostInfo, &start); err != nil {
				return nil, err
			}
		case "project":
			var p Project
			if err := dec.DecodeElement(&p, &start); err != nil {
				return nil, err
			}
			currentURL = p.MasterURL
			state.Projects = append(state.Projects, p)
		case "app":
			var a App
			if err := dec.DecodeElement(&a, &start); err != nil {
				return nil, err
			}
			a.ProjectURL = currentURL
			state.Apps = append(state.Apps, a)
		case "workunit":
			var w Workunit
			if err := dec.DecodeElement(&w, &start); err != nil {
				return nil, err
			}
			w.ProjectURL = currentURL
			state.Workunits = append(state.Workunits, w)
		case "result":
			var r resultXML
			if err := dec.DecodeElement(&r, &start); err != nil {
				return nil, err
			}
			state.Results = append(state.Results, r.toResult(currentURL))
		}
	}
	return state, nil
}
