package boincrpc

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNonce = "1693526400.123"

// fakeCoreClient serves the GUI RPC wire protocol on an in-process
// listener: framed XML, nonce/md5 auth, canned state.
type fakeCoreClient struct {
	listener net.Listener
	password string
	stateXML string
}

func startFakeCoreClient(t *testing.T, password, stateXML string) *fakeCoreClient {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeCoreClient{listener: ln, password: password, stateXML: stateXML}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeCoreClient) serve() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeCoreClient) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		req, err := reader.ReadBytes(replyTerminator)
		if err != nil {
			return
		}
		var reply string
		switch {
		case bytes.Contains(req, []byte("<auth1/>")):
			reply = fmt.Sprintf("<boinc_gui_rpc_reply>\n<nonce>%s</nonce>\n</boinc_gui_rpc_reply>", testNonce)
		case bytes.Contains(req, []byte("<auth2>")):
			sum := md5.Sum([]byte(testNonce + f.password))
			want := fmt.Sprintf("<nonce_hash>%s</nonce_hash>", hex.EncodeToString(sum[:]))
			if bytes.Contains(req, []byte(want)) {
				reply = "<boinc_gui_rpc_reply>\n<authorized/>\n</boinc_gui_rpc_reply>"
			} else {
				reply = "<boinc_gui_rpc_reply>\n<unauthorized/>\n</boinc_gui_rpc_reply>"
			}
		case bytes.Contains(req, []byte("<get_state/>")):
			reply = fmt.Sprintf("<boinc_gui_rpc_reply>\n%s\n</boinc_gui_rpc_reply>", f.stateXML)
		default:
			reply = "<boinc_gui_rpc_reply>\n<error>unrecognized op</error>\n</boinc_gui_rpc_reply>"
		}
		if _, err := conn.Write(append([]byte(reply), replyTerminator)); err != nil {
			return
		}
	}
}

const sampleStateXML = `<client_state>
<host_info>
  <domain_name>crunchbox</domain_name>
  <os_name>Linux</os_name>
  <p_ncpus>16</p_ncpus>
</host_info>
<project>
  <master_url>https://example.org/</master_url>
  <project_name>Example</project_name>
  <user_total_credit>123456.5</user_total_credit>
  <host_total_credit>2345.5</host_total_credit>
</project>
<app>
  <name>nbody</name>
  <user_friendly_name>N-Body Simulation</user_friendly_name>
</app>
<workunit>
  <name>wu_1</name>
  <app_name>nbody</app_name>
</workunit>
<result>
  <name>wu_1_0</name>
  <wu_name>wu_1</wu_name>
  <received_time>1756540800.0</received_time>
  <estimated_cpu_time_remaining>5000</estimated_cpu_time_remaining>
  <final_cpu_time>0</final_cpu_time>
  <active_task>
    <current_cpu_time>345.6</current_cpu_time>
    <elapsed_time>400.1</elapsed_time>
    <fraction_done>0.25</fraction_done>
  </active_task>
</result>
<project>
  <master_url>https://second.example/</master_url>
  <project_name>Second</project_name>
</project>
<result>
  <name>wu_9_0</name>
  <wu_name>wu_9</wu_name>
  <final_cpu_time>999.9</final_cpu_time>
</result>
</client_state>`

func dialTestClient(t *testing.T, f *fakeCoreClient) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	client, err := Dial(ctx, f.listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestAuthorizeSuccess(t *testing.T) {
	f := startFakeCoreClient(t, "s3cret", sampleStateXML)
	client := dialTestClient(t, f)

	require.NoError(t, client.Authorize(context.Background(), "s3cret"))
}

func TestAuthorizeWrongPassword(t *testing.T) {
	f := startFakeCoreClient(t, "s3cret", sampleStateXML)
	client := dialTestClient(t, f)

	err := client.Authorize(context.Background(), "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetStateParsesFullDocument(t *testing.T) {
	f := startFakeCoreClient(t, "s3cret", sampleStateXML)
	client := dialTestClient(t, f)
	require.NoError(t, client.Authorize(context.Background(), "s3cret"))

	state, err := client.GetState(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "crunchbox", state.HostInfo.DomainName)
	assert.Equal(t, 16, state.HostInfo.PNCPUs)

	require.Len(t, state.Projects, 2)
	assert.Equal(t, "Example", state.Projects[0].ProjectName)
	assert.Equal(t, 123456.5, state.Projects[0].UserTotalCredit)

	// Apps and workunits inherit the url of the preceding project.
	require.Len(t, state.Apps, 1)
	assert.Equal(t, "https://example.org/", state.Apps[0].ProjectURL)
	require.Len(t, state.Workunits, 1)
	assert.Equal(t, "https://example.org/", state.Workunits[0].ProjectURL)

	require.Len(t, state.Results, 2)
	first := state.Results[0]
	assert.Equal(t, "https://example.org/", first.ProjectURL)
	assert.Equal(t, 345.6, first.CurrentCPUTime) // active task wins over final
	assert.Equal(t, 0.25, first.FractionDone)
	assert.Equal(t, time.Unix(1756540800, 0).UTC(), first.ReceivedTime)

	second := state.Results[1]
	assert.Equal(t, "https://second.example/", second.ProjectURL)
	assert.Equal(t, 999.9, second.CurrentCPUTime) // no active task, final stands
	assert.True(t, second.ReceivedTime.IsZero())
}

func TestCallHonorsContextDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		// Accept and hold the connection without replying.
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}()

	client, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = client.GetState(ctx)
	assert.Error(t, err)
}

func TestCloseNilClient(t *testing.T) {
	var client *Client
	assert.NoError(t, client.Close())
}
