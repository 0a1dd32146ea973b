package exec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/httpstream"
	remotecommandconsts "k8s.io/apimachinery/pkg/util/remotecommand"

	"github.com/example/kfl/pkg/fluent"
)

const spdyProtocol = "SPDY/3.1"

// UpgradeError reports a failed SPDY upgrade: a non-101 response (Status
// decoded or synthesized from the body) or an unacceptable subprotocol.
type UpgradeError struct {
	Code    int
	Message string
	Status  *metav1.Status
}

func (e *UpgradeError) Error() string {
	if e.Message != "" {
		return "upgrade failed: " + e.Message
	}
	if e.Status != nil && e.Status.Message != "" {
		return fmt.Sprintf("upgrade rejected with status %d: %s", e.Code, e.Status.Message)
	}
	return fmt.Sprintf("upgrade rejected with status %d", e.Code)
}

// upgradedConn replays bytes the response reader buffered past the 101 before
// handing reads back to the raw connection.
type upgradedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *upgradedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

// upgrade dials the request target, performs the SPDY/3.1 upgrade handshake,
// and negotiates the exec subprotocol version. v1 is excluded because it
// cannot reliably convey exit status.
func upgrade(ctx context.Context, req *fluent.Request, protocols []string) (net.Conn, string, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, "", err
	}
	httpReq.Header.Set(httpstream.HeaderConnection, httpstream.HeaderUpgrade)
	httpReq.Header.Set(httpstream.HeaderUpgrade, spdyProtocol)
	httpReq.Header.Set("Accept", "*/*")
	httpReq.Header.Del(httpstream.HeaderProtocolVersion)
	for _, p := range protocols {
		httpReq.Header.Add(httpstream.HeaderProtocolVersion, p)
	}

	conn, err := req.Client().Dial(ctx, httpReq.URL)
	if err != nil {
		return nil, "", err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := httpReq.Write(conn); err != nil {
		conn.Close()
		return nil, "", errors.Wrap(err, "write upgrade request")
	}
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, httpReq)
	if err != nil {
		conn.Close()
		return nil, "", errors.Wrap(err, "read upgrade response")
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 32<<10))
		resp.Body.Close()
		conn.Close()
		return nil, "", &UpgradeError{Code: resp.StatusCode, Status: upgradeStatus(resp.StatusCode, body)}
	}
	protocol := resp.Header.Get(httpstream.HeaderProtocolVersion)
	switch protocol {
	case remotecommandconsts.StreamProtocolV2Name,
		remotecommandconsts.StreamProtocolV3Name,
		remotecommandconsts.StreamProtocolV4Name:
	default:
		conn.Close()
		return nil, "", &UpgradeError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("server negotiated unsupported subprotocol %q", protocol),
		}
	}
	conn.SetDeadline(time.Time{})
	return &upgradedConn{Conn: conn, r: br}, protocol, nil
}

func upgradeStatus(code int, body []byte) *metav1.Status {
	if len(body) > 0 {
		status := &metav1.Status{}
		if err := fluent.Unmarshal(body, status); err == nil && status.Kind == "Status" {
			return status
		}
	}
	return &metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    int32(code),
		Message: string(body),
	}
}
