package exec

import (
	"strconv"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	remotecommandconsts "k8s.io/apimachinery/pkg/util/remotecommand"

	"github.com/example/kfl/pkg/fluent"
)

// resultFromErrorStream interprets the fully-buffered error stream once it
// hits EOF. An empty buffer means the command succeeded. Protocols v4 and up
// carry a Status with the exit code in an ExitCode cause; v2 and v3 carry
// plain text and cannot convey a code.
func resultFromErrorStream(protocol string, payload []byte) (*Result, error) {
	if len(payload) == 0 {
		return &Result{
			Status:   &metav1.Status{Status: metav1.StatusSuccess},
			ExitCode: 0,
		}, nil
	}
	if protocol == remotecommandconsts.StreamProtocolV4Name {
		status := &metav1.Status{}
		if err := fluent.Unmarshal(payload, status); err != nil {
			return nil, err
		}
		res := &Result{Status: status, ExitCode: 0}
		if status.Status == metav1.StatusFailure {
			res.ExitCode = -1
			if status.Details != nil {
				for _, cause := range status.Details.Causes {
					if cause.Type != remotecommandconsts.ExitCodeCauseType {
						continue
					}
					if code, err := strconv.Atoi(cause.Message); err == nil {
						res.ExitCode = code
					}
				}
			}
		}
		return res, nil
	}
	return &Result{
		Status: &metav1.Status{
			Status:  metav1.StatusFailure,
			Reason:  metav1.StatusReason("CommandFailed"),
			Message: string(payload),
		},
		ExitCode: -1,
	}, nil
}
